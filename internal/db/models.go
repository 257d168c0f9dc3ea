package db

import "github.com/jewelhouse/jewelhouse/internal/models"

type Order = models.Order
type OrderItem = models.OrderItem
type OrderStatus = models.OrderStatus
type PushSubscription = models.PushSubscription
type Payment = models.Payment

const (
	StatusPending   = models.StatusPending
	StatusPaid      = models.StatusPaid
	StatusShipped   = models.StatusShipped
	StatusDelivered = models.StatusDelivered
	StatusCancelled = models.StatusCancelled
)

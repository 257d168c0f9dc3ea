package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// orderTransitions is the forward-only lifecycle graph. pending -> paid is
// driven by payment confirmation, never by an admin status update.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending: {StatusPaid},
	StatusPaid:    {StatusShipped, StatusCancelled},
	StatusShipped: {StatusDelivered, StatusCancelled},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// AdminSettable reports whether an admin may request this status directly.
func (s OrderStatus) AdminSettable() bool {
	return s == StatusShipped || s == StatusDelivered || s == StatusCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// OptionValue is one selected product option group on a line item.
type OptionValue struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Values   []string `json:"values"`
	Required bool     `json:"required"`
}

// OrderItem is a line item. Name and UnitPrice are captured when the order is
// placed; Product holds whatever the catalogue says today and may be nil.
type OrderItem struct {
	ProductID uuid.UUID        `json:"productId"`
	Name      string           `json:"name"`
	UnitPrice float64          `json:"unitPrice"`
	Quantity  int              `json:"quantity"`
	Size      string           `json:"size,omitempty"`
	Options   []OptionValue    `json:"options,omitempty"`
	Product   *ProductSnapshot `json:"-"`
}

func (i OrderItem) Subtotal() float64 {
	return i.UnitPrice * float64(i.Quantity)
}

type ProductSnapshot struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	SKU        string    `json:"sku"`
	Price      float64   `json:"price"`
	Images     []string  `json:"images"`
	Sizes      []string  `json:"sizes"`
	Stock      int       `json:"stock"`
	SaleActive bool      `json:"saleActive"`
	SalePrice  *float64  `json:"salePrice"`
}

func (p *ProductSnapshot) FirstImage() string {
	if p == nil || len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

type Customer struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone string    `json:"phone,omitempty"`
}

// Label is how the admin UI names the customer in feeds and notifications.
func (c *Customer) Label() string {
	if c == nil {
		return "Customer"
	}
	if c.Email != "" {
		return c.Email
	}
	if c.Name != "" {
		return c.Name
	}
	if c.ID != uuid.Nil {
		return c.ID.String()
	}
	return "Customer"
}

type Order struct {
	ID            uuid.UUID   `json:"id"`
	UserID        uuid.UUID   `json:"userId"`
	Items         []OrderItem `json:"items"`
	Phone         string      `json:"phone"`
	Address       string      `json:"address"`
	TotalAmount   float64     `json:"totalAmount"`
	Status        OrderStatus `json:"status"`
	IsPaid        bool        `json:"isPaid"`
	PaidAt        *time.Time  `json:"paidAt"`
	PaymentMethod string      `json:"paymentMethod"`
	Customer      *Customer   `json:"-"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// ItemsSubtotal sums captured line prices. It is informational only; the
// client supplied TotalAmount stays authoritative.
func (o *Order) ItemsSubtotal() float64 {
	var total float64
	for _, item := range o.Items {
		total += item.Subtotal()
	}
	return total
}

// ReferenceCode is the short code shown to admins and printed on bank
// transfer instructions.
func (o *Order) ReferenceCode() string {
	if o == nil || o.ID == uuid.Nil {
		return ""
	}
	id := o.ID.String()
	out := make([]byte, 0, 8)
	for i := 0; i < len(id) && len(out) < 8; i++ {
		c := id[i]
		if c == '-' {
			continue
		}
		if c >= 'a' && c <= 'f' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// FeedSummary aggregates the filtered feed independent of pagination.
type FeedSummary struct {
	TotalValue float64 `json:"totalValue"`
	OpenCount  int     `json:"openCount"`
}

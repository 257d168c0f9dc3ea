package models

import (
	"time"

	"github.com/google/uuid"
)

// PushSubscription is a browser push endpoint registered by an admin device.
type PushSubscription struct {
	ID        uuid.UUID  `json:"id"`
	Endpoint  string     `json:"endpoint"`
	P256dh    string     `json:"p256dh"`
	Auth      string     `json:"auth"`
	UserID    *uuid.UUID `json:"userId"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

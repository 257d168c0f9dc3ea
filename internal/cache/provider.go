// Package cache holds short-lived idempotency markers for payment confirmations.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("key not found")

// IdempotencyTTL bounds how long a processed payment or webhook event is remembered.
const IdempotencyTTL = 24 * time.Hour

type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Claim stores value under key only when the key is absent. It reports
	// whether this caller won the claim.
	Claim(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(ctx, cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// WebhookKey identifies a delivered provider event, e.g. ("stripe", "evt_123").
func WebhookKey(source, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", source, eventID)
}

// PaymentKey identifies a payment by its provider transaction id.
func PaymentKey(transactionID string) string {
	return "payment:" + strings.TrimSpace(transactionID)
}

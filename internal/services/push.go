package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jewelhouse/jewelhouse/internal/logging"
	"github.com/jewelhouse/jewelhouse/internal/models"
)

// SubscribeInput mirrors the browser PushSubscription JSON.
type SubscribeInput struct {
	Endpoint string           `json:"endpoint" validate:"required,url"`
	Keys     SubscriptionKeys `json:"keys"`
}

type SubscriptionKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

type PushService struct {
	subscriptions SubscriptionRepository
	publicKey     string
	validate      *validator.Validate
	logger        *slog.Logger
}

// NewPushService returns a registry front end. An empty publicKey means push
// is disabled and every call reports ErrPushDisabled.
func NewPushService(subscriptions SubscriptionRepository, publicKey string, logger *slog.Logger) *PushService {
	return &PushService{
		subscriptions: subscriptions,
		publicKey:     strings.TrimSpace(publicKey),
		validate:      validator.New(),
		logger:        logger,
	}
}

func (s *PushService) Enabled() bool {
	return s != nil && s.publicKey != "" && s.subscriptions != nil
}

func (s *PushService) PublicKey() (string, error) {
	if !s.Enabled() {
		return "", ErrPushDisabled
	}
	return s.publicKey, nil
}

// Subscribe registers or refreshes an admin device. Re-subscribing an
// endpoint replaces its keys and owner.
func (s *PushService) Subscribe(ctx context.Context, owner *models.Identity, input SubscribeInput) (*models.PushSubscription, error) {
	if !s.Enabled() {
		return nil, ErrPushDisabled
	}

	input.Endpoint = strings.TrimSpace(input.Endpoint)
	input.Keys.P256dh = strings.TrimSpace(input.Keys.P256dh)
	input.Keys.Auth = strings.TrimSpace(input.Keys.Auth)
	if err := s.validate.Struct(input); err != nil {
		return nil, &ValidationError{Kind: ErrInvalidSubscription, Message: describeValidation(err)}
	}

	sub := &models.PushSubscription{
		Endpoint: input.Endpoint,
		P256dh:   input.Keys.P256dh,
		Auth:     input.Keys.Auth,
	}
	if owner != nil {
		ownerID := owner.UserID
		sub.UserID = &ownerID
	}

	if err := s.subscriptions.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save push subscription: %w", err)
	}

	logging.FromContext(ctx, s.logger).Info("push subscription saved", "subscription_id", sub.ID, "user_id", sub.UserID)
	return sub, nil
}

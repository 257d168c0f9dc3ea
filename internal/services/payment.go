package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/jewelhouse/jewelhouse/internal/cache"
	"github.com/jewelhouse/jewelhouse/internal/db"
	"github.com/jewelhouse/jewelhouse/internal/logging"
	"github.com/jewelhouse/jewelhouse/internal/models"
	"github.com/jewelhouse/jewelhouse/internal/observability"
	"github.com/jewelhouse/jewelhouse/internal/stripe"
)

type PaymentInput struct {
	OrderID       string  `json:"order" validate:"required,uuid"`
	Amount        float64 `json:"amount" validate:"gte=0"`
	Method        string  `json:"method"`
	Status        string  `json:"status" validate:"omitempty,oneof=pending success failed"`
	TransactionID string  `json:"transactionId"`
}

// ConfirmPayment records a payment against an order. A successful payment
// marks a pending order paid. Orders that already moved past paid keep their
// status.
func (s *OrderService) ConfirmPayment(ctx context.Context, input PaymentInput) (*models.Payment, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.confirm_payment",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("ConfirmPayment"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	input.OrderID = strings.TrimSpace(input.OrderID)
	input.Method = strings.TrimSpace(input.Method)
	input.Status = strings.ToLower(strings.TrimSpace(input.Status))
	input.TransactionID = strings.TrimSpace(input.TransactionID)
	if err := s.validate.Struct(input); err != nil {
		return nil, &ValidationError{Kind: ErrInvalidPayment, Message: describeValidation(err)}
	}
	if s.payments == nil {
		return nil, fmt.Errorf("payment store is not configured")
	}

	status := models.PaymentStatus(input.Status)
	if status == "" {
		status = models.PaymentPending
	}
	payment := &models.Payment{
		OrderID:       uuid.MustParse(input.OrderID),
		Amount:        input.Amount,
		Method:        input.Method,
		Status:        status,
		TransactionID: input.TransactionID,
	}

	ctx = logging.WithOrder(ctx, s.logger, payment.OrderID)
	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	var claimKey string
	if payment.TransactionID != "" && s.cache != nil {
		claimKey = cache.PaymentKey(payment.TransactionID)
		won, err := s.cache.Claim(ctx, claimKey, payment.OrderID.String(), cache.IdempotencyTTL)
		if err != nil {
			logger.Warn("payment idempotency check failed", "error", err, "transaction_id", payment.TransactionID)
			claimKey = ""
		} else if !won {
			meter.Count("payment.duplicate", 1)
			return nil, ErrDuplicatePayment
		}
	}

	marked, err := s.payments.Record(ctx, payment)
	if err != nil {
		s.releaseClaim(ctx, claimKey)
		switch {
		case errors.Is(err, db.ErrDuplicatePayment):
			meter.Count("payment.duplicate", 1)
			return nil, ErrDuplicatePayment
		case errors.Is(err, db.ErrOrderNotFound):
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	meter.Count("payment.recorded", 1, sentry.WithAttributes(
		attribute.String("status", string(payment.Status)),
		attribute.String("method", payment.Method),
	))
	logger.Info("payment recorded", "payment_id", payment.ID, "status", payment.Status)

	if payment.Status != models.PaymentSuccess {
		return payment, nil
	}
	if !marked {
		logger.Warn("payment confirmed for order past paid")
		return payment, nil
	}

	meter.Count("order.paid", 1)
	order, err := s.orders.GetDetail(ctx, payment.OrderID)
	if err != nil {
		logger.Warn("failed to load paid order for email", "error", err)
		return payment, nil
	}
	s.sendStatusEmail(ctx, order)
	return payment, nil
}

// ConfirmStripePayment applies a verified payment_intent.succeeded event.
// Redelivered events are acknowledged without side effects.
func (s *OrderService) ConfirmStripePayment(ctx context.Context, confirmation *stripe.PaymentConfirmation) error {
	if confirmation == nil {
		return ErrInvalidPayment
	}

	var claimKey string
	if s.cache != nil && confirmation.EventID != "" {
		claimKey = cache.WebhookKey("stripe", confirmation.EventID)
		won, err := s.cache.Claim(ctx, claimKey, "1", cache.IdempotencyTTL)
		if err != nil {
			s.loggerFromContext(ctx).Warn("webhook idempotency check failed", "error", err, "event_id", confirmation.EventID)
			claimKey = ""
		} else if !won {
			return nil
		}
	}

	_, err := s.ConfirmPayment(ctx, PaymentInput{
		OrderID:       confirmation.OrderID.String(),
		Amount:        confirmation.Amount,
		Method:        confirmation.Method,
		Status:        string(models.PaymentSuccess),
		TransactionID: confirmation.TransactionID,
	})
	if errors.Is(err, ErrDuplicatePayment) {
		return nil
	}
	if err != nil {
		// Let Stripe's retry reach us again.
		s.releaseClaim(ctx, claimKey)
	}
	return err
}

func (s *OrderService) releaseClaim(ctx context.Context, key string) {
	if key == "" || s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		s.loggerFromContext(ctx).Warn("failed to release payment claim", "error", err, "key", key)
	}
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/jewelhouse/jewelhouse/internal/observability"
	"github.com/jewelhouse/jewelhouse/internal/services"
	stripewebhook "github.com/jewelhouse/jewelhouse/internal/stripe"
)

func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("webhook.provider", "stripe"))

	if h.config.StripeWebhookSecret == "" {
		http.Error(w, "Webhook handler not configured", http.StatusNotFound)
		return
	}

	event, err := stripewebhook.ReadWebhookEvent(r, h.config.StripeWebhookSecret)
	if err != nil {
		logger.Error("failed to read Stripe webhook payload", "error", err)
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}

	if event == nil || event.ID == "" {
		logger.Error("missing Stripe event ID")
		http.Error(w, "Missing event ID", http.StatusBadRequest)
		return
	}
	meter.Count("webhook.received", 1, sentry.WithAttributes(attribute.String("webhook.event_type", string(event.Type))))

	confirmation, err := stripewebhook.ParsePaymentSucceeded(event)
	if errors.Is(err, stripewebhook.ErrUnhandledEvent) {
		logger.Debug("ignoring Stripe event", "type", event.Type, "event_id", event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}
	if errors.Is(err, stripewebhook.ErrMissingOrderRef) {
		logger.Warn("payment intent has no order reference", "event_id", event.ID, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		logger.Error("failed to parse Stripe payment event", "error", err, "event_id", event.ID)
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}

	processErr := h.orders.ConfirmStripePayment(ctx, confirmation)
	if errors.Is(processErr, services.ErrOrderNotFound) {
		logger.Warn("Stripe payment references unknown order", "order_id", confirmation.OrderID, "event_id", event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}
	if processErr != nil {
		meter.Count("webhook.failed", 1, sentry.WithAttributes(attribute.String("webhook.event_type", string(event.Type))))
		logger.Error("failed to process Stripe webhook", "error", processErr, "type", event.Type)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

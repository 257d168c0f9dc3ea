// Package stripe verifies Stripe webhooks that confirm card payments.
package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const maxWebhookBody = 64 << 10

// OrderMetadataKey is set on payment intents created for storefront orders.
const OrderMetadataKey = "order_id"

var (
	ErrUnhandledEvent  = errors.New("unhandled stripe event")
	ErrMissingOrderRef = errors.New("payment intent has no order reference")
)

func ReadWebhookEvent(r *http.Request, secret string) (*stripeapi.Event, error) {
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		return nil, fmt.Errorf("missing stripe signature header")
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature validation failed: %w", err)
	}

	return &event, nil
}

// PaymentConfirmation is the part of a succeeded payment intent the order
// pipeline cares about.
type PaymentConfirmation struct {
	EventID       string
	OrderID       uuid.UUID
	TransactionID string
	Amount        float64
	Currency      string
	Method        string
}

// ParsePaymentSucceeded extracts the order payment from a
// payment_intent.succeeded event.
func ParsePaymentSucceeded(event *stripeapi.Event) (*PaymentConfirmation, error) {
	if event == nil || event.Type != stripeapi.EventTypePaymentIntentSucceeded {
		return nil, ErrUnhandledEvent
	}
	if event.Data == nil {
		return nil, fmt.Errorf("event has no data")
	}

	var intent stripeapi.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}

	rawOrderID := strings.TrimSpace(intent.Metadata[OrderMetadataKey])
	if rawOrderID == "" {
		return nil, ErrMissingOrderRef
	}
	orderID, err := uuid.Parse(rawOrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingOrderRef, err)
	}

	method := "card"
	if len(intent.PaymentMethodTypes) > 0 {
		method = intent.PaymentMethodTypes[0]
	}

	currency := strings.ToLower(string(intent.Currency))
	return &PaymentConfirmation{
		EventID:       event.ID,
		OrderID:       orderID,
		TransactionID: intent.ID,
		Amount:        fromMinorUnits(intent.AmountReceived, currency),
		Currency:      currency,
		Method:        method,
	}, nil
}

var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {}, "mga": {},
	"pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

func fromMinorUnits(amount int64, currency string) float64 {
	if _, ok := zeroDecimalCurrencies[currency]; ok {
		return float64(amount)
	}
	return float64(amount) / 100
}

// Package push delivers Web Push messages to registered admin devices.
package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/jewelhouse/jewelhouse/internal/models"
	"github.com/jewelhouse/jewelhouse/internal/observability"
)

var ErrNotConfigured = errors.New("web push is not configured")

// DeliveryError is a failed attempt. Gone means the push service reported the
// subscription as expired or unknown and it should be forgotten.
type DeliveryError struct {
	StatusCode int
	Gone       bool
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("push delivery failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("push delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsGone reports whether err says the subscription no longer exists.
func IsGone(err error) bool {
	var deliveryErr *DeliveryError
	return errors.As(err, &deliveryErr) && deliveryErr.Gone
}

type Config struct {
	PublicKey  string
	PrivateKey string
	Subject    string
	Timeout    time.Duration
	// TTL is how long the push service keeps an undelivered message.
	TTL time.Duration
}

type sendFunc func(ctx context.Context, message []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

type Sender struct {
	publicKey  string
	privateKey string
	subject    string
	timeout    time.Duration
	ttl        time.Duration
	httpClient *http.Client
	send       sendFunc
}

func NewSender(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.PublicKey) == "" || strings.TrimSpace(cfg.PrivateKey) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}

	return &Sender{
		publicKey:  cfg.PublicKey,
		privateKey: cfg.PrivateKey,
		subject:    cfg.Subject,
		timeout:    cfg.Timeout,
		ttl:        cfg.TTL,
		httpClient: observability.NewHTTPClient(cfg.Timeout),
		send:       webpush.SendNotificationWithContext,
	}, nil
}

func (s *Sender) PublicKey() string {
	if s == nil {
		return ""
	}
	return s.publicKey
}

// Send makes a single attempt bounded by the configured timeout. Any non-2xx
// answer is a *DeliveryError.
func (s *Sender) Send(ctx context.Context, sub models.PushSubscription, payload []byte) error {
	if s == nil {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.send(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      s.subject,
		TTL:             int(s.ttl / time.Second),
		Urgency:         webpush.UrgencyHigh,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
	})
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close() //nolint
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &DeliveryError{
		StatusCode: resp.StatusCode,
		Gone:       resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone,
		Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jewelhouse/jewelhouse/internal/config"
	"github.com/jewelhouse/jewelhouse/internal/logging"
	"github.com/jewelhouse/jewelhouse/internal/models"
	"github.com/jewelhouse/jewelhouse/internal/services"
	"github.com/jewelhouse/jewelhouse/internal/stripe"
)

const maxJSONBodyBytes = 1 << 20 // 1 MB

type Pinger interface {
	Ping(ctx context.Context) error
}

type TokenVerifier interface {
	Verify(token string) (*models.Identity, error)
}

type OrderService interface {
	Create(ctx context.Context, actor *models.Identity, input services.CreateOrderInput) (*models.Order, error)
	ListMine(ctx context.Context, actor *models.Identity) ([]*models.Order, error)
	Feed(ctx context.Context, rawPage, rawLimit string) (*services.FeedResult, error)
	Detail(ctx context.Context, rawOrderID string) (*models.Order, error)
	ListAll(ctx context.Context) ([]*models.Order, error)
	UpdateStatus(ctx context.Context, actor *models.Identity, rawOrderID, rawStatus string) (*models.Order, error)
	ConfirmPayment(ctx context.Context, input services.PaymentInput) (*models.Payment, error)
	ConfirmStripePayment(ctx context.Context, confirmation *stripe.PaymentConfirmation) error
}

type PushService interface {
	PublicKey() (string, error)
	Subscribe(ctx context.Context, owner *models.Identity, input services.SubscribeInput) (*models.PushSubscription, error)
}

// Handlers provides the storefront and admin JSON API.
type Handlers struct {
	config   *config.Config
	db       Pinger
	verifier TokenVerifier
	orders   OrderService
	push     PushService
	realtime http.Handler
	logger   *slog.Logger
}

type Dependencies struct {
	Config       *config.Config
	DB           Pinger
	Verifier     TokenVerifier
	OrderService OrderService
	PushService  PushService
	Realtime     http.Handler
	Logger       *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("handlers dependencies: verifier is required")
	}
	if deps.OrderService == nil {
		return nil, fmt.Errorf("handlers dependencies: orderService is required")
	}
	if deps.PushService == nil {
		return nil, fmt.Errorf("handlers dependencies: pushService is required")
	}
	if deps.Realtime == nil {
		return nil, fmt.Errorf("handlers dependencies: realtime is required")
	}

	return &Handlers{
		config:   deps.Config,
		db:       deps.DB,
		verifier: deps.Verifier,
		orders:   deps.OrderService,
		push:     deps.PushService,
		realtime: deps.Realtime,
		logger:   logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		writeMessage(w, http.StatusServiceUnavailable, "Database unhealthy")
		return
	}

	writeJSON(ctx, w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Realtime hands the connection to the websocket gateway.
func (h *Handlers) Realtime(w http.ResponseWriter, r *http.Request) {
	h.realtime.ServeHTTP(w, r)
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("failed to decode request body: %w", err)
	}
	return nil
}

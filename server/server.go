package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jewelhouse/jewelhouse/internal/config"
	"github.com/jewelhouse/jewelhouse/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second, // hijacked websocket connections manage their own deadlines
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() http.Handler {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.SecurityHeaders)
	r.Use(h.MetricsContext)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST").Name("webhooks.stripe")
	r.HandleFunc("/ws", h.Realtime).Methods("GET").Name("realtime")

	notFound := jsonMessage(http.StatusNotFound, `{"message":"Not found"}`)
	methodNotAllowed := jsonMessage(http.StatusMethodNotAllowed, `{"message":"Method not allowed"}`)
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = methodNotAllowed

	api := r.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = methodNotAllowed
	user := func(fn http.HandlerFunc) http.Handler { return h.RequireUser(fn) }
	admin := func(fn http.HandlerFunc) http.Handler { return h.RequireAdmin(fn) }

	// POST and GET /orders share a path with different roles, so auth wraps
	// each route instead of a per-role subrouter.
	api.Handle("/orders", user(h.CreateOrder)).Methods("POST").Name("orders.create")
	api.Handle("/orders", admin(h.AllOrders)).Methods("GET").Name("orders.list")
	api.Handle("/orders/my", user(h.MyOrders)).Methods("GET").Name("orders.my")
	api.Handle("/orders/feed", admin(h.OrdersFeed)).Methods("GET").Name("orders.feed")
	api.Handle("/orders/{id}", admin(h.OrderDetail)).Methods("GET").Name("orders.detail")
	api.Handle("/orders/{id}/status", admin(h.UpdateOrderStatus)).Methods("PUT").Name("orders.status")
	api.Handle("/payments", admin(h.CreatePayment)).Methods("POST").Name("payments.create")
	api.Handle("/push/subscribe", admin(h.PushSubscribe)).Methods("POST").Name("push.subscribe")
	api.Handle("/push/public-key", admin(h.PushPublicKey)).Methods("GET").Name("push.public_key")

	// Preflight requests never match a route method, so CORS wraps the router.
	return h.CORS(r)
}

func jsonMessage(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body)) //nolint
	})
}

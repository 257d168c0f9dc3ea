package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jewelhouse/jewelhouse/internal/auth"
	"github.com/jewelhouse/jewelhouse/internal/cache"
	"github.com/jewelhouse/jewelhouse/internal/config"
	"github.com/jewelhouse/jewelhouse/internal/crypto"
	"github.com/jewelhouse/jewelhouse/internal/db"
	"github.com/jewelhouse/jewelhouse/internal/email"
	"github.com/jewelhouse/jewelhouse/internal/handlers"
	"github.com/jewelhouse/jewelhouse/internal/logging"
	"github.com/jewelhouse/jewelhouse/internal/observability"
	"github.com/jewelhouse/jewelhouse/internal/push"
	"github.com/jewelhouse/jewelhouse/internal/realtime"
	"github.com/jewelhouse/jewelhouse/internal/services"
)

const emailTimeout = 15 * time.Second

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Gateway       *realtime.Gateway
	Notifier      *services.Notifier
	Orders        *services.OrderService
	Handlers      *handlers.Handlers

	sentryEnabled   bool
	stopNotifier    context.CancelFunc
	notifierStopped chan struct{}
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled := false
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			EnableLogs:       true,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}
		sentryEnabled = true
	}

	logger := logging.New(context.Background(), logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Sentry: sentryEnabled,
	})

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL, logger.With("component", "db"))
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(startupCtx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cacheProvider, err := cache.NewProvider(startupCtx, cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	sealer, err := crypto.NewSealer(cfg.EncryptionKey)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize sealer: %w", err)
	}

	verifier, err := auth.NewTokenVerifier(cfg.JWTSecret)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	orderStore := db.NewOrderStore(database)
	paymentStore := db.NewPaymentStore(database)
	subscriptionStore := db.NewPushSubscriptionStore(database, sealer)

	gateway, err := realtime.NewGateway(realtime.GatewayConfig{
		Verifier:       verifier,
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger.With("component", "realtime_gateway"),
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize realtime gateway: %w", err)
	}

	notifierConfig := services.NotifierConfig{
		Socket:        gateway,
		Subscriptions: subscriptionStore,
		QueueSize:     cfg.NotifyQueueSize,
		Concurrency:   cfg.PushConcurrency,
		Logger:        logger.With("component", "notifier"),
	}
	var publicKey string
	if cfg.PushEnabled() {
		sender, err := push.NewSender(push.Config{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
			Timeout:    cfg.PushTimeout,
		})
		if err != nil {
			gateway.Close()
			closeCacheProvider(logger, cacheProvider)
			database.Close()
			return nil, fmt.Errorf("failed to initialize push sender: %w", err)
		}
		notifierConfig.Push = sender
		publicKey = sender.PublicKey()
	} else {
		logger.Warn("VAPID keys not configured; web push disabled, realtime notifications only")
	}
	notifier := services.NewNotifier(notifierConfig)

	var statusEmailer services.StatusEmailer
	if cfg.EmailEnabled() {
		provider, err := email.NewProvider(email.Config{
			APIKey:     cfg.ResendAPIKey,
			From:       cfg.EmailFrom,
			HTTPClient: observability.NewHTTPClient(emailTimeout),
		})
		if err != nil {
			gateway.Close()
			closeCacheProvider(logger, cacheProvider)
			database.Close()
			return nil, fmt.Errorf("failed to initialize email provider: %w", err)
		}
		sender, err := services.NewStatusEmailSender(provider)
		if err != nil {
			gateway.Close()
			closeCacheProvider(logger, cacheProvider)
			database.Close()
			return nil, fmt.Errorf("failed to initialize status emails: %w", err)
		}
		statusEmailer = sender
	}

	orderService := services.NewOrderService(services.OrderServiceDeps{
		Orders:   orderStore,
		Payments: paymentStore,
		Notifier: notifier,
		Emailer:  statusEmailer,
		Cache:    cacheProvider,
		Logger:   logger.With("component", "order_service"),
	})
	pushService := services.NewPushService(subscriptionStore, publicKey, logger.With("component", "push_service"))

	h, err := handlers.New(handlers.Dependencies{
		Config:       cfg,
		DB:           database,
		Verifier:     verifier,
		OrderService: orderService,
		PushService:  pushService,
		Realtime:     gateway,
		Logger:       logger,
	})
	if err != nil {
		gateway.Close()
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	notifierCtx, stopNotifier := context.WithCancel(context.Background())
	notifierStopped := make(chan struct{})
	go func() {
		defer close(notifierStopped)
		if err := notifier.Run(notifierCtx); err != nil {
			logger.Error("notifier stopped", "error", err)
		}
	}()

	return &App{
		Config:          cfg,
		Logger:          logger,
		DB:              database,
		CacheProvider:   cacheProvider,
		Gateway:         gateway,
		Notifier:        notifier,
		Orders:          orderService,
		Handlers:        h,
		sentryEnabled:   sentryEnabled,
		stopNotifier:    stopNotifier,
		notifierStopped: notifierStopped,
	}, nil
}

// Close stops the notifier before closing the sockets and stores it uses.
// Status emails already handed off are allowed to finish.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Orders != nil {
		a.Orders.Wait()
	}
	if a.stopNotifier != nil {
		a.stopNotifier()
		<-a.notifierStopped
	}
	if a.Gateway != nil {
		a.Gateway.Close()
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}

package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	JWTSecret   string `env:"JWT_SECRET,required" validate:"required,min=16"`

	ClientOrigin string `env:"CLIENT_ORIGIN" validate:"omitempty,url"`
	AdminOrigin  string `env:"ADMIN_ORIGIN" validate:"omitempty,url"`

	VAPIDPublicKey  string        `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string        `env:"VAPID_SUBJECT" envDefault:"mailto:admin@example.com" validate:"required"`
	PushTimeout     time.Duration `env:"PUSH_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	PushConcurrency int           `env:"PUSH_CONCURRENCY" envDefault:"8" validate:"min=1,max=128"`
	NotifyQueueSize int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"256" validate:"min=1"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	EncryptionKey string `env:"ENCRYPTION_KEY" validate:"omitempty,len=32"`

	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	EmailFrom    string `env:"EMAIL_FROM" validate:"omitempty,email"`

	SentryDSN         string `env:"SENTRY_DSN"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"development"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"5001"`
}

var configValidator = validator.New()

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
}

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	hasPublic := strings.TrimSpace(c.VAPIDPublicKey) != ""
	hasPrivate := strings.TrimSpace(c.VAPIDPrivateKey) != ""
	if hasPublic != hasPrivate {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	if hasPublic {
		subject := strings.TrimSpace(c.VAPIDSubject)
		if !strings.HasPrefix(subject, "mailto:") && !strings.HasPrefix(subject, "https://") {
			return fmt.Errorf("VAPID_SUBJECT must be a mailto: or https: URL")
		}
	}

	hasResendKey := strings.TrimSpace(c.ResendAPIKey) != ""
	hasFrom := strings.TrimSpace(c.EmailFrom) != ""
	if hasResendKey != hasFrom {
		return fmt.Errorf("RESEND_API_KEY and EMAIL_FROM must be set together")
	}

	return nil
}

// PushEnabled reports whether the web push path is configured. Without a key
// pair only the realtime socket path delivers admin notifications.
func (c *Config) PushEnabled() bool {
	if c == nil {
		return false
	}
	return strings.TrimSpace(c.VAPIDPublicKey) != "" && strings.TrimSpace(c.VAPIDPrivateKey) != ""
}

func (c *Config) EmailEnabled() bool {
	if c == nil {
		return false
	}
	return strings.TrimSpace(c.ResendAPIKey) != "" && strings.TrimSpace(c.EmailFrom) != ""
}

// AllowedOrigins lists origins permitted for CORS and realtime handshakes.
func (c *Config) AllowedOrigins() []string {
	seen := map[string]struct{}{}
	origins := make([]string, 0, 4)
	add := func(origin string) {
		origin = normalizeOrigin(origin)
		if origin == "" {
			return
		}
		if _, ok := seen[origin]; ok {
			return
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}

	if c != nil {
		add(c.ClientOrigin)
		add(c.AdminOrigin)
	}
	for _, origin := range defaultOrigins {
		add(origin)
	}
	return origins
}

func normalizeOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return strings.ToLower(parsed.Scheme + "://" + parsed.Host)
}

// Package email sends transactional order emails to customers.
package email

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	APIKey     string
	From       string
	HTTPClient *http.Client
}

func NewProvider(config Config) (Provider, error) {
	if strings.TrimSpace(config.APIKey) == "" || strings.TrimSpace(config.From) == "" {
		return nil, fmt.Errorf("email API key and sender address are required")
	}
	return NewResendProvider(config.APIKey, config.From, config.HTTPClient), nil
}

package auth

import (
	"context"

	"github.com/jewelhouse/jewelhouse/internal/models"
)

type identityContextKey struct{}

func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the verified caller, or nil for anonymous requests.
func IdentityFromContext(ctx context.Context) *models.Identity {
	if ctx == nil {
		return nil
	}
	identity, _ := ctx.Value(identityContextKey{}).(*models.Identity)
	return identity
}

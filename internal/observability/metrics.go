package observability

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
)

type meterContextKey struct{}

// WithMeter returns a context carrying the provided meter.
func WithMeter(ctx context.Context, meter sentry.Meter) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return context.WithValue(ctx, meterContextKey{}, meter.WithCtx(ctx))
}

// MeterFromContext returns the request-scoped meter from context or a new one.
func MeterFromContext(ctx context.Context) sentry.Meter {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter, ok := ctx.Value(meterContextKey{}).(sentry.Meter); ok && meter != nil {
		return meter.WithCtx(ctx)
	}
	return sentry.NewMeter(ctx).WithCtx(ctx)
}

// Detach moves a meter captured during a request onto a background context.
// The request's attributes carry over and the worker is tagged as component.
func Detach(ctx context.Context, meter sentry.Meter, component string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	meter = meter.WithCtx(ctx)
	if component != "" {
		meter.SetAttributes(attribute.String("component", component))
	}
	return WithMeter(ctx, meter)
}

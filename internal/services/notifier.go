package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jewelhouse/jewelhouse/internal/logging"
	"github.com/jewelhouse/jewelhouse/internal/models"
	"github.com/jewelhouse/jewelhouse/internal/observability"
	"github.com/jewelhouse/jewelhouse/internal/push"
)

const EventOrderNew = "order:new"

const (
	defaultNotifyQueueSize   = 256
	defaultPushConcurrency   = 8
	defaultBroadcastDeadline = time.Minute
)

// OrderCreatedEvent is the payload admin dashboards receive for order:new.
type OrderCreatedEvent struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	Customer  string    `json:"customer"`
	Total     float64   `json:"total"`
	Payment   string    `json:"payment"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewOrderCreatedEvent(order *models.Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		ID:        order.ID.String(),
		OrderID:   order.ID.String(),
		Customer:  order.Customer.Label(),
		Total:     order.TotalAmount,
		Payment:   order.PaymentMethod,
		CreatedAt: order.CreatedAt,
	}
}

type SocketEmitter interface {
	Emit(event string, payload any) (int, error)
}

type PushDeliverer interface {
	Send(ctx context.Context, sub models.PushSubscription, payload []byte) error
}

type SubscriptionRepository interface {
	Upsert(ctx context.Context, sub *models.PushSubscription) error
	List(ctx context.Context) ([]models.PushSubscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type NotifierConfig struct {
	Socket        SocketEmitter
	Push          PushDeliverer
	Subscriptions SubscriptionRepository
	QueueSize     int
	Concurrency   int
	Logger        *slog.Logger
}

// DeliveryReport summarises one broadcast. Nothing acts on it outside tests
// and logs.
type DeliveryReport struct {
	Socket int
	Sent   int
	Pruned int
	Failed int
}

type notification struct {
	order  *models.Order
	logger *slog.Logger
	meter  sentry.Meter
}

// Notifier fans a created order out to admin sockets and push endpoints on a
// background worker.
type Notifier struct {
	socket        SocketEmitter
	push          PushDeliverer
	subscriptions SubscriptionRepository
	concurrency   int
	queue         chan notification
	logger        *slog.Logger
}

func NewNotifier(cfg NotifierConfig) *Notifier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultNotifyQueueSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultPushConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		socket:        cfg.Socket,
		push:          cfg.Push,
		subscriptions: cfg.Subscriptions,
		concurrency:   cfg.Concurrency,
		queue:         make(chan notification, cfg.QueueSize),
		logger:        logger.With("component", "notifier"),
	}
}

func (n *Notifier) PushEnabled() bool {
	return n != nil && n.push != nil && n.subscriptions != nil
}

// Enqueue hands the order to the worker and returns immediately. When the
// queue is full the notification is dropped.
func (n *Notifier) Enqueue(ctx context.Context, order *models.Order) bool {
	if n == nil || order == nil {
		return false
	}

	logger := logging.FromContext(ctx, n.logger)
	meter := observability.MeterFromContext(ctx)

	select {
	case n.queue <- notification{order: order, logger: logger, meter: meter}:
		meter.Count("notify.enqueued", 1)
		return true
	default:
		meter.Count("notify.dropped", 1)
		logger.Warn("notification queue full, dropping order notification", "order_id", order.ID)
		return false
	}
}

// Run consumes the queue until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	n.logger.Info("notifier started", "push_enabled", n.PushEnabled(), "concurrency", n.concurrency)
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("notifier stopped", "pending", len(n.queue))
			return nil
		case item := <-n.queue:
			itemCtx := observability.Detach(logging.WithLogger(ctx, item.logger), item.meter, "notifier")
			broadcastCtx, cancel := context.WithTimeout(itemCtx, defaultBroadcastDeadline)
			report := n.Broadcast(broadcastCtx, item.order)
			cancel()
			item.logger.Info("order notification delivered",
				"order_id", item.order.ID,
				"sockets", report.Socket,
				"push_sent", report.Sent,
				"push_pruned", report.Pruned,
				"push_failed", report.Failed,
			)
		}
	}
}

// Broadcast runs the socket and push paths concurrently and waits for both.
// Neither path can fail the other or the caller.
func (n *Notifier) Broadcast(ctx context.Context, order *models.Order) DeliveryReport {
	span := sentry.StartSpan(
		ctx,
		"service.notifier.broadcast",
		sentry.WithOpName("service.notifier"),
		sentry.WithDescription("Broadcast"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	var report DeliveryReport
	var pushReport DeliveryReport

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.isolate(gctx, "socket", func() {
			report.Socket = n.emitSocket(gctx, order)
		})
	})
	g.Go(func() error {
		return n.isolate(gctx, "push", func() {
			pushReport = n.deliverPush(gctx, order)
		})
	})
	_ = g.Wait() //nolint

	report.Sent = pushReport.Sent
	report.Pruned = pushReport.Pruned
	report.Failed = pushReport.Failed
	return report
}

// isolate recovers a panic in one delivery path and always returns nil so
// sibling paths keep running.
func (n *Notifier) isolate(ctx context.Context, path string, fn func()) error {
	defer func() {
		if recovered := recover(); recovered != nil {
			logging.FromContext(ctx, n.logger).Error("notification path panicked", "path", path, "panic", fmt.Sprint(recovered))
		}
	}()
	fn()
	return nil
}

func (n *Notifier) emitSocket(ctx context.Context, order *models.Order) int {
	if n.socket == nil {
		return 0
	}
	delivered, err := n.socket.Emit(EventOrderNew, NewOrderCreatedEvent(order))
	if err != nil {
		logging.FromContext(ctx, n.logger).Error("failed to emit order event", "error", err, "order_id", order.ID)
		return 0
	}
	return delivered
}

func (n *Notifier) deliverPush(ctx context.Context, order *models.Order) DeliveryReport {
	var report DeliveryReport
	if !n.PushEnabled() {
		return report
	}

	logger := logging.FromContext(ctx, n.logger)
	meter := observability.MeterFromContext(ctx)

	subs, err := n.subscriptions.List(ctx)
	if err != nil {
		if len(subs) == 0 {
			logger.Error("failed to list push subscriptions", "error", err)
			return report
		}
		logger.Warn("skipping unreadable push subscriptions", "error", err)
	}
	if len(subs) == 0 {
		return report
	}

	payload, err := push.BuildOrderPayload(order)
	if err != nil {
		logger.Error("failed to build push payload", "error", err, "order_id", order.ID)
		return report
	}

	var sent, pruned, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(n.concurrency)
	for _, sub := range subs {
		g.Go(func() error {
			defer func() {
				if recovered := recover(); recovered != nil {
					failed.Add(1)
					logger.Error("push attempt panicked", "subscription_id", sub.ID, "panic", fmt.Sprint(recovered))
				}
			}()

			err := n.push.Send(ctx, sub, payload)
			switch {
			case err == nil:
				sent.Add(1)
				meter.Count("push.sent", 1)
			case push.IsGone(err):
				if delErr := n.subscriptions.Delete(ctx, sub.ID); delErr != nil {
					failed.Add(1)
					logger.Warn("failed to prune push subscription", "error", delErr, "subscription_id", sub.ID)
					return nil
				}
				pruned.Add(1)
				meter.Count("push.pruned", 1)
				logger.Info("pruned expired push subscription", "subscription_id", sub.ID)
			default:
				failed.Add(1)
				meter.Count("push.failed", 1, sentry.WithAttributes(
					attribute.String("reason", pushFailureReason(err)),
				))
				logger.Warn("push delivery failed", "error", err, "subscription_id", sub.ID)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint

	report.Sent = int(sent.Load())
	report.Pruned = int(pruned.Load())
	report.Failed = int(failed.Load())
	return report
}

func pushFailureReason(err error) string {
	var deliveryErr *push.DeliveryError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &deliveryErr) && deliveryErr.StatusCode > 0:
		return fmt.Sprintf("status_%d", deliveryErr.StatusCode)
	default:
		return "transport"
	}
}

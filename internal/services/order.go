package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jewelhouse/jewelhouse/internal/cache"
	"github.com/jewelhouse/jewelhouse/internal/db"
	"github.com/jewelhouse/jewelhouse/internal/logging"
	"github.com/jewelhouse/jewelhouse/internal/models"
	"github.com/jewelhouse/jewelhouse/internal/observability"
)

const (
	defaultFeedPage  = 1
	defaultFeedLimit = 10
	maxFeedLimit     = 100

	statusEmailTimeout = 20 * time.Second
)

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Order, error)
	CountFeed(ctx context.Context, exclude models.OrderStatus) (int, error)
	FeedSummary(ctx context.Context, exclude models.OrderStatus) (models.FeedSummary, error)
	ListFeed(ctx context.Context, exclude models.OrderStatus, limit, offset int) ([]*models.Order, error)
	ListAll(ctx context.Context) ([]*models.Order, error)
	GetDetail(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetStatus(ctx context.Context, orderID uuid.UUID) (models.OrderStatus, error)
	SetStatus(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) (time.Time, error)
}

// PaymentRepository records payments. A successful payment and the order
// moving to paid commit together; marked reports whether the order is paid.
type PaymentRepository interface {
	Record(ctx context.Context, payment *models.Payment) (marked bool, err error)
}

// OrderNotifier accepts created orders for background fan-out. Enqueue must
// not block.
type OrderNotifier interface {
	Enqueue(ctx context.Context, order *models.Order) bool
}

type StatusEmailer interface {
	SendStatusUpdate(ctx context.Context, order *models.Order) error
}

type OrderServiceDeps struct {
	Orders   OrderRepository
	Payments PaymentRepository
	Notifier OrderNotifier
	Emailer  StatusEmailer
	Cache    cache.Provider
	Logger   *slog.Logger
}

type OrderService struct {
	orders   OrderRepository
	payments PaymentRepository
	notifier OrderNotifier
	emailer  StatusEmailer
	cache    cache.Provider
	validate *validator.Validate
	logger   *slog.Logger

	emails sync.WaitGroup
}

func NewOrderService(deps OrderServiceDeps) *OrderService {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	emailer := deps.Emailer
	if emailer == nil {
		emailer = noopStatusEmailer{}
	}
	return &OrderService{
		orders:   deps.Orders,
		payments: deps.Payments,
		notifier: notifier,
		emailer:  emailer,
		cache:    deps.Cache,
		validate: validator.New(),
		logger:   deps.Logger,
	}
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type CreateOrderInput struct {
	Items         []OrderItemInput `json:"items" validate:"required,min=1,dive"`
	Phone         string           `json:"phone" validate:"required"`
	Address       string           `json:"address" validate:"required"`
	TotalAmount   float64          `json:"totalAmount" validate:"gte=0"`
	PaymentMethod string           `json:"paymentMethod"`
}

type OrderItemInput struct {
	ProductID string               `json:"product" validate:"required,uuid"`
	Name      string               `json:"name"`
	UnitPrice float64              `json:"price" validate:"gte=0"`
	Quantity  int                  `json:"quantity" validate:"min=1"`
	Size      string               `json:"size"`
	Options   []models.OptionValue `json:"options"`
}

// Create stores the order and hands it to the notifier. The notifier runs
// detached; its failures never reach the caller.
func (s *OrderService) Create(ctx context.Context, actor *models.Identity, input CreateOrderInput) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.create",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("Create"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	if actor == nil {
		return nil, ErrUnauthorized
	}

	input.Phone = strings.TrimSpace(input.Phone)
	input.Address = strings.TrimSpace(input.Address)
	input.PaymentMethod = strings.TrimSpace(input.PaymentMethod)
	for i := range input.Items {
		input.Items[i].ProductID = strings.TrimSpace(input.Items[i].ProductID)
		input.Items[i].Name = strings.TrimSpace(input.Items[i].Name)
		input.Items[i].Size = strings.TrimSpace(input.Items[i].Size)
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, &ValidationError{Kind: ErrInvalidOrder, Message: describeValidation(err)}
	}

	order := &models.Order{
		UserID:        actor.UserID,
		Items:         make([]models.OrderItem, 0, len(input.Items)),
		Phone:         input.Phone,
		Address:       input.Address,
		TotalAmount:   input.TotalAmount,
		PaymentMethod: input.PaymentMethod,
		Customer: &models.Customer{
			ID:    actor.UserID,
			Email: actor.Email,
		},
	}
	for _, item := range input.Items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID: uuid.MustParse(item.ProductID),
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Options:   item.Options,
		})
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.Count("order.created", 1, sentry.WithAttributes(
		attribute.String("payment_method", order.PaymentMethod),
	))

	if subtotal := order.ItemsSubtotal(); math.Abs(subtotal-order.TotalAmount) >= 0.01 {
		logger.Warn("order total differs from line items",
			"order_id", order.ID,
			"total_amount", order.TotalAmount,
			"items_subtotal", subtotal,
		)
	}

	s.notifier.Enqueue(ctx, order)
	logger.Info("order created", "order_id", order.ID, "user_id", order.UserID, "items", len(order.Items))

	return order, nil
}

func (s *OrderService) ListMine(ctx context.Context, actor *models.Identity) ([]*models.Order, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	orders, err := s.orders.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type FeedResult struct {
	Orders     []*models.Order
	Pagination Pagination
	Summary    models.FeedSummary
}

// Feed pages through non-pending orders newest first. Bad page or limit input
// falls back to defaults and an out-of-range page is clamped.
func (s *OrderService) Feed(ctx context.Context, rawPage, rawLimit string) (*FeedResult, error) {
	page, limit := NormalizePaging(rawPage, rawLimit)

	total, err := s.orders.CountFeed(ctx, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to count feed: %w", err)
	}
	summary, err := s.orders.FeedSummary(ctx, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize feed: %w", err)
	}

	pages := TotalPages(total, limit)
	if page > pages {
		page = pages
	}

	orders, err := s.orders.ListFeed(ctx, models.StatusPending, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed: %w", err)
	}

	return &FeedResult{
		Orders:     orders,
		Pagination: Pagination{Page: page, Limit: limit, Total: total, Pages: pages},
		Summary:    summary,
	}, nil
}

func NormalizePaging(rawPage, rawLimit string) (int, int) {
	page, err := strconv.Atoi(strings.TrimSpace(rawPage))
	if err != nil || page < 1 {
		page = defaultFeedPage
	}
	limit, err := strconv.Atoi(strings.TrimSpace(rawLimit))
	if err != nil || limit < 1 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	return page, limit
}

func TotalPages(total, limit int) int {
	if limit < 1 || total <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

func (s *OrderService) Detail(ctx context.Context, rawOrderID string) (*models.Order, error) {
	orderID, err := uuid.Parse(strings.TrimSpace(rawOrderID))
	if err != nil {
		return nil, ErrOrderNotFound
	}
	order, err := s.orders.GetDetail(ctx, orderID)
	if errors.Is(err, db.ErrOrderNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return order, nil
}

func (s *OrderService) ListAll(ctx context.Context) ([]*models.Order, error) {
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus moves an order along the admin part of the lifecycle. Checks
// run against the status read here; a concurrent update can still land in
// between and the last write wins.
func (s *OrderService) UpdateStatus(ctx context.Context, actor *models.Identity, rawOrderID, rawStatus string) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.update_status",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("UpdateStatus"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	recordRejected := func(reason string) {
		meter.Count("order.status.rejected", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}

	next := models.OrderStatus(strings.ToLower(strings.TrimSpace(rawStatus)))
	if err := CheckStatusValue(actor, next); err != nil {
		recordRejected(rejectionReason(err))
		return nil, err
	}

	orderID, err := uuid.Parse(strings.TrimSpace(rawOrderID))
	if err != nil {
		recordRejected("not_found")
		return nil, ErrOrderNotFound
	}
	ctx = logging.WithOrder(ctx, s.logger, orderID)
	logger = s.loggerFromContext(ctx)

	previous, err := s.orders.GetStatus(ctx, orderID)
	if errors.Is(err, db.ErrOrderNotFound) {
		recordRejected("not_found")
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order status: %w", err)
	}

	if err := CheckStatusUpdate(actor, previous, next); err != nil {
		recordRejected(rejectionReason(err))
		return nil, err
	}

	if _, err := s.orders.SetStatus(ctx, orderID, next); errors.Is(err, db.ErrOrderNotFound) {
		recordRejected("not_found")
		return nil, ErrOrderNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	meter.Count("order.status.updated", 1, sentry.WithAttributes(
		attribute.String("from", string(previous)),
		attribute.String("to", string(next)),
	))
	logger.Info("order status updated", "from", previous, "to", next, "admin_id", actor.UserID)

	order, err := s.Detail(ctx, orderID.String())
	if err != nil {
		return nil, err
	}
	s.sendStatusEmail(ctx, order)

	return order, nil
}

// sendStatusEmail mails the customer off the request path. The send keeps the
// request's logger and meter but not its deadline. Callers tag ctx with the
// order first.
func (s *OrderService) sendStatusEmail(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	logger := s.loggerFromContext(ctx)
	snapshot := *order
	emailCtx := context.WithoutCancel(ctx)

	s.emails.Add(1)
	go func() {
		defer s.emails.Done()

		ctx, cancel := context.WithTimeout(emailCtx, statusEmailTimeout)
		defer cancel()
		if err := s.emailer.SendStatusUpdate(ctx, &snapshot); err != nil {
			logger.Error("failed to send status email", "error", err, "status", snapshot.Status)
		}
	}()
}

// Wait blocks until status emails already handed off have finished.
func (s *OrderService) Wait() {
	s.emails.Wait()
}

func rejectionReason(err error) string {
	var transitionErr *TransitionError
	switch {
	case errors.As(err, &transitionErr):
		return strings.ReplaceAll(transitionErr.Reason, " ", "_")
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidStatusValue):
		return "invalid_status_value"
	default:
		return "unknown"
	}
}

func describeValidation(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return err.Error()
	}
	first := validationErrs[0]
	field := first.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	return fmt.Sprintf("%s failed %s", field, first.Tag())
}

type noopNotifier struct{}

func (noopNotifier) Enqueue(context.Context, *models.Order) bool {
	return false
}

type noopStatusEmailer struct{}

func (noopStatusEmailer) SendStatusUpdate(context.Context, *models.Order) error {
	return nil
}

package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jewelhouse/jewelhouse/internal/db"
	"github.com/jewelhouse/jewelhouse/internal/models"
	"github.com/jewelhouse/jewelhouse/internal/push"
)

type fakeOrderRepo struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*models.Order
	createErr error
	lookups   int
	clock     time.Time

	// markPaidFailures makes the next n markPaid calls fail.
	markPaidFailures int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders: map[uuid.UUID]*models.Order{},
		clock:  time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (r *fakeOrderRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Minute)
	return r.clock
}

func (r *fakeOrderRepo) put(status models.OrderStatus, total float64) *models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.tick()
	order := &models.Order{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Status:      status,
		TotalAmount: total,
		IsPaid:      status != models.StatusPending,
		Customer:    &models.Customer{Email: "customer@example.com", Name: "Customer"},
		Items:       []models.OrderItem{{Name: "Ring", UnitPrice: total, Quantity: 1}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.orders[order.ID] = order
	return order
}

func (r *fakeOrderRepo) Create(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	order.ID = uuid.New()
	order.Status = models.StatusPending
	order.IsPaid = false
	order.CreatedAt = r.tick()
	order.UpdatedAt = order.CreatedAt
	stored := *order
	r.orders[order.ID] = &stored
	return nil
}

func (r *fakeOrderRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Order, error) {
	return r.filter(func(o *models.Order) bool { return o.UserID == userID }), nil
}

func (r *fakeOrderRepo) CountFeed(_ context.Context, exclude models.OrderStatus) (int, error) {
	return len(r.filter(func(o *models.Order) bool { return o.Status != exclude })), nil
}

func (r *fakeOrderRepo) FeedSummary(_ context.Context, exclude models.OrderStatus) (models.FeedSummary, error) {
	var summary models.FeedSummary
	for _, o := range r.filter(func(o *models.Order) bool { return o.Status != exclude }) {
		summary.TotalValue += o.TotalAmount
		if !o.Status.IsTerminal() {
			summary.OpenCount++
		}
	}
	return summary, nil
}

func (r *fakeOrderRepo) ListFeed(_ context.Context, exclude models.OrderStatus, limit, offset int) ([]*models.Order, error) {
	all := r.filter(func(o *models.Order) bool { return o.Status != exclude })
	if offset >= len(all) {
		return []*models.Order{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *fakeOrderRepo) ListAll(_ context.Context) ([]*models.Order, error) {
	return r.filter(func(*models.Order) bool { return true }), nil
}

func (r *fakeOrderRepo) GetDetail(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lookups++
	order, ok := r.orders[orderID]
	if !ok {
		return nil, db.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (r *fakeOrderRepo) SetStatus(_ context.Context, orderID uuid.UUID, status models.OrderStatus) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return time.Time{}, db.ErrOrderNotFound
	}
	order.Status = status
	order.UpdatedAt = r.tick()
	return order.UpdatedAt, nil
}

func (r *fakeOrderRepo) GetStatus(_ context.Context, orderID uuid.UUID) (models.OrderStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lookups++
	order, ok := r.orders[orderID]
	if !ok {
		return "", db.ErrOrderNotFound
	}
	return order.Status, nil
}

func (r *fakeOrderRepo) markPaid(orderID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.markPaidFailures > 0 {
		r.markPaidFailures--
		return false, errors.New("connection reset")
	}
	order, ok := r.orders[orderID]
	if !ok {
		return false, db.ErrOrderNotFound
	}
	if order.Status != models.StatusPending && order.Status != models.StatusPaid {
		return false, nil
	}
	now := r.tick()
	order.Status = models.StatusPaid
	order.IsPaid = true
	if order.PaidAt == nil {
		order.PaidAt = &now
	}
	return true, nil
}

func (r *fakeOrderRepo) status(orderID uuid.UUID) models.OrderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[orderID].Status
}

func (r *fakeOrderRepo) filter(keep func(*models.Order) bool) []*models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*models.Order{}
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

type fakePaymentRepo struct {
	mu       sync.Mutex
	payments []*models.Payment
	orders   *fakeOrderRepo
}

// Record keeps nothing when marking the order fails, like the rolled back
// transaction it stands in for.
func (r *fakePaymentRepo) Record(_ context.Context, payment *models.Payment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.orders != nil {
		if _, err := r.orders.GetDetail(context.Background(), payment.OrderID); err != nil {
			return false, err
		}
	}
	for _, existing := range r.payments {
		if payment.TransactionID != "" && existing.TransactionID == payment.TransactionID {
			return false, db.ErrDuplicatePayment
		}
	}

	var marked bool
	if payment.Status == models.PaymentSuccess && r.orders != nil {
		var err error
		marked, err = r.orders.markPaid(payment.OrderID)
		if err != nil {
			return false, err
		}
	}
	payment.ID = uuid.New()
	r.payments = append(r.payments, payment)
	return marked, nil
}

func (r *fakePaymentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

type fakeSubscriptions struct {
	mu      sync.Mutex
	subs    map[string]models.PushSubscription
	listErr error
	deleted []uuid.UUID
}

func newFakeSubscriptions(endpoints ...string) *fakeSubscriptions {
	f := &fakeSubscriptions{subs: map[string]models.PushSubscription{}}
	for _, endpoint := range endpoints {
		f.subs[endpoint] = models.PushSubscription{ID: uuid.New(), Endpoint: endpoint, P256dh: "p", Auth: "a"}
	}
	return f
}

func (f *fakeSubscriptions) Upsert(_ context.Context, sub *models.PushSubscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.subs[sub.Endpoint]; ok {
		sub.ID = existing.ID
	} else {
		sub.ID = uuid.New()
	}
	f.subs[sub.Endpoint] = *sub
	return nil
}

func (f *fakeSubscriptions) List(_ context.Context) ([]models.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.PushSubscription, 0, len(f.subs))
	for _, sub := range f.subs {
		out = append(out, sub)
	}
	return out, nil
}

func (f *fakeSubscriptions) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for endpoint, sub := range f.subs {
		if sub.ID == id {
			delete(f.subs, endpoint)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return db.ErrSubscriptionNotFound
}

func (f *fakeSubscriptions) endpoints() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := map[string]bool{}
	for endpoint := range f.subs {
		out[endpoint] = true
	}
	return out
}

type fakeSocket struct {
	mu      sync.Mutex
	events  []string
	payload []any
	members int
	err     error
	panics  bool
}

func (f *fakeSocket) Emit(event string, payload any) (int, error) {
	if f.panics {
		panic("socket exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return 0, f.err
	}
	f.events = append(f.events, event)
	f.payload = append(f.payload, payload)
	return f.members, nil
}

// fakePush answers per endpoint: a status code, a transport error, or a panic.
type fakePush struct {
	mu        sync.Mutex
	responses map[string]int
	panicOn   string
	attempts  []string
}

func (f *fakePush) Send(_ context.Context, sub models.PushSubscription, _ []byte) error {
	f.mu.Lock()
	f.attempts = append(f.attempts, sub.Endpoint)
	code, ok := f.responses[sub.Endpoint]
	f.mu.Unlock()

	if sub.Endpoint == f.panicOn {
		panic("push exploded")
	}
	if !ok || (code >= 200 && code < 300) {
		return nil
	}
	if code == 0 {
		return &push.DeliveryError{Err: errors.New("connection reset")}
	}
	return &push.DeliveryError{StatusCode: code, Gone: code == 404 || code == 410, Err: errors.New("push service error")}
}

type fakeNotifier struct {
	mu     sync.Mutex
	orders []*models.Order
}

func (f *fakeNotifier) Enqueue(_ context.Context, order *models.Order) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, order)
	return true
}

type fakeEmailer struct {
	mu       sync.Mutex
	statuses []models.OrderStatus
	err      error
	release  chan struct{}
}

func (f *fakeEmailer) SendStatusUpdate(ctx context.Context, order *models.Order) error {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, order.Status)
	return f.err
}

func (f *fakeEmailer) sent() []models.OrderStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderStatus(nil), f.statuses...)
}

func adminIdentity() *models.Identity {
	return &models.Identity{UserID: uuid.New(), Email: "admin@example.com", Role: models.RoleAdmin}
}

func userIdentity() *models.Identity {
	return &models.Identity{UserID: uuid.New(), Email: "buyer@example.com", Role: models.RoleUser}
}

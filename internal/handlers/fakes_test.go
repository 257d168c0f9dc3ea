package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jewelhouse/jewelhouse/internal/auth"
	"github.com/jewelhouse/jewelhouse/internal/config"
	"github.com/jewelhouse/jewelhouse/internal/models"
	"github.com/jewelhouse/jewelhouse/internal/services"
	"github.com/jewelhouse/jewelhouse/internal/stripe"
)

const testSecret = "handlers-test-secret-0123456789"

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error {
	return p.err
}

type fakeOrderService struct {
	mu sync.Mutex

	created      *models.Order
	createErr    error
	createInput  services.CreateOrderInput
	createActor  *models.Identity
	mine         []*models.Order
	feed         *services.FeedResult
	feedPage     string
	feedLimit    string
	detail       *models.Order
	detailErr    error
	all          []*models.Order
	updated      *models.Order
	updateErr    error
	updateStatus string
	payment      *models.Payment
	paymentErr   error
	stripeErr    error
	stripeCalls  []*stripe.PaymentConfirmation
}

func (f *fakeOrderService) Create(_ context.Context, actor *models.Identity, input services.CreateOrderInput) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createActor = actor
	f.createInput = input
	return f.created, f.createErr
}

func (f *fakeOrderService) ListMine(context.Context, *models.Identity) ([]*models.Order, error) {
	return f.mine, nil
}

func (f *fakeOrderService) Feed(_ context.Context, rawPage, rawLimit string) (*services.FeedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedPage = rawPage
	f.feedLimit = rawLimit
	return f.feed, nil
}

func (f *fakeOrderService) Detail(context.Context, string) (*models.Order, error) {
	return f.detail, f.detailErr
}

func (f *fakeOrderService) ListAll(context.Context) ([]*models.Order, error) {
	return f.all, nil
}

func (f *fakeOrderService) UpdateStatus(_ context.Context, _ *models.Identity, _ string, rawStatus string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateStatus = rawStatus
	return f.updated, f.updateErr
}

func (f *fakeOrderService) ConfirmPayment(context.Context, services.PaymentInput) (*models.Payment, error) {
	return f.payment, f.paymentErr
}

func (f *fakeOrderService) ConfirmStripePayment(_ context.Context, confirmation *stripe.PaymentConfirmation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stripeCalls = append(f.stripeCalls, confirmation)
	return f.stripeErr
}

type fakePushService struct {
	publicKey string
	sub       *models.PushSubscription
	err       error
	owner     *models.Identity
}

func (f *fakePushService) PublicKey() (string, error) {
	if f.publicKey == "" {
		return "", services.ErrPushDisabled
	}
	return f.publicKey, nil
}

func (f *fakePushService) Subscribe(_ context.Context, owner *models.Identity, _ services.SubscribeInput) (*models.PushSubscription, error) {
	f.owner = owner
	return f.sub, f.err
}

func newTestHandlers(t *testing.T, orders *fakeOrderService, push *fakePushService) *Handlers {
	t.Helper()

	verifier, err := auth.NewTokenVerifier(testSecret)
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}
	if orders == nil {
		orders = &fakeOrderService{}
	}
	if push == nil {
		push = &fakePushService{}
	}

	h, err := New(Dependencies{
		Config: &config.Config{
			ClientOrigin:        "https://shop.example.com",
			AdminOrigin:         "https://admin.example.com",
			StripeWebhookSecret: "whsec_handlers_test",
		},
		DB:           fakePinger{},
		Verifier:     verifier,
		OrderService: orders,
		PushService:  push,
		Realtime: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return h
}

func issueToken(t *testing.T, role models.Role) (string, models.Identity) {
	t.Helper()

	issuer, err := auth.NewTokenIssuer(testSecret)
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	identity := models.Identity{UserID: uuid.New(), Email: string(role) + "@example.com", Role: role}
	token, err := issuer.Issue(identity, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token, identity
}

func sampleOrder() *models.Order {
	salePrice := 90000.0
	createdAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.Order{
		ID:            uuid.MustParse("a1b2c3d4-0000-4000-8000-000000000001"),
		UserID:        uuid.MustParse("a1b2c3d4-0000-4000-8000-0000000000aa"),
		Phone:         "99112233",
		Address:       "Ulaanbaatar",
		TotalAmount:   245000,
		Status:        models.StatusPaid,
		PaymentMethod: "bank",
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
		Customer: &models.Customer{
			ID:    uuid.MustParse("a1b2c3d4-0000-4000-8000-0000000000aa"),
			Name:  "Saraa",
			Email: "saraa@example.com",
		},
		Items: []models.OrderItem{
			{
				ProductID: uuid.MustParse("b0000000-0000-4000-8000-000000000001"),
				Name:      "Silver ring",
				UnitPrice: 100000,
				Quantity:  2,
				Size:      "7",
				Product: &models.ProductSnapshot{
					SKU:        "RING-7",
					Images:     []string{"https://cdn.example.com/ring.jpg"},
					Sizes:      []string{"6", "", "7"},
					SaleActive: true,
					SalePrice:  &salePrice,
				},
			},
			{
				ProductID: uuid.MustParse("b0000000-0000-4000-8000-000000000002"),
				UnitPrice: 45000,
				Quantity:  1,
			},
		},
	}
}

func bodyContains(t *testing.T, body, want string) {
	t.Helper()
	if !strings.Contains(body, want) {
		t.Fatalf("expected body to contain %q, got %s", want, body)
	}
}

var errBoom = errors.New("boom")

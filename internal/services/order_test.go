package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jewelhouse/jewelhouse/internal/models"
)

func validCreateInput() CreateOrderInput {
	return CreateOrderInput{
		Items: []OrderItemInput{
			{ProductID: uuid.NewString(), Name: "Gold ring", UnitPrice: 30000, Quantity: 1, Size: "7"},
			{ProductID: uuid.NewString(), Name: "Pearl earrings", UnitPrice: 15000, Quantity: 1},
		},
		Phone:         "99112233",
		Address:       "Ulaanbaatar, Khan-Uul 3",
		TotalAmount:   45000,
		PaymentMethod: "bank",
	}
}

func TestCreateOrderStartsPendingAndNotifies(t *testing.T) {
	t.Parallel()

	repo := newFakeOrderRepo()
	notifier := &fakeNotifier{}
	svc := NewOrderService(OrderServiceDeps{Orders: repo, Notifier: notifier})

	actor := userIdentity()
	order, err := svc.Create(t.Context(), actor, validCreateInput())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if order.Status != models.StatusPending || order.IsPaid {
		t.Fatalf("expected pending unpaid order, got %s paid=%v", order.Status, order.IsPaid)
	}
	if order.UserID != actor.UserID {
		t.Fatalf("expected order owned by actor")
	}
	if order.TotalAmount != 45000 {
		t.Fatalf("expected client total kept, got %v", order.TotalAmount)
	}
	if len(notifier.orders) != 1 || notifier.orders[0].ID != order.ID {
		t.Fatalf("expected order handed to notifier, got %d", len(notifier.orders))
	}
	if notifier.orders[0].Customer.Label() != actor.Email {
		t.Fatalf("expected customer label %q, got %q", actor.Email, notifier.orders[0].Customer.Label())
	}
}

func TestCreateOrderKeepsClientTotal(t *testing.T) {
	t.Parallel()

	repo := newFakeOrderRepo()
	svc := NewOrderService(OrderServiceDeps{Orders: repo})

	input := validCreateInput()
	input.TotalAmount = 1
	order, err := svc.Create(t.Context(), userIdentity(), input)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if order.TotalAmount != 1 || order.ItemsSubtotal() != 45000 {
		t.Fatalf("expected total 1 and subtotal 45000, got %v / %v", order.TotalAmount, order.ItemsSubtotal())
	}
}

func TestCreateOrderWithoutNotifierStillSucceeds(t *testing.T) {
	t.Parallel()

	svc := NewOrderService(OrderServiceDeps{Orders: newFakeOrderRepo()})
	if _, err := svc.Create(t.Context(), userIdentity(), validCreateInput()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*CreateOrderInput)
	}{
		{name: "no items", mutate: func(in *CreateOrderInput) { in.Items = nil }},
		{name: "blank phone", mutate: func(in *CreateOrderInput) { in.Phone = "   " }},
		{name: "missing address", mutate: func(in *CreateOrderInput) { in.Address = "" }},
		{name: "bad product id", mutate: func(in *CreateOrderInput) { in.Items[0].ProductID = "ring-1" }},
		{name: "zero quantity", mutate: func(in *CreateOrderInput) { in.Items[1].Quantity = 0 }},
		{name: "negative total", mutate: func(in *CreateOrderInput) { in.TotalAmount = -5 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := newFakeOrderRepo()
			notifier := &fakeNotifier{}
			svc := NewOrderService(OrderServiceDeps{Orders: repo, Notifier: notifier})

			input := validCreateInput()
			tt.mutate(&input)
			_, err := svc.Create(t.Context(), userIdentity(), input)
			if !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("expected ErrInvalidOrder, got %v", err)
			}
			if len(notifier.orders) != 0 {
				t.Fatalf("expected no notification for rejected order")
			}
		})
	}
}

func TestCreateOrderStoreFailureDoesNotNotify(t *testing.T) {
	t.Parallel()

	repo := newFakeOrderRepo()
	repo.createErr = errors.New("connection refused")
	notifier := &fakeNotifier{}
	svc := NewOrderService(OrderServiceDeps{Orders: repo, Notifier: notifier})

	if _, err := svc.Create(t.Context(), userIdentity(), validCreateInput()); err == nil {
		t.Fatalf("expected error, got nil")
	}
	if len(notifier.orders) != 0 {
		t.Fatalf("expected no notification when the write failed")
	}
}

func TestNormalizePaging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		page, limit         string
		wantPage, wantLimit int
	}{
		{"", "", 1, 10},
		{"abc", "xyz", 1, 10},
		{"0", "-4", 1, 10},
		{"3", "25", 3, 25},
		{"2", "500", 2, 100},
		{" 4 ", " 5 ", 4, 5},
	}

	for _, tt := range tests {
		page, limit := NormalizePaging(tt.page, tt.limit)
		if page != tt.wantPage || limit != tt.wantLimit {
			t.Fatalf("NormalizePaging(%q, %q) = %d, %d, want %d, %d", tt.page, tt.limit, page, limit, tt.wantPage, tt.wantLimit)
		}
	}
}

func TestFeedExcludesPendingAndClampsPage(t *testing.T) {
	t.Parallel()

	repo := newFakeOrderRepo()
	repo.put(models.StatusPending, 999)
	repo.put(models.StatusPaid, 100)
	repo.put(models.StatusShipped, 200)
	repo.put(models.StatusDelivered, 300)
	repo.put(models.StatusCancelled, 400)
	newest := repo.put(models.StatusPaid, 500)

	svc := NewOrderService(OrderServiceDeps{Orders: repo})

	feed, err := svc.Feed(t.Context(), "9", "2")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if feed.Pagination != (Pagination{Page: 3, Limit: 2, Total: 5, Pages: 3}) {
		t.Fatalf("unexpected pagination %+v", feed.Pagination)
	}
	if len(feed.Orders) != 1 {
		t.Fatalf("expected 1 order on last page, got %d", len(feed.Orders))
	}
	if feed.Summary.TotalValue != 1500 {
		t.Fatalf("expected total value 1500, got %v", feed.Summary.TotalValue)
	}
	if feed.Summary.OpenCount != 3 {
		t.Fatalf("expected open count 3, got %d", feed.Summary.OpenCount)
	}

	first, err := svc.Feed(t.Context(), "", "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first.Orders[0].ID != newest.ID {
		t.Fatalf("expected newest order first")
	}
	for _, order := range first.Orders {
		if order.Status == models.StatusPending {
			t.Fatalf("expected pending orders excluded")
		}
	}
}

func TestFeedEmpty(t *testing.T) {
	t.Parallel()

	svc := NewOrderService(OrderServiceDeps{Orders: newFakeOrderRepo()})
	feed, err := svc.Feed(t.Context(), "5", "10")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if feed.Pagination.Page != 1 || feed.Pagination.Pages != 1 || feed.Pagination.Total != 0 {
		t.Fatalf("unexpected pagination %+v", feed.Pagination)
	}
}

func TestDetailNotFound(t *testing.T) {
	t.Parallel()

	svc := NewOrderService(OrderServiceDeps{Orders: newFakeOrderRepo()})
	if _, err := svc.Detail(t.Context(), uuid.NewString()); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if _, err := svc.Detail(t.Context(), "not-an-id"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for malformed id, got %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()

	repo := newFakeOrderRepo()
	emailer := &fakeEmailer{}
	svc := NewOrderService(OrderServiceDeps{Orders: repo, Emailer: emailer})

	order := repo.put(models.StatusPaid, 1000)

	updated, err := svc.UpdateStatus(t.Context(), adminIdentity(), order.ID.String(), "Shipped")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated.Status != models.StatusShipped || repo.status(order.ID) != models.StatusShipped {
		t.Fatalf("expected shipped, got %s", updated.Status)
	}

	if _, err := svc.UpdateStatus(t.Context(), adminIdentity(), order.ID.String(), "delivered"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	_, err = svc.UpdateStatus(t.Context(), adminIdentity(), order.ID.String(), "cancelled")
	var transitionErr *TransitionError
	if !errors.As(err, &transitionErr) || transitionErr.Reason != ReasonOrderFinalized {
		t.Fatalf("expected finalized rejection, got %v", err)
	}

	svc.Wait()
	sent := emailer.sent()
	if len(sent) != 2 || sent[0] != models.StatusShipped || sent[1] != models.StatusDelivered {
		t.Fatalf("unexpected emails %v", sent)
	}
}

func TestUpdateStatusDoesNotWaitForEmail(t *testing.T) {
	t.Parallel()

	repo := newFakeOrderRepo()
	emailer := &fakeEmailer{release: make(chan struct{})}
	svc := NewOrderService(OrderServiceDeps{Orders: repo, Emailer: emailer})
	order := repo.put(models.StatusPaid, 1000)

	done := make(chan error, 1)
	go func() {
		_, err := svc.UpdateStatus(t.Context(), adminIdentity(), order.ID.String(), "shipped")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected status update to return while the email is pending")
	}
	if len(emailer.sent()) != 0 {
		t.Fatalf("expected email still pending")
	}

	close(emailer.release)
	svc.Wait()
	if sent := emailer.sent(); len(sent) != 1 || sent[0] != models.StatusShipped {
		t.Fatalf("expected shipped email after release, got %v", sent)
	}
}

func TestUpdateStatusReadsStatusOnly(t *testing.T) {
	t.Parallel()

	repo := newFakeOrderRepo()
	svc := NewOrderService(OrderServiceDeps{Orders: repo})
	order := repo.put(models.StatusDelivered, 1000)

	_, err := svc.UpdateStatus(t.Context(), adminIdentity(), order.ID.String(), "cancelled")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if repo.lookups != 1 {
		t.Fatalf("expected a single status lookup for a rejected update, got %d", repo.lookups)
	}
}

func TestUpdateStatusChecksValueBeforeLookup(t *testing.T) {
	t.Parallel()

	repo := newFakeOrderRepo()
	svc := NewOrderService(OrderServiceDeps{Orders: repo})

	_, err := svc.UpdateStatus(t.Context(), adminIdentity(), uuid.NewString(), "paid")
	if !errors.Is(err, ErrInvalidStatusValue) {
		t.Fatalf("expected ErrInvalidStatusValue, got %v", err)
	}
	_, err = svc.UpdateStatus(t.Context(), userIdentity(), uuid.NewString(), "shipped")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if repo.lookups != 0 {
		t.Fatalf("expected no store lookups, got %d", repo.lookups)
	}

	_, err = svc.UpdateStatus(t.Context(), adminIdentity(), uuid.NewString(), "shipped")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestUpdateStatusPendingOrder(t *testing.T) {
	t.Parallel()

	repo := newFakeOrderRepo()
	svc := NewOrderService(OrderServiceDeps{Orders: repo})
	order := repo.put(models.StatusPending, 1000)

	_, err := svc.UpdateStatus(t.Context(), adminIdentity(), order.ID.String(), "shipped")
	if !errors.Is(err, ErrInvalidTransition) || err.Error() != "invalid status transition: order unpaid" {
		t.Fatalf("expected unpaid rejection, got %v", err)
	}
	if repo.status(order.ID) != models.StatusPending {
		t.Fatalf("expected pending order untouched")
	}
}

func TestUpdateStatusEmailFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	repo := newFakeOrderRepo()
	svc := NewOrderService(OrderServiceDeps{Orders: repo, Emailer: &fakeEmailer{err: errors.New("smtp down")}})
	order := repo.put(models.StatusPaid, 1000)

	if _, err := svc.UpdateStatus(t.Context(), adminIdentity(), order.ID.String(), "cancelled"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	svc.Wait()
}

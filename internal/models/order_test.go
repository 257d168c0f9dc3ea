package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestOrderStatusTransitions(t *testing.T) {
	t.Parallel()

	all := []OrderStatus{StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled}
	allowed := map[[2]OrderStatus]bool{
		{StatusPending, StatusPaid}:      true,
		{StatusPaid, StatusShipped}:      true,
		{StatusPaid, StatusCancelled}:    true,
		{StatusShipped, StatusDelivered}: true,
		{StatusShipped, StatusCancelled}: true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]OrderStatus{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestOrderStatusSets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status        OrderStatus
		valid         bool
		terminal      bool
		adminSettable bool
	}{
		{status: StatusPending, valid: true},
		{status: StatusPaid, valid: true},
		{status: StatusShipped, valid: true, adminSettable: true},
		{status: StatusDelivered, valid: true, terminal: true, adminSettable: true},
		{status: StatusCancelled, valid: true, terminal: true, adminSettable: true},
		{status: OrderStatus("refunded")},
		{status: OrderStatus("")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()

			if got := tt.status.Valid(); got != tt.valid {
				t.Fatalf("Valid: expected %v, got %v", tt.valid, got)
			}
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Fatalf("IsTerminal: expected %v, got %v", tt.terminal, got)
			}
			if got := tt.status.AdminSettable(); got != tt.adminSettable {
				t.Fatalf("AdminSettable: expected %v, got %v", tt.adminSettable, got)
			}
		})
	}
}

func TestReferenceCode(t *testing.T) {
	t.Parallel()

	order := &Order{ID: uuid.MustParse("3f2a9c1b-4d5e-4000-8000-000000000000")}
	if got := order.ReferenceCode(); got != "3F2A9C1B" {
		t.Fatalf("expected 3F2A9C1B, got %q", got)
	}

	var missing *Order
	if got := missing.ReferenceCode(); got != "" {
		t.Fatalf("expected empty code for nil order, got %q", got)
	}
}

func TestItemsSubtotal(t *testing.T) {
	t.Parallel()

	order := &Order{
		TotalAmount: 1,
		Items: []OrderItem{
			{UnitPrice: 100000, Quantity: 2},
			{UnitPrice: 45000, Quantity: 1},
		},
	}
	if got := order.ItemsSubtotal(); got != 245000 {
		t.Fatalf("expected 245000, got %v", got)
	}
}

func TestCustomerLabel(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	tests := []struct {
		name     string
		customer *Customer
		want     string
	}{
		{name: "nil", customer: nil, want: "Customer"},
		{name: "email first", customer: &Customer{Name: "Saraa", Email: "saraa@example.com"}, want: "saraa@example.com"},
		{name: "name fallback", customer: &Customer{Name: "Saraa"}, want: "Saraa"},
		{name: "id fallback", customer: &Customer{ID: id}, want: id.String()},
		{name: "empty", customer: &Customer{}, want: "Customer"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.customer.Label(); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestIdentityIsAdmin(t *testing.T) {
	t.Parallel()

	var anonymous *Identity
	if anonymous.IsAdmin() {
		t.Fatalf("expected nil identity not to be admin")
	}
	if (&Identity{Role: RoleUser}).IsAdmin() {
		t.Fatalf("expected user not to be admin")
	}
	if !(&Identity{Role: RoleAdmin}).IsAdmin() {
		t.Fatalf("expected admin")
	}
}

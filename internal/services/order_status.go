package services

import (
	"fmt"

	"github.com/jewelhouse/jewelhouse/internal/models"
)

// CheckStatusValue runs the checks that do not need the stored order: the
// actor must be an admin and the target must be one admins may set.
func CheckStatusValue(actor *models.Identity, next models.OrderStatus) error {
	if actor == nil {
		return ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if !next.AdminSettable() {
		return fmt.Errorf("%w: %q", ErrInvalidStatusValue, string(next))
	}
	return nil
}

// CheckStatusUpdate decides whether actor may move an order from current to
// next. Unpaid orders and finalized orders never move.
func CheckStatusUpdate(actor *models.Identity, current, next models.OrderStatus) error {
	if err := CheckStatusValue(actor, next); err != nil {
		return err
	}

	switch {
	case current == models.StatusPending:
		return &TransitionError{From: current, To: next, Reason: ReasonOrderUnpaid}
	case current.IsTerminal():
		return &TransitionError{From: current, To: next, Reason: ReasonOrderFinalized}
	case !current.CanTransitionTo(next):
		return &TransitionError{From: current, To: next, Reason: ReasonNotAllowed}
	}
	return nil
}

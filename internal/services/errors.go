package services

import (
	"errors"
	"fmt"

	"github.com/jewelhouse/jewelhouse/internal/models"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidStatusValue  = errors.New("invalid status value")
	ErrInvalidSubscription = errors.New("invalid push subscription")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrInvalidPayment      = errors.New("invalid payment")
	ErrDuplicatePayment    = errors.New("payment already recorded")
	ErrPushDisabled        = errors.New("push notifications are not configured")
)

const (
	ReasonOrderUnpaid    = "order unpaid"
	ReasonOrderFinalized = "order finalized"
	ReasonNotAllowed     = "transition not allowed"
)

// TransitionError is an InvalidTransition with the rule that was violated.
type TransitionError struct {
	From   models.OrderStatus
	To     models.OrderStatus
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidTransition, e.Reason)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ValidationError carries a message safe to show the caller.
type ValidationError struct {
	Kind    error
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jewelhouse/jewelhouse/internal/logging"
	"github.com/jewelhouse/jewelhouse/internal/services"
)

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(ctx, nil).Error("failed to encode response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(messageResponse{Message: message}) //nolint
}

// writeServiceError maps service errors onto status codes. Anything not in
// the taxonomy is logged and reported as fallback.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, message := statusForError(err)
	if status == http.StatusInternalServerError {
		h.loggerFromContext(r.Context()).Error(fallback, "error", err)
		message = fallback
	}
	writeMessage(w, status, message)
}

func statusForError(err error) (int, string) {
	var validation *services.ValidationError
	var transition *services.TransitionError

	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "Admin only"
	case errors.Is(err, services.ErrOrderNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.As(err, &transition):
		return http.StatusBadRequest, transitionMessage(transition)
	case errors.Is(err, services.ErrInvalidStatusValue):
		return http.StatusBadRequest, "Invalid status supplied for order update"
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error()
	case errors.Is(err, services.ErrInvalidSubscription):
		return http.StatusBadRequest, "Invalid subscription"
	case errors.Is(err, services.ErrInvalidOrder), errors.Is(err, services.ErrInvalidPayment):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrDuplicatePayment):
		return http.StatusConflict, "Payment already recorded"
	case errors.Is(err, services.ErrPushDisabled):
		return http.StatusServiceUnavailable, "Push not configured"
	default:
		return http.StatusInternalServerError, ""
	}
}

func transitionMessage(err *services.TransitionError) string {
	switch err.Reason {
	case services.ReasonOrderUnpaid:
		return "Order not paid yet; status cannot be updated"
	case services.ReasonOrderFinalized:
		return "Order already finalised"
	default:
		return err.Error()
	}
}

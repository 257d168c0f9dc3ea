package handlers

import (
	"net/http"

	"github.com/jewelhouse/jewelhouse/internal/services"
)

// CreatePayment records a manual payment confirmation, typically a bank
// transfer an admin has reconciled.
func (h *Handlers) CreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input services.PaymentInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid payment payload")
		return
	}

	payment, err := h.orders.ConfirmPayment(ctx, input)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to record payment")
		return
	}

	writeJSON(ctx, w, http.StatusOK, payment)
}

package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/jewelhouse/jewelhouse/internal/auth"
	"github.com/jewelhouse/jewelhouse/internal/services"
)

type subscribeResponse struct {
	ID uuid.UUID `json:"id"`
}

type publicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

func (h *Handlers) PushPublicKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.push.PublicKey()
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to load push key")
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, publicKeyResponse{PublicKey: key})
}

// PushSubscribe stores the browser PushSubscription object sent by an admin
// device.
func (h *Handlers) PushSubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input services.SubscribeInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid subscription")
		return
	}

	sub, err := h.push.Subscribe(ctx, auth.IdentityFromContext(ctx), input)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to save subscription")
		return
	}

	writeJSON(ctx, w, http.StatusCreated, subscribeResponse{ID: sub.ID})
}

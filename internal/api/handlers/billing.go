package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/keepswell/keepswell-api/internal/billing"
)

const maxBillingBody = 64 << 10

type BillingService interface {
	HandleWebhook(ctx context.Context, body []byte, signature, timestamp string) (*billing.Event, error)
}

type BillingHandler struct {
	svc BillingService
}

func NewBillingHandler(svc BillingService) *BillingHandler {
	return &BillingHandler{svc: svc}
}

func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBillingBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ev, err := h.svc.HandleWebhook(r.Context(), body, r.Header.Get("X-Billing-Signature"), r.Header.Get("X-Billing-Timestamp"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := "processed"
	if !ev.Applied {
		status = "ignored"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": status, "event_id": ev.ID})
}

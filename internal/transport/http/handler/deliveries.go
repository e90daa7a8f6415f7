package handler

import (
	"context"
	"net/http"

	"github.com/authbridge/verification-api/internal/application/lifecycle"
	"github.com/authbridge/verification-api/internal/domain"
	"github.com/authbridge/verification-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// DeliveryLister exposes the per-case webhook delivery audit trail.
type DeliveryLister interface {
	ListByCase(ctx context.Context, caseID string) ([]domain.WebhookDeliveryLog, error)
}

// DeliveryHandler serves the delivery audit trail for a case.
type DeliveryHandler struct {
	svc    lifecycle.Service
	ledger DeliveryLister
}

func NewDeliveryHandler(svc lifecycle.Service, ledger DeliveryLister) *DeliveryHandler {
	return &DeliveryHandler{svc: svc, ledger: ledger}
}

func (h *DeliveryHandler) ListByCase(w http.ResponseWriter, r *http.Request) {
	clientID, _ := middleware.ClientIDFromContext(r.Context())
	caseID := chi.URLParam(r, "id")

	// Ownership check: the audit trail is as sensitive as the case itself.
	if _, err := h.svc.Get(r.Context(), clientID, caseID); err != nil {
		httpError(w, r, err)
		return
	}

	logs, err := h.ledger.ListByCase(r.Context(), caseID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

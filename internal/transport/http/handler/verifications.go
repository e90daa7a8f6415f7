package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/authbridge/verification-api/internal/application/lifecycle"
	"github.com/authbridge/verification-api/internal/domain"
	"github.com/authbridge/verification-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// Authorizer is the external policy oracle consulted before decision
// operations. Policy evaluation itself lives outside this core.
type Authorizer interface {
	Authorize(ctx context.Context, subject, resource, action string) (bool, error)
}

// VerificationHandler handles the case lifecycle endpoints.
type VerificationHandler struct {
	svc   lifecycle.Service
	authz Authorizer
}

func NewVerificationHandler(svc lifecycle.Service, authz Authorizer) *VerificationHandler {
	return &VerificationHandler{svc: svc, authz: authz}
}

func (h *VerificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	clientID, ok := middleware.ClientIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "missing client identity")
		return
	}
	var req lifecycle.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid request body")
		return
	}
	req.ClientID = clientID

	c, created, err := h.svc.Create(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	status := http.StatusOK // replayed idempotency key: existing case
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, c)
}

func (h *VerificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	clientID, _ := middleware.ClientIDFromContext(r.Context())
	c, err := h.svc.Get(r.Context(), clientID, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *VerificationHandler) List(w http.ResponseWriter, r *http.Request) {
	clientID, _ := middleware.ClientIDFromContext(r.Context())
	cases, err := h.svc.List(r.Context(), clientID, parseLimit(r))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cases)
}

type submitRequest struct {
	ExtractedData    map[string]interface{} `json:"extracted_data"`
	BiometricSummary map[string]interface{} `json:"biometric_summary"`
}

// Submit moves a case into submitted, attaching the opaque pipeline outputs.
func (h *VerificationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	clientID, _ := middleware.ClientIDFromContext(r.Context())
	caseID := chi.URLParam(r, "id")

	// Ownership check before touching the lifecycle.
	if _, err := h.svc.Get(r.Context(), clientID, caseID); err != nil {
		httpError(w, r, err)
		return
	}

	var req submitRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	patch := map[string]interface{}{}
	if req.ExtractedData != nil {
		patch["extracted_data"] = req.ExtractedData
	}
	if req.BiometricSummary != nil {
		patch["biometric_summary"] = req.BiometricSummary
	}

	c, err := h.svc.Transition(r.Context(), caseID, domain.StatusSubmitted, patch)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type decideRequest struct {
	Status    string `json:"status"`
	DecidedBy string `json:"decided_by"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes"`
}

// decisionStatuses are the statuses a decision endpoint may set.
var decisionStatuses = map[string]bool{
	domain.StatusApproved:             true,
	domain.StatusRejected:             true,
	domain.StatusAutoRejected:         true,
	domain.StatusResubmissionRequired: true,
}

// Decide records the verification outcome for a submitted case.
func (h *VerificationHandler) Decide(w http.ResponseWriter, r *http.Request) {
	clientID, _ := middleware.ClientIDFromContext(r.Context())
	caseID := chi.URLParam(r, "id")

	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid request body")
		return
	}
	if !decisionStatuses[req.Status] {
		writeError(w, r, http.StatusBadRequest, CodeValidation, fmt.Sprintf("invalid decision status %q", req.Status))
		return
	}
	if req.DecidedBy == "" {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "decided_by is required")
		return
	}

	allowed, err := h.authz.Authorize(r.Context(), clientID, "verification:"+caseID, "decide")
	if err != nil {
		httpError(w, r, err)
		return
	}
	if !allowed {
		writeError(w, r, http.StatusForbidden, CodeForbidden, "not allowed to decide this case")
		return
	}

	if _, err := h.svc.Get(r.Context(), clientID, caseID); err != nil {
		httpError(w, r, err)
		return
	}

	patch := map[string]interface{}{
		"decided_by": req.DecidedBy,
	}
	if req.Reason != "" {
		patch["reason"] = req.Reason
	}
	if req.Notes != "" {
		patch["notes"] = req.Notes
	}

	c, err := h.svc.Transition(r.Context(), caseID, req.Status, patch)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func parseLimit(r *http.Request) int32 {
	q := r.URL.Query().Get("limit")
	if q == "" {
		return 50
	}
	var n int32
	if _, err := fmt.Sscanf(q, "%d", &n); err != nil {
		return 50
	}
	return n
}

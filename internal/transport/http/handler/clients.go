package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/authbridge/verification-api/internal/domain"
	"github.com/authbridge/verification-api/internal/pkg/validate"
	"github.com/authbridge/verification-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// ClientConfigStore reads and writes per-client webhook configuration.
type ClientConfigStore interface {
	Get(ctx context.Context, clientID string) (*domain.ClientWebhookConfig, error)
	Put(ctx context.Context, cfg *domain.ClientWebhookConfig) error
}

// ClientHandler manages a client's own webhook configuration.
type ClientHandler struct {
	store ClientConfigStore
}

func NewClientHandler(store ClientConfigStore) *ClientHandler {
	return &ClientHandler{store: store}
}

func (h *ClientHandler) GetWebhook(w http.ResponseWriter, r *http.Request) {
	clientID, ok := ownClient(w, r)
	if !ok {
		return
	}
	cfg, err := h.store.Get(r.Context(), clientID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type webhookConfigRequest struct {
	WebhookURL       string   `json:"webhook_url" validate:"required,https_url"`
	WebhookSecret    string   `json:"webhook_secret" validate:"required,min=16"`
	WebhookEnabled   bool     `json:"webhook_enabled"`
	SubscribedEvents []string `json:"subscribed_events" validate:"required,min=1"`
}

func (h *ClientHandler) PutWebhook(w http.ResponseWriter, r *http.Request) {
	clientID, ok := ownClient(w, r)
	if !ok {
		return
	}
	var req webhookConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	for _, e := range req.SubscribedEvents {
		if !domain.KnownEvent(e) {
			writeError(w, r, http.StatusBadRequest, CodeValidation, "unknown event type: "+e)
			return
		}
	}

	now := time.Now().UTC()
	cfg := &domain.ClientWebhookConfig{
		ClientID:         clientID,
		WebhookURL:       req.WebhookURL,
		WebhookSecret:    req.WebhookSecret,
		WebhookEnabled:   req.WebhookEnabled,
		SubscribedEvents: req.SubscribedEvents,
		UpdatedAt:        now,
	}
	if existing, err := h.store.Get(r.Context(), clientID); err == nil {
		cfg.CreatedAt = existing.CreatedAt
	} else if errors.Is(err, domain.ErrNotFound) {
		cfg.CreatedAt = now
	} else {
		httpError(w, r, err)
		return
	}

	if err := h.store.Put(r.Context(), cfg); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// ownClient resolves the path client id and rejects cross-client access.
func ownClient(w http.ResponseWriter, r *http.Request) (string, bool) {
	callerID, _ := middleware.ClientIDFromContext(r.Context())
	pathID := chi.URLParam(r, "id")
	if pathID != callerID {
		writeError(w, r, http.StatusForbidden, CodeForbidden, "cannot access another client's configuration")
		return "", false
	}
	return pathID, true
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/authbridge/verification-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfigStore struct {
	cfg *domain.ClientWebhookConfig
	put *domain.ClientWebhookConfig
}

func (f *fakeConfigStore) Get(context.Context, string) (*domain.ClientWebhookConfig, error) {
	if f.cfg == nil {
		return nil, domain.ErrNotFound
	}
	return f.cfg, nil
}

func (f *fakeConfigStore) Put(_ context.Context, cfg *domain.ClientWebhookConfig) error {
	f.put = cfg
	return nil
}

func putWebhookReq(clientID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPut, "/v1/clients/"+clientID+"/webhook", strings.NewReader(body))
	req.Header.Set("X-Client-Id", "client_1")
	return withURLParam(req, "id", clientID)
}

func TestPutWebhook_StoresConfig(t *testing.T) {
	store := &fakeConfigStore{}
	h := NewClientHandler(store)

	body := `{"webhook_url":"https://client.example/hooks","webhook_secret":"0123456789abcdef","webhook_enabled":true,"subscribed_events":["verification.approved"]}`
	rec := do(h.PutWebhook, putWebhookReq("client_1", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, store.put)
	assert.Equal(t, "client_1", store.put.ClientID)
	assert.Equal(t, "https://client.example/hooks", store.put.WebhookURL)
	assert.True(t, store.put.WebhookEnabled)
	assert.False(t, store.put.CreatedAt.IsZero())
}

func TestPutWebhook_PreservesCreatedAtOnUpdate(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeConfigStore{cfg: &domain.ClientWebhookConfig{ClientID: "client_1", CreatedAt: created}}
	h := NewClientHandler(store)

	body := `{"webhook_url":"https://client.example/hooks","webhook_secret":"0123456789abcdef","subscribed_events":["verification.created"]}`
	rec := do(h.PutWebhook, putWebhookReq("client_1", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, store.put)
	assert.Equal(t, created, store.put.CreatedAt)
}

func TestPutWebhook_RejectsPlainHTTP(t *testing.T) {
	h := NewClientHandler(&fakeConfigStore{})

	body := `{"webhook_url":"http://client.example/hooks","webhook_secret":"0123456789abcdef","subscribed_events":["verification.approved"]}`
	rec := do(h.PutWebhook, putWebhookReq("client_1", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutWebhook_RejectsUnknownEvent(t *testing.T) {
	h := NewClientHandler(&fakeConfigStore{})

	body := `{"webhook_url":"https://client.example/hooks","webhook_secret":"0123456789abcdef","subscribed_events":["verification.destroyed"]}`
	rec := do(h.PutWebhook, putWebhookReq("client_1", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Contains(t, env.Error.Message, "verification.destroyed")
}

func TestPutWebhook_OtherClient_Returns403(t *testing.T) {
	store := &fakeConfigStore{}
	h := NewClientHandler(store)

	body := `{"webhook_url":"https://client.example/hooks","webhook_secret":"0123456789abcdef","subscribed_events":["verification.approved"]}`
	rec := do(h.PutWebhook, putWebhookReq("client_2", body))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, store.put)
}

func TestGetWebhook_NotConfigured_Returns404(t *testing.T) {
	h := NewClientHandler(&fakeConfigStore{})

	req := httptest.NewRequest(http.MethodGet, "/v1/clients/client_1/webhook", nil)
	req.Header.Set("X-Client-Id", "client_1")
	req = withURLParam(req, "id", "client_1")

	rec := do(h.GetWebhook, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

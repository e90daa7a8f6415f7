package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const (
	clientIDKey contextKey = "client_id"
	apiKeyIDKey contextKey = "api_key_id"
)

// ClientIdentity extracts the caller identity injected by the upstream
// gateway. Transport-level authentication happens there; this core only
// requires that an identity is present.
func ClientIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := r.Header.Get("X-Client-Id")
		if clientID == "" {
			writeJSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing client identity")
			return
		}
		apiKeyID := r.Header.Get("X-Api-Key-Id")
		if apiKeyID == "" {
			apiKeyID = clientID
		}
		ctx := context.WithValue(r.Context(), clientIDKey, clientID)
		ctx = context.WithValue(ctx, apiKeyIDKey, apiKeyID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIDFromContext extracts the caller's client id from the request context.
func ClientIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(clientIDKey).(string)
	return v, ok
}

// APIKeyIDFromContext extracts the caller's API key id from the request context.
func APIKeyIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(apiKeyIDKey).(string)
	return v, ok
}

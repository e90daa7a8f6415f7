package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// writeJSONError writes an error response in the shared envelope shape
// ({error:{code,message},meta:{requestId,timestamp}}) with the correct Content-Type.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"code": code, "message": msg},
		"meta": map[string]string{
			"requestId": chimiddleware.GetReqID(r.Context()),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

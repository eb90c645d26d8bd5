// Package middleware provides the chi middleware for Harmonium's HTTP
// surfaces (REST and inbound A2A).
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/harmonium-ai/harmonium/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID honors an inbound X-Request-ID or mints one, echoes it on the
// response, and threads it through the logger context so the request that
// started a run can be correlated with the run's log lines.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = newRequestID()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// newRequestID returns 16 random bytes hex-encoded.
func newRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

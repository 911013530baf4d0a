package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	deviceIDKey  contextKey = "device_id"
)

// RequestID tags every request with an ID, honoring one supplied by the
// client so mobile-side logs can be correlated with server logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// DeviceID captures the caller's device identifier from the X-Device-ID
// header. Anonymous requests pass through with an empty ID; handlers that
// need one fall back to the server's own identity.
func DeviceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		did := strings.TrimSpace(r.Header.Get("X-Device-ID"))
		if did != "" {
			r = r.WithContext(context.WithValue(r.Context(), deviceIDKey, did))
		}
		next.ServeHTTP(w, r)
	})
}

func DeviceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(deviceIDKey).(string); ok {
		return v
	}
	return ""
}

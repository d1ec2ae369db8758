package middleware

import (
	"net/http"

	"timeclock/internal/platform/logger"
	pnet "timeclock/internal/platform/net"
)

// LogContext copies the request id onto the logger context keys so that
// logger.C picks it up anywhere downstream. Mount after RequestID
func LogContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithRequest(r.Context(), pnet.RequestID(r.Context()), "")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

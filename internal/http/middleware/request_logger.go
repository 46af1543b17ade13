package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/donorlink/callops/pkg/logging"
)

// statusWriter captures the response code for the completion log.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// RequestLogger emits structured logs for every HTTP request. On voice
// webhooks the completion line also carries the carrier call SID, which is
// the key every downstream table is searched by.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			logger.Info("request started",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", reqID,
				"remote_ip", r.RemoteAddr,
			)

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", reqID,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			// PostForm is only populated when the handler parsed the body, so
			// this never consumes an unread portal JSON payload.
			if sid := r.PostForm.Get("CallSid"); sid != "" {
				fields = append(fields, "call_sid", sid)
			}
			logger.Info("request completed", fields...)
		})
	}
}

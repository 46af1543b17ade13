package middleware

import (
	"net/http"

	"github.com/donorlink/callops/internal/carrier"
	"github.com/donorlink/callops/pkg/logging"
)

// CarrierSignature rejects webhook posts whose signature header does not match
// the account auth token. An empty token disables validation, for local runs
// against simulated callbacks.
func CarrierSignature(authToken string, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authToken == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !carrier.ValidateSignature(r, authToken, carrier.AbsoluteURL(r)) {
				logger.Warn("webhook signature validation failed",
					"path", r.URL.Path, "remote_ip", r.RemoteAddr)
				http.Error(w, "invalid signature", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"crypto/subtle"
	"net/http"
)

// WebhookSecretHeader carries the shared secret the call provider is
// configured to send with every webhook.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookSecret rejects webhook posts whose shared-secret header does not
// match. The compare is constant-time.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "webhook auth disabled", http.StatusUnauthorized)
				return
			}
			got := r.Header.Get(WebhookSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, "invalid webhook secret", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

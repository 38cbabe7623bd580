package middleware

import (
	"crypto/subtle"
	"net/http"

	"canditrack/internal/common"
)

const APIKeyHeader = "x-api-key"

// APIKey admits requests whose x-api-key header matches key. An empty key
// rejects everything, so an unconfigured gateway stays closed.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(APIKeyHeader)
			if key == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				common.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

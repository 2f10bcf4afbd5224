package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/itsatony/w4b_v3/server/weatherhub/internal/errors"
	nuts "github.com/vaudience/go-nuts"
)

type TokenConfig struct {
	// Token is the operator bearer token. Empty disables the check.
	Token string
}

// TokenMiddleware guards operator endpoints with a static bearer token.
type TokenMiddleware struct {
	config TokenConfig
}

func NewTokenMiddleware(config TokenConfig) *TokenMiddleware {
	if config.Token == "" {
		nuts.L.Warnf("[Auth] No operator token configured, debug query endpoint is open")
	}
	return &TokenMiddleware{config: config}
}

// Authenticate rejects requests without the configured bearer token
func (m *TokenMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.config.Token == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			handleError(w, errors.NewAuthError("no token provided", nil).WithRequestID(nuts.NID("req", 12)))
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(m.config.Token)) != 1 {
			handleError(w, errors.NewAuthError("invalid token", nil).WithRequestID(nuts.NID("req", 12)))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Helper functions

func extractToken(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

func handleError(w http.ResponseWriter, apiErr *errors.APIError) {
	nuts.L.Warnf("[Auth] %s", apiErr.Error())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Code)
	json.NewEncoder(w).Encode(apiErr)
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Nadil-Dulnidu/IKMS/pkg/contracts"
)

type contextKey string

const userKey contextKey = "user_id"

// UserHeader is the development-mode identity header used when no token
// verifier is configured or no bearer token is present.
const UserHeader = "X-User-Id"

// UserExtractor resolves the caller's identity: a verified bearer token
// subject when a verifier is configured, the X-User-Id header otherwise.
// Requests with an invalid bearer token are rejected; requests with no
// identity at all pass through and handlers decide whether to 401.
func UserExtractor(verifier contracts.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := ""

			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") && verifier != nil {
				token := strings.TrimPrefix(auth, "Bearer ")
				sub, err := verifier.Verify(r.Context(), token)
				if err != nil {
					log.Warn().Err(err).Msg("bearer token rejected")
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					_, _ = w.Write([]byte(`{"error":"invalid or expired token"}`))
					return
				}
				userID = sub
			}

			if userID == "" {
				userID = r.Header.Get(UserHeader)
			}

			ctx := context.WithValue(r.Context(), userKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID injects a caller identity into the context. Used by tests
// and by internal callers bypassing the HTTP chain.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// GetUserID returns the caller identity extracted for this request, or "".
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(userKey).(string); ok {
		return v
	}
	return ""
}

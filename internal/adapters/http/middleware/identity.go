package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/greenpay/usage-limiter/internal/pkg/response"
)

const DefaultIdentityHeader = "X-User-ID"

type contextKey string

const (
	identityKey  contextKey = "identity"
	decisionKey  contextKey = "decision"
	requestIDKey contextKey = "request_id"
)

// Identity lê a identidade do chamador do header definido pelo gateway de
// autenticação e rejeita requisições sem ela.
func Identity(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultIdentityHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := strings.TrimSpace(r.Header.Get(header))
			if identity == "" {
				response.Unauthorized(w, "missing caller identity")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(identityKey).(string)
	return identity
}

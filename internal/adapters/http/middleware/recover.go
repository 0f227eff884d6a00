package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/greenpay/usage-limiter/internal/pkg/logger"
	"github.com/greenpay/usage-limiter/internal/pkg/response"
)

// Recover recupera panics e responde com erro interno.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.FromContext(r.Context()).Error().
					Interface("error", err).
					Str("stack", string(debug.Stack())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				response.InternalError(w)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

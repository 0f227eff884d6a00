// Package middleware disponibiliza middlewares HTTP específicos da aplicação.
package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/greenpay/usage-limiter/internal/core/domain"
	"github.com/greenpay/usage-limiter/internal/core/ports"
	"github.com/greenpay/usage-limiter/internal/pkg/logger"
	"github.com/greenpay/usage-limiter/internal/pkg/response"
)

const (
	remainingHeader = "X-RateLimit-Remaining"

	// Contention clears as soon as the concurrent writers on the same identity finish.
	contentionRetryAfter = "1"
)

// DecisionBody é o formato JSON de um veredito do limitador.
type DecisionBody struct {
	Allowed           bool   `json:"allowed"`
	Error             string `json:"error,omitempty"`
	RemainingRequests int    `json:"remainingRequests"`
}

// NewUsageLimiterMiddleware consulta o limitador antes de cada requisição.
// Deve ser encadeado depois de Identity.
func NewUsageLimiterMiddleware(limiter ports.UsageLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			identity := IdentityFromContext(r.Context())
			decision, err := limiter.CheckLimit(r.Context(), identity)
			if err != nil {
				if domain.IsIdentityRequiredError(err) {
					response.Unauthorized(w, "missing caller identity")
					return
				}
				if domain.IsStoreContentionError(err) {
					logger.FromContext(r.Context()).Warn().Err(err).Str("identity", identity).Msg("usage store contended")
					w.Header().Set("Retry-After", contentionRetryAfter)
					response.ServiceUnavailable(w, "usage check is busy, please retry")
					return
				}

				logger.FromContext(r.Context()).Error().Err(err).Str("identity", identity).Msg("usage limiter failed")
				response.InternalError(w)
				return
			}

			w.Header().Set(remainingHeader, strconv.Itoa(decision.RemainingRequests))

			if !decision.Allowed {
				logger.FromContext(r.Context()).Info().
					Str("identity", identity).
					Str("reason", string(decision.Reason)).
					Msg("usage limit reached")
				writeTooManyRequests(w, decision)
				return
			}

			ctx := context.WithValue(r.Context(), decisionKey, decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DecisionFromContext retorna o veredito que liberou a requisição.
func DecisionFromContext(ctx context.Context) (domain.Decision, bool) {
	decision, ok := ctx.Value(decisionKey).(domain.Decision)
	return decision, ok
}

func writeTooManyRequests(w http.ResponseWriter, decision domain.Decision) {
	if decision.RetryAfter > 0 {
		seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	response.JSON(w, http.StatusTooManyRequests, DecisionBody{
		Allowed:           false,
		Error:             decision.Error,
		RemainingRequests: decision.RemainingRequests,
	})
}

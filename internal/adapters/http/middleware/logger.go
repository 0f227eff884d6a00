package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/greenpay/usage-limiter/internal/pkg/logger"
)

// Logger anexa um logger zerolog por requisição e registra cada requisição.
// Deve ser encadeado depois de RequestID.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestLogger := log.With().Str("request_id", RequestIDFromContext(r.Context())).Logger()
		ctx := logger.WithContext(r.Context(), requestLogger)

		wrapped := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		status := wrapped.Status()
		if status == 0 {
			status = http.StatusOK
		}

		requestLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("user_agent", r.UserAgent()).
			Msg("HTTP Request")
	})
}

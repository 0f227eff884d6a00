package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greenpay/usage-limiter/internal/adapters/http/middleware"
	"github.com/greenpay/usage-limiter/internal/core/ports"
)

type RouterConfig struct {
	IdentityHeader string
	// Metrics é montado em /metrics quando definido.
	Metrics http.Handler
}

// NewRouter monta as rotas do serviço com a cadeia de middlewares padrão.
func NewRouter(limiter ports.UsageLimiter, cfg RouterConfig) http.Handler {
	assistant := NewAssistantHandler(limiter)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Logger, middleware.Recover)

	r.Get("/healthz", Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/assistant", func(r chi.Router) {
		r.Use(middleware.Identity(cfg.IdentityHeader))
		r.With(middleware.NewUsageLimiterMiddleware(limiter)).Post("/messages", assistant.PostMessage)
		r.Get("/usage", assistant.GetUsage)
	})

	return r
}

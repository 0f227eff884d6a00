package services

import (
	"context"
	"fmt"
	"time"

	"github.com/greenpay/usage-limiter/internal/core/domain"
	"github.com/greenpay/usage-limiter/internal/core/ports"
)

// Config agrega os limites e dependências opcionais do serviço.
type Config struct {
	Limits  domain.Limits
	Clock   func() time.Time
	Metrics ports.MetricsRecorder
}

// UsageLimiterService implementa a lógica central do limitador de uso.
type UsageLimiterService struct {
	store   ports.UsageStore
	limits  domain.Limits
	now     func() time.Time
	metrics ports.MetricsRecorder
}

var _ ports.UsageLimiter = (*UsageLimiterService)(nil)

// NewUsageLimiterService cria uma nova instância do serviço.
func NewUsageLimiterService(store ports.UsageStore, cfg Config) (*UsageLimiterService, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	limits := cfg.Limits.WithDefaults()
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}

	return &UsageLimiterService{
		store:   store,
		limits:  limits,
		now:     cfg.Clock,
		metrics: cfg.Metrics,
	}, nil
}

// Limits retorna os limites aplicados pelo serviço.
func (s *UsageLimiterService) Limits() domain.Limits {
	return s.limits
}

// CheckLimit decide se a identidade pode executar mais uma ação.
// Uma negação é um Decision com Allowed=false, nunca um erro.
func (s *UsageLimiterService) CheckLimit(ctx context.Context, identity string) (domain.Decision, error) {
	if identity == "" {
		return domain.Decision{}, domain.ErrIdentityRequired
	}

	start := time.Now()
	now := s.now()

	var decision domain.Decision
	err := s.store.Mutate(ctx, identity, func(rec *domain.UsageRecord) bool {
		var changed bool
		decision, changed = s.limits.Apply(rec, now)
		return changed
	})
	if err != nil {
		s.metrics.ObserveStoreError("mutate")
		return domain.Decision{}, fmt.Errorf("check limit for %q: %w", identity, err)
	}

	s.metrics.ObserveDecision(decision, time.Since(start))
	return decision, nil
}

// Usage retorna o consumo atual da identidade sem alterá-lo.
func (s *UsageLimiterService) Usage(ctx context.Context, identity string) (domain.Usage, error) {
	if identity == "" {
		return domain.Usage{}, domain.ErrIdentityRequired
	}

	rec, found, err := s.store.Load(ctx, identity)
	if err != nil {
		s.metrics.ObserveStoreError("load")
		return domain.Usage{}, fmt.Errorf("load usage for %q: %w", identity, err)
	}

	return s.limits.Snapshot(rec, found, s.now()), nil
}

type noopMetrics struct{}

func (noopMetrics) ObserveDecision(domain.Decision, time.Duration) {}
func (noopMetrics) ObserveStoreError(string)                      {}

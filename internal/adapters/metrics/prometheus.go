// Package metrics expõe as métricas Prometheus do limitador de uso.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/greenpay/usage-limiter/internal/core/domain"
	"github.com/greenpay/usage-limiter/internal/core/ports"
)

const namespace = "greenpay_usage_limiter"

// Recorder implementa ports.MetricsRecorder. Identidades nunca viram valores
// de label.
type Recorder struct {
	registry prometheus.Gatherer

	checks        *prometheus.CounterVec
	checkDuration prometheus.Histogram
	storeErrors   *prometheus.CounterVec
	factory       promauto.Factory
}

var _ ports.MetricsRecorder = (*Recorder)(nil)

// NewRecorder registra os coletores em registry.
func NewRecorder(registry *prometheus.Registry) *Recorder {
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		factory:  factory,
		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Total number of usage limit checks by result",
			},
			[]string{"result"},
		),
		checkDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_duration_seconds",
				Help:      "Duration of usage limit checks in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 12), // 1µs to ~4s
			},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Total number of failed usage store operations",
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) ObserveDecision(decision domain.Decision, elapsed time.Duration) {
	r.checks.WithLabelValues(resultLabel(decision)).Inc()
	r.checkDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveStoreError(operation string) {
	r.storeErrors.WithLabelValues(operation).Inc()
}

// TrackIdentities expõe como gauge o tamanho de um storage em memória.
func (r *Recorder) TrackIdentities(count func() int) {
	r.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_identities",
			Help:      "Number of identities currently held by the in-memory store",
		},
		func() float64 { return float64(count()) },
	)
}

// Handler serve o registry no formato de exposição do Prometheus.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

func resultLabel(decision domain.Decision) string {
	if decision.Allowed {
		return "allowed"
	}
	return string(decision.Reason)
}

package ports

import (
	"time"

	"github.com/greenpay/usage-limiter/internal/core/domain"
)

type MetricsRecorder interface {
	ObserveDecision(decision domain.Decision, elapsed time.Duration)
	ObserveStoreError(operation string)
}

// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"

	"github.com/greenpay/usage-limiter/internal/core/domain"
)

type UsageLimiter interface {
	CheckLimit(ctx context.Context, identity string) (domain.Decision, error)
	Usage(ctx context.Context, identity string) (domain.Usage, error)
}

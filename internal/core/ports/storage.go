// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"

	"github.com/greenpay/usage-limiter/internal/core/domain"
)

// UsageStore guarda um UsageRecord por identidade.
//
// Mutate executa fn como uma única operação de leitura-modificação-escrita
// para a identidade. Um registro inexistente chega a fn zerado, e o registro
// só é gravado quando fn retorna true. fn pode ser executada mais de uma vez
// por chamada e não deve ter efeitos colaterais além de capturar seu resultado.
type UsageStore interface {
	Mutate(ctx context.Context, identity string, fn func(rec *domain.UsageRecord) bool) error
	Load(ctx context.Context, identity string) (domain.UsageRecord, bool, error)
}

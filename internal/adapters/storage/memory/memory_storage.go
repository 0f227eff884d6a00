// Package memory disponibiliza a implementação do storage em memória, limitada por LRU.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/greenpay/usage-limiter/internal/core/domain"
	"github.com/greenpay/usage-limiter/internal/core/ports"
)

const DefaultMaxIdentities = 100_000

type Storage struct {
	mu      sync.Mutex
	records *simplelru.LRU[string, *domain.UsageRecord]
}

var _ ports.UsageStore = (*Storage)(nil)

type Config struct {
	// MaxIdentities limita o número de identidades rastreadas. A identidade
	// consultada há mais tempo sai primeiro e recomeça zerada na próxima requisição.
	MaxIdentities int
}

func New(cfg Config) (*Storage, error) {
	if cfg.MaxIdentities == 0 {
		cfg.MaxIdentities = DefaultMaxIdentities
	}
	if cfg.MaxIdentities < 0 {
		return nil, fmt.Errorf("max identities must be positive, got %d", cfg.MaxIdentities)
	}

	records, err := simplelru.NewLRU[string, *domain.UsageRecord](cfg.MaxIdentities, nil)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}

	return &Storage{records: records}, nil
}

// Mutate mantém um único lock durante toda a leitura-modificação-escrita.
func (s *Storage) Mutate(_ context.Context, identity string, fn func(rec *domain.UsageRecord) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records.Get(identity)
	if !ok {
		rec = &domain.UsageRecord{}
	}

	// fn mutates rec in place; a new record only enters the cache once written.
	if fn(rec) && !ok {
		s.records.Add(identity, rec)
	}
	return nil
}

func (s *Storage) Load(_ context.Context, identity string) (domain.UsageRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records.Peek(identity)
	if !ok {
		return domain.UsageRecord{}, false, nil
	}
	return *rec, true, nil
}

// Len retorna o número de identidades rastreadas.
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.Len()
}

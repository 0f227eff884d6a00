// Package redis disponibiliza a implementação do storage baseada em Redis,
// compartilhada entre todas as instâncias do serviço.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/greenpay/usage-limiter/internal/core/domain"
	"github.com/greenpay/usage-limiter/internal/core/ports"
)

const (
	DefaultKeyPrefix  = "usage"
	DefaultMaxRetries = 50

	fieldMinuteCount   = "minute_count"
	fieldMinuteResetAt = "minute_reset_at"
	fieldDailyCount    = "daily_count"
	fieldDailyResetAt  = "daily_reset_at"

	// Every reset timestamp written lies at most one day window ahead of the write.
	recordTTL = domain.DayWindow + domain.MinuteWindow
)

type Storage struct {
	client     *redis.Client
	keyPrefix  string
	maxRetries int
}

var _ ports.UsageStore = (*Storage)(nil)

type Config struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	MaxRetries int
}

func New(cfg Config) (*Storage, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromClient(client, cfg), nil
}

// NewFromClient reaproveita um client existente. Os campos de conexão de cfg são ignorados.
func NewFromClient(client *redis.Client, cfg Config) *Storage {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Storage{client: client, keyPrefix: cfg.KeyPrefix, maxRetries: cfg.MaxRetries}
}

func (s *Storage) Close() error {
	return s.client.Close()
}

// Mutate executa fn dentro de uma transação otimista WATCH/MULTI sobre o hash da
// identidade e tenta de novo quando outro escritor altera a chave no meio do caminho.
func (s *Storage) Mutate(ctx context.Context, identity string, fn func(rec *domain.UsageRecord) bool) error {
	key := s.key(identity)

	txf := func(tx *redis.Tx) error {
		values, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}

		rec, err := decodeRecord(values)
		if err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}

		if !fn(&rec) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeRecord(rec))
			pipe.PExpire(ctx, key, recordTTL)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		log.Debug().Str("key", key).Int("attempt", attempt).Msg("usage record changed concurrently, retrying")
	}

	log.Warn().Str("key", key).Int("max_retries", s.maxRetries).Msg("usage record update gave up")
	return domain.ErrStoreContention
}

func (s *Storage) Load(ctx context.Context, identity string) (domain.UsageRecord, bool, error) {
	key := s.key(identity)

	values, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.UsageRecord{}, false, err
	}
	if len(values) == 0 {
		return domain.UsageRecord{}, false, nil
	}

	rec, err := decodeRecord(values)
	if err != nil {
		return domain.UsageRecord{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, true, nil
}

func (s *Storage) key(identity string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, identity)
}

func encodeRecord(rec domain.UsageRecord) map[string]any {
	return map[string]any{
		fieldMinuteCount:   rec.MinuteCount,
		fieldMinuteResetAt: rec.MinuteResetAt.UnixMilli(),
		fieldDailyCount:    rec.DailyCount,
		fieldDailyResetAt:  rec.DailyResetAt.UnixMilli(),
	}
}

// decodeRecord maps an empty hash to the zero record.
func decodeRecord(values map[string]string) (domain.UsageRecord, error) {
	if len(values) == 0 {
		return domain.UsageRecord{}, nil
	}

	fields := make(map[string]int64, 4)
	for _, name := range []string{fieldMinuteCount, fieldMinuteResetAt, fieldDailyCount, fieldDailyResetAt} {
		raw, ok := values[name]
		if !ok {
			return domain.UsageRecord{}, fmt.Errorf("missing field %s", name)
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.UsageRecord{}, fmt.Errorf("invalid %s: %w", name, err)
		}
		fields[name] = v
	}

	return domain.UsageRecord{
		MinuteCount:   int(fields[fieldMinuteCount]),
		MinuteResetAt: time.UnixMilli(fields[fieldMinuteResetAt]),
		DailyCount:    int(fields[fieldDailyCount]),
		DailyResetAt:  time.UnixMilli(fields[fieldDailyResetAt]),
	}, nil
}

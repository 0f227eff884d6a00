package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenpay/usage-limiter/internal/core/domain"
)

func TestUsageLimiter_DailyCountdown(t *testing.T) {
	service, _ := newTestLimiter(t, domain.Limits{})
	ctx := context.Background()

	for i, want := range []int{4, 3, 2, 1, 0} {
		decision, err := service.CheckLimit(ctx, "u1")
		require.NoError(t, err)
		require.True(t, decision.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, want, decision.RemainingRequests)
		assert.Empty(t, decision.Error)
	}

	decision, err := service.CheckLimit(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "You've used all 5 daily requests. Please try again tomorrow.", decision.Error)
	assert.Equal(t, 0, decision.RemainingRequests)
}

func TestUsageLimiter_MinuteCap(t *testing.T) {
	service, _ := newTestLimiter(t, domain.Limits{MinuteLimit: 10, DailyLimit: 20})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		decision, err := service.CheckLimit(ctx, "u2")
		require.NoError(t, err)
		require.True(t, decision.Allowed, "request %d should be allowed", i+1)
	}

	decision, err := service.CheckLimit(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.MinuteLimitMessage, decision.Error)
	assert.Equal(t, 10, decision.RemainingRequests)
	assert.Equal(t, domain.ReasonMinuteLimit, decision.Reason)
}

func TestUsageLimiter_MinuteWindowResetsLazily(t *testing.T) {
	service, clock := newTestLimiter(t, domain.Limits{MinuteLimit: 2, DailyLimit: 100})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := service.CheckLimit(ctx, "u5")
		require.NoError(t, err)
	}
	decision, err := service.CheckLimit(ctx, "u5")
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	// Far more than one window elapses while idle.
	clock.Advance(17 * time.Minute)

	decision, err = service.CheckLimit(ctx, "u5")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 97, decision.RemainingRequests)

	usage, err := service.Usage(ctx, "u5")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.MinuteCount)
	assert.Equal(t, clock.Now().Add(time.Minute), usage.MinuteResetAt)
}

func TestUsageLimiter_DayWindowResets(t *testing.T) {
	service, clock := newTestLimiter(t, domain.Limits{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := service.CheckLimit(ctx, "u3")
		require.NoError(t, err)
	}
	decision, err := service.CheckLimit(ctx, "u3")
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	clock.Advance(24*time.Hour + time.Second)

	decision, err = service.CheckLimit(ctx, "u3")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 4, decision.RemainingRequests)

	usage, err := service.Usage(ctx, "u3")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.DailyCount)
}

func TestUsageLimiter_ConcurrentLastRequest(t *testing.T) {
	service, _ := newTestLimiter(t, domain.Limits{})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := service.CheckLimit(ctx, "u4")
		require.NoError(t, err)
	}

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := service.CheckLimit(ctx, "u4")
			if err == nil && decision.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), allowed.Load())
}

func TestUsageLimiter_ConcurrentBurstNeverExceedsCaps(t *testing.T) {
	service, _ := newTestLimiter(t, domain.Limits{MinuteLimit: 7, DailyLimit: 50})
	ctx := context.Background()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := service.CheckLimit(ctx, "burst")
			if err == nil && decision.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(7), allowed.Load())
}

func TestUsageLimiter_IdentitiesAreIndependent(t *testing.T) {
	service, _ := newTestLimiter(t, domain.Limits{MinuteLimit: 10, DailyLimit: 2})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := service.CheckLimit(ctx, "alice")
		require.NoError(t, err)
	}

	decision, err := service.CheckLimit(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.RemainingRequests)

	usage, err := service.Usage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, usage.DailyCount)
}

func TestUsageLimiter_MinutePrecedence(t *testing.T) {
	service, _ := newTestLimiter(t, domain.Limits{MinuteLimit: 3, DailyLimit: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := service.CheckLimit(ctx, "both")
		require.NoError(t, err)
	}

	decision, err := service.CheckLimit(ctx, "both")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, domain.MinuteLimitMessage, decision.Error)
}

func TestUsageLimiter_RemainingMatchesDailyCount(t *testing.T) {
	service, clock := newTestLimiter(t, domain.Limits{MinuteLimit: 3, DailyLimit: 12})
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		decision, err := service.CheckLimit(ctx, "p6")
		require.NoError(t, err)
		if decision.Allowed {
			usage, err := service.Usage(ctx, "p6")
			require.NoError(t, err)
			assert.Equal(t, usage.DailyLimit-usage.DailyCount, decision.RemainingRequests)
		}
		assert.GreaterOrEqual(t, decision.RemainingRequests, 0)
		clock.Advance(15 * time.Second)
	}
}

func TestUsageLimiter_UsageDoesNotConsume(t *testing.T) {
	service, _ := newTestLimiter(t, domain.Limits{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		usage, err := service.Usage(ctx, "reader")
		require.NoError(t, err)
		assert.Equal(t, 5, usage.RemainingRequests)
	}

	decision, err := service.CheckLimit(ctx, "reader")
	require.NoError(t, err)
	assert.Equal(t, 4, decision.RemainingRequests)
}

func TestUsageLimiter_RejectsEmptyIdentity(t *testing.T) {
	service, _ := newTestLimiter(t, domain.Limits{})

	_, err := service.CheckLimit(context.Background(), "")
	assert.True(t, domain.IsIdentityRequiredError(err))

	_, err = service.Usage(context.Background(), "")
	assert.True(t, domain.IsIdentityRequiredError(err))
}

func TestUsageLimiter_StoreFailure(t *testing.T) {
	metrics := &recordingMetrics{}
	boom := errors.New("connection refused")
	service, err := NewUsageLimiterService(&failingStorage{err: boom}, Config{Metrics: metrics})
	require.NoError(t, err)

	_, err = service.CheckLimit(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)

	_, err = service.Usage(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"mutate", "load"}, metrics.storeErrors)
	assert.Empty(t, metrics.decisions)
}

func TestUsageLimiter_RecordsDecisions(t *testing.T) {
	metrics := &recordingMetrics{}
	service, err := NewUsageLimiterService(newMockStorage(), Config{
		Limits:  domain.Limits{MinuteLimit: 1, DailyLimit: 5},
		Metrics: metrics,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := service.CheckLimit(context.Background(), "m")
		require.NoError(t, err)
	}

	require.Len(t, metrics.decisions, 2)
	assert.True(t, metrics.decisions[0].Allowed)
	assert.Equal(t, domain.ReasonMinuteLimit, metrics.decisions[1].Reason)
}

func TestNewUsageLimiterService_Validation(t *testing.T) {
	_, err := NewUsageLimiterService(nil, Config{})
	assert.Error(t, err)

	_, err = NewUsageLimiterService(newMockStorage(), Config{Limits: domain.Limits{MinuteLimit: -1}})
	assert.ErrorIs(t, err, domain.ErrInvalidLimits)

	service, err := NewUsageLimiterService(newMockStorage(), Config{})
	require.NoError(t, err)
	assert.Equal(t, domain.Limits{MinuteLimit: 10, DailyLimit: 5}, service.Limits())
}

// newTestLimiter is a helper that fails the test immediately if creation fails.
func newTestLimiter(t *testing.T, limits domain.Limits) (*UsageLimiterService, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)}
	service, err := NewUsageLimiterService(newMockStorage(), Config{Limits: limits, Clock: clock.Now})
	if err != nil {
		t.Fatalf("failed to create usage limiter service: %v", err)
	}
	return service, clock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockStorage struct {
	mu      sync.Mutex
	records map[string]domain.UsageRecord
}

func newMockStorage() *mockStorage {
	return &mockStorage{records: make(map[string]domain.UsageRecord)}
}

func (m *mockStorage) Mutate(_ context.Context, identity string, fn func(rec *domain.UsageRecord) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.records[identity]
	if fn(&rec) {
		m.records[identity] = rec
	}
	return nil
}

func (m *mockStorage) Load(_ context.Context, identity string) (domain.UsageRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[identity]
	return rec, ok, nil
}

type failingStorage struct {
	err error
}

func (f *failingStorage) Mutate(context.Context, string, func(rec *domain.UsageRecord) bool) error {
	return fmt.Errorf("mutate: %w", f.err)
}

func (f *failingStorage) Load(context.Context, string) (domain.UsageRecord, bool, error) {
	return domain.UsageRecord{}, false, f.err
}

type recordingMetrics struct {
	decisions   []domain.Decision
	storeErrors []string
}

func (r *recordingMetrics) ObserveDecision(decision domain.Decision, _ time.Duration) {
	r.decisions = append(r.decisions, decision)
}

func (r *recordingMetrics) ObserveStoreError(operation string) {
	r.storeErrors = append(r.storeErrors, operation)
}

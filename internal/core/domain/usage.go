// Package domain concentra entidades e estruturas centrais do limitador de uso.
package domain

import (
	"fmt"
	"time"
)

const (
	MinuteWindow = time.Minute
	DayWindow    = 24 * time.Hour

	DefaultMinuteLimit = 10
	DefaultDailyLimit  = 5

	MinuteLimitMessage = "Minute limit reached. Please try again in a moment."
)

// DenyReason identifica qual janela negou a requisição.
type DenyReason string

const (
	ReasonNone        DenyReason = ""
	ReasonMinuteLimit DenyReason = "minute_limit"
	ReasonDailyLimit  DenyReason = "daily_limit"
)

// Limits define os tetos por identidade em cada janela.
type Limits struct {
	MinuteLimit int
	DailyLimit  int
}

// WithDefaults substitui valores zerados pelos padrões.
func (l Limits) WithDefaults() Limits {
	if l.MinuteLimit == 0 {
		l.MinuteLimit = DefaultMinuteLimit
	}
	if l.DailyLimit == 0 {
		l.DailyLimit = DefaultDailyLimit
	}
	return l
}

func (l Limits) Validate() error {
	if l.MinuteLimit <= 0 {
		return fmt.Errorf("%w: minute limit must be positive, got %d", ErrInvalidLimits, l.MinuteLimit)
	}
	if l.DailyLimit <= 0 {
		return fmt.Errorf("%w: daily limit must be positive, got %d", ErrInvalidLimits, l.DailyLimit)
	}
	return nil
}

// DailyLimitMessage é exibida quando a janela diária se esgota.
func DailyLimitMessage(dailyLimit int) string {
	return fmt.Sprintf("You've used all %d daily requests. Please try again tomorrow.", dailyLimit)
}

// UsageRecord guarda os contadores de uma identidade.
type UsageRecord struct {
	MinuteCount   int
	MinuteResetAt time.Time
	DailyCount    int
	DailyResetAt  time.Time
}

// IsZero informa se o registro ainda não foi inicializado.
func (r UsageRecord) IsZero() bool {
	return r.MinuteResetAt.IsZero() && r.DailyResetAt.IsZero()
}

// Decision é o veredito de uma única verificação.
type Decision struct {
	Allowed           bool
	Error             string
	RemainingRequests int
	Reason            DenyReason
	RetryAfter        time.Duration
}

// Usage é uma fotografia somente leitura do consumo de uma identidade.
type Usage struct {
	MinuteCount       int
	MinuteLimit       int
	MinuteResetAt     time.Time
	DailyCount        int
	DailyLimit        int
	DailyResetAt      time.Time
	RemainingRequests int
}

// Apply executa uma verificação sobre rec no instante now, alterando rec no lugar.
// O bool retornado informa se rec precisa ser gravado de volta.
func (l Limits) Apply(rec *UsageRecord, now time.Time) (Decision, bool) {
	changed := l.resetLapsed(rec, now)

	if rec.MinuteCount >= l.MinuteLimit {
		return Decision{
			Allowed:           false,
			Error:             MinuteLimitMessage,
			RemainingRequests: l.remaining(rec),
			Reason:            ReasonMinuteLimit,
			RetryAfter:        rec.MinuteResetAt.Sub(now),
		}, changed
	}

	if rec.DailyCount >= l.DailyLimit {
		return Decision{
			Allowed:           false,
			Error:             DailyLimitMessage(l.DailyLimit),
			RemainingRequests: 0,
			Reason:            ReasonDailyLimit,
			RetryAfter:        rec.DailyResetAt.Sub(now),
		}, changed
	}

	rec.MinuteCount++
	rec.DailyCount++

	return Decision{Allowed: true, RemainingRequests: l.remaining(rec)}, true
}

// Snapshot retorna o consumo que rec exibiria em now, sem alterar rec.
func (l Limits) Snapshot(rec UsageRecord, found bool, now time.Time) Usage {
	if !found {
		rec = UsageRecord{}
	}
	l.resetLapsed(&rec, now)

	return Usage{
		MinuteCount:       rec.MinuteCount,
		MinuteLimit:       l.MinuteLimit,
		MinuteResetAt:     rec.MinuteResetAt,
		DailyCount:        rec.DailyCount,
		DailyLimit:        l.DailyLimit,
		DailyResetAt:      rec.DailyResetAt,
		RemainingRequests: l.remaining(&rec),
	}
}

// resetLapsed initialises a new record and applies at most one reset per window.
func (l Limits) resetLapsed(rec *UsageRecord, now time.Time) bool {
	changed := false

	if rec.IsZero() {
		*rec = UsageRecord{
			MinuteResetAt: now.Add(MinuteWindow),
			DailyResetAt:  now.Add(DayWindow),
		}
		changed = true
	}

	if !now.Before(rec.MinuteResetAt) {
		rec.MinuteCount = 0
		rec.MinuteResetAt = now.Add(MinuteWindow)
		changed = true
	}

	if !now.Before(rec.DailyResetAt) {
		rec.DailyCount = 0
		rec.DailyResetAt = now.Add(DayWindow)
		changed = true
	}

	return changed
}

func (l Limits) remaining(rec *UsageRecord) int {
	// A record written under a larger limit can carry a count above the current one.
	return max(l.DailyLimit-rec.DailyCount, 0)
}

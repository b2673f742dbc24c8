// Package budget caps the tokens spent on a model provider per day and per month.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/domain"
)

// Action defines behavior when the budget is spent.
type Action string

const (
	// ActionWarn logs a warning but allows the request.
	ActionWarn Action = "warn"
	// ActionReject blocks the request with domain.ErrTokenBudgetExceeded.
	ActionReject Action = "reject"
)

// ParseAction maps a config value to an Action. Anything but "reject" warns.
func ParseAction(s string) Action {
	if Action(s) == ActionReject {
		return ActionReject
	}
	return ActionWarn
}

// Store persists the counters. IncrBy may be called repeatedly for one key.
type Store interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// Limits configures a Tracker. A zero limit is unlimited.
type Limits struct {
	Provider  string
	KeyPrefix string
	Daily     int64
	Monthly   int64
	Action    Action
	Now       func() time.Time
}

// Tracker is an in-memory token counter with write-behind persistence.
// Check never leaves the process.
type Tracker struct {
	mu             sync.Mutex
	dailyUsed      int64
	monthlyUsed    int64
	limits         Limits
	lastDayReset   time.Time
	lastMonthReset time.Time
	store          Store
	logger         *zap.Logger
}

// NewTracker creates a tracker.
func NewTracker(limits Limits, logger *zap.Logger) *Tracker {
	if limits.Now == nil {
		limits.Now = time.Now
	}
	if limits.Action == "" {
		limits.Action = ActionWarn
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := limits.Now().UTC()
	return &Tracker{
		limits:         limits,
		lastDayReset:   truncateToDay(now),
		lastMonthReset: truncateToMonth(now),
		logger:         logger,
	}
}

// WithStore attaches a persistence store and loads the current counters.
func (t *Tracker) WithStore(ctx context.Context, store Store) *Tracker {
	t.store = store
	t.load(ctx)
	return t
}

func (t *Tracker) load(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.limits.Now().UTC()
	if val, err := t.store.Get(ctx, t.dailyKey(now)); err == nil {
		t.dailyUsed = val
	} else {
		t.logger.Warn("Failed to load daily token budget", zap.Error(err))
	}
	if val, err := t.store.Get(ctx, t.monthlyKey(now)); err == nil {
		t.monthlyUsed = val
	} else {
		t.logger.Warn("Failed to load monthly token budget", zap.Error(err))
	}

	t.logger.Info("Token budget loaded",
		zap.String("provider", t.limits.Provider),
		zap.Int64("daily_used", t.dailyUsed),
		zap.Int64("monthly_used", t.monthlyUsed),
	)
}

func (t *Tracker) dailyKey(now time.Time) string {
	return fmt.Sprintf("%sbudget:%s:daily:%s", t.limits.KeyPrefix, t.limits.Provider, now.Format("2006-01-02"))
}

func (t *Tracker) monthlyKey(now time.Time) string {
	return fmt.Sprintf("%sbudget:%s:monthly:%s", t.limits.KeyPrefix, t.limits.Provider, now.Format("2006-01"))
}

// Check reports whether a new request may be made.
func (t *Tracker) Check(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()

	dailyExceeded := t.limits.Daily > 0 && t.dailyUsed >= t.limits.Daily
	monthlyExceeded := t.limits.Monthly > 0 && t.monthlyUsed >= t.limits.Monthly
	if !dailyExceeded && !monthlyExceeded {
		return nil
	}

	if t.limits.Action == ActionReject {
		return domain.ErrTokenBudgetExceeded
	}

	t.logger.Warn("Token budget exceeded",
		zap.String("provider", t.limits.Provider),
		zap.Int64("daily_used", t.dailyUsed),
		zap.Int64("daily_limit", t.limits.Daily),
		zap.Int64("monthly_used", t.monthlyUsed),
		zap.Int64("monthly_limit", t.limits.Monthly),
	)
	return nil
}

// Record adds consumed tokens, then writes them to the store if one is attached.
func (t *Tracker) Record(tokens int64) {
	t.mu.Lock()
	t.resetIfNeeded()
	t.dailyUsed += tokens
	t.monthlyUsed += tokens
	store := t.store
	now := t.limits.Now().UTC()
	t.mu.Unlock()

	if store == nil {
		return
	}

	// Detached from the request so a cancelled caller still persists its spend.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := store.IncrBy(ctx, t.dailyKey(now), tokens); err != nil {
		t.logger.Warn("Failed to persist daily token budget", zap.Error(err))
	}
	if err := store.IncrBy(ctx, t.monthlyKey(now), tokens); err != nil {
		t.logger.Warn("Failed to persist monthly token budget", zap.Error(err))
	}
}

// Usage is a snapshot of one period.
type Usage struct {
	Limit     int64 // 0 is unlimited
	Used      int64
	Remaining int64 // -1 when unlimited
	ResetsAt  time.Time
}

// Daily returns today's usage.
func (t *Tracker) Daily() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return Usage{
		Limit:     t.limits.Daily,
		Used:      t.dailyUsed,
		Remaining: remaining(t.limits.Daily, t.dailyUsed),
		ResetsAt:  t.lastDayReset.AddDate(0, 0, 1),
	}
}

// Monthly returns this month's usage.
func (t *Tracker) Monthly() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return Usage{
		Limit:     t.limits.Monthly,
		Used:      t.monthlyUsed,
		Remaining: remaining(t.limits.Monthly, t.monthlyUsed),
		ResetsAt:  t.lastMonthReset.AddDate(0, 1, 0),
	}
}

func remaining(limit, used int64) int64 {
	if limit == 0 {
		return -1
	}
	return max(limit-used, 0)
}

// resetIfNeeded zeroes counters when the day or month rolls over.
func (t *Tracker) resetIfNeeded() {
	now := t.limits.Now().UTC()
	today := truncateToDay(now)
	thisMonth := truncateToMonth(now)

	if today.After(t.lastDayReset) {
		t.dailyUsed = 0
		t.lastDayReset = today
	}
	if thisMonth.After(t.lastMonthReset) {
		t.monthlyUsed = 0
		t.lastMonthReset = thisMonth
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBudgetExceeded is returned by BudgetChecker.Check once a user has spent
// their daily token allowance.
var ErrBudgetExceeded = errors.New("daily token budget exhausted")

// BudgetChecker checks and records per-user daily token usage.
type BudgetChecker interface {
	// Check returns ErrBudgetExceeded when the user has no budget left today.
	Check(ctx context.Context, userID string) error
	// Record adds token usage for the user's current day.
	Record(ctx context.Context, userID string, tokens int) error
	// Usage returns today's usage and the limit (0 means unlimited).
	Usage(ctx context.Context, userID string) (used int64, limit int64, err error)
}

// InMemoryBudget tracks usage in process memory. Counters reset at UTC midnight.
type InMemoryBudget struct {
	mu        sync.RWMutex
	limit     int64            // default daily limit, 0 = unlimited
	overrides map[string]int64 // userID -> limit
	usage     map[string]int64 // day key -> tokens used
	now       func() time.Time
}

// NewInMemoryBudget creates a tracker with the given default daily limit.
func NewInMemoryBudget(dailyLimit int64) *InMemoryBudget {
	return &InMemoryBudget{
		limit:     dailyLimit,
		overrides: make(map[string]int64),
		usage:     make(map[string]int64),
		now:       time.Now,
	}
}

// SetBudget overrides the daily limit for one user.
func (b *InMemoryBudget) SetBudget(userID string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides[userID] = tokens
}

func (b *InMemoryBudget) limitFor(userID string) int64 {
	if l, ok := b.overrides[userID]; ok {
		return l
	}
	return b.limit
}

func (b *InMemoryBudget) Check(_ context.Context, userID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit := b.limitFor(userID)
	if limit <= 0 {
		return nil
	}
	if b.usage[budgetKey(userID, b.now())] >= limit {
		return ErrBudgetExceeded
	}
	return nil
}

func (b *InMemoryBudget) Record(_ context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[budgetKey(userID, b.now())] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(_ context.Context, userID string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[budgetKey(userID, b.now())], b.limitFor(userID), nil
}

// CounterStore is a shared, expiring counter backend such as *cache.Cache.
type CounterStore interface {
	Key(parts ...string) string
	Counter(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error)
}

// SharedBudget keeps the counters in a CounterStore so every replica sees the
// same usage. Keys expire two days after their last write.
type SharedBudget struct {
	store CounterStore
	limit int64
	now   func() time.Time
}

const budgetKeyTTL = 48 * time.Hour

// NewSharedBudget creates a tracker backed by store with the given daily limit.
func NewSharedBudget(store CounterStore, dailyLimit int64) *SharedBudget {
	return &SharedBudget{store: store, limit: dailyLimit, now: time.Now}
}

func (b *SharedBudget) key(userID string) string {
	return b.store.Key("budget", "tokens", userID, budgetDay(b.now()))
}

func (b *SharedBudget) Check(ctx context.Context, userID string) error {
	if b.limit <= 0 {
		return nil
	}
	used, err := b.store.Counter(ctx, b.key(userID))
	if err != nil {
		return fmt.Errorf("reading token usage: %w", err)
	}
	if used >= b.limit {
		return ErrBudgetExceeded
	}
	return nil
}

func (b *SharedBudget) Record(ctx context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	if _, err := b.store.IncrBy(ctx, b.key(userID), int64(tokens), budgetKeyTTL); err != nil {
		return fmt.Errorf("recording token usage: %w", err)
	}
	return nil
}

func (b *SharedBudget) Usage(ctx context.Context, userID string) (int64, int64, error) {
	used, err := b.store.Counter(ctx, b.key(userID))
	if err != nil {
		return 0, 0, fmt.Errorf("reading token usage: %w", err)
	}
	return used, b.limit, nil
}

func budgetKey(userID string, now time.Time) string {
	return "budget:tokens:" + userID + ":" + budgetDay(now)
}

// budgetDay is the UTC calendar day a usage counter belongs to.
func budgetDay(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

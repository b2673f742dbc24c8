// Package budget persists provider token counters as plain integer keys.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avdivo/dev-organizer/internal/db"
)

// store is the consumer interface for budget counters (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store keeps counters with INCRBY and expires them once their period is long gone.
type Store struct {
	store    store
	dailyTTL time.Duration
	monthTTL time.Duration
}

// New creates a budget store. Daily keys live for dailyTTL, monthly keys for monthTTL.
func New(s store, dailyTTL, monthTTL time.Duration) *Store {
	return &Store{store: s, dailyTTL: dailyTTL, monthTTL: monthTTL}
}

// IncrBy increments key and sets its TTL if it has none yet.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	if err := s.store.IncrBy(ctx, key, val); err != nil {
		return fmt.Errorf("budget INCRBY %s: %w", key, err)
	}
	if err := s.store.Expire(ctx, key, s.ttlForKey(key), true); err != nil {
		return fmt.Errorf("budget EXPIRE %s: %w", key, err)
	}
	return nil
}

// Get returns the counter, 0 if the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("budget GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget GET %s parse: %w", key, err)
	}
	return val, nil
}

func (s *Store) ttlForKey(key string) time.Duration {
	if strings.Contains(key, ":daily:") {
		return s.dailyTTL
	}
	return s.monthTTL
}

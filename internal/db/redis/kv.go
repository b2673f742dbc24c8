package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/avdivo/dev-organizer/internal/db"
)

// Get retrieves a value by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.b().Get().Key(key).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// SetWithTTL stores a value with an expiration. A non-positive ttl stores it without one.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = s.b().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	} else {
		cmd = s.b().Set().Key(key).Value(rueidis.BinaryString(value)).Build()
	}
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// IncrBy atomically increments a key by the given amount.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	cmd := s.b().Incrby().Key(key).Increment(val).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpIncrBy, Err: err}
	}
	return nil
}

// Expire sets a TTL on key. With nx the TTL is only set when the key has none yet.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error {
	var cmd rueidis.Completed
	if nx {
		cmd = s.b().Expire().Key(key).Seconds(int64(ttl.Seconds())).Nx().Build()
	} else {
		cmd = s.b().Expire().Key(key).Seconds(int64(ttl.Seconds())).Build()
	}
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpExpire, Err: err}
	}
	return nil
}

// Package resolve maps free-text quantity mentions to canonical fields.
package resolve

import (
	"context"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/domain/intent"
	"github.com/avdivo/dev-organizer/internal/domain/search/filter"
)

// Index finds the canonical field nearest to a text.
type Index interface {
	Nearest(ctx context.Context, text string) (id string, ok bool, err error)
}

type resolution struct {
	id string
	ok bool
}

// Resolver performs single-shot k=1 vocabulary lookups. Answers are memoized since
// the vocabulary does not change at runtime.
type Resolver struct {
	index  Index
	cache  *cache.Cache
	logger *zap.Logger
}

// NewResolver creates a resolver whose answers live for ttl.
func NewResolver(index Index, ttl time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		index:  index,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger,
	}
}

// Resolve returns the canonical field for text, or ok=false when unresolved.
// Lookup failures are logged and reported as unresolved.
func (r *Resolver) Resolve(ctx context.Context, text string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(text))
	if key == "" {
		return "", false
	}
	if v, found := r.cache.Get(key); found {
		res := v.(resolution) //nolint:forcetypeassert // only resolutions are stored
		return res.id, res.ok
	}

	id, ok, err := r.index.Nearest(ctx, key)
	if err != nil {
		r.logger.Warn("Field resolution failed", zap.String("text", key), zap.Error(err))
		return "", false
	}
	r.cache.Set(key, resolution{id: id, ok: ok}, cache.DefaultExpiration)

	r.logger.Debug("Field resolved", zap.String("text", key), zap.String("field", id), zap.Bool("ok", ok))
	return id, ok
}

// Filters turns metadata mentions into fragments on canonical fields. Mentions whose
// unit does not resolve are dropped.
func (r *Resolver) Filters(ctx context.Context, mentions []intent.MetadataFilter) []filter.Fragment {
	out := make([]filter.Fragment, 0, len(mentions))
	for _, m := range mentions {
		field, ok := r.Resolve(ctx, m.Unit)
		if !ok {
			continue
		}
		out = append(out, filter.Fragment{Field: field, Op: m.Op, Value: m.Value})
	}
	return out
}

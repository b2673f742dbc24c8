// Package vocabulary indexes the canonical fields for nearest-neighbour resolution.
// Entries live in the record index under kind=vocabulary, with the field id in "ids".
package vocabulary

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/avdivo/dev-organizer/internal/db"
	"github.com/avdivo/dev-organizer/internal/domain"
	"github.com/avdivo/dev-organizer/internal/domain/note"
	"github.com/avdivo/dev-organizer/internal/domain/search/filter"
	domvocab "github.com/avdivo/dev-organizer/internal/domain/vocabulary"
	"github.com/avdivo/dev-organizer/internal/repository/record"
)

const seedConcurrency = 4

// store is the consumer interface for vocabulary entries (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo seeds and queries vocabulary entries.
type Repo struct {
	store     store
	docs      domain.Embedder
	queries   domain.Embedder
	keyPrefix string
	logger    *zap.Logger
}

// New creates a vocabulary repository. queries may be nil to embed lookups with docs.
func New(s store, docs, queries domain.Embedder, keyPrefix string, logger *zap.Logger) *Repo {
	if queries == nil {
		queries = docs
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{store: s, docs: docs, queries: queries, keyPrefix: keyPrefix, logger: logger}
}

// Seed embeds every field description and stores the entries in one pipelined write.
// Existing entries are overwritten.
func (r *Repo) Seed(ctx context.Context, fields []domvocab.Field) error {
	items := make([]db.HashSetItem, len(fields))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(seedConcurrency)
	for i, f := range fields {
		g.Go(func() error {
			emb, err := r.docs.Embed(gctx, f.Description)
			if err != nil {
				return fmt.Errorf("embed vocabulary %s: %w", f.ID, err)
			}
			items[i] = db.HashSetItem{
				Key: r.key(f.ID),
				Fields: map[string]string{
					record.FieldText:   f.Description,
					record.FieldKind:   string(note.KindVocabulary),
					record.FieldIDs:    f.ID,
					record.FieldVector: record.EncodeVector(emb.Embedding),
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err //nolint:wrapcheck // already wrapped per field
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("store vocabulary: %w", err)
	}
	r.logger.Info("Vocabulary seeded", zap.Int("fields", len(fields)))
	return nil
}

// Nearest returns the id of the vocabulary entry closest to text, or ok=false when
// the index has none.
func (r *Repo) Nearest(ctx context.Context, text string) (id string, ok bool, err error) {
	emb, err := r.queries.Embed(ctx, text)
	if err != nil {
		return "", false, fmt.Errorf("embed %q: %w", text, err)
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    record.IndexName(r.keyPrefix),
		Filters:      filter.And(filter.Eq(record.FieldKind, string(note.KindVocabulary))),
		Vector:       emb.Embedding,
		K:            1,
		ReturnFields: []string{record.FieldIDs, "__vector_score"},
		RawScores:    true,
	})
	if err != nil {
		return "", false, fmt.Errorf("vocabulary lookup: %w", err)
	}
	if sr == nil || len(sr.Entries) == 0 {
		return "", false, nil
	}
	id = sr.Entries[0].Fields[record.FieldIDs]
	return id, id != "", nil
}

func (r *Repo) key(id string) string {
	return record.KeyPrefix(r.keyPrefix) + "vocabulary:" + id
}

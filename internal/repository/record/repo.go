// Package record stores notes, reminders and vocabulary entries as hashes behind
// one FT index, and retrieves them by vector similarity or by filter.
package record

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/db"
	"github.com/avdivo/dev-organizer/internal/domain"
	"github.com/avdivo/dev-organizer/internal/domain/note"
	"github.com/avdivo/dev-organizer/internal/domain/search/filter"
	"github.com/avdivo/dev-organizer/internal/domain/search/result"
)

// store is the consumer interface for records (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, q *db.ListQuery) (int, error)
}

// Options configures the record repository.
type Options struct {
	KeyPrefix   string
	Dimensions  int
	HNSWM       int
	HNSWEF      int
	Quantities  []string // canonical numeric fields
	PageSize    int      // FT.SEARCH page size for filter-only retrieval
	Now         func() time.Time
	NewID       func() string
	DocEmbedder domain.Embedder
	// QueryEmbedder embeds search text; DocEmbedder is used when nil.
	QueryEmbedder domain.Embedder
}

// Repo implements the record store used by the note, reminder and query use cases.
type Repo struct {
	store  store
	schema Schema
	opts   Options
	logger *zap.Logger
}

// New creates a record repository.
func New(s store, opts Options, logger *zap.Logger) *Repo {
	if opts.PageSize <= 0 {
		opts.PageSize = 200
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.QueryEmbedder == nil {
		opts.QueryEmbedder = opts.DocEmbedder
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{store: s, schema: NewSchema(opts.Quantities), opts: opts, logger: logger}
}

// Schema returns the index schema.
func (r *Repo) Schema() Schema { return r.schema }

// EnsureIndex creates the record index if it does not exist.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	name := IndexName(r.opts.KeyPrefix)
	exists, err := r.store.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}
	if exists {
		return nil
	}

	def, err := r.schema.Index(r.opts.KeyPrefix, r.opts.Dimensions, r.opts.HNSWM, r.opts.HNSWEF)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	r.logger.Info("Record index created", zap.String("index", name), zap.Int("dim", r.opts.Dimensions))
	return nil
}

// SaveNote stores a note and returns its id.
func (r *Repo) SaveNote(ctx context.Context, n note.Note) (string, error) {
	r.fillNote(&n)
	return n.ID, r.save(ctx, n.ID, n.Text, noteToHash(&n, note.KindNote))
}

// SaveReminder stores a reminder and returns its id.
func (r *Repo) SaveReminder(ctx context.Context, rem note.Reminder) (string, error) {
	r.fillNote(&rem.Note)
	return rem.ID, r.save(ctx, rem.ID, rem.Text, reminderToHash(&rem))
}

func (r *Repo) fillNote(n *note.Note) {
	if n.ID == "" {
		n.ID = r.opts.NewID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.opts.Now()
	}
	if n.List == "" {
		n.List = note.DefaultList
	}
}

func (r *Repo) save(ctx context.Context, id, text string, fields map[string]string) error {
	emb, err := r.opts.DocEmbedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed record %s: %w", id, err)
	}
	fields[FieldVector] = EncodeVector(emb.Embedding)

	key := KeyPrefix(r.opts.KeyPrefix) + id
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// MarkCompleted flags a record as completed.
func (r *Repo) MarkCompleted(ctx context.Context, id string) error {
	key := KeyPrefix(r.opts.KeyPrefix) + id
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	if err := r.store.HSet(ctx, key, map[string]string{FieldCompleted: "true"}); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

// Similar returns up to k records nearest to text within expr. Distance is the raw
// cosine distance, smaller is closer.
func (r *Repo) Similar(ctx context.Context, text string, expr filter.Expression, k int) ([]result.Result, error) {
	emb, err := r.opts.QueryEmbedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    IndexName(r.opts.KeyPrefix),
		Filters:      r.reconcile(expr),
		Vector:       emb.Embedding,
		K:            k,
		ReturnFields: append(r.schema.ReturnFields(), "__vector_score"),
		RawScores:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}
	return r.toResults(sr), nil
}

// ByFilter returns every record matching expr, optionally restricted to those whose
// text contains substring (case-insensitive).
func (r *Repo) ByFilter(ctx context.Context, expr filter.Expression, substring string) ([]result.Result, error) {
	substring = strings.TrimSpace(substring)
	prefix := KeyPrefix(r.opts.KeyPrefix)

	var out []result.Result
	err := r.scan(ctx, r.reconcile(expr), func(e db.SearchEntry) {
		rec := toResult(strings.TrimPrefix(e.Key, prefix), 0, e.Fields)
		if substring == "" || rec.ContainsFold(substring) {
			out = append(out, rec)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("search list: %w", err)
	}
	return out, nil
}

// Count returns the number of records matching expr.
func (r *Repo) Count(ctx context.Context, expr filter.Expression) (int, error) {
	n, err := r.store.SearchCount(ctx, &db.ListQuery{
		IndexName: IndexName(r.opts.KeyPrefix),
		Filters:   r.reconcile(expr),
	})
	if err != nil {
		return 0, fmt.Errorf("search count: %w", err)
	}
	return n, nil
}

// PendingReminders returns reminders of every user that have not completed yet.
func (r *Repo) PendingReminders(ctx context.Context) ([]note.Reminder, error) {
	prefix := KeyPrefix(r.opts.KeyPrefix)
	pending := filter.And(
		filter.Eq(FieldKind, string(note.KindReminder)),
		filter.Eq(FieldCompleted, "false"),
	)

	var out []note.Reminder
	err := r.scan(ctx, pending, func(e db.SearchEntry) {
		out = append(out, hashToReminder(strings.TrimPrefix(e.Key, prefix), e.Fields))
	})
	if err != nil {
		return nil, fmt.Errorf("search reminders: %w", err)
	}
	return out, nil
}

// scan pages through every record matching expr until the reported total is reached.
func (r *Repo) scan(ctx context.Context, expr filter.Expression, visit func(db.SearchEntry)) error {
	for offset := 0; ; {
		sr, err := r.store.SearchList(ctx, &db.ListQuery{
			IndexName:    IndexName(r.opts.KeyPrefix),
			Filters:      expr,
			Offset:       offset,
			Limit:        r.opts.PageSize,
			ReturnFields: r.schema.ReturnFields(),
		})
		if err != nil {
			return err
		}
		if sr == nil || len(sr.Entries) == 0 {
			return nil
		}
		for _, e := range sr.Entries {
			visit(e)
		}
		offset += len(sr.Entries)
		if offset >= sr.Total {
			return nil
		}
	}
}

func (r *Repo) reconcile(expr filter.Expression) filter.Expression {
	kept, dropped := r.schema.Reconcile(expr)
	for _, f := range dropped {
		r.logger.Debug("Filter fragment dropped",
			zap.String("field", f.Field),
			zap.String("op", string(f.Op)),
			zap.String("value", f.Value.Text()),
		)
	}
	return kept
}

func (r *Repo) toResults(sr *db.SearchResult) []result.Result {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}
	prefix := KeyPrefix(r.opts.KeyPrefix)
	out := make([]result.Result, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		out = append(out, toResult(strings.TrimPrefix(e.Key, prefix), e.Score, e.Fields))
	}
	return out
}

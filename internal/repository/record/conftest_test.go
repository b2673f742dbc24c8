package record

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/db"
	"github.com/avdivo/dev-organizer/internal/domain"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn        func(ctx context.Context, key string, fields map[string]string) error
	existsFn      func(ctx context.Context, key string) (bool, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchListFn  func(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
	searchCountFn func(ctx context.Context, q *db.ListQuery) (int, error)
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error) {
	if m.searchListFn != nil {
		return m.searchListFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchCount(ctx context.Context, q *db.ListQuery) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, q)
	}
	return 0, nil
}

type fakeEmbedder struct {
	vec   []float32
	err   error
	texts []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	return domain.EmbeddingResult{Embedding: f.vec}, nil
}

var fixedNow = time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) (*Repo, *mockStore, *fakeEmbedder) {
	t.Helper()
	ms := &mockStore{}
	emb := &fakeEmbedder{vec: []float32{1, 0}}
	repo := New(ms, Options{
		KeyPrefix:   "organizer:",
		Dimensions:  2,
		HNSWM:       16,
		HNSWEF:      200,
		Quantities:  []string{"amount", "distance"},
		PageSize:    50,
		Now:         func() time.Time { return fixedNow },
		NewID:       func() string { return "id-1" },
		DocEmbedder: emb,
	}, zap.NewNop())
	return repo, ms, emb
}

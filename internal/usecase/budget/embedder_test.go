package budget

import (
	"context"
	"errors"
	"testing"

	"github.com/avdivo/dev-organizer/internal/domain"
)

type mockEmbedder struct {
	calls  int
	tokens int
	err    error
}

func (m *mockEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}, TotalTokens: m.tokens}, nil
}

func TestGuardedEmbedder_RecordsTokens(t *testing.T) {
	inner := &mockEmbedder{tokens: 7}
	tr := newTracker(newClock(), 100, 0, ActionReject)
	g := NewGuardedEmbedder(inner, tr, "text-embedding-3-small", nil)

	res, err := g.Embed(context.Background(), "milk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 2 {
		t.Errorf("embedding dims = %d", len(res.Embedding))
	}
	if got := tr.Daily().Used; got != 7 {
		t.Errorf("daily used = %d, want 7", got)
	}
}

func TestGuardedEmbedder_RejectsWhenSpent(t *testing.T) {
	inner := &mockEmbedder{tokens: 7}
	tr := newTracker(newClock(), 10, 0, ActionReject)
	tr.Record(10)
	g := NewGuardedEmbedder(inner, tr, "m", nil)

	_, err := g.Embed(context.Background(), "milk")
	if !errors.Is(err, domain.ErrTokenBudgetExceeded) {
		t.Fatalf("expected ErrTokenBudgetExceeded, got %v", err)
	}
	if inner.calls != 0 {
		t.Errorf("provider called %d times after budget was spent", inner.calls)
	}
}

func TestGuardedEmbedder_NilTracker(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrEmbeddingProviderError}
	g := NewGuardedEmbedder(inner, nil, "m", nil)

	_, err := g.Embed(context.Background(), "milk")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

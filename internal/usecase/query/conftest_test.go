package query

import (
	"context"
	"errors"
	"sync"

	"github.com/avdivo/dev-organizer/internal/domain"
	"github.com/avdivo/dev-organizer/internal/domain/intent"
	"github.com/avdivo/dev-organizer/internal/domain/search/aggregate"
	"github.com/avdivo/dev-organizer/internal/domain/search/filter"
	"github.com/avdivo/dev-organizer/internal/domain/search/result"
)

type mockSearcher struct {
	similarFn  func(ctx context.Context, text string, expr filter.Expression, k int) ([]result.Result, error)
	byFilterFn func(ctx context.Context, expr filter.Expression, substring string) ([]result.Result, error)
	countFn    func(ctx context.Context, expr filter.Expression) (int, error)

	similarCalls  int
	byFilterCalls int
	countCalls    int
	lastExpr      filter.Expression
}

func (m *mockSearcher) Similar(ctx context.Context, text string, expr filter.Expression, k int) ([]result.Result, error) {
	m.similarCalls++
	m.lastExpr = expr
	if m.similarFn != nil {
		return m.similarFn(ctx, text, expr, k)
	}
	return nil, nil
}

func (m *mockSearcher) ByFilter(ctx context.Context, expr filter.Expression, substring string) ([]result.Result, error) {
	m.byFilterCalls++
	m.lastExpr = expr
	if m.byFilterFn != nil {
		return m.byFilterFn(ctx, expr, substring)
	}
	return nil, nil
}

func (m *mockSearcher) Count(ctx context.Context, expr filter.Expression) (int, error) {
	m.countCalls++
	m.lastExpr = expr
	if m.countFn != nil {
		return m.countFn(ctx, expr)
	}
	return 0, nil
}

// echoRenderer puts the prompt name in the system message so generators can route on it.
type echoRenderer struct{}

func (echoRenderer) Render(name, input, addition string) (string, string, error) {
	if name == "" {
		return "", "", errors.New("no prompt")
	}
	return name, addition + "\n" + input, nil
}

// scriptedGenerator answers per prompt name. Safe for concurrent use.
type scriptedGenerator struct {
	mu      sync.Mutex
	answers map[string]string
	errs    map[string]error
	calls   map[string]int
	prompts []domain.Prompt
}

func newScriptedGenerator(answers map[string]string) *scriptedGenerator {
	return &scriptedGenerator{answers: answers, errs: map[string]error{}, calls: map[string]int{}}
}

func (g *scriptedGenerator) Generate(_ context.Context, p domain.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[p.System]++
	g.prompts = append(g.prompts, p)
	if err := g.errs[p.System]; err != nil {
		return "", err
	}
	return g.answers[p.System], nil
}

func (g *scriptedGenerator) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *scriptedGenerator) userFor(name string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.prompts {
		if p.System == name {
			return p.User
		}
	}
	return ""
}

type mapFields map[string]string

func (m mapFields) Resolve(_ context.Context, text string) (string, bool) {
	id, ok := m[text]
	return id, ok
}

type mentionsFunc func(ctx context.Context, mentions []intent.MetadataFilter) []filter.Fragment

func (f mentionsFunc) Filters(ctx context.Context, mentions []intent.MetadataFilter) []filter.Fragment {
	return f(ctx, mentions)
}

func rec(id, text string, distance float64, md map[string]string) result.Result {
	return result.New(id, text, distance, md)
}

func newTestRouter(s Searcher, g domain.Generator) *Router {
	return NewRouter(
		s, g, echoRenderer{},
		aggregate.New([]string{"amount", "kilometers"}, "amount"),
		mapFields{"price": "amount"},
		RouterOptions{MaxDistance: 0.5, TopK: 5},
		nil,
	)
}

package budget

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/domain"
	"github.com/avdivo/dev-organizer/internal/metrics"
)

// GuardedEmbedder checks the budget before every provider call and records the
// tokens the provider reports.
type GuardedEmbedder struct {
	inner   domain.Embedder
	tracker *Tracker
	model   string
	logger  *zap.Logger
}

// NewGuardedEmbedder wraps inner. A nil tracker passes every call through.
func NewGuardedEmbedder(inner domain.Embedder, tracker *Tracker, model string, logger *zap.Logger) *GuardedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardedEmbedder{inner: inner, tracker: tracker, model: model, logger: logger}
}

// Embed checks the budget, delegates and records usage.
func (g *GuardedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if g.tracker != nil {
		if err := g.tracker.Check(ctx); err != nil {
			g.logger.Error("Token budget exceeded", zap.String("model", g.model), zap.Error(err))
			return domain.EmbeddingResult{}, fmt.Errorf("budget check: %w", err)
		}
	}

	start := time.Now()
	result, err := g.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	if g.tracker != nil && result.TotalTokens > 0 {
		g.tracker.Record(int64(result.TotalTokens))
		provider := g.tracker.limits.Provider
		metrics.TokenBudgetRemaining.WithLabelValues(provider, "daily").Set(float64(g.tracker.Daily().Remaining))
		metrics.TokenBudgetRemaining.WithLabelValues(provider, "monthly").Set(float64(g.tracker.Monthly().Remaining))
	}

	g.logger.Debug("Embedding completed",
		zap.String("model", g.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

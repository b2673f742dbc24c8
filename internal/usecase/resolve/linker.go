package resolve

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/domain/note"
)

// FieldResolver resolves unit text to a canonical field.
type FieldResolver interface {
	Resolve(ctx context.Context, text string) (string, bool)
}

// Linker correlates the numbers of a primary parse with the numbers of an independent
// metadata parse by position and value.
type Linker struct {
	resolver FieldResolver
	logger   *zap.Logger
}

// NewLinker creates a linker.
func NewLinker(resolver FieldResolver, logger *zap.Logger) *Linker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{resolver: resolver, logger: logger}
}

// Link returns {canonical field: value} for every index in refs where both parses
// hold the same number and the unit resolves. Anything else is skipped.
func (l *Linker) Link(ctx context.Context, refs []int, primary []float64, entities []note.NumericEntity) map[string]float64 {
	byIndex := make(map[int]note.NumericEntity, len(entities))
	for _, e := range entities {
		byIndex[e.Index] = e
	}

	out := make(map[string]float64, len(refs))
	for _, idx := range refs {
		field, value, ok, err := l.linkOne(ctx, idx, primary, byIndex)
		if err != nil {
			l.logger.Warn("Numeric entity skipped", zap.Int("index", idx), zap.Error(err))
			continue
		}
		if ok {
			out[field] = value
		}
	}
	return out
}

func (l *Linker) linkOne(
	ctx context.Context, idx int, primary []float64, byIndex map[int]note.NumericEntity,
) (field string, value float64, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic linking index %d: %v", idx, p)
		}
	}()

	if idx < 0 || idx >= len(primary) {
		return "", 0, false, nil
	}
	e, found := byIndex[idx]
	if !found || e.Value != primary[idx] {
		return "", 0, false, nil
	}
	field, ok = l.resolver.Resolve(ctx, e.Unit)
	return field, e.Value, ok, nil
}

package query

import (
	"context"

	"github.com/avdivo/dev-organizer/internal/domain/intent"
	"github.com/avdivo/dev-organizer/internal/domain/search/filter"
	"github.com/avdivo/dev-organizer/internal/domain/search/result"
)

// Searcher is the record index as seen by the router.
type Searcher interface {
	Similar(ctx context.Context, text string, expr filter.Expression, k int) ([]result.Result, error)
	ByFilter(ctx context.Context, expr filter.Expression, substring string) ([]result.Result, error)
	Count(ctx context.Context, expr filter.Expression) (int, error)
}

// Renderer builds prompt messages.
type Renderer interface {
	Render(name, input, addition string) (system, user string, err error)
}

// FieldResolver maps free text to a canonical field.
type FieldResolver interface {
	Resolve(ctx context.Context, text string) (string, bool)
}

// MentionResolver turns metadata mentions into fragments on canonical fields.
type MentionResolver interface {
	Filters(ctx context.Context, mentions []intent.MetadataFilter) []filter.Fragment
}

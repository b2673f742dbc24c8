package assistant

import (
	"context"

	domcol "github.com/avdivo/dev-organizer/internal/domain/collection"
	"github.com/avdivo/dev-organizer/internal/usecase/note"
	"github.com/avdivo/dev-organizer/internal/usecase/query"
	"github.com/avdivo/dev-organizer/internal/usecase/reminder"
)

// Lists manages the user's lists.
type Lists interface {
	Names(ctx context.Context, tenant string) ([]string, error)
	Create(ctx context.Context, tenant, name, config string) (domcol.List, error)
}

// Notes creates notes.
type Notes interface {
	Create(ctx context.Context, req note.Request) (note.Outcome, error)
}

// Reminders creates reminders.
type Reminders interface {
	Create(ctx context.Context, req reminder.Request) (reminder.Outcome, error)
}

// Planner answers questions.
type Planner interface {
	Plan(ctx context.Context, req query.Request) (query.Answer, error)
}

// Renderer builds prompt messages.
type Renderer interface {
	Render(name, input, addition string) (system, user string, err error)
}

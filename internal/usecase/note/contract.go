package note

import (
	"context"

	domnote "github.com/avdivo/dev-organizer/internal/domain/note"
)

// Repository persists notes.
type Repository interface {
	SaveNote(ctx context.Context, n domnote.Note) (string, error)
}

// Lists checks list ownership. An empty name resolves to the default list.
type Lists interface {
	Resolve(ctx context.Context, tenant, name string) (string, error)
}

// Linker turns the numbers a note references into canonical quantities.
type Linker interface {
	Link(ctx context.Context, refs []int, primary []float64, entities []domnote.NumericEntity) map[string]float64
}

// Renderer builds prompt messages.
type Renderer interface {
	Render(name, input, addition string) (system, user string, err error)
}

package reminder

import (
	"context"

	domnote "github.com/avdivo/dev-organizer/internal/domain/note"
)

// Repository persists reminders.
type Repository interface {
	SaveReminder(ctx context.Context, rem domnote.Reminder) (string, error)
	MarkCompleted(ctx context.Context, id string) error
	PendingReminders(ctx context.Context) ([]domnote.Reminder, error)
}

// Notifier delivers a fired reminder to its user.
type Notifier interface {
	Notify(ctx context.Context, rem domnote.Reminder) error
}

// Registrar puts a saved reminder on the schedule.
type Registrar interface {
	Schedule(rem domnote.Reminder) error
}

// Lists checks list ownership. An empty name resolves to the default list.
type Lists interface {
	Resolve(ctx context.Context, tenant, name string) (string, error)
}

// Renderer builds prompt messages.
type Renderer interface {
	Render(name, input, addition string) (system, user string, err error)
}

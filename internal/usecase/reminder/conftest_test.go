package reminder

import (
	"context"
	"fmt"
	"sync"

	"github.com/avdivo/dev-organizer/internal/domain"
	domnote "github.com/avdivo/dev-organizer/internal/domain/note"
)

type mockRepo struct {
	mu        sync.Mutex
	saved     []domnote.Reminder
	completed []string
	pending   []domnote.Reminder

	saveErr    error
	pendingErr error
}

func (m *mockRepo) SaveReminder(_ context.Context, rem domnote.Reminder) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.saved = append(m.saved, rem)
	return fmt.Sprintf("r%d", len(m.saved)), nil
}

func (m *mockRepo) MarkCompleted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, id)
	return nil
}

func (m *mockRepo) PendingReminders(context.Context) ([]domnote.Reminder, error) {
	return m.pending, m.pendingErr
}

func (m *mockRepo) completedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.completed...)
}

type recordingRegistrar struct {
	scheduled []domnote.Reminder
	err       error
}

func (r *recordingRegistrar) Schedule(rem domnote.Reminder) error {
	if r.err != nil {
		return r.err
	}
	r.scheduled = append(r.scheduled, rem)
	return nil
}

type mockLists struct{}

func (mockLists) Resolve(_ context.Context, _, name string) (string, error) {
	switch name {
	case "":
		return "notes", nil
	case "work":
		return name, nil
	}
	return "", fmt.Errorf("list %q: %w", name, domain.ErrListNotFound)
}

type echoRenderer struct{}

func (echoRenderer) Render(name, input, _ string) (string, string, error) {
	return name, input, nil
}

type stubGenerator struct {
	answer string
	err    error
}

func (g stubGenerator) Generate(context.Context, domain.Prompt) (string, error) {
	return g.answer, g.err
}

// Package reminder creates reminders from free text and fires them on schedule.
package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/domain"
	"github.com/avdivo/dev-organizer/internal/domain/intent"
	domnote "github.com/avdivo/dev-organizer/internal/domain/note"
	"github.com/avdivo/dev-organizer/internal/domain/search/filter"
	"github.com/avdivo/dev-organizer/internal/prompt"
	"github.com/avdivo/dev-organizer/internal/usecase/task"
)

// DefaultAnswer confirms a reminder when the model gave no wording.
const DefaultAnswer = "Reminder saved"

// Request asks to create reminders from Text.
type Request struct {
	Tenant string
	List   string
	Text   string
}

// Outcome describes the scheduled reminders.
type Outcome struct {
	Reminders []domnote.Reminder
	Message   string
}

// Options tunes reminder creation.
type Options struct {
	Model    string
	Location *time.Location
	Now      func() time.Time
	NewJobID func() string
}

// Service creates reminders.
type Service struct {
	repo      Repository
	lists     Lists
	registrar Registrar
	generator domain.Generator
	prompts   Renderer
	opts      Options
	logger    *zap.Logger
}

// New creates a reminder service.
func New(
	repo Repository, lists Lists, registrar Registrar,
	generator domain.Generator, prompts Renderer,
	opts Options, logger *zap.Logger,
) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewJobID == nil {
		opts.NewJobID = uuid.NewString
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo: repo, lists: lists, registrar: registrar,
		generator: generator, prompts: prompts,
		opts: opts, logger: logger,
	}
}

// Create parses reminders out of req.Text, saves and schedules each. Reminders with an
// unusable trigger are skipped; if none survive the answer is a model answer error.
func (s *Service) Create(ctx context.Context, req Request) (Outcome, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Outcome{}, domain.ErrEmptyQuery
	}
	list, err := s.lists.Resolve(ctx, req.Tenant, strings.TrimSpace(req.List))
	if err != nil {
		return Outcome{}, err
	}

	logger := s.logger.With(zap.String("user", req.Tenant), zap.String("list", list))

	runner := task.New(task.Spec{
		Label: prompt.CreateReminder, Prompt: prompt.CreateReminder, Model: s.opts.Model, Input: text,
	}, s.generator, s.prompts, logger)
	if err := runner.Start(ctx); err != nil {
		return Outcome{}, err
	}
	res, err := runner.Finish()
	if err != nil {
		return Outcome{}, err
	}
	if res.Err != nil {
		return Outcome{}, domain.NewModelAnswerError(prompt.CreateReminder, res.Err)
	}
	if res.Empty() {
		return Outcome{}, domain.NewModelAnswerError(prompt.CreateReminder, nil)
	}
	drafts, err := intent.ParseReminders(res.JSON)
	if err != nil {
		return Outcome{}, domain.NewModelAnswerError(prompt.CreateReminder, err)
	}

	var out Outcome
	answers := make([]string, 0, len(drafts))
	for _, d := range drafts {
		rem, err := s.draftToReminder(req.Tenant, list, text, d)
		if err != nil {
			logger.Warn("Reminder skipped", zap.Error(err))
			continue
		}

		id, err := s.repo.SaveReminder(ctx, rem)
		if err != nil {
			return Outcome{}, fmt.Errorf("save reminder: %w", err)
		}
		rem.ID = id

		if err := s.registrar.Schedule(rem); err != nil {
			return Outcome{}, fmt.Errorf("schedule reminder %s: %w", id, err)
		}
		out.Reminders = append(out.Reminders, rem)

		answer := strings.TrimSpace(d.Answer)
		if answer == "" {
			answer = DefaultAnswer
		}
		answers = append(answers, answer)
	}

	if len(out.Reminders) == 0 {
		return Outcome{}, domain.NewModelAnswerError(prompt.CreateReminder, fmt.Errorf("no valid reminders"))
	}
	out.Message = strings.Join(answers, ", ")
	return out, nil
}

func (s *Service) draftToReminder(tenant, list, fallback string, d intent.ReminderDraft) (domnote.Reminder, error) {
	trigger, err := d.NoteTrigger(s.opts.Location)
	if err != nil {
		return domnote.Reminder{}, err
	}

	rem := domnote.Reminder{
		Note: domnote.Note{
			Tenant: tenant,
			List:   list,
			Text:   strings.TrimSpace(d.Text),
		},
		JobID:   s.opts.NewJobID(),
		Trigger: trigger,
	}
	if rem.Text == "" {
		rem.Text = fallback
	}

	if at, ok := filter.ParseTimeIn(d.Created, s.opts.Location); ok {
		rem.CreatedAt = at
	} else {
		rem.CreatedAt = s.opts.Now()
	}

	switch {
	case trigger.OneShot():
		rem.RemindAt = trigger.RunAt
	default:
		if at, ok := filter.ParseTimeIn(d.RemindAt, s.opts.Location); ok {
			rem.RemindAt = at
		}
	}
	return rem, nil
}

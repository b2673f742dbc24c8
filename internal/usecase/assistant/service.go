// Package assistant routes a free-text message to the action it asks for.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/domain"
	"github.com/avdivo/dev-organizer/internal/domain/intent"
	"github.com/avdivo/dev-organizer/internal/metrics"
	"github.com/avdivo/dev-organizer/internal/prompt"
	"github.com/avdivo/dev-organizer/internal/usecase/note"
	"github.com/avdivo/dev-organizer/internal/usecase/query"
	"github.com/avdivo/dev-organizer/internal/usecase/reminder"
	"github.com/avdivo/dev-organizer/internal/usecase/task"
)

// Reply is the answer to one message.
type Reply struct {
	Action intent.Action
	Text   string
	Branch query.Branch // set for searches
}

// Options selects the routing models.
type Options struct {
	Model       string
	StrongModel string // used when the message mentions dates or times
}

// Service dispatches messages.
type Service struct {
	lists     Lists
	notes     Notes
	reminders Reminders
	planner   Planner
	generator domain.Generator
	prompts   Renderer
	opts      Options
	logger    *zap.Logger
}

// New creates an assistant.
func New(
	lists Lists, notes Notes, reminders Reminders, planner Planner,
	generator domain.Generator, prompts Renderer,
	opts Options, logger *zap.Logger,
) *Service {
	if opts.StrongModel == "" {
		opts.StrongModel = opts.Model
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		lists: lists, notes: notes, reminders: reminders, planner: planner,
		generator: generator, prompts: prompts,
		opts: opts, logger: logger,
	}
}

// Handle classifies text and performs the action. A list named by the model that the
// user does not own is refused for every action except create_list.
func (s *Service) Handle(ctx context.Context, tenant, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, domain.ErrEmptyQuery
	}

	names, err := s.lists.Names(ctx, tenant)
	if err != nil {
		return Reply{}, err
	}

	d, err := s.dispatch(ctx, text, names)
	if err != nil {
		metrics.AssistantActionsTotal.WithLabelValues("unknown", "error").Inc()
		return Reply{}, err
	}

	reply, err := s.perform(ctx, tenant, text, names, d)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.AssistantActionsTotal.WithLabelValues(string(d.Action), status).Inc()
	return reply, err
}

func (s *Service) dispatch(ctx context.Context, text string, names []string) (intent.Dispatch, error) {
	model := s.opts.Model
	if MentionsTime(text) {
		model = s.opts.StrongModel
	}

	runner := task.New(task.Spec{
		Label:    prompt.QueryParser,
		Prompt:   prompt.QueryParser,
		Model:    model,
		Input:    text,
		Addition: "Lists (folders) notes are filed into:\n" + strings.Join(names, "\n"),
	}, s.generator, s.prompts, s.logger)
	if err := runner.Start(ctx); err != nil {
		return intent.Dispatch{}, err
	}
	res, err := runner.Finish()
	if err != nil {
		return intent.Dispatch{}, err
	}
	if res.Err != nil {
		return intent.Dispatch{}, domain.NewModelAnswerError(prompt.QueryParser, res.Err)
	}
	if res.Empty() {
		return intent.Dispatch{}, domain.NewModelAnswerError(prompt.QueryParser, nil)
	}
	d, err := intent.ParseDispatch(res.JSON)
	if err != nil {
		return intent.Dispatch{}, domain.NewModelAnswerError(prompt.QueryParser, err)
	}
	return d, nil
}

func (s *Service) perform(ctx context.Context, tenant, text string, names []string, d intent.Dispatch) (Reply, error) {
	reply := Reply{Action: d.Action}

	if d.List != "" && d.Action != intent.ActionCreateList && !slices.Contains(names, d.List) {
		return reply, fmt.Errorf("list %q: %w", d.List, domain.ErrListNotFound)
	}

	q := d.Query
	if q == "" {
		q = text
	}

	s.logger.Info("Message dispatched",
		zap.String("user", tenant), zap.String("action", string(d.Action)), zap.String("list", d.List))

	switch d.Action {
	case intent.ActionCreateList:
		l, err := s.lists.Create(ctx, tenant, d.List, "")
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			reply.Text = fmt.Sprintf("List %q already exists.", strings.TrimSpace(d.List))
		case err != nil:
			return reply, err
		default:
			reply.Text = fmt.Sprintf("List %q created.", l.Name())
		}

	case intent.ActionCreateNote:
		out, err := s.notes.Create(ctx, note.Request{Tenant: tenant, List: d.List, Text: q})
		if err != nil {
			return reply, err
		}
		reply.Text = out.Message

	case intent.ActionCreateReminder:
		out, err := s.reminders.Create(ctx, reminder.Request{Tenant: tenant, List: d.List, Text: q})
		if err != nil {
			return reply, err
		}
		reply.Text = out.Message

	case intent.ActionSearch:
		ans, err := s.planner.Plan(ctx, query.Request{
			Tenant: tenant, List: d.List, Query: q, Question: text, Lists: names,
		})
		if err != nil {
			return reply, err
		}
		reply.Text = ans.Text
		reply.Branch = ans.Branch
	}
	return reply, nil
}

// Package note creates notes from free text.
package note

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/domain"
	"github.com/avdivo/dev-organizer/internal/domain/intent"
	domnote "github.com/avdivo/dev-organizer/internal/domain/note"
	"github.com/avdivo/dev-organizer/internal/domain/search/filter"
	"github.com/avdivo/dev-organizer/internal/prompt"
	"github.com/avdivo/dev-organizer/internal/usecase/task"
)

// Request asks to file Text as one or more notes.
type Request struct {
	Tenant string
	List   string
	Text   string
}

// Outcome describes the saved notes.
type Outcome struct {
	Notes   []domnote.Note
	Message string
}

// Options tunes note creation.
type Options struct {
	Model         string
	MetadataModel string
	Location      *time.Location
	Now           func() time.Time
}

// Service creates notes.
type Service struct {
	repo      Repository
	lists     Lists
	linker    Linker
	generator domain.Generator
	prompts   Renderer
	opts      Options
	logger    *zap.Logger
}

// New creates a note service.
func New(
	repo Repository, lists Lists, linker Linker,
	generator domain.Generator, prompts Renderer,
	opts Options, logger *zap.Logger,
) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MetadataModel == "" {
		opts.MetadataModel = opts.Model
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo: repo, lists: lists, linker: linker,
		generator: generator, prompts: prompts,
		opts: opts, logger: logger,
	}
}

// Create splits req.Text into notes, links their numbers to canonical fields and saves
// them. The metadata subtask only runs when the text contains a digit.
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

	primary := task.New(task.Spec{
		Label: prompt.CreateNote, Prompt: prompt.CreateNote, Model: s.opts.Model, Input: text,
	}, s.generator, s.prompts, logger)
	metadata := task.New(task.Spec{
		Label: prompt.NoteMetadata, Prompt: prompt.NoteMetadata, Model: s.opts.MetadataModel, Input: text,
	}, s.generator, s.prompts, logger)

	if err := primary.Start(ctx); err != nil {
		return Outcome{}, err
	}
	if strings.IndexFunc(text, unicode.IsDigit) >= 0 {
		if err := metadata.Start(ctx); err != nil {
			return Outcome{}, err
		}
	}

	pres, err := primary.Finish()
	if err != nil {
		return Outcome{}, err
	}
	mres, err := metadata.Finish()
	if err != nil {
		return Outcome{}, err
	}

	if pres.Err != nil {
		return Outcome{}, domain.NewModelAnswerError(prompt.CreateNote, pres.Err)
	}
	if pres.Empty() {
		return Outcome{}, domain.NewModelAnswerError(prompt.CreateNote, nil)
	}
	parsed, err := intent.ParseNotes(pres.JSON)
	if err != nil {
		return Outcome{}, domain.NewModelAnswerError(prompt.CreateNote, err)
	}
	if len(parsed.Notes) == 0 {
		return Outcome{}, domain.NewModelAnswerError(prompt.CreateNote, fmt.Errorf("no notes in answer"))
	}

	var entities []domnote.NumericEntity
	if mres.Err != nil {
		logger.Warn("Metadata subtask failed, saving notes without quantities", zap.Error(mres.Err))
	} else {
		entities = intent.ParseEntities(mres.JSON)
	}

	out := Outcome{Notes: make([]domnote.Note, 0, len(parsed.Notes))}
	for _, draft := range parsed.Notes {
		n := s.draftToNote(ctx, req.Tenant, list, text, draft, parsed.Numbers, entities)
		id, err := s.repo.SaveNote(ctx, n)
		if err != nil {
			return Outcome{}, fmt.Errorf("save note: %w", err)
		}
		n.ID = id
		out.Notes = append(out.Notes, n)
		logger.Info("Note saved", zap.String("id", id), zap.Any("quantities", n.Quantities))
	}

	out.Message = savedMessage(len(out.Notes), list)
	return out, nil
}

func (s *Service) draftToNote(
	ctx context.Context, tenant, list, fallback string,
	draft intent.NoteDraft, numbers []float64, entities []domnote.NumericEntity,
) domnote.Note {
	n := domnote.Note{
		Tenant: tenant,
		List:   list,
		Text:   strings.TrimSpace(draft.Text),
	}
	if n.Text == "" {
		n.Text = fallback
	}

	if at, ok := filter.ParseTimeIn(draft.Created, s.opts.Location); ok {
		n.CreatedAt = at
	} else {
		n.CreatedAt = s.opts.Now()
	}

	if len(draft.Refs) > 0 && len(entities) > 0 {
		n.Quantities = s.linker.Link(ctx, draft.Refs, numbers, entities)
	}
	return n
}

func savedMessage(n int, list string) string {
	if n == 1 {
		return fmt.Sprintf("Note saved to list %q.", list)
	}
	return fmt.Sprintf("%d notes saved to list %q.", n, list)
}

package query

import (
	"context"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/domain"
	"github.com/avdivo/dev-organizer/internal/domain/intent"
	"github.com/avdivo/dev-organizer/internal/domain/search/filter"
	"github.com/avdivo/dev-organizer/internal/prompt"
	"github.com/avdivo/dev-organizer/internal/usecase/task"
)

// Request is one search question from a user.
type Request struct {
	Tenant   string
	List     string // empty searches every list
	Query    string
	Question string // defaults to Query
	Lists    []string
}

// PlannerOptions selects the models of the classification subtasks.
type PlannerOptions struct {
	Model         string
	MetadataModel string
}

// Planner classifies a question and hands the typed plan to the router.
type Planner struct {
	generator domain.Generator
	prompts   Renderer
	mentions  MentionResolver
	router    *Router
	opts      PlannerOptions
	logger    *zap.Logger
}

// NewPlanner creates a planner.
func NewPlanner(
	generator domain.Generator,
	prompts Renderer,
	mentions MentionResolver,
	router *Router,
	opts PlannerOptions,
	logger *zap.Logger,
) *Planner {
	if opts.MetadataModel == "" {
		opts.MetadataModel = opts.Model
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		generator: generator,
		prompts:   prompts,
		mentions:  mentions,
		router:    router,
		opts:      opts,
		logger:    logger,
	}
}

// Plan answers req. The metadata subtask only runs when the query contains a digit.
func (p *Planner) Plan(ctx context.Context, req Request) (Answer, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Answer{}, domain.ErrEmptyQuery
	}
	if strings.TrimSpace(req.Tenant) == "" {
		return Answer{}, domain.ErrInvalidRequest
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		question = query
	}

	logger := p.logger.With(zap.String("user", req.Tenant), zap.String("list", req.List))
	addition := listsAddition(req.Lists)

	primary := task.New(task.Spec{
		Label: prompt.Search, Prompt: prompt.Search, Model: p.opts.Model, Input: query, Addition: addition,
	}, p.generator, p.prompts, logger)
	metadata := task.New(task.Spec{
		Label: prompt.SearchMetadata, Prompt: prompt.SearchMetadata, Model: p.opts.MetadataModel, Input: query,
	}, p.generator, p.prompts, logger)

	if err := primary.Start(ctx); err != nil {
		return Answer{}, err
	}
	if hasDigit(query) {
		if err := metadata.Start(ctx); err != nil {
			return Answer{}, err
		}
	}

	pres, err := primary.Finish()
	if err != nil {
		return Answer{}, err
	}
	mres, err := metadata.Finish()
	if err != nil {
		return Answer{}, err
	}

	if pres.Err != nil {
		return Answer{}, domain.NewModelAnswerError(prompt.Search, pres.Err)
	}
	if pres.Empty() {
		return Answer{}, domain.NewModelAnswerError(prompt.Search, nil)
	}
	parsed, err := intent.ParseSearch(pres.JSON)
	if err != nil {
		return Answer{}, domain.NewModelAnswerError(prompt.Search, err)
	}

	fragments := parsed.Fragments()
	if mres.Err != nil {
		logger.Warn("Metadata subtask failed, continuing without it", zap.Error(mres.Err))
	} else if !mres.Empty() && p.mentions != nil {
		fragments = append(fragments, p.mentions.Filters(ctx, intent.ParseMetadataFilters(mres.JSON))...)
	}

	if n := filter.Overflow(fragments); n > 0 {
		logger.Warn("Filter fragments over the limit dropped",
			zap.Int("dropped", n),
			zap.Int("limit", filter.MaxFragments),
		)
	}

	semantic := parsed.Query
	if semantic == "" {
		semantic = query
	}

	return p.router.Route(ctx, Input{
		Flags:       parsed.Flags,
		Filter:      filter.Build(fragments, req.Tenant, req.List),
		Substring:   parsed.WhereDocument,
		Query:       semantic,
		Question:    question,
		List:        req.List,
		Lists:       req.Lists,
		Calculation: parsed.Calculation,
	})
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

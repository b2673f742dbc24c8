// Package query plans and executes retrieval for a free-text question.
package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/domain"
	"github.com/avdivo/dev-organizer/internal/domain/intent"
	"github.com/avdivo/dev-organizer/internal/domain/search/aggregate"
	"github.com/avdivo/dev-organizer/internal/domain/search/filter"
	"github.com/avdivo/dev-organizer/internal/domain/search/result"
	"github.com/avdivo/dev-organizer/internal/domain/template"
	"github.com/avdivo/dev-organizer/internal/metrics"
	"github.com/avdivo/dev-organizer/internal/prompt"
)

// Branch is the terminal step that produced an answer.
type Branch string

// Terminal branches.
const (
	BranchCount     Branch = "count"
	BranchSynthesis Branch = "synthesis"
	BranchListing   Branch = "listing"
	BranchFallback  Branch = "fallback"
)

// Fixed answers.
const (
	NoDataAnswer   = "No matching records found."
	NoAnswerAnswer = "I could not find an answer to this question."
)

// Input is everything the router needs for one question.
type Input struct {
	Flags       intent.Flags
	Filter      filter.Expression
	Substring   string
	Query       string // text for similarity search
	Question    string // original question
	List        string
	Lists       []string
	Calculation intent.Calculation
}

// Answer is the router outcome.
type Answer struct {
	Text      string
	Records   []result.Result
	Count     int
	Branch    Branch
	Aggregate *aggregate.Result
}

// RouterOptions tunes retrieval and synthesis.
type RouterOptions struct {
	MaxDistance      float64 // semantic hits farther than this are dropped
	TopK             int
	MaxPromptRecords int    // records listed in the synthesis prompt; aggregates still see all
	Model            string // synthesis model, empty for the generator default
	Location         *time.Location
}

// Router executes the decision table over intent flags.
type Router struct {
	searcher   Searcher
	generator  domain.Generator
	prompts    Renderer
	aggregator *aggregate.Aggregator
	fields     FieldResolver
	opts       RouterOptions
	logger     *zap.Logger
}

// NewRouter creates a router.
func NewRouter(
	searcher Searcher,
	generator domain.Generator,
	prompts Renderer,
	aggregator *aggregate.Aggregator,
	fields FieldResolver,
	opts RouterOptions,
	logger *zap.Logger,
) *Router {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.MaxPromptRecords <= 0 {
		opts.MaxPromptRecords = 200
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		searcher:   searcher,
		generator:  generator,
		prompts:    prompts,
		aggregator: aggregator,
		fields:     fields,
		opts:       opts,
		logger:     logger,
	}
}

// Route runs a single pass over the decision table. in.Flags is copied; escalations
// never leak back to the caller.
func (r *Router) Route(ctx context.Context, in Input) (Answer, error) {
	flags := in.Flags

	// Arithmetic needs the full structured record set, so it overrides semantic
	// retrieval before any retrieval runs.
	if flags.NeedCalculation {
		flags.NeedAnalysis = true
		if flags.Semantic {
			flags.Semantic = false
			r.escalate("calculation_disables_semantic")
		}
	}

	var records []result.Result
	semanticUsed := false

	if flags.Semantic {
		text := in.Query
		if text == "" {
			text = in.Question
		}
		hits, err := r.searcher.Similar(ctx, text, in.Filter, r.opts.TopK)
		if err != nil {
			return Answer{}, fmt.Errorf("semantic retrieval: %w", err)
		}
		records = withinDistance(hits, r.opts.MaxDistance)
		semanticUsed = true
		if !flags.NeedAnalysis {
			flags.NeedAnalysis = true
			r.escalate("semantic_forces_analysis")
		}

		if in.Substring != "" {
			records = containing(records, in.Substring)
		}
	}

	// A bare count over the filter is answered by the index without fetching records.
	if !semanticUsed && flags.NeedFilter && flags.NeedCount && !flags.NeedAnalysis &&
		!flags.QueryAboutLists && strings.TrimSpace(in.Substring) == "" {
		n, err := r.searcher.Count(ctx, in.Filter)
		if err != nil {
			return Answer{}, fmt.Errorf("structured count: %w", err)
		}
		return r.done(Answer{Text: strconv.Itoa(n), Count: n, Branch: BranchCount}), nil
	}

	if !semanticUsed && (flags.NeedAnalysis || flags.NeedFilter) {
		found, err := r.searcher.ByFilter(ctx, in.Filter, in.Substring)
		if err != nil {
			return Answer{}, fmt.Errorf("structured retrieval: %w", err)
		}
		records = found
	}

	if flags.QueryAboutLists && !flags.NeedAnalysis {
		flags.NeedAnalysis = true
		r.escalate("lists_force_analysis")
	}

	countNote := ""
	if flags.NeedCount {
		if !flags.NeedAnalysis {
			return r.done(Answer{Text: strconv.Itoa(len(records)), Records: records, Count: len(records), Branch: BranchCount}), nil
		}
		countNote = fmt.Sprintf("Records found: %d", len(records))
	}

	if flags.NeedAnalysis {
		return r.synthesize(ctx, in, flags, records, countNote)
	}

	if flags.NeedFilter {
		text := NoDataAnswer
		if len(records) > 0 {
			text = strings.Join(result.Texts(records), "\n")
		}
		return r.done(Answer{Text: text, Records: records, Count: len(records), Branch: BranchListing}), nil
	}

	return r.done(Answer{Text: NoAnswerAnswer, Branch: BranchFallback}), nil
}

func (r *Router) synthesize(
	ctx context.Context, in Input, flags intent.Flags, records []result.Result, countNote string,
) (Answer, error) {
	ans := Answer{Records: records, Count: len(records), Branch: BranchSynthesis}

	values := template.Values{
		template.SlotCount:    strconv.Itoa(len(records)),
		template.SlotQuestion: in.Question,
		template.SlotList:     in.List,
		template.SlotLists:    strings.Join(in.Lists, ", "),
		template.SlotToday:    time.Now().In(r.opts.Location).Format("2006-01-02"),
	}

	if flags.NeedCalculation {
		agg := r.aggregate(ctx, in.Calculation, records)
		ans.Aggregate = &agg
		values[template.SlotResult] = agg.Format()
		values[template.SlotField] = agg.Field
		values[template.SlotFunction] = string(agg.Function)
	}

	input := r.synthesisInput(in, records, countNote, ans.Aggregate)
	system, user, err := r.prompts.Render(prompt.Analysis, input, listsAddition(in.Lists))
	if err != nil {
		return Answer{}, fmt.Errorf("render synthesis prompt: %w", err)
	}

	text, err := r.generator.Generate(ctx, domain.Prompt{Model: r.opts.Model, System: system, User: user})
	if err != nil {
		return Answer{}, domain.NewModelAnswerError("synthesis", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Answer{}, domain.NewModelAnswerError("synthesis", nil)
	}

	ans.Text = template.Substitute(text, values)
	return r.done(ans), nil
}

// aggregate resolves the requested field when it is not whitelisted, then computes.
func (r *Router) aggregate(ctx context.Context, calc intent.Calculation, records []result.Result) aggregate.Result {
	field := strings.TrimSpace(calc.Field)
	if field != "" && !r.aggregator.Allows(field) && r.fields != nil {
		if resolved, ok := r.fields.Resolve(ctx, field); ok {
			field = resolved
		}
	}
	return r.aggregator.Compute(calc.Function, field, records)
}

func (r *Router) synthesisInput(in Input, records []result.Result, countNote string, agg *aggregate.Result) string {
	var b strings.Builder
	if countNote != "" {
		b.WriteString(countNote)
		b.WriteString("\n")
	}

	if len(records) == 0 {
		b.WriteString("Records: none\n")
	} else {
		b.WriteString("Records:\n")
		shown := records
		if len(shown) > r.opts.MaxPromptRecords {
			shown = shown[:r.opts.MaxPromptRecords]
		}
		for i, rec := range shown {
			fmt.Fprintf(&b, "%d. %s%s\n", i+1, rec.Text(), r.describe(rec))
		}
		if rest := len(records) - len(shown); rest > 0 {
			fmt.Fprintf(&b, "... and %d more records\n", rest)
		}
	}

	if agg != nil {
		fmt.Fprintf(&b, "Calculation: %s of %s over %d records = %s", agg.Function, agg.Field, agg.N, agg.Format())
		if agg.Comment != "" {
			fmt.Fprintf(&b, " (%s)", agg.Comment)
		}
		b.WriteString("\n")
	}

	list := in.List
	if list == "" {
		list = "all lists"
	}
	fmt.Fprintf(&b, "List: %s\n", list)
	fmt.Fprintf(&b, "Question: %s", in.Question)
	return b.String()
}

// describe renders the metadata worth showing next to a record text.
func (r *Router) describe(rec result.Result) string {
	parts := make([]string, 0, 4)
	if v, ok := rec.Value(filter.FieldCollection); ok && v != "" {
		parts = append(parts, "list: "+v)
	}
	if ts, ok := rec.Number(filter.FieldCreated); ok && ts > 0 {
		parts = append(parts, "created: "+time.Unix(int64(ts), 0).In(r.opts.Location).Format("2006-01-02 15:04"))
	}
	if ts, ok := rec.Number(filter.FieldReminder); ok && ts > 0 {
		parts = append(parts, "remind at: "+time.Unix(int64(ts), 0).In(r.opts.Location).Format("2006-01-02 15:04"))
	}
	parts = append(parts, r.quantities(rec)...)
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func (r *Router) quantities(rec result.Result) []string {
	md := rec.Metadata()
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if r.aggregator.Allows(k) {
			out = append(out, k+": "+md[k])
		}
	}
	return out
}

func (r *Router) escalate(name string) {
	metrics.PlannerEscalationsTotal.WithLabelValues(name).Inc()
	r.logger.Debug("Intent flag escalated", zap.String("escalation", name))
}

func (r *Router) done(a Answer) Answer {
	metrics.PlannerBranchesTotal.WithLabelValues(string(a.Branch)).Inc()
	r.logger.Info("Query routed", zap.String("branch", string(a.Branch)), zap.Int("records", a.Count))
	return a
}

func withinDistance(records []result.Result, maxDistance float64) []result.Result {
	if maxDistance <= 0 {
		return records
	}
	out := make([]result.Result, 0, len(records))
	for _, rec := range records {
		if rec.Distance() <= maxDistance {
			out = append(out, rec)
		}
	}
	return out
}

func containing(records []result.Result, substr string) []result.Result {
	out := make([]result.Result, 0, len(records))
	for _, rec := range records {
		if rec.ContainsFold(substr) {
			out = append(out, rec)
		}
	}
	return out
}

func listsAddition(lists []string) string {
	if len(lists) == 0 {
		return ""
	}
	return "Available lists: " + strings.Join(lists, ", ")
}

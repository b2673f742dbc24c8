// Package task runs one generation subtask on its own goroutine and joins it later.
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avdivo/dev-organizer/internal/domain"
	"github.com/avdivo/dev-organizer/internal/domain/modeljson"
	"github.com/avdivo/dev-organizer/internal/metrics"
)

// Lifecycle errors.
var (
	ErrAlreadyStarted  = errors.New("task already started")
	ErrAlreadyFinished = errors.New("task already finished")
)

// Renderer builds the system and user messages of a named prompt.
type Renderer interface {
	Render(name, input, addition string) (system, user string, err error)
}

// Spec identifies one subtask.
type Spec struct {
	Label    string // for logs and metrics
	Prompt   string // prompt library name
	Model    string // empty means the generator default
	Input    string
	Addition string // contextual text placed before the prompt
}

// Result is the outcome of a finished subtask. JSON is nil when the answer held no
// object or array; Err carries a generation or rendering failure.
type Result struct {
	Raw  string
	JSON json.RawMessage
	Err  error
}

// Empty reports whether the result carries no structured answer.
func (r Result) Empty() bool { return len(r.JSON) == 0 }

// Decode unmarshals the structured answer into v.
func (r Result) Decode(v any) error {
	if r.Err != nil {
		return r.Err
	}
	if r.Empty() {
		return modeljson.ErrNoJSON
	}
	if err := json.Unmarshal(r.JSON, v); err != nil {
		return fmt.Errorf("decode task result: %w", err)
	}
	return nil
}

type state int

const (
	idle state = iota
	running
	done
)

// Runner is a single-use handle: Start once, Finish once.
type Runner struct {
	spec      Spec
	generator domain.Generator
	prompts   Renderer
	logger    *zap.Logger

	mu        sync.Mutex
	state     state
	startedAt time.Time
	done      chan struct{}
	result    Result
}

// New creates an idle runner.
func New(spec Spec, generator domain.Generator, prompts Renderer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{spec: spec, generator: generator, prompts: prompts, logger: logger}
}

// Label returns the subtask label.
func (r *Runner) Label() string { return r.spec.Label }

// Start launches the generation on a new goroutine.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != idle {
		return fmt.Errorf("%s: %w", r.spec.Label, ErrAlreadyStarted)
	}
	r.state = running
	r.startedAt = time.Now()
	r.done = make(chan struct{})

	r.logger.Info("task started",
		zap.String("label", r.spec.Label),
		zap.String("model", r.spec.Model),
		zap.String("prompt", r.spec.Prompt),
		zap.String("input", r.spec.Input),
	)

	go r.run(ctx)
	return nil
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)

	system, user, err := r.prompts.Render(r.spec.Prompt, r.spec.Input, r.spec.Addition)
	if err != nil {
		r.result = Result{Err: fmt.Errorf("render prompt %s: %w", r.spec.Prompt, err)}
		return
	}

	raw, err := r.generator.Generate(ctx, domain.Prompt{Model: r.spec.Model, System: system, User: user})
	if err != nil {
		r.result = Result{Err: fmt.Errorf("generate %s: %w", r.spec.Label, err)}
		return
	}

	res := Result{Raw: raw}
	if js, err := modeljson.Extract(raw); err == nil {
		res.JSON = js
	}
	r.result = res
}

// Finish blocks until the subtask completes and returns its result. Without a prior
// Start it returns an empty result and no error.
func (r *Runner) Finish() (Result, error) {
	r.mu.Lock()
	switch r.state {
	case idle:
		r.mu.Unlock()
		return Result{}, nil
	case done:
		r.mu.Unlock()
		return Result{}, fmt.Errorf("%s: %w", r.spec.Label, ErrAlreadyFinished)
	}
	r.state = done
	ch := r.done
	r.mu.Unlock()

	<-ch

	elapsed := time.Since(r.startedAt)
	metrics.TaskDuration.WithLabelValues(r.spec.Label).Observe(elapsed.Seconds())

	fields := []zap.Field{zap.String("label", r.spec.Label), zap.Duration("elapsed", elapsed)}
	switch {
	case r.result.Err != nil:
		fields = append(fields, zap.Error(r.result.Err))
	case r.result.Empty():
		fields = append(fields, zap.String("result", "no answer"))
	default:
		fields = append(fields, zap.Reflect("result", r.result.JSON))
	}
	r.logger.Info("task finished", fields...)

	return r.result, nil
}

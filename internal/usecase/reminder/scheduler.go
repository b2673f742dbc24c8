package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	domnote "github.com/avdivo/dev-organizer/internal/domain/note"
	"github.com/avdivo/dev-organizer/internal/metrics"
)

// ErrNoJobID is returned when a reminder without a job id is scheduled.
var ErrNoJobID = errors.New("reminder has no job id")

// Scheduler fires reminders on their triggers.
type Scheduler struct {
	cron     gocron.Scheduler
	repo     Repository
	notifier Notifier
	now      func() time.Time
	logger   *zap.Logger

	mu   sync.Mutex
	jobs map[string]gocron.Job // reminder job id -> job
}

// NewScheduler creates a scheduler evaluating cron expressions in loc.
func NewScheduler(repo Repository, notifier Notifier, loc *time.Location, logger *zap.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cron, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{
		cron:     cron,
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
		jobs:     make(map[string]gocron.Job),
	}, nil
}

// Start restores pending reminders and starts firing. A reminder that fails to
// restore is logged and skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	pending, err := s.repo.PendingReminders(ctx)
	if err != nil {
		return fmt.Errorf("load pending reminders: %w", err)
	}

	restored := 0
	for _, rem := range pending {
		if err := s.Schedule(rem); err != nil {
			s.logger.Warn("Reminder not restored", zap.String("id", rem.ID), zap.Error(err))
			continue
		}
		restored++
	}

	s.cron.Start()
	s.logger.Info("Reminder scheduler started", zap.Int("restored", restored), zap.Int("pending", len(pending)))
	return nil
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

// Schedule registers rem. A one-shot reminder whose time has passed fires immediately.
func (s *Scheduler) Schedule(rem domnote.Reminder) error {
	if rem.JobID == "" {
		return ErrNoJobID
	}
	if err := rem.Trigger.Validate(); err != nil {
		return fmt.Errorf("reminder %s: %w", rem.ID, err)
	}

	def, opts := s.definition(rem.Trigger)
	opts = append(opts, gocron.WithName(rem.JobID), gocron.WithTags(rem.Tenant))

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[rem.JobID]; ok {
		if err := s.cron.RemoveJob(old.ID()); err != nil {
			s.logger.Debug("Stale job not removed", zap.String("job_id", rem.JobID), zap.Error(err))
		}
	}

	job, err := s.cron.NewJob(def, gocron.NewTask(func() { s.fire(context.Background(), rem) }), opts...)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	s.jobs[rem.JobID] = job

	s.logger.Info("Reminder scheduled",
		zap.String("job_id", rem.JobID),
		zap.String("user", rem.Tenant),
		zap.String("trigger", string(rem.Trigger.Type)),
	)
	return nil
}

func (s *Scheduler) definition(t domnote.Trigger) (gocron.JobDefinition, []gocron.JobOption) {
	now := s.now()
	switch t.Type {
	case domnote.TriggerCron:
		return gocron.CronJob(t.Cron, false), nil
	case domnote.TriggerInterval:
		var opts []gocron.JobOption
		if t.StartAt.After(now) {
			opts = append(opts, gocron.WithStartAt(gocron.WithStartDateTime(t.StartAt)))
		}
		return gocron.DurationJob(t.Every), opts
	default:
		if !t.RunAt.After(now) {
			return gocron.OneTimeJob(gocron.OneTimeJobStartImmediately()), nil
		}
		return gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(t.RunAt)), nil
	}
}

// fire delivers rem and completes one-shot reminders.
func (s *Scheduler) fire(ctx context.Context, rem domnote.Reminder) {
	logger := s.logger.With(zap.String("job_id", rem.JobID), zap.String("user", rem.Tenant))

	if err := s.notifier.Notify(ctx, rem); err != nil {
		metrics.RemindersFiredTotal.WithLabelValues("error").Inc()
		logger.Error("Reminder delivery failed", zap.Error(err))
		return
	}
	metrics.RemindersFiredTotal.WithLabelValues("ok").Inc()
	logger.Info("Reminder fired")

	if !rem.Trigger.OneShot() {
		return
	}

	s.mu.Lock()
	delete(s.jobs, rem.JobID)
	s.mu.Unlock()

	if err := s.repo.MarkCompleted(ctx, rem.ID); err != nil {
		logger.Warn("Reminder not marked completed", zap.Error(err))
	}
}

// Scheduled reports how many reminders are registered.
func (s *Scheduler) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// NextRun returns the next fire time of the reminder with jobID.
func (s *Scheduler) NextRun(jobID string) (time.Time, bool) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next, err := job.NextRun()
	if err != nil {
		return time.Time{}, false
	}
	return next, true
}

// LogNotifier writes fired reminders to the log.
type LogNotifier struct {
	Logger *zap.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, rem domnote.Reminder) error {
	n.Logger.Info("Reminder", zap.String("user", rem.Tenant), zap.String("list", rem.List), zap.String("text", rem.Text))
	return nil
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, rem domnote.Reminder) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, rem domnote.Reminder) error { return f(ctx, rem) }

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Planner and assistant Prometheus metrics.
var (
	PlannerBranchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "planner_branches_total",
			Help:      "Terminal branch taken per planned query",
		},
		[]string{"branch"},
	)

	PlannerEscalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "planner_escalations_total",
			Help:      "Flag escalations applied by the router",
		},
		[]string{"escalation"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Classification subtask duration from start to finish",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"label"},
	)

	AssistantActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assistant_actions_total",
			Help:      "Dispatched assistant actions by outcome",
		},
		[]string{"action", "status"},
	)

	RemindersFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_fired_total",
			Help:      "Reminders delivered by the scheduler",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Register registers the domain metrics with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingCacheTotal,
			TokenBudgetRemaining,
			GenerationRequestsTotal,
			GenerationRequestDuration,
			GenerationTokensTotal,
			PlannerBranchesTotal,
			PlannerEscalationsTotal,
			TaskDuration,
			AssistantActionsTotal,
			RemindersFiredTotal,
		)
	})
}

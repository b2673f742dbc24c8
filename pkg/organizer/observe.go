package organizer

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type clientMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newClientMetrics(reg prometheus.Registerer) (*clientMetrics, error) {
	m := &clientMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "organizer",
			Subsystem: "client",
			Name:      "operations_total",
			Help:      "Total client calls by operation and status.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "organizer",
			Subsystem: "client",
			Name:      "operation_duration_seconds",
			Help:      "Client call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if err := registerOrReuse(reg, &m.operations); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector or reuses an existing one.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("organizer: metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("organizer: register metric: %w", err)
	}
	return nil
}

// observer logs and counts client calls.
type observer struct {
	logger  *slog.Logger
	metrics *clientMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *clientMetrics
	if reg != nil {
		var err error
		m, err = newClientMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

func (o *observer) observe(op string, start time.Time, err error) {
	if o == nil {
		return
	}
	dur := time.Since(start)

	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.metrics.operations.WithLabelValues(op, status).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(dur.Seconds())
	}

	if o.logger != nil {
		if err != nil {
			o.logger.Warn("operation failed", "op", op, "duration", dur, "error", err)
		} else {
			o.logger.Debug("operation completed", "op", op, "duration", dur)
		}
	}
}

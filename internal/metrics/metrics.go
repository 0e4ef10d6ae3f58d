// Package metrics records rotation step metrics and pushes them to a
// Prometheus Pushgateway. Step invocations are short-lived, so metrics are
// pushed at the end of each invocation instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Precheck outcomes.
const (
	PrecheckProceed   = "proceed"
	PrecheckSkip      = "skip"
	PrecheckHealed    = "healed"
	PrecheckIntegrity = "integrity_error"
)

// StepMetrics holds the collectors for one rotator process. A nil
// *StepMetrics is valid and records nothing.
type StepMetrics struct {
	registry *prometheus.Registry

	stepStarted   *prometheus.CounterVec
	stepCompleted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	precheck      *prometheus.CounterVec
	revoked       prometheus.Counter
	orphans       prometheus.Counter
}

// New creates the collectors on a private registry.
func New() *StepMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &StepMetrics{
		registry: reg,
		stepStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyrotate_step_started_total",
				Help: "Total number of rotation steps started",
			},
			[]string{"step"},
		),
		stepCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyrotate_step_completed_total",
				Help: "Total number of rotation steps completed, by status",
			},
			[]string{"step", "status"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyrotate_step_duration_seconds",
				Help:    "Duration of rotation steps in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 15, 30},
			},
			[]string{"step"},
		),
		precheck: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyrotate_precheck_total",
				Help: "Consistency precheck outcomes",
			},
			[]string{"outcome"},
		),
		revoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "keyrotate_credentials_revoked_total",
			Help: "Credentials disabled and deleted after promotion",
		}),
		orphans: factory.NewCounter(prometheus.CounterOpts{
			Name: "keyrotate_orphan_credentials_deleted_total",
			Help: "Untracked credentials deleted by the precheck",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *StepMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// StepStarted records the start of a step.
func (m *StepMetrics) StepStarted(step string) {
	if m == nil {
		return
	}
	m.stepStarted.WithLabelValues(step).Inc()
}

// StepCompleted records a finished step. status is "success", "skipped" or "failure".
func (m *StepMetrics) StepCompleted(step, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stepCompleted.WithLabelValues(step, status).Inc()
	m.stepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// PrecheckOutcome records the decision taken by the consistency precheck.
func (m *StepMetrics) PrecheckOutcome(outcome string) {
	if m == nil {
		return
	}
	m.precheck.WithLabelValues(outcome).Inc()
}

// CredentialRevoked counts a credential retired after promotion.
func (m *StepMetrics) CredentialRevoked() {
	if m == nil {
		return
	}
	m.revoked.Inc()
}

// OrphanDeleted counts a drifted credential removed by the precheck.
func (m *StepMetrics) OrphanDeleted() {
	if m == nil {
		return
	}
	m.orphans.Inc()
}

// Push sends the current values to a Pushgateway, grouped by record.
func (m *StepMetrics) Push(ctx context.Context, url, job, recordID string) error {
	if m == nil || url == "" {
		return nil
	}

	pusher := push.New(url, job).
		Gatherer(m.registry).
		Grouping("record", recordID)

	if err := pusher.AddContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}

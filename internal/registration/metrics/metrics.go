// Package metrics provides observability for the registration module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks registration pipeline outcomes and durations.
type Metrics struct {
	// Committed registrations by initial user state.
	RegistrationsCommitted *prometheus.CounterVec

	// Validation failures by first failing field.
	ValidationFailures *prometheus.CounterVec

	// Post-commit effect failures by effect name. These never fail the
	// registration; the counter is how the gap becomes visible.
	EffectFailures *prometheus.CounterVec

	ValidateDuration prometheus.Histogram
	CommitDuration   prometheus.Histogram
}

// New creates a Metrics instance with all registration metrics registered.
func New() *Metrics {
	return &Metrics{
		RegistrationsCommitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_registrations_committed_total",
			Help: "Committed registrations by initial user state",
		}, []string{"state"}),
		ValidationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_registration_validation_failures_total",
			Help: "Registration validation failures by first failing field",
		}, []string{"field"}),
		EffectFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_registration_effect_failures_total",
			Help: "Post-commit effect failures by effect name",
		}, []string{"effect"}),
		ValidateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatehouse_registration_validate_duration_seconds",
			Help:    "Duration of registration validation including external checks",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CommitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatehouse_registration_commit_duration_seconds",
			Help:    "Duration of registration commit including post-commit effects",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// ObserveValidate records the duration of a Validate call.
func (m *Metrics) ObserveValidate(start time.Time) {
	m.ValidateDuration.Observe(time.Since(start).Seconds())
}

// ObserveCommit records the duration of a Commit call.
func (m *Metrics) ObserveCommit(start time.Time) {
	m.CommitDuration.Observe(time.Since(start).Seconds())
}

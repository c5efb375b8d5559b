// Package metrics exposes Prometheus instruments for the monitoring cycle.
package metrics

import (
	"time"

	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// evaluations counts cistern evaluations.
	// Labels: result (alert, ok, error)
	evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aguasur",
		Subsystem: "monitor",
		Name:      "evaluations_total",
		Help:      "Total cistern evaluations by result",
	}, []string{"result"})

	// alertsIssued counts alerts by severity.
	alertsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aguasur",
		Subsystem: "monitor",
		Name:      "alerts_total",
		Help:      "Total alerts issued by severity",
	}, []string{"severity"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aguasur",
		Subsystem: "monitor",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of a full monitoring cycle",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	coordinationSavings = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aguasur",
		Subsystem: "coordination",
		Name:      "planned_savings",
		Help:      "Savings of the latest coordination plan in currency units",
	})

	// notificationFailures counts notifications that could not be delivered.
	// Labels: channel (telegram)
	notificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aguasur",
		Subsystem: "notify",
		Name:      "failures_total",
		Help:      "Total failed notifications by channel",
	}, []string{"channel"})
)

// RecordEvaluation counts one cistern evaluation.
func RecordEvaluation(alerted bool, err error) {
	switch {
	case err != nil:
		evaluations.WithLabelValues("error").Inc()
	case alerted:
		evaluations.WithLabelValues("alert").Inc()
	default:
		evaluations.WithLabelValues("ok").Inc()
	}
}

func RecordAlert(s entities.Severity) {
	alertsIssued.WithLabelValues(s.String()).Inc()
}

func ObserveCycle(d time.Duration) {
	cycleDuration.Observe(d.Seconds())
}

func SetCoordinationSavings(v float64) {
	coordinationSavings.Set(v)
}

func RecordNotificationFailure(channel string) {
	notificationFailures.WithLabelValues(channel).Inc()
}

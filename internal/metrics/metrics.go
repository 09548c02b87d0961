// Package metrics holds Prometheus instruments that are used across the
// panel daemon.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PanelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_calls_total",
			Help: "Remote panel API calls, labelled by operation and outcome.",
		},
		[]string{"op", "outcome"})

	DriftDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_drift_detected_total",
			Help: "Times a status sync found the remote record missing.",
		})

	ReconcileWarningsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_warnings_total",
			Help: "Best-effort post-action syncs that failed and degraded to a warning.",
		})

	AuditWriteErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_errors_total",
			Help: "Audit-log appends that failed and were dropped.",
		})

	SweepSuspendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_suspended_total",
			Help: "Servers suspended by the expiry sweep.",
		})
)

func init() {
	prometheus.MustRegister(
		PanelCallsTotal,
		DriftDetectedTotal,
		ReconcileWarningsTotal,
		AuditWriteErrorsTotal,
		SweepSuspendedTotal,
	)
}

// Package metrics holds the Prometheus collectors shared by the pipeline
// stages and binaries.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TicketsIngested counts issues parsed out of raw exports.
	TicketsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slapipe_tickets_ingested_total",
		Help: "Issues parsed from raw exports.",
	})

	// TicketsEvaluated counts SLA evaluations by verdict.
	TicketsEvaluated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slapipe_tickets_evaluated_total",
		Help: "SLA evaluations by verdict.",
	}, []string{"verdict"})

	// HolidayFetchFailures counts years for which the holiday source was
	// unavailable and the calendar degraded to weekends only.
	HolidayFetchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slapipe_holiday_fetch_failures_total",
		Help: "Holiday lookups that failed and were treated as empty.",
	})

	// StageDuration observes wall time per pipeline stage.
	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slapipe_stage_duration_seconds",
		Help:    "Pipeline stage wall time.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// RunsTotal counts pipeline runs by terminal status.
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slapipe_runs_total",
		Help: "Pipeline runs by terminal status.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(TicketsIngested, TicketsEvaluated, HolidayFetchFailures, StageDuration, RunsTotal)
}

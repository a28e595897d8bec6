// Package observability holds the webhook's Prometheus metrics on a custom
// registry, following the teacher's pattern of never polluting the global
// default registry (grounded on internal/observability/metrics.go).
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus metric the webhook reports.
type Metrics struct {
	Registry *prometheus.Registry

	AdmissionRequestsTotal   *prometheus.CounterVec
	AdmissionResponsesTotal  *prometheus.CounterVec
	AdmissionRequestDuration *prometheus.HistogramVec

	PolicyEvaluationsTotal   *prometheus.CounterVec
	PolicyEvaluationDuration *prometheus.HistogramVec
	PolicyInternalErrors     *prometheus.CounterVec

	PatchConflictsTotal   prometheus.Counter
	WarningsSuppressed    *prometheus.CounterVec
	PoliciesEnabled       *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all Prometheus metrics
// registered on a custom registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		AdmissionRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_admission_requests_total",
			Help: "Total number of AdmissionReview requests received, by operation and workload kind.",
		}, []string{"operation", "kind"}),

		AdmissionResponsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_admission_responses_total",
			Help: "Total number of AdmissionReview responses returned, by allowed/denied and mode.",
		}, []string{"result", "mode"}),

		AdmissionRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_admission_request_duration_seconds",
			Help:    "End-to-end duration of handling one AdmissionReview request.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),

		PolicyEvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_policy_evaluations_total",
			Help: "Total number of times a policy evaluator ran, by policy name and outcome.",
		}, []string{"policy", "outcome"}),

		PolicyEvaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_policy_evaluation_duration_seconds",
			Help:    "Duration of a single policy evaluator run.",
			Buckets: prometheus.DefBuckets,
		}, []string{"policy"}),

		PolicyInternalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_policy_internal_errors_total",
			Help: "Total number of recovered panics from policy evaluators, by policy name.",
		}, []string{"policy"}),

		PatchConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_patch_conflicts_total",
			Help: "Total number of patch operations dropped by the composer due to a path conflict.",
		}),

		WarningsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_warnings_suppressed_total",
			Help: "Total number of fixable violations suppressed because the mutation patch resolved them.",
		}, []string{"policy"}),

		PoliciesEnabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentinel_policies_enabled",
			Help: "Whether a policy is currently enabled (1) or disabled (0), by name and mode.",
		}, []string{"policy", "mode"}),
	}

	reg.MustRegister(
		m.AdmissionRequestsTotal,
		m.AdmissionResponsesTotal,
		m.AdmissionRequestDuration,
		m.PolicyEvaluationsTotal,
		m.PolicyEvaluationDuration,
		m.PolicyInternalErrors,
		m.PatchConflictsTotal,
		m.WarningsSuppressed,
		m.PoliciesEnabled,
	)

	return m
}

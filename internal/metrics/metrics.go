package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupwarden_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "groupwarden_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Platform API metrics
var (
	PlatformRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupwarden_platform_requests_total",
		Help: "Total number of platform API requests",
	}, []string{"method", "status"})
)

// Policy engine metrics
var (
	PolicyEvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupwarden_policy_evaluations_total",
		Help: "Total number of user evaluations by resulting action",
	}, []string{"action"})

	PolicyRuleMatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupwarden_policy_rule_matches_total",
		Help: "Total number of rule matches by rule type",
	}, []string{"rule_type"})

	PolicyRuleErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupwarden_policy_rule_errors_total",
		Help: "Total number of rule evaluations resolved as non-matching due to errors",
	})
)

// Enforcement loop metrics
var (
	GuardPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupwarden_guard_passes_total",
		Help: "Total number of enforcement passes started",
	})

	GuardInstancesClosedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupwarden_guard_instances_closed_total",
		Help: "Total number of instances closed by the guard",
	})

	GuardEventsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupwarden_guard_events_processed_total",
		Help: "Total number of audit events newly marked processed",
	})

	GuardRateLimitPausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "groupwarden_guard_rate_limit_pauses_total",
		Help: "Total number of global rate-limit pauses instituted",
	})

	GuardPausedState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groupwarden_guard_paused",
		Help: "Guard pause state (1=paused, 0=active)",
	})
)

// Gauges updated periodically by the collector
var (
	ProcessedEventsSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groupwarden_processed_events_size",
		Help: "Number of audit event keys in the dedup registry",
	})

	AuthorizedGroupsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groupwarden_authorized_groups_total",
		Help: "Number of groups the daemon is authorized to moderate",
	})

	AuditRecordsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groupwarden_audit_records_total",
		Help: "Total number of enforcement action records in the audit trail",
	})
)

// NormalizePath reduces high-cardinality path labels by replacing dynamic
// segments with placeholders. This keeps the metric label space bounded.
func NormalizePath(path string) string {
	segments := splitPath(path)
	if len(segments) < 2 {
		return path
	}

	if segments[0] == "api" {
		switch segments[1] {
		case "groups":
			if len(segments) >= 3 {
				out := "/api/groups/:id"
				if len(segments) > 3 {
					out += "/" + segments[3]
				}
				if len(segments) > 4 && segments[3] == "rules" {
					out += "/:ruleId"
					if len(segments) > 5 {
						out += "/" + segments[5]
					}
				}
				return out
			}
		}
	}

	return path
}

func splitPath(path string) []string {
	// Skip leading slash
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	// Split on /
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if i > start {
				segments = append(segments, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		segments = append(segments, path[start:])
	}
	return segments
}

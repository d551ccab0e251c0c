package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	RejectedInputs   *prometheus.CounterVec
	UpstreamFailures *prometheus.CounterVec
	JobsQueued       *prometheus.CounterVec
	WebhookUpdates   *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of in-flight intake sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by flow and type.",
		}, []string{"flow", "event"}),
		RejectedInputs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_inputs_total",
			Help:      "Inputs rejected with a re-prompt, by state and error code.",
		}, []string{"state", "code"}),
		UpstreamFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_failures_total",
			Help:      "Soft failures of external collaborators by collaborator and operation.",
		}, []string{"collaborator", "op"}),
		JobsQueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_queued_total",
			Help:      "Job rows written with status Queued, by flow.",
		}, []string{"flow"}),
		WebhookUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_updates_total",
			Help:      "Inbound chat platform updates by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) ObserveSessionEvent(flow, event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(flow, event).Inc()
}

func (m *Metrics) ObserveRejectedInput(state, code string) {
	if m == nil {
		return
	}
	m.RejectedInputs.WithLabelValues(state, code).Inc()
}

func (m *Metrics) ObserveUpstreamFailure(collaborator, op string) {
	if m == nil {
		return
	}
	m.UpstreamFailures.WithLabelValues(collaborator, op).Inc()
}

func (m *Metrics) ObserveJobQueued(flow string) {
	if m == nil {
		return
	}
	m.JobsQueued.WithLabelValues(flow).Inc()
}

func (m *Metrics) ObserveWebhookUpdate(result string) {
	if m == nil {
		return
	}
	m.WebhookUpdates.WithLabelValues(result).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

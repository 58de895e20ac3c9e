// Package metrics exposes Prometheus collectors for auth, guard, mail and
// messaging outcomes. Recorder satisfies the Observer interfaces of session,
// guard, notify and messaging.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flarehub"

// Recorder owns a private registry so tests can create many instances.
type Recorder struct {
	reg *prometheus.Registry

	sessionOps      *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	guardDecisions  *prometheus.CounterVec
	emails          *prometheus.CounterVec
	emailDuration   *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	messages        *prometheus.CounterVec
}

// New registers all collectors plus the Go and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		reg: reg,
		sessionOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Session operations by operation and result.",
		}, []string{"op", "result"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "operation_duration_seconds",
			Help:      "Session operation latency, including simulated delay.",
			Buckets:   []float64{.005, .05, .25, .5, 1, 1.5, 2.5, 5},
		}, []string{"op"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Route guard decisions by required role and outcome.",
		}, []string{"required", "decision"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mail",
			Name:      "sent_total",
			Help:      "Email send attempts by template and result.",
		}, []string{"template", "result"}),
		emailDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mail",
			Name:      "send_duration_seconds",
			Help:      "Email send latency.",
			Buckets:   []float64{.005, .05, .25, .5, 1, 1.5, 2.5, 5},
		}, []string{"template"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status class.",
		}, []string{"method", "class"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "sends_total",
			Help:      "Conversation message sends by sender side and result.",
		}, []string{"side", "result"}),
	}

	reg.MustRegister(
		r.sessionOps,
		r.sessionDuration,
		r.guardDecisions,
		r.emails,
		r.emailDuration,
		r.httpRequests,
		r.messages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Recorder) ObserveSessionOp(op, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.sessionOps.WithLabelValues(op, result).Inc()
	r.sessionDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveGuardDecision(required, decision string) {
	if r == nil {
		return
	}
	r.guardDecisions.WithLabelValues(required, decision).Inc()
}

func (r *Recorder) ObserveEmail(template, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.emails.WithLabelValues(template, result).Inc()
	r.emailDuration.WithLabelValues(template).Observe(elapsed.Seconds())
}

// ObserveHTTPRequest counts one finished request. class is "2xx".."5xx".
func (r *Recorder) ObserveHTTPRequest(method, class string) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, class).Inc()
}

func (r *Recorder) ObserveMessage(side, result string) {
	if r == nil {
		return
	}
	r.messages.WithLabelValues(side, result).Inc()
}

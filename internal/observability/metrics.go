package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes counters and histograms for booking, triage and the
// conversational loop. A nil *Metrics is valid and records nothing.
type Metrics struct {
	bookingAttempts *prometheus.CounterVec
	classifications *prometheus.CounterVec
	llmRequests     *prometheus.CounterVec
	llmLatency      prometheus.Histogram
	toolCalls       *prometheus.CounterVec
	sessionsEvicted prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookingAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "booking_attempts_total",
			Help:      "Booking attempts by result",
		}, []string{"result"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "procedure_classifications_total",
			Help:      "Procedure classifications by tier",
		}, []string{"tier"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "llm_requests_total",
			Help:      "Language model requests by status",
		}, []string{"status"}),
		llmLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Name:      "llm_latency_seconds",
			Help:      "Latency of language model requests",
			Buckets:   prometheus.DefBuckets,
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "tool_calls_total",
			Help:      "Agent tool executions by tool and status",
		}, []string{"tool", "status"}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "sessions_evicted_total",
			Help:      "Conversation sessions evicted from memory",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingAttempts, m.classifications, m.llmRequests, m.llmLatency, m.toolCalls, m.sessionsEvicted,
		m.httpRequests, m.httpDuration)
	return m
}

func (m *Metrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveClassification(tier string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(tier).Inc()
}

func (m *Metrics) ObserveLLM(status string, seconds float64) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(status).Inc()
	m.llmLatency.Observe(seconds)
}

func (m *Metrics) ObserveToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) ObserveSessionsEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsEvicted.Add(float64(n))
}

// ObserveHTTP records one served request. route is the matched pattern, not
// the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "honeyshield"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	AnalysesTotal     *prometheus.CounterVec
	AnalysisDuration  prometheus.Histogram
	RiskScore         prometheus.Histogram
	RuleMatchesTotal  *prometheus.CounterVec
	AlertsTotal       *prometheus.CounterVec
	SourcePollsTotal  *prometheus.CounterVec
	SourceMessages    *prometheus.CounterVec
	DuplicatesTotal   prometheus.Counter
	SlackDeliveries   *prometheus.CounterVec
	SlackQueueDepth   prometheus.Gauge
	MonitorCycles     *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	WebsocketClients  prometheus.Gauge
}

// New registers all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Messages analyzed, by resulting risk level.",
		}, []string{"risk_level"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time spent analyzing one message.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		RiskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of final risk scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		RuleMatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_matches_total",
			Help:      "Sigma rule matches by rule id.",
		}, []string{"rule"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts created by severity.",
		}, []string{"severity"}),
		SourcePollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_polls_total",
			Help:      "Source polls by source and result.",
		}, []string{"source", "result"}),
		SourceMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_messages_total",
			Help:      "Messages fetched by source.",
		}, []string{"source"}),
		DuplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_messages_total",
			Help:      "Fetched messages skipped as already seen.",
		}),
		SlackDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slack_deliveries_total",
			Help:      "Slack webhook deliveries by result.",
		}, []string{"result"}),
		SlackQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slack_queue_depth",
			Help:      "Notifications waiting for a Slack worker.",
		}),
		MonitorCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_cycles_total",
			Help:      "Monitor cycles by result.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		WebsocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected dashboard websocket clients.",
		}),
	}

	reg.MustRegister(
		m.AnalysesTotal, m.AnalysisDuration, m.RiskScore, m.RuleMatchesTotal,
		m.AlertsTotal, m.SourcePollsTotal, m.SourceMessages, m.DuplicatesTotal,
		m.SlackDeliveries, m.SlackQueueDepth, m.MonitorCycles,
		m.HTTPRequests, m.HTTPDuration, m.WebsocketClients,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAnalysis(level string, score int, seconds float64) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(level).Inc()
	m.RiskScore.Observe(float64(score))
	m.AnalysisDuration.Observe(seconds)
}

func (m *Metrics) RuleMatched(rule string) {
	if m == nil {
		return
	}
	m.RuleMatchesTotal.WithLabelValues(rule).Inc()
}

func (m *Metrics) AlertCreated(severity string) {
	if m == nil {
		return
	}
	m.AlertsTotal.WithLabelValues(severity).Inc()
}

func (m *Metrics) SourcePolled(source string, fetched int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SourcePollsTotal.WithLabelValues(source, result).Inc()
	m.SourceMessages.WithLabelValues(source).Add(float64(fetched))
}

func (m *Metrics) DuplicateSkipped() {
	if m == nil {
		return
	}
	m.DuplicatesTotal.Inc()
}

func (m *Metrics) SlackDelivered(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SlackDeliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) SetSlackQueueDepth(n int) {
	if m == nil {
		return
	}
	m.SlackQueueDepth.Set(float64(n))
}

func (m *Metrics) MonitorCycle(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.MonitorCycles.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(route, method string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, statusClass(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

func (m *Metrics) WebsocketConnected(delta int) {
	if m == nil {
		return
	}
	m.WebsocketClients.Add(float64(delta))
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	WebhookRequests    *prometheus.CounterVec
	Events             *prometheus.CounterVec
	LLMRequests        *prometheus.CounterVec
	LLMLatency         *prometheus.HistogramVec
	ToolCalls          *prometheus.CounterVec
	HistoryActiveUsers prometheus.Gauge
	HistoryPersist     *prometheus.CounterVec
	HistoryEvictions   prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		WebhookRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Inbound webhook requests by result.",
		}, []string{"result"}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Processed platform events by message kind and outcome.",
		}, []string{"kind", "outcome"}),
		LLMRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Model calls by path (text|vision) and outcome.",
		}, []string{"path", "outcome"}),
		LLMLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_seconds",
			Help:      "Model call latency including tool rounds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"path"}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Model tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		HistoryActiveUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_active_users",
			Help:      "Conversation histories currently held in memory.",
		}),
		HistoryPersist: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_persist_total",
			Help:      "History snapshot operations by op (load|save) and outcome.",
		}, []string{"op", "outcome"}),
		HistoryEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_evictions_total",
			Help:      "Idle histories flushed and dropped from memory.",
		}),
	}
}

func (m *Metrics) ObserveWebhook(result string) {
	if m == nil {
		return
	}
	m.WebhookRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveLLM(path, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.LLMRequests.WithLabelValues(path, outcome).Inc()
	m.LLMLatency.WithLabelValues(path).Observe(d.Seconds())
}

func (m *Metrics) ObserveToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) SetActiveHistories(n int) {
	if m == nil {
		return
	}
	m.HistoryActiveUsers.Set(float64(n))
}

func (m *Metrics) ObservePersist(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.HistoryPersist.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.HistoryEvictions.Add(float64(n))
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

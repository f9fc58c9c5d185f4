package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 独立注册表，避免与默认注册表冲突
var Registry = prometheus.NewRegistry()

var (
	// MessagesProcessed counts message evaluations by final outcome.
	MessagesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stagesync_messages_processed_total",
		Help: "Processed messages by outcome.",
	}, []string{"outcome"})

	// CRMRequests counts CRM calls by operation and status
	// (HTTP code, "error" for transport failures, "canceled" when the caller gave up, "circuit_open" when short-circuited).
	CRMRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stagesync_crm_requests_total",
		Help: "CRM API requests by operation and status.",
	}, []string{"operation", "status"})

	CRMRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stagesync_crm_request_duration_seconds",
		Help:    "CRM API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	OAuthExchanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stagesync_oauth_exchanges_total",
		Help: "OAuth authorization and refresh attempts by result.",
	}, []string{"result"})

	// RateLimitDrops counts HTTP 429 responses; prefix "global" for the global limiter.
	RateLimitDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stagesync_rate_limit_drops_total",
		Help: "Requests rejected by the rate limiter.",
	}, []string{"prefix"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		MessagesProcessed,
		CRMRequests,
		CRMRequestDuration,
		OAuthExchanges,
		RateLimitDrops,
	)
}

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// IncRateLimitDrop increments drop counters for the given prefix.
func IncRateLimitDrop(prefix string) {
	if prefix == "" {
		prefix = "global"
	}
	RateLimitDrops.WithLabelValues(prefix).Inc()
}

func IncMessageProcessed(outcome string) {
	MessagesProcessed.WithLabelValues(outcome).Inc()
}

func IncOAuthExchange(result string) {
	OAuthExchanges.WithLabelValues(result).Inc()
}

// ObserveCRMRequest 记录一次 CRM 调用
func ObserveCRMRequest(operation, status string, elapsed time.Duration) {
	CRMRequests.WithLabelValues(operation, status).Inc()
	if status != "circuit_open" {
		CRMRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	}
}

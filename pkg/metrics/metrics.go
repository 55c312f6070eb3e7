// Package metrics holds the Prometheus instrumentation for the proxy.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UpstreamBuckets spans fast rejections up to the 60s upstream timeout.
var UpstreamBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}

var (
	// TokenExchangesTotal counts service-account token exchanges by result.
	TokenExchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vertexproxy_token_exchanges_total",
			Help: "Token exchanges",
		},
		[]string{"result"},
	)

	// ChatRequestsTotal counts chat completion requests by mode and outcome.
	ChatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vertexproxy_chat_requests_total",
			Help: "Chat completion requests",
		},
		[]string{"mode", "outcome"},
	)

	// UpstreamLatency records the time until upstream response headers arrive.
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vertexproxy_upstream_latency_seconds",
			Help:    "Upstream latency",
			Buckets: UpstreamBuckets,
		},
		[]string{"mode"},
	)

	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vertexproxy_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// StreamLinesSkippedTotal counts upstream stream lines that carried no text.
	StreamLinesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vertexproxy_stream_lines_skipped_total",
			Help: "Skipped upstream stream lines",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TokenExchangesTotal,
		ChatRequestsTotal,
		UpstreamLatency,
		StreamingConnections,
		StreamLinesSkippedTotal,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Package metrics provides Prometheus instrumentation for the Railgun MCP server.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "railgun_mcp"

var (
	// ToolCallsTotal counts MCP tool invocations by tool and outcome.
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total MCP tool calls by tool name and result (ok, error).",
		},
		[]string{"tool", "result"},
	)

	// ToolCallDuration observes tool handler latency.
	ToolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "MCP tool handler duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"tool"},
	)

	// RPCCallsTotal counts JSON-RPC calls to EVM nodes.
	RPCCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Total JSON-RPC calls by network, method and result.",
		},
		[]string{"network", "method", "result"},
	)

	// RPCCallDuration observes JSON-RPC latency.
	RPCCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "JSON-RPC call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"network", "method"},
	)

	// EngineRequestsTotal counts HTTP calls to the protocol engine.
	EngineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_requests_total",
			Help:      "Total engine API requests by endpoint and status bucket.",
		},
		[]string{"endpoint", "status"},
	)

	// TransactionsTotal counts submitted transactions by type and status.
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions recorded by type and status.",
		},
		[]string{"type", "status"},
	)

	// PendingTransactions tracks records the tracker is still watching.
	PendingTransactions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_transactions",
		Help:      "Number of transactions awaiting a receipt.",
	})

	// WalletsTotal tracks the number of stored wallets.
	WalletsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "wallets",
		Help:      "Number of stored wallets.",
	})

	// HTTPRequestsTotal counts ops server requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total ops HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		ToolCallsTotal,
		ToolCallDuration,
		RPCCallsTotal,
		RPCCallDuration,
		EngineRequestsTotal,
		TransactionsTotal,
		PendingTransactions,
		WalletsTotal,
		HTTPRequestsTotal,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// ObserveRPC records one JSON-RPC call.
func ObserveRPC(network, method string, start time.Time, err error) {
	RPCCallDuration.WithLabelValues(network, method).Observe(time.Since(start).Seconds())
	RPCCallsTotal.WithLabelValues(network, method, result(err)).Inc()
}

// ObserveTool records one tool invocation.
func ObserveTool(tool string, start time.Time, failed bool) {
	ToolCallDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	r := "ok"
	if failed {
		r = "error"
	}
	ToolCallsTotal.WithLabelValues(tool, r).Inc()
}

// ObserveEngine records one engine response status (0 for transport errors).
func ObserveEngine(endpoint string, status int) {
	bucket := "error"
	if status > 0 {
		bucket = StatusBucket(status)
	}
	EngineRequestsTotal.WithLabelValues(endpoint, bucket).Inc()
}

// StartStatsCollector periodically samples sql.DBStats (when db is non-nil)
// and the goroutine count. Call in a goroutine; exits when ctx is done.
func StartStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if db != nil {
				stats := db.Stats()
				DBOpenConnections.Set(float64(stats.OpenConnections))
				DBInUseConnections.Set(float64(stats.InUse))
			}
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
			StatusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// StatusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func StatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

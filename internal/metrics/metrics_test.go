package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		if got := StatusBucket(tt.code); got != tt.want {
			t.Errorf("StatusBucket(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestObserveTool(t *testing.T) {
	before := testutil.ToFloat64(ToolCallsTotal.WithLabelValues("get_gas_price", "error"))
	ObserveTool("get_gas_price", time.Now(), true)
	after := testutil.ToFloat64(ToolCallsTotal.WithLabelValues("get_gas_price", "error"))
	if after != before+1 {
		t.Fatalf("expected error counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestObserveTool_ObservesHistogram(t *testing.T) {
	ToolCallDuration.Reset()

	ObserveTool("hist_test", time.Now(), false)

	ch := make(chan prometheus.Metric, 10)
	ToolCallDuration.Collect(ch)
	close(ch)

	found := false
	for metric := range ch {
		m := &dto.Metric{}
		_ = metric.Write(m)
		if m.Histogram != nil && m.Histogram.GetSampleCount() == 1 {
			found = true
		}
	}
	if !found {
		t.Error("expected histogram with 1 sample")
	}
}

func TestObserveRPC(t *testing.T) {
	ObserveRPC("polygon", "eth_gasPrice", time.Now(), nil)
	ObserveRPC("polygon", "eth_gasPrice", time.Now(), errors.New("timeout"))
	if got := testutil.ToFloat64(RPCCallsTotal.WithLabelValues("polygon", "eth_gasPrice", "ok")); got < 1 {
		t.Fatalf("expected ok count >= 1, got %v", got)
	}
	if got := testutil.ToFloat64(RPCCallsTotal.WithLabelValues("polygon", "eth_gasPrice", "error")); got < 1 {
		t.Fatalf("expected error count >= 1, got %v", got)
	}
}

func TestObserveEngine_TransportError(t *testing.T) {
	before := testutil.ToFloat64(EngineRequestsTotal.WithLabelValues("relayers", "error"))
	ObserveEngine("relayers", 0)
	if got := testutil.ToFloat64(EngineRequestsTotal.WithLabelValues("relayers", "error")); got != before+1 {
		t.Fatalf("expected transport errors bucketed as error, got %v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	body := w.Body.String()
	// Gauges always appear; counters/histograms only after first observation.
	for _, name := range []string{
		"railgun_mcp_pending_transactions",
		"railgun_mcp_wallets",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_ImplementsInterface(t *testing.T) {
	var _ MetricsCollector = (*Collector)(nil)
}

func TestNewCollector_RegistersMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)

	if c == nil {
		t.Fatal("expected non-nil collector")
	}

	// 二重登録でpanicしないことの確認は別レジストリで行う
	c2 := NewCollector(prometheus.NewRegistry())
	if c2 == nil {
		t.Fatal("expected non-nil second collector")
	}
}

func TestCollector_RecordHTTPStatus(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("200")); got != 2 {
		t.Errorf("http_status{200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("404")); got != 1 {
		t.Errorf("http_status{404} = %v, want 1", got)
	}
}

func TestCollector_RecordLoginMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)

	c.RecordLoginSuccess()
	c.RecordLoginFailure()
	c.RecordLoginFailure()

	if got := testutil.ToFloat64(c.loginSuccess); got != 1 {
		t.Errorf("login_success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.loginFail); got != 2 {
		t.Errorf("login_fail = %v, want 2", got)
	}
}

func TestCollector_RecordSignup(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)

	c.RecordSignup()

	if got := testutil.ToFloat64(c.signups); got != 1 {
		t.Errorf("signups = %v, want 1", got)
	}
}

func TestCollector_RecordAgentCreated_CountsRouteDetails(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)

	c.RecordAgentCreated(3)
	c.RecordAgentCreated(0)

	if got := testutil.ToFloat64(c.agentsCreated); got != 2 {
		t.Errorf("agents_created = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.routeDetails); got != 3 {
		t.Errorf("route_details_created = %v, want 3", got)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)

	c.RecordHTTPStatus(200)
	c.RecordRequestLatency(50 * time.Millisecond)
	c.RecordSignup()

	handler := Handler(registry)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	body := w.Body.String()
	for _, metric := range []string{
		"agentdesk_http_status_total",
		"agentdesk_http_request_latency_seconds",
		"agentdesk_signup_total",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("expected metric %q in scrape output", metric)
		}
	}
}

func TestSetupMetricsRoute_ServesOnMetricsPath(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewCollector(registry)

	handler := SetupMetricsRoute(registry)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /metrics: status = %d, want %d", w.Code, http.StatusOK)
	}
}

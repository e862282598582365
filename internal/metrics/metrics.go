// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやミドルウェアから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordLoginSuccess()
	RecordLoginFailure()
	RecordSignup()
	RecordAgentCreated(routeDetails int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	loginSuccess   prometheus.Counter
	loginFail      prometheus.Counter
	signups        prometheus.Counter
	agentsCreated  prometheus.Counter
	routeDetails   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentdesk_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentdesk_http_request_latency_seconds",
			Help:    "HTTPリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentdesk_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentdesk_login_fail_total",
			Help: "ログイン失敗の合計数",
		}),
		signups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentdesk_signup_total",
			Help: "ユーザー登録の合計数",
		}),
		agentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentdesk_agents_created_total",
			Help: "作成されたエージェントの合計数",
		}),
		routeDetails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentdesk_route_details_created_total",
			Help: "作成されたルート詳細の合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.loginSuccess,
		c.loginFail,
		c.signups,
		c.agentsCreated,
		c.routeDetails,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
// 失敗理由（ユーザー不存在/パスワード不一致）はラベルに含めない。
func (c *Collector) RecordLoginFailure() {
	c.loginFail.Inc()
}

// RecordSignup はユーザー登録を記録する。
func (c *Collector) RecordSignup() {
	c.signups.Inc()
}

// RecordAgentCreated はエージェント作成と付随ルート詳細数を記録する。
func (c *Collector) RecordAgentCreated(routeDetails int) {
	c.agentsCreated.Inc()
	c.routeDetails.Add(float64(routeDetails))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)

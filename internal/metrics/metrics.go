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
// APIクライアントやセッション、リアルタイム接続から利用する。
type MetricsCollector interface {
	RecordAPIRequest(method string, statusCode int, duration time.Duration)
	RecordTransportFailure(method string)
	RecordAuthInvalidation()
	RecordRealtimeConnect()
	RecordRealtimeReconnect()
	RecordNotificationPushed()
	RecordToggleFailure(kind string)
	RecordMediaBlocked()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	apiRequests        *prometheus.CounterVec
	apiLatency         prometheus.Histogram
	transportFail      *prometheus.CounterVec
	authInvalidations  prometheus.Counter
	realtimeConnects   prometheus.Counter
	realtimeReconnects prometheus.Counter
	pushed             prometheus.Counter
	toggleFail         *prometheus.CounterVec
	mediaBlocked       prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogclient_api_requests_total",
			Help: "バックエンドAPIへのリクエスト数（メソッド・ステータスコード別）",
		}, []string{"method", "status_code"}),
		apiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "blogclient_api_latency_seconds",
			Help:    "バックエンドAPIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		transportFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogclient_api_transport_fail_total",
			Help: "応答を得られなかったAPIリクエストの合計数",
		}, []string{"method"}),
		authInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogclient_auth_invalidations_total",
			Help: "401応答による認証情報無効化の合計数",
		}),
		realtimeConnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogclient_realtime_connects_total",
			Help: "通知ハブへの接続成功の合計数",
		}),
		realtimeReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogclient_realtime_reconnects_total",
			Help: "通知ハブへの再接続試行の合計数",
		}),
		pushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogclient_notifications_pushed_total",
			Help: "プッシュ受信した通知の合計数",
		}),
		toggleFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogclient_toggle_fail_total",
			Help: "ロールバックされた楽観的トグルの合計数",
		}, []string{"kind"}),
		mediaBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogclient_media_blocked_total",
			Help: "許可リスト外としてブロックした画像URLの合計数",
		}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.transportFail,
		c.authInvalidations,
		c.realtimeConnects,
		c.realtimeReconnects,
		c.pushed,
		c.toggleFail,
		c.mediaBlocked,
	)

	return c
}

// RecordAPIRequest はAPIリクエストの結果とレイテンシを記録する。
func (c *Collector) RecordAPIRequest(method string, statusCode int, duration time.Duration) {
	c.apiRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.apiLatency.Observe(duration.Seconds())
}

// RecordTransportFailure は応答なしで失敗したリクエストを記録する。
func (c *Collector) RecordTransportFailure(method string) {
	c.transportFail.WithLabelValues(method).Inc()
}

// RecordAuthInvalidation は認証情報の無効化を記録する。
func (c *Collector) RecordAuthInvalidation() {
	c.authInvalidations.Inc()
}

// RecordRealtimeConnect は通知ハブへの接続成功を記録する。
func (c *Collector) RecordRealtimeConnect() {
	c.realtimeConnects.Inc()
}

// RecordRealtimeReconnect は再接続の試行を記録する。
func (c *Collector) RecordRealtimeReconnect() {
	c.realtimeReconnects.Inc()
}

// RecordNotificationPushed はプッシュ受信した通知を記録する。
func (c *Collector) RecordNotificationPushed() {
	c.pushed.Inc()
}

// RecordToggleFailure はトグル失敗によるロールバックを記録する。
func (c *Collector) RecordToggleFailure(kind string) {
	c.toggleFail.WithLabelValues(kind).Inc()
}

// RecordMediaBlocked はブロックした画像URLを記録する。
func (c *Collector) RecordMediaBlocked() {
	c.mediaBlocked.Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordAPIRequest(string, int, time.Duration) {}
func (Nop) RecordTransportFailure(string)               {}
func (Nop) RecordAuthInvalidation()                     {}
func (Nop) RecordRealtimeConnect()                      {}
func (Nop) RecordRealtimeReconnect()                    {}
func (Nop) RecordNotificationPushed()                   {}
func (Nop) RecordToggleFailure(string)                  {}
func (Nop) RecordMediaBlocked()                         {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

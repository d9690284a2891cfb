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
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordSignIn(success bool)
	RecordSignUp(success bool)
	RecordPlatformStatus(statusCode int)
	RecordPlatformLatency(duration time.Duration)
	RecordBooking()
	RecordUpload(success bool)
	RecordActiveSessions(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn          *prometheus.CounterVec
	signUp          *prometheus.CounterVec
	platformStatus  *prometheus.CounterVec
	platformLatency prometheus.Histogram
	bookings        prometheus.Counter
	uploads         *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicport_signin_total",
			Help: "サインイン試行の合計数（結果別）",
		}, []string{"result"}),
		signUp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicport_signup_total",
			Help: "新規登録試行の合計数（結果別）",
		}, []string{"result"}),
		platformStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicport_platform_status_total",
			Help: "プラットフォームAPIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		platformLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clinicport_platform_latency_seconds",
			Help:    "プラットフォームAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		bookings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinicport_bookings_total",
			Help: "登録された予約の合計数",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinicport_uploads_total",
			Help: "診療履歴ファイルアップロードの合計数（結果別）",
		}, []string{"result"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clinicport_active_sessions",
			Help: "保持中のセッションマネージャ数",
		}),
	}

	reg.MustRegister(
		c.signIn,
		c.signUp,
		c.platformStatus,
		c.platformLatency,
		c.bookings,
		c.uploads,
		c.activeSessions,
	)

	return c
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordSignIn はサインイン試行の結果を記録する。
func (c *Collector) RecordSignIn(success bool) {
	c.signIn.WithLabelValues(resultLabel(success)).Inc()
}

// RecordSignUp は新規登録試行の結果を記録する。
func (c *Collector) RecordSignUp(success bool) {
	c.signUp.WithLabelValues(resultLabel(success)).Inc()
}

// RecordPlatformStatus はプラットフォームAPIのHTTPステータスコードを記録する。
func (c *Collector) RecordPlatformStatus(statusCode int) {
	c.platformStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordPlatformLatency はプラットフォームAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordPlatformLatency(duration time.Duration) {
	c.platformLatency.Observe(duration.Seconds())
}

// RecordBooking は予約登録を記録する。
func (c *Collector) RecordBooking() {
	c.bookings.Inc()
}

// RecordUpload はファイルアップロードの結果を記録する。
func (c *Collector) RecordUpload(success bool) {
	c.uploads.WithLabelValues(resultLabel(success)).Inc()
}

// RecordActiveSessions は保持中のセッションマネージャ数を記録する。
func (c *Collector) RecordActiveSessions(count int) {
	c.activeSessions.Set(float64(count))
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

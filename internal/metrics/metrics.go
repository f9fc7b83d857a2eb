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
// サービス層、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordScan(outcome string)
	RecordScanLatency(duration time.Duration)
	RecordLogin(success bool)
	RecordBadgeFailure()
	RecordSessionsCleaned(count int64)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	scans           *prometheus.CounterVec
	scanLatency     prometheus.Histogram
	logins          *prometheus.CounterVec
	badgeFail       prometheus.Counter
	sessionsCleaned prometheus.Counter
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendman_scans_total",
			Help: "打刻スキャンの結果別の合計数",
		}, []string{"outcome"}),
		scanLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attendman_scan_latency_seconds",
			Help:    "打刻処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendman_logins_total",
			Help: "ログイン試行の結果別の合計数",
		}, []string{"result"}),
		badgeFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendman_badge_failures_total",
			Help: "QRバッジ生成失敗の合計数",
		}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendman_sessions_cleaned_total",
			Help: "削除された期限切れセッションの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.scans,
		c.scanLatency,
		c.logins,
		c.badgeFail,
		c.sessionsCleaned,
		c.httpStatus,
	)

	return c
}

// RecordScan は打刻結果を記録する。
func (c *Collector) RecordScan(outcome string) {
	c.scans.WithLabelValues(outcome).Inc()
}

// RecordScanLatency は打刻処理のレイテンシを記録する。
func (c *Collector) RecordScanLatency(duration time.Duration) {
	c.scanLatency.Observe(duration.Seconds())
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// RecordBadgeFailure はQRバッジ生成の失敗を記録する。
func (c *Collector) RecordBadgeFailure() {
	c.badgeFail.Inc()
}

// RecordSessionsCleaned は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Middleware はレスポンスのステータスコードをCollectorに記録するミドルウェアを返す。
func Middleware(c MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			c.RecordHTTPStatus(sw.status)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordScan(string)               {}
func (Nop) RecordScanLatency(time.Duration) {}
func (Nop) RecordLogin(bool)                {}
func (Nop) RecordBadgeFailure()             {}
func (Nop) RecordSessionsCleaned(int64)     {}
func (Nop) RecordHTTPStatus(int)            {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ストア層とポーリング処理から利用する。
type MetricsCollector interface {
	RecordRefreshSuccess(store string)
	RecordRefreshFailure(store string)
	RecordRefreshCanceled(store string)
	RecordRefreshLatency(store string, duration time.Duration)
	RecordPollCycle()
	RecordReconciliation()
	RecordAlert(kind string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	refreshSuccess  *prometheus.CounterVec
	refreshFail     *prometheus.CounterVec
	refreshCanceled *prometheus.CounterVec
	refreshLatency  *prometheus.HistogramVec
	pollCycles      prometheus.Counter
	reconciliations prometheus.Counter
	alerts          *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		refreshSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chintai_refresh_success_total",
			Help: "ストア別のリフレッシュ成功の合計数",
		}, []string{"store"}),
		refreshFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chintai_refresh_fail_total",
			Help: "ストア別のリフレッシュ失敗の合計数",
		}, []string{"store"}),
		refreshCanceled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chintai_refresh_canceled_total",
			Help: "ストア別のキャンセルされたリフレッシュの合計数",
		}, []string{"store"}),
		refreshLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chintai_refresh_latency_seconds",
			Help:    "ストア別のリフレッシュのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"store"}),
		pollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chintai_poll_cycles_total",
			Help: "未読数ポーリングサイクルの合計数",
		}),
		reconciliations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chintai_reconciliations_total",
			Help: "楽観的更新失敗後のリコンシリエーションの合計数",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chintai_alerts_total",
			Help: "種別ごとの表示アラートの合計数",
		}, []string{"kind"}),
		registry: reg,
	}

	reg.MustRegister(
		c.refreshSuccess,
		c.refreshFail,
		c.refreshCanceled,
		c.refreshLatency,
		c.pollCycles,
		c.reconciliations,
		c.alerts,
	)

	return c
}

// RecordRefreshSuccess はリフレッシュ成功を記録する。
func (c *Collector) RecordRefreshSuccess(store string) {
	c.refreshSuccess.WithLabelValues(store).Inc()
}

// RecordRefreshFailure はリフレッシュ失敗を記録する。
func (c *Collector) RecordRefreshFailure(store string) {
	c.refreshFail.WithLabelValues(store).Inc()
}

// RecordRefreshCanceled はキャンセルされたリフレッシュを記録する。
func (c *Collector) RecordRefreshCanceled(store string) {
	c.refreshCanceled.WithLabelValues(store).Inc()
}

// RecordRefreshLatency はリフレッシュのレイテンシを記録する。
func (c *Collector) RecordRefreshLatency(store string, duration time.Duration) {
	c.refreshLatency.WithLabelValues(store).Observe(duration.Seconds())
}

// RecordPollCycle は未読数ポーリングサイクルの実行を記録する。
func (c *Collector) RecordPollCycle() {
	c.pollCycles.Inc()
}

// RecordReconciliation はリコンシリエーションの実行を記録する。
func (c *Collector) RecordReconciliation() {
	c.reconciliations.Inc()
}

// RecordAlert は表示アラートを記録する。
func (c *Collector) RecordAlert(kind string) {
	c.alerts.WithLabelValues(kind).Inc()
}

// Handler はPrometheusメトリクスのHTTPハンドラーを返す。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Noop は何も記録しないMetricsCollector実装。
// メトリクスが不要なテストや軽量コマンドで使用する。
type Noop struct{}

func (Noop) RecordRefreshSuccess(string)                {}
func (Noop) RecordRefreshFailure(string)                {}
func (Noop) RecordRefreshCanceled(string)               {}
func (Noop) RecordRefreshLatency(string, time.Duration) {}
func (Noop) RecordPollCycle()                           {}
func (Noop) RecordReconciliation()                      {}
func (Noop) RecordAlert(string)                         {}

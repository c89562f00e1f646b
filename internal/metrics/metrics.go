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
// 取り込みサービスやミドルウェアから利用する。
type MetricsCollector interface {
	RecordIngestSuccess(feedURL string)
	RecordIngestFailure(feedURL string, reason string)
	RecordParseFailure(feedURL string)
	RecordIngestLatency(duration time.Duration)
	RecordItemsInserted(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	ingestSuccess prometheus.Counter
	ingestFail    prometheus.Counter
	parseFail     prometheus.Counter
	ingestLatency prometheus.Histogram
	itemsInserted prometheus.Counter
	httpStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ingestSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feednest_ingest_success_total",
			Help: "フィード取り込み成功の合計数",
		}),
		ingestFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feednest_ingest_fail_total",
			Help: "フィード取り込み失敗の合計数",
		}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feednest_parse_fail_total",
			Help: "アグリゲーター応答の解析失敗の合計数",
		}),
		ingestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feednest_ingest_latency_seconds",
			Help:    "フィード取り込みのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feednest_items_inserted_total",
			Help: "新規挿入された記事の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feednest_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.ingestSuccess,
		c.ingestFail,
		c.parseFail,
		c.ingestLatency,
		c.itemsInserted,
		c.httpStatus,
	)

	return c
}

// RecordIngestSuccess は取り込み成功を記録する。
func (c *Collector) RecordIngestSuccess(feedURL string) {
	c.ingestSuccess.Inc()
}

// RecordIngestFailure は取り込み失敗を記録する。
func (c *Collector) RecordIngestFailure(feedURL string, reason string) {
	c.ingestFail.Inc()
}

// RecordParseFailure は解析失敗を記録する。
func (c *Collector) RecordParseFailure(feedURL string) {
	c.parseFail.Inc()
}

// RecordIngestLatency は取り込みのレイテンシを記録する。
func (c *Collector) RecordIngestLatency(duration time.Duration) {
	c.ingestLatency.Observe(duration.Seconds())
}

// RecordItemsInserted は新規挿入された記事数を記録する。
func (c *Collector) RecordItemsInserted(count int) {
	c.itemsInserted.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)

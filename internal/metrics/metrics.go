// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 生成リクエストの結果ラベル
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidInput       = "invalid_input"
	OutcomeCredentialsMissing = "credentials_missing"
	OutcomeResearchFailed     = "research_failed"
	OutcomeContentFailed      = "content_failed"
)

// 生成の段階ラベル
const (
	PhaseResearch = "research"
	PhaseContent  = "content"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやエージェントから利用する。
type MetricsCollector interface {
	RecordGeneration(outcome string)
	RecordPhaseLatency(phase string, duration time.Duration)
	RecordCredentialOperation(operation string, success bool)
	RecordHTTPStatus(statusCode int)
	RecordRateLimited(limitType string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	generations  *prometheus.CounterVec
	phaseLatency *prometheus.HistogramVec
	credentialOp *prometheus.CounterVec
	httpStatus   *prometheus.CounterVec
	rateLimited  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postmate_generation_requests_total",
			Help: "結果別の生成リクエスト数",
		}, []string{"outcome"}),
		phaseLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "postmate_generation_phase_seconds",
			Help: "生成の段階別レイテンシ（秒）",
			// LLM呼び出しは数秒から数十秒かかる
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"phase"}),
		credentialOp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postmate_credential_operations_total",
			Help: "クレデンシャル操作の数",
		}, []string{"operation", "result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postmate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postmate_rate_limited_total",
			Help: "レート制限で拒否されたリクエスト数",
		}, []string{"limit"}),
	}

	reg.MustRegister(
		c.generations,
		c.phaseLatency,
		c.credentialOp,
		c.httpStatus,
		c.rateLimited,
	)

	return c
}

// RecordGeneration は生成リクエストの結果を記録する。
func (c *Collector) RecordGeneration(outcome string) {
	c.generations.WithLabelValues(outcome).Inc()
}

// RecordPhaseLatency は生成の段階ごとのレイテンシを記録する。
func (c *Collector) RecordPhaseLatency(phase string, duration time.Duration) {
	c.phaseLatency.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordCredentialOperation はクレデンシャルの取得・保存を記録する。
func (c *Collector) RecordCredentialOperation(operation string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.credentialOp.WithLabelValues(operation, result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRateLimited はレート制限の発動を記録する。
func (c *Collector) RecordRateLimited(limitType string) {
	c.rateLimited.WithLabelValues(limitType).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

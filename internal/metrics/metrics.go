// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// auth.Recorderとmiddleware.RejectionRecorderを満たす。
type Collector struct {
	logins        *prometheus.CounterVec
	tokenRejected *prometheus.CounterVec
	idpExchange   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idgate_login_total",
			Help: "ログイン試行の合計数（方式・結果別）",
		}, []string{"method", "outcome"}),
		tokenRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idgate_token_rejected_total",
			Help: "Bearerトークンを拒否した合計数（理由別）",
		}, []string{"reason"}),
		idpExchange: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "idgate_idp_exchange_seconds",
			Help:    "IdPとの認可コード交換にかかった時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.logins,
		c.tokenRejected,
		c.idpExchange,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。outcomeは"success"または失敗種別。
func (c *Collector) RecordLogin(method string, outcome string) {
	c.logins.WithLabelValues(method, outcome).Inc()
}

// RecordTokenRejected はBearerトークンの拒否を記録する。
func (c *Collector) RecordTokenRejected(reason string) {
	c.tokenRejected.WithLabelValues(reason).Inc()
}

// ObserveIdPExchange はIdPとの認可コード交換時間を記録する。
func (c *Collector) ObserveIdPExchange(d time.Duration) {
	c.idpExchange.Observe(d.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

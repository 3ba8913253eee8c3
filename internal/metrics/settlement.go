package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settle_requests_total",
			Help: "Total settlement requests by result",
		},
		[]string{"result"},
	)

	settleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settle_request_duration_ms",
			Help:    "Settlement processing duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"result"},
	)

	settlePoolAmount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "settle_pool_amount",
			Help:    "Settled pool amount distribution",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
)

// RecordSettle 记录结算操作的业务指标
// result: "success" | "success_idempotent" | "fail"
func RecordSettle(result string, started time.Time) {
	res := strings.ToLower(strings.TrimSpace(result))
	switch res {
	case "success", "success_idempotent":
	default:
		res = "fail"
	}
	settleTotal.WithLabelValues(res).Inc()
	durMs := float64(time.Since(started).Milliseconds())
	settleDuration.WithLabelValues(res).Observe(durMs)
}

// ObservePool 记录一次成功结算的奖池金额
func ObservePool(pool float64) {
	settlePoolAmount.Observe(pool)
}

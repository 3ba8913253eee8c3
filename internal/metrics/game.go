package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gameOpTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_requests_total",
			Help: "Total game lifecycle requests by result and op",
		},
		[]string{"result", "op"},
	)

	gameOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "game_request_duration_ms",
			Help:    "Game lifecycle request duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"result", "op"},
	)
)

// RecordGameOp 记录对局生命周期操作的业务指标
// result: "success" | "fail"
// op: "create" | "join" | "start" | "get" | "list"
func RecordGameOp(result, op string, started time.Time) {
	res := result
	if res != "success" { res = "fail" }
	o := strings.ToLower(strings.TrimSpace(op))
	if o == "" { o = "unknown" }
	gameOpTotal.WithLabelValues(res, o).Inc()
	durMs := float64(time.Since(started).Milliseconds())
	gameOpDuration.WithLabelValues(res, o).Observe(durMs)
}

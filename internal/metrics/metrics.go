package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TransferRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncgw_transfer_records_total",
			Help: "Transfer records by kind, direction and outcome",
		},
		[]string{"kind", "direction", "outcome"}, // export|import , imported|updated|skipped|failed|exported
	)

	TransferBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncgw_transfer_batches_total",
			Help: "Transfer batch files by kind, direction and final status",
		},
		[]string{"kind", "direction", "status"},
	)

	RateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncgw_rate_limit_decisions_total",
			Help: "Rate limiter decisions by level",
		},
		[]string{"level"}, // ok|warning|soft_block|exceeded
	)

	ResponseCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncgw_response_cache_total",
			Help: "Response cache lookups by result",
		},
		[]string{"result"}, // hit|miss|error
	)
)

var registerOnce sync.Once

// MustRegister registers all collectors once; serve and worker may both call it.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			TransferRecordsTotal,
			TransferBatchesTotal,
			RateLimitDecisionsTotal,
			ResponseCacheTotal,
		)
	})
}

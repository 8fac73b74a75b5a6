package throttle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	throttleQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_throttle_queue_length",
		Help: "Number of upstream calls waiting in the throttle queue",
	})

	throttleExecutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_throttle_executed_total",
		Help: "Total number of throttled calls by result",
	}, []string{"result"}) // result: success, error, dropped

	throttleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_throttle_wait_seconds",
		Help:    "Time an item spent queued before it started",
		Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10},
	})
)

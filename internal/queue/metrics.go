package queue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	enqueueTotal  *prometheus.CounterVec
	dispatchTotal *prometheus.CounterVec
	deadTotal     *prometheus.CounterVec
	redelivered   *prometheus.CounterVec

	dispatchLatency *prometheus.HistogramVec

	pending *prometheus.GaugeVec
	locked  *prometheus.GaugeVec
	dead    *prometheus.GaugeVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		enqueueTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queue",
			Name:      "enqueue_total",
			Help:      "Total number of queue enqueue operations.",
		}, []string{"table", "job"}),
		dispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queue",
			Name:      "dispatch_total",
			Help:      "Total number of handler invocations.",
		}, []string{"table", "job", "result"}),
		deadTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queue",
			Name:      "dead_total",
			Help:      "Total number of messages that entered dead state.",
		}, []string{"table", "job"}),
		redelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queue",
			Name:      "redelivered_total",
			Help:      "Total number of messages reclaimed after lock expiry.",
		}, []string{"table", "job"}),
		dispatchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "queue",
			Name:      "dispatch_latency_seconds",
			Help:      "Latency distribution for handler invocations.",
			Buckets: []float64{
				0.01, 0.05, 0.1,
				0.5, 1, 2, 5,
				10, 30, 60, 120, 300, 600,
			},
		}, []string{"table", "job", "result"}),
		pending: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "queue",
			Name:      "pending",
			Help:      "Current number of messages neither completed nor dead.",
		}, []string{"table"}),
		locked: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "queue",
			Name:      "locked",
			Help:      "Current number of messages held by a worker.",
		}, []string{"table"}),
		dead: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "queue",
			Name:      "dead",
			Help:      "Current number of dead messages awaiting manual retry.",
		}, []string{"table"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

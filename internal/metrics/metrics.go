// Package metrics holds the Prometheus collectors for imports and reconciliation.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "canvass"

// Import row outcomes.
const (
	RowInserted = "inserted"
	RowUpdated  = "updated"
	RowSkipped  = "skipped"
)

type collectors struct {
	importJobs     *prometheus.CounterVec
	importRows     *prometheus.CounterVec
	importDuration *prometheus.HistogramVec
	merges         *prometheus.CounterVec
	alertsCreated  prometheus.Counter
}

var getCollectors = sync.OnceValue(func() *collectors {
	c := &collectors{
		importJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "jobs_total",
			Help:      "Import jobs finished, by final status.",
		}, []string{"status"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Import rows processed, by outcome.",
		}, []string{"outcome"}),
		importDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Wall time of import jobs.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
		}, []string{"status"}),
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "merges_total",
			Help:      "Merge requests that succeeded, by kind.",
		}, []string{"kind"}),
		alertsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "alerts_created_total",
			Help:      "Merge alerts raised by phone matching.",
		}),
	}
	prometheus.MustRegister(c.importJobs, c.importRows, c.importDuration, c.merges, c.alertsCreated)
	return c
})

// Import records import job outcomes. The zero value is usable.
type Import struct{}

func (Import) JobFinished(status string, elapsed time.Duration) {
	c := getCollectors()
	c.importJobs.WithLabelValues(status).Inc()
	c.importDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (Import) Rows(outcome string, n int) {
	if n <= 0 {
		return
	}
	getCollectors().importRows.WithLabelValues(outcome).Add(float64(n))
}

// Reconcile records merge engine activity.
type Reconcile struct{}

func (Reconcile) Merged(idempotent bool) {
	kind := "merge"
	if idempotent {
		kind = "idempotent"
	}
	getCollectors().merges.WithLabelValues(kind).Inc()
}

func (Reconcile) AlertsCreated(n int) {
	if n <= 0 {
		return
	}
	getCollectors().alertsCreated.Add(float64(n))
}

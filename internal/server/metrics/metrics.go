// Package metrics holds the server's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Push outcomes.
const (
	PushApplied   = "applied"
	PushDuplicate = "duplicate"
	PushConflict  = "conflict"
	PushRejected  = "rejected"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	pushes      *prometheus.CounterVec
	pulledRows  *prometheus.CounterVec
	feedClients prometheus.Gauge
	published   prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storekeeper",
			Name:      "push_total",
			Help:      "Pushed rows by table and outcome.",
		}, []string{"table", "result"}),
		pulledRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storekeeper",
			Name:      "pulled_rows_total",
			Help:      "Rows returned by pulls, by table.",
		}, []string{"table"}),
		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "storekeeper",
			Name:      "changefeed_clients",
			Help:      "Connected changefeed subscribers.",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storekeeper",
			Name:      "changefeed_published_total",
			Help:      "Change notifications published.",
		}),
	}
	reg.MustRegister(m.pushes, m.pulledRows, m.feedClients, m.published)
	return m
}

func (m *Metrics) Push(table, result string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(table, result).Inc()
}

func (m *Metrics) Pulled(table string, n int) {
	if m == nil {
		return
	}
	m.pulledRows.WithLabelValues(table).Add(float64(n))
}

func (m *Metrics) FeedClients(delta int) {
	if m == nil {
		return
	}
	m.feedClients.Add(float64(delta))
}

func (m *Metrics) Published() {
	if m == nil {
		return
	}
	m.published.Inc()
}

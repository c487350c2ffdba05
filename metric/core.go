package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "eipcanvas"

// Metrics contains the flow engine instruments registered on every registry.
type Metrics struct {
	FlowMutations  *prometheus.CounterVec
	FlowNodes      prometheus.Gauge
	FlowEdges      prometheus.Gauge
	FlowConfigs    prometheus.Gauge
	LayoutDuration prometheus.Histogram
}

// NewMetrics creates the flow engine instruments.
func NewMetrics() *Metrics {
	return &Metrics{
		FlowMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "flow",
				Name:      "mutations_total",
				Help:      "Total number of flow store mutations by operation and result",
			},
			[]string{"operation", "result"},
		),

		FlowNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "flow",
				Name:      "nodes",
				Help:      "Number of nodes on the canvas",
			},
		),

		FlowEdges: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "flow",
				Name:      "edges",
				Help:      "Number of edges on the canvas",
			},
		),

		FlowConfigs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "flow",
				Name:      "configs",
				Help:      "Number of configuration records, roots and children",
			},
		),

		LayoutDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "layout",
				Name:      "duration_seconds",
				Help:      "Time spent computing a diagram layout",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FlowMutations,
		m.FlowNodes,
		m.FlowEdges,
		m.FlowConfigs,
		m.LayoutDuration,
	}
}

// RecordMutation counts a store mutation. result is "ok" or the error class.
func (m *Metrics) RecordMutation(operation, result string) {
	m.FlowMutations.WithLabelValues(operation, result).Inc()
}

// RecordSize updates the flow size gauges.
func (m *Metrics) RecordSize(nodes, edges, configs int) {
	m.FlowNodes.Set(float64(nodes))
	m.FlowEdges.Set(float64(edges))
	m.FlowConfigs.Set(float64(configs))
}

// RecordLayout records the duration of one layout computation.
func (m *Metrics) RecordLayout(d time.Duration) {
	m.LayoutDuration.Observe(d.Seconds())
}

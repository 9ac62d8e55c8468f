package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the gateway's Prometheus collectors.
type Metrics struct {
	active   prometheus.Gauge
	searches *prometheus.CounterVec
	closes   *prometheus.CounterVec
}

// NewMetrics registers the gateway collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "devtree",
			Subsystem: "ws",
			Name:      "connections_active",
			Help:      "Open live search connections.",
		}),
		searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devtree",
			Subsystem: "ws",
			Name:      "searches_total",
			Help:      "Handle searches answered over websocket, by result.",
		}, []string{"result"}),
		closes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devtree",
			Subsystem: "ws",
			Name:      "closes_total",
			Help:      "Live search connections closed by the server, by reason.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.active.Inc()
	}
}

func (m *Metrics) connClosed() {
	if m != nil {
		m.active.Dec()
	}
}

func (m *Metrics) search(result string) {
	if m != nil {
		m.searches.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) closed(reason string) {
	if m != nil {
		m.closes.WithLabelValues(reason).Inc()
	}
}

package authapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts identity operations by outcome.
type Metrics struct {
	ops *prometheus.CounterVec
}

// NewMetrics registers devtree_identity_operations_total on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ops: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "devtree",
			Subsystem: "identity",
			Name:      "operations_total",
			Help:      "Identity HTTP operations by operation and result.",
		}, []string{"op", "result"}),
	}
}

func (m *Metrics) observe(op, result string) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, result).Inc()
}

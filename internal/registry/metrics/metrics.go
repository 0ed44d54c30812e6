package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry intake module.
type Metrics struct {
	RequestsSubmitted *prometheus.CounterVec
}

// New creates a Metrics instance with all registry module metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "landchain_registry_requests_submitted_total",
			Help: "Citizen requests accepted by type",
		}, []string{"type"}),
	}
}

// IncrementRequestSubmitted records an accepted request.
func (m *Metrics) IncrementRequestSubmitted(requestType string) {
	if m != nil {
		m.RequestsSubmitted.WithLabelValues(requestType).Inc()
	}
}

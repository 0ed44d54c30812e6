package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the governance decision module.
type Metrics struct {
	Decisions     *prometheus.CounterVec
	ParcelsMinted prometheus.Counter
}

// New creates a Metrics instance with all governance module metrics registered.
func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "landchain_governance_decisions_total",
			Help: "Decisions applied by request type and resulting status",
		}, []string{"type", "status"}),
		ParcelsMinted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "landchain_governance_parcels_minted_total",
			Help: "Parcels minted from approved registration requests",
		}),
	}
}

// IncrementDecision records an applied decision.
func (m *Metrics) IncrementDecision(requestType, status string) {
	if m != nil {
		m.Decisions.WithLabelValues(requestType, status).Inc()
	}
}

// IncrementParcelMinted records a newly minted parcel.
func (m *Metrics) IncrementParcelMinted() {
	if m != nil {
		m.ParcelsMinted.Inc()
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the chain verification module.
type Metrics struct {
	// RPC requests by endpoint and outcome ("ok", "transient", "error")
	RPCRequests *prometheus.CounterVec

	// Endpoint rotations triggered by transient failures
	Failovers *prometheus.CounterVec

	// Verification verdicts by kind and outcome
	Verifications *prometheus.CounterVec

	// Verification latency by kind, including all RPC round trips
	VerifyLatency *prometheus.HistogramVec

	// Verdict cache hits and misses
	CacheLookups *prometheus.CounterVec
}

// New creates a Metrics instance with all chain module metrics registered.
func New() *Metrics {
	return &Metrics{
		RPCRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "landchain_chain_rpc_requests_total",
			Help: "Total Solana RPC requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),

		Failovers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "landchain_chain_rpc_failovers_total",
			Help: "Endpoint rotations caused by transient RPC failures",
		}, []string{"endpoint"}),

		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "landchain_chain_verifications_total",
			Help: "Verification verdicts by kind and outcome",
		}, []string{"kind", "outcome"}), // kind: "execution", "action", "proposal"

		VerifyLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "landchain_chain_verify_duration_seconds",
			Help:    "Duration of chain verification calls by kind",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "landchain_chain_verdict_cache_lookups_total",
			Help: "Verdict cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss"
	}
}

// IncrementRPCRequest records one RPC round trip.
func (m *Metrics) IncrementRPCRequest(endpoint, outcome string) {
	if m != nil {
		m.RPCRequests.WithLabelValues(endpoint, outcome).Inc()
	}
}

// IncrementFailover records a rotation away from an endpoint.
func (m *Metrics) IncrementFailover(endpoint string) {
	if m != nil {
		m.Failovers.WithLabelValues(endpoint).Inc()
	}
}

// IncrementVerification records a verification verdict.
func (m *Metrics) IncrementVerification(kind, outcome string) {
	if m != nil {
		m.Verifications.WithLabelValues(kind, outcome).Inc()
	}
}

// ObserveVerifyLatency records the duration of a verification call.
func (m *Metrics) ObserveVerifyLatency(kind string, d time.Duration) {
	if m != nil {
		m.VerifyLatency.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// IncrementCacheLookup records a verdict cache hit or miss.
func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

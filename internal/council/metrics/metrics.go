package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the council workflow module.
type Metrics struct {
	ProposalsCreated prometheus.Counter
	ProposalsLinked  prometheus.Counter
	VotesCast        *prometheus.CounterVec
	RequestsReady    prometheus.Counter
}

// New creates a Metrics instance with all council module metrics registered.
func New() *Metrics {
	return &Metrics{
		ProposalsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "landchain_council_proposals_created_total",
			Help: "Governance proposals created through the workflow engine",
		}),
		ProposalsLinked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "landchain_council_proposals_linked_total",
			Help: "Existing on-chain proposals linked to requests",
		}),
		VotesCast: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "landchain_council_votes_cast_total",
			Help: "Council votes cast by choice",
		}, []string{"choice"}),
		RequestsReady: promauto.NewCounter(prometheus.CounterOpts{
			Name: "landchain_council_requests_ready_total",
			Help: "Requests that reached the approval threshold",
		}),
	}
}

// IncrementProposalCreated records a proposal creation.
func (m *Metrics) IncrementProposalCreated() {
	if m != nil {
		m.ProposalsCreated.Inc()
	}
}

// IncrementProposalLinked records an existing proposal being linked.
func (m *Metrics) IncrementProposalLinked() {
	if m != nil {
		m.ProposalsLinked.Inc()
	}
}

// IncrementVoteCast records a vote by choice.
func (m *Metrics) IncrementVoteCast(choice string) {
	if m != nil {
		m.VotesCast.WithLabelValues(choice).Inc()
	}
}

// IncrementRequestReady records a request crossing the threshold.
func (m *Metrics) IncrementRequestReady() {
	if m != nil {
		m.RequestsReady.Inc()
	}
}

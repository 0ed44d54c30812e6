package models

import "time"

// ProposalState mirrors the on-chain proposal lifecycle as far as this service
// tracks it.
type ProposalState string

const (
	ProposalPending ProposalState = "pending"
	ProposalVoting  ProposalState = "voting"
)

// VoteChoice is a council member's vote on a proposal.
type VoteChoice string

const (
	VoteApproved VoteChoice = "approved"
	VoteRejected VoteChoice = "rejected"
)

// Valid reports whether c is a known vote choice.
func (c VoteChoice) Valid() bool {
	return c == VoteApproved || c == VoteRejected
}

// Vote is one council member's recorded vote.
type Vote struct {
	WalletAddress string     `json:"walletAddress"`
	Choice        VoteChoice `json:"vote"`
	VotedAt       time.Time  `json:"votedAt"`
}

// CouncilWorkflow is the per-request proposal/vote state machine. ApprovalCount
// and ReadyForDAOAuthority are derived from Votes; Normalize recomputes them and
// is the only code allowed to trust them.
type CouncilWorkflow struct {
	ProposalCreated   bool          `json:"proposalCreated"`
	ProposalCreatedBy string        `json:"proposalCreatedBy,omitempty"`
	ProposalCreatedAt *time.Time    `json:"proposalCreatedAt,omitempty"`
	ProposalAddress   string        `json:"proposalAddress,omitempty"`
	ProposalState     ProposalState `json:"proposalState,omitempty"`

	// RequiredApprovals is fixed when the workflow is initialized; later
	// configuration changes never alter in-flight requests.
	RequiredApprovals int `json:"requiredApprovals"`

	Votes []Vote `json:"votes"`

	ApprovalCount        int  `json:"approvalCount"`
	ReadyForDAOAuthority bool `json:"readyForDaoAuthority"`
}

// Normalize is the idempotent repair pass run before any read or mutation of
// workflow state. It deduplicates votes by wallet (first occurrence wins),
// coerces unknown vote values to rejected, and recomputes the derived fields
// from the vote list rather than trusting stored values.
func (w *CouncilWorkflow) Normalize() {
	seen := make(map[string]struct{}, len(w.Votes))
	kept := w.Votes[:0]
	approvals := 0
	for _, v := range w.Votes {
		if v.WalletAddress == "" {
			continue
		}
		if _, dup := seen[v.WalletAddress]; dup {
			continue
		}
		seen[v.WalletAddress] = struct{}{}
		if !v.Choice.Valid() {
			v.Choice = VoteRejected
		}
		if v.Choice == VoteApproved {
			approvals++
		}
		kept = append(kept, v)
	}
	w.Votes = kept
	w.ApprovalCount = approvals
	// A zero threshold means the workflow was never initialized with a council
	// configuration; such a request cannot become ready.
	w.ReadyForDAOAuthority = w.ProposalCreated &&
		w.RequiredApprovals > 0 &&
		w.ApprovalCount >= w.RequiredApprovals
}

// HasVoted reports whether the wallet already has a vote recorded.
func (w *CouncilWorkflow) HasVoted(wallet string) bool {
	for _, v := range w.Votes {
		if v.WalletAddress == wallet {
			return true
		}
	}
	return false
}

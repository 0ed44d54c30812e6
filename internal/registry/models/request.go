package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestType discriminates the citizen request variants.
type RequestType string

const (
	RequestWhitelist    RequestType = "whitelist"
	RequestRegistration RequestType = "registration"
	RequestTransfer     RequestType = "transfer"
	RequestFreeze       RequestType = "freeze"
)

// Valid reports whether t is one of the known request types.
func (t RequestType) Valid() bool {
	switch t {
	case RequestWhitelist, RequestRegistration, RequestTransfer, RequestFreeze:
		return true
	}
	return false
}

// RequestStatus is the request lifecycle state. approved and rejected are
// terminal.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// GovernanceStamp records the on-chain proof attached when a decision is
// applied.
type GovernanceStamp struct {
	ProposalAddress      string     `json:"proposalAddress,omitempty"`
	ExecutionTxSignature string     `json:"executionTxSignature,omitempty"`
	ActionTxSignature    string     `json:"actionTxSignature,omitempty"`
	ParcelMintAddress    string     `json:"parcelMintAddress,omitempty"`
	VerifiedSlot         uint64     `json:"verifiedSlot,omitempty"`
	VerifiedAt           *time.Time `json:"verifiedAt,omitempty"`
}

// Request is a citizen submission gated by council governance. Fields beyond
// the common envelope apply per type: registration carries owner/location/size,
// transfer carries ToWallet/ToName/ParcelID, freeze carries ParcelID and
// FreezeReason.
type Request struct {
	ID            string        `json:"id"`
	WalletAddress string        `json:"walletAddress"`
	Type          RequestType   `json:"requestType"`
	Status        RequestStatus `json:"status"`

	OwnerName    string   `json:"ownerName,omitempty"`
	Location     Location `json:"location,omitempty"`
	Size         Size     `json:"size,omitempty"`
	DocumentHash string   `json:"documentHash,omitempty"`

	ToWallet string `json:"toWallet,omitempty"`
	ToName   string `json:"toName,omitempty"`
	// ParcelID references a Parcel by id or token id. Resolved on demand; not a
	// foreign key.
	ParcelID     string `json:"parcelId,omitempty"`
	FreezeReason string `json:"freezeReason,omitempty"`

	PaymentTxSignature string `json:"paymentTxSignature,omitempty"`

	Governance GovernanceStamp `json:"governance"`
	Workflow   CouncilWorkflow `json:"councilWorkflow"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Version backs the store's conditional update. Zero means not yet persisted.
	Version int64 `json:"version"`
}

// NewRequest builds a pending request envelope. Variant fields are set by the
// caller before persisting.
func NewRequest(t RequestType, walletAddress string, now time.Time) *Request {
	return &Request{
		ID:            uuid.NewString(),
		WalletAddress: walletAddress,
		Type:          t,
		Status:        RequestPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Terminal reports whether the request has been decided.
func (r *Request) Terminal() bool {
	return r.Status != RequestPending
}

// Clone returns a deep copy so stores never hand out aliased records.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Workflow.Votes = append([]Vote(nil), r.Workflow.Votes...)
	if r.Governance.VerifiedAt != nil {
		at := *r.Governance.VerifiedAt
		cp.Governance.VerifiedAt = &at
	}
	if r.Workflow.ProposalCreatedAt != nil {
		at := *r.Workflow.ProposalCreatedAt
		cp.Workflow.ProposalCreatedAt = &at
	}
	return &cp
}

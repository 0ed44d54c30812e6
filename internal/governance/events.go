package governance

import (
	"time"

	"landchain/internal/registry/models"
)

// DecisionEvent is published after a decision has been durably applied.
// Consumers replicate registry state; the event is informational and carries
// no authority of its own.
type DecisionEvent struct {
	RequestID     string               `json:"requestId"`
	RequestType   models.RequestType   `json:"requestType"`
	Status        models.RequestStatus `json:"status"`
	WalletAddress string               `json:"walletAddress"`

	ParcelID          string `json:"parcelId,omitempty"`
	ParcelTokenID     uint64 `json:"parcelTokenId,omitempty"`
	ParcelMintAddress string `json:"parcelMintAddress,omitempty"`

	ProposalAddress      string `json:"proposalAddress,omitempty"`
	ExecutionTxSignature string `json:"executionTxSignature,omitempty"`
	ActionTxSignature    string `json:"actionTxSignature,omitempty"`
	VerifiedSlot         uint64 `json:"verifiedSlot,omitempty"`

	DecidedBy string    `json:"decidedBy"`
	DecidedAt time.Time `json:"decidedAt"`
}

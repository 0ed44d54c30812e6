package chain

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// spl-governance proposal account layout, as far as this service reads it:
// byte 0 is the account-type discriminant, bytes [1,33) the governance pubkey,
// byte 65 the proposal-state discriminant. These offsets are the ProposalV2
// layout; legacy V1 accounts (discriminant 5) are accepted on a best-effort
// basis with the same offsets, matching upstream behavior.
const (
	proposalDiscriminantV2 = 14
	proposalDiscriminantV1 = 5

	proposalGovernanceOffset = 1
	proposalStateOffset      = 65
	proposalMinLen           = proposalStateOffset + 1

	proposalStateVoting = 2
)

// VerifyGovernanceProposal fetches the proposal account and checks that it is
// a governance proposal owned by the configured program and attached to the
// configured governance, reporting whether it is currently in voting state.
func (v *Verifier) VerifyGovernanceProposal(ctx context.Context, proposal string, addrs GovernanceAddresses) (ProposalVerdict, error) {
	ctx, span := tracer.Start(ctx, "chain.VerifyGovernanceProposal",
		trace.WithAttributes(attribute.String("proposal", proposal)))
	defer span.End()
	start := time.Now()
	defer func() { v.metrics.ObserveVerifyLatency("proposal", time.Since(start)) }()

	proposalKey, err := solana.PublicKeyFromBase58(proposal)
	if err != nil {
		return v.proposalVerdict(ctx, ProposalVerdict{Reason: "invalid proposal address"}), nil
	}
	programKey, err := solana.PublicKeyFromBase58(addrs.ProgramID)
	if err != nil {
		return v.proposalVerdict(ctx, ProposalVerdict{Reason: "invalid governance program id"}), nil
	}

	account, err := v.source.GetAccountInfo(ctx, proposalKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return v.proposalVerdict(ctx, ProposalVerdict{Reason: "proposal account not found"}), nil
		}
		return ProposalVerdict{}, err
	}

	if !account.Owner.Equals(programKey) {
		return v.proposalVerdict(ctx, ProposalVerdict{
			Reason: "proposal account is not owned by the governance program",
		}), nil
	}

	data := account.Data
	if len(data) == 0 {
		return v.proposalVerdict(ctx, ProposalVerdict{Reason: "proposal account has no data"}), nil
	}
	if data[0] != proposalDiscriminantV2 && data[0] != proposalDiscriminantV1 {
		return v.proposalVerdict(ctx, ProposalVerdict{
			Reason: "account is not a governance proposal",
		}), nil
	}
	if len(data) < proposalMinLen {
		return v.proposalVerdict(ctx, ProposalVerdict{Reason: "proposal account too short"}), nil
	}

	governance := solana.PublicKeyFromBytes(data[proposalGovernanceOffset : proposalGovernanceOffset+32])
	if governance.String() != addrs.Governance {
		return v.proposalVerdict(ctx, ProposalVerdict{
			Reason:     "proposal does not belong to the configured governance",
			Governance: governance.String(),
		}), nil
	}

	out := ProposalVerdict{
		OK:         true,
		IsVoting:   data[proposalStateOffset] == proposalStateVoting,
		Governance: governance.String(),
	}
	return v.proposalVerdict(ctx, out), nil
}

func (v *Verifier) proposalVerdict(ctx context.Context, out ProposalVerdict) ProposalVerdict {
	if out.OK {
		v.metrics.IncrementVerification("proposal", "ok")
	} else {
		v.metrics.IncrementVerification("proposal", "failed")
		v.logger.InfoContext(ctx, "proposal verification failed",
			"reason", out.Reason,
		)
	}
	return out
}

package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"landchain/internal/chain/metrics"
	strutil "landchain/pkg/platform/strings"
)

var tracer = otel.Tracer("landchain/internal/chain")

// GovernanceAddresses holds the spl-governance addresses this deployment
// verifies against. All four must be configured for strict verification.
type GovernanceAddresses struct {
	ProgramID  string
	Realm      string
	Governance string
	Signer     string
}

// Configured reports whether every governance address is present.
func (a GovernanceAddresses) Configured() bool {
	return a.ProgramID != "" && a.Realm != "" && a.Governance != "" && a.Signer != ""
}

// Verdict is the outcome of a chain verification. A false OK carries the
// specific reason so callers can surface it to the user; it is never an error.
type Verdict struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	Slot   uint64 `json:"slot,omitempty"`
}

// ProposalVerdict is the outcome of inspecting a governance proposal account.
type ProposalVerdict struct {
	OK         bool
	Reason     string
	IsVoting   bool
	Governance string
}

// Lookup distinguishes "not found" from "found but failed on chain" from a
// successfully confirmed transaction.
type Lookup struct {
	Found  bool
	Failed bool
	Tx     *TransactionInfo
}

// ExecutionProof names the accounts a governance execution transaction must
// reference.
type ExecutionProof struct {
	Signature           string
	Realm               string
	Governance          string
	GovernanceSigner    string
	Proposal            string
	GovernanceProgramID string
}

// Source resolves transactions and accounts; the ConnectionManager is the
// production implementation.
type Source interface {
	GetTransaction(ctx context.Context, signature solana.Signature) (*TransactionInfo, error)
	GetAccountInfo(ctx context.Context, key solana.PublicKey) (*AccountInfo, error)
}

// Verifier checks claimed on-chain actions against what the chain actually
// recorded.
type Verifier struct {
	source  Source
	cache   *VerdictCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithCache attaches a verdict cache.
func WithCache(cache *VerdictCache) VerifierOption {
	return func(v *Verifier) { v.cache = cache }
}

// WithMetrics attaches verification metrics.
func WithMetrics(m *metrics.Metrics) VerifierOption {
	return func(v *Verifier) { v.metrics = m }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) { v.logger = logger }
}

// NewVerifier builds a verifier over the given source.
func NewVerifier(source Source, opts ...VerifierOption) *Verifier {
	v := &Verifier{source: source, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// GetConfirmedTransaction resolves a signature. Malformed signatures fail
// immediately; transport exhaustion propagates as *RPCUnavailableError.
func (v *Verifier) GetConfirmedTransaction(ctx context.Context, signature string) (Lookup, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return Lookup{}, fmt.Errorf("invalid transaction signature %q: %w", signature, err)
	}
	info, err := v.source.GetTransaction(ctx, sig)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Lookup{Found: false}, nil
		}
		return Lookup{}, err
	}
	return Lookup{Found: true, Failed: info.Failed, Tx: info}, nil
}

// VerifyGovernanceExecution checks that the execution transaction references
// the realm, governance, governance signer and proposal accounts and invokes
// the governance program.
func (v *Verifier) VerifyGovernanceExecution(ctx context.Context, proof ExecutionProof) (Verdict, error) {
	ctx, span := tracer.Start(ctx, "chain.VerifyGovernanceExecution",
		trace.WithAttributes(attribute.String("signature", proof.Signature)))
	defer span.End()
	start := time.Now()
	defer func() { v.metrics.ObserveVerifyLatency("execution", time.Since(start)) }()

	missing := missingFields(map[string]string{
		"signature":           proof.Signature,
		"realm":               proof.Realm,
		"governance":          proof.Governance,
		"governanceSigner":    proof.GovernanceSigner,
		"proposal":            proof.Proposal,
		"governanceProgramId": proof.GovernanceProgramID,
	})
	if len(missing) > 0 {
		return v.verdict(ctx, "execution", Verdict{
			Reason: "missing governance verification parameters: " + strings.Join(missing, ", "),
		}), nil
	}

	required := []string{proof.Realm, proof.Governance, proof.GovernanceSigner, proof.Proposal}
	key := verdictKey("execution", proof.Signature, append(append([]string{}, required...), proof.GovernanceProgramID))
	if cached, ok := v.cache.Get(ctx, key); ok {
		return cached, nil
	}

	lookup, err := v.GetConfirmedTransaction(ctx, proof.Signature)
	if err != nil {
		return Verdict{}, err
	}
	if !lookup.Found {
		return v.verdict(ctx, "execution", Verdict{Reason: "execution transaction not found on chain"}), nil
	}
	if lookup.Failed {
		return v.verdict(ctx, "execution", Verdict{Reason: "execution transaction failed on chain"}), nil
	}

	accounts := lookup.Tx.AddressSet()
	var absent []string
	for _, addr := range required {
		if _, ok := accounts[addr]; !ok {
			absent = append(absent, addr)
		}
	}
	if len(absent) > 0 {
		return v.verdict(ctx, "execution", Verdict{
			Reason: "missing required governance accounts in execution tx: " + strings.Join(absent, ", "),
		}), nil
	}

	if _, ok := lookup.Tx.ProgramSet()[proof.GovernanceProgramID]; !ok {
		return v.verdict(ctx, "execution", Verdict{
			Reason: "governance program not invoked by execution tx",
		}), nil
	}

	out := v.verdict(ctx, "execution", Verdict{OK: true, Slot: lookup.Tx.Slot})
	v.cache.Put(ctx, key, out)
	return out, nil
}

// VerifyParcelAction checks that the action transaction (mint, transfer or
// freeze) references every required account.
func (v *Verifier) VerifyParcelAction(ctx context.Context, signature string, requiredAccounts []string) (Verdict, error) {
	ctx, span := tracer.Start(ctx, "chain.VerifyParcelAction",
		trace.WithAttributes(attribute.String("signature", signature)))
	defer span.End()
	start := time.Now()
	defer func() { v.metrics.ObserveVerifyLatency("action", time.Since(start)) }()

	if signature == "" {
		return v.verdict(ctx, "action", Verdict{Reason: "action transaction signature is required"}), nil
	}
	required := strutil.DedupeAndTrim(requiredAccounts)

	key := verdictKey("action", signature, required)
	if cached, ok := v.cache.Get(ctx, key); ok {
		return cached, nil
	}

	lookup, err := v.GetConfirmedTransaction(ctx, signature)
	if err != nil {
		return Verdict{}, err
	}
	if !lookup.Found {
		return v.verdict(ctx, "action", Verdict{Reason: "action transaction not found on chain"}), nil
	}
	if lookup.Failed {
		return v.verdict(ctx, "action", Verdict{Reason: "action transaction failed on chain"}), nil
	}

	accounts := lookup.Tx.AddressSet()
	var absent []string
	for _, addr := range required {
		if _, ok := accounts[addr]; !ok {
			absent = append(absent, addr)
		}
	}
	if len(absent) > 0 {
		return v.verdict(ctx, "action", Verdict{
			Reason: "missing required accounts in action tx: " + strings.Join(absent, ", "),
		}), nil
	}

	out := v.verdict(ctx, "action", Verdict{OK: true, Slot: lookup.Tx.Slot})
	v.cache.Put(ctx, key, out)
	return out, nil
}

// verdict records metrics/logs for an outcome and returns it unchanged.
func (v *Verifier) verdict(ctx context.Context, kind string, out Verdict) Verdict {
	if out.OK {
		v.metrics.IncrementVerification(kind, "ok")
	} else {
		v.metrics.IncrementVerification(kind, "failed")
		v.logger.InfoContext(ctx, "chain verification failed",
			"kind", kind,
			"reason", out.Reason,
		)
	}
	return out
}

func missingFields(fields map[string]string) []string {
	var missing []string
	// Deterministic order for the reason string.
	for _, name := range []string{"signature", "realm", "governance", "governanceSigner", "proposal", "governanceProgramId"} {
		if val, ok := fields[name]; ok && val == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Package governance applies DAO authority decisions to council-approved
// requests, verifying the backing on-chain transactions before any registry
// state changes.
package governance

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"landchain/internal/chain"
	govmetrics "landchain/internal/governance/metrics"
	"landchain/internal/registry/models"
	"landchain/internal/registry/store"
	dErrors "landchain/pkg/domain-errors"
	"landchain/pkg/platform/sentinel"
)

// conflictRetries bounds re-reads after losing a version race.
const conflictRetries = 3

// VerificationMode selects how much on-chain proof a decision needs.
type VerificationMode string

const (
	// ModeStrict requires council readiness and verified execution and action
	// transactions before an approval is applied.
	ModeStrict VerificationMode = "strict"
	// ModeUnverified applies decisions on the DAO authority's word alone.
	// Development and test deployments only.
	ModeUnverified VerificationMode = "unverified"
)

// Proof carries the on-chain evidence submitted alongside a decision.
type Proof struct {
	ProposalAddress      string `json:"proposalAddress"`
	ExecutionTxSignature string `json:"executionTxSignature"`
	ActionTxSignature    string `json:"actionTxSignature"`
	ParcelMintAddress    string `json:"parcelMintAddress"`
	PaymentTxSignature   string `json:"paymentTxSignature"`
	VerifiedSlot         uint64 `json:"verifiedSlot"`
}

// ActionVerifier checks decision evidence against the chain.
type ActionVerifier interface {
	VerifyGovernanceExecution(ctx context.Context, proof chain.ExecutionProof) (chain.Verdict, error)
	VerifyParcelAction(ctx context.Context, signature string, requiredAccounts []string) (chain.Verdict, error)
}

// EventPublisher emits decision events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Config is the static governance configuration, loaded once at startup.
type Config struct {
	// DAOAuthority is the only wallet allowed to apply decisions.
	DAOAuthority string
	// Addresses configure chain verification. When any address is missing the
	// service runs in unverified mode.
	Addresses chain.GovernanceAddresses
}

// Service applies decisions to requests and mutates the parcel registry.
type Service struct {
	requests store.RequestStore
	parcels  store.ParcelStore
	verifier ActionVerifier

	daoAuthority string
	addresses    chain.GovernanceAddresses
	mode         VerificationMode

	publisher EventPublisher
	metrics   *govmetrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher attaches a decision event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics attaches governance metrics.
func WithMetrics(m *govmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source; tests use this.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds the decision applier. The verification mode is derived
// from the configured addresses: strict when all are present, unverified
// otherwise.
func NewService(requests store.RequestStore, parcels store.ParcelStore, verifier ActionVerifier, cfg Config, opts ...Option) *Service {
	mode := ModeUnverified
	if cfg.Addresses.Configured() {
		mode = ModeStrict
	}

	s := &Service{
		requests:     requests,
		parcels:      parcels,
		verifier:     verifier,
		daoAuthority: cfg.DAOAuthority,
		addresses:    cfg.Addresses,
		mode:         mode,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode reports the active verification mode.
func (s *Service) Mode() VerificationMode {
	return s.mode
}

// ApplyDecision moves a request to a terminal status. A rejection never
// touches the chain or the parcel registry. An approval in strict mode
// requires council readiness plus verified execution and action transactions;
// only then is the registry mutated.
func (s *Service) ApplyDecision(ctx context.Context, requestID, actingWallet string, status models.RequestStatus, proof Proof) (*models.Request, error) {
	if s.daoAuthority == "" || actingWallet != s.daoAuthority {
		return nil, dErrors.New(dErrors.CodeForbidden, "wallet is not the DAO authority")
	}
	if status != models.RequestApproved && status != models.RequestRejected {
		return nil, dErrors.New(dErrors.CodeBadRequest, "decision must be approved or rejected")
	}

	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Terminal() {
		return nil, dErrors.Newf(dErrors.CodeConflict, "request already %s", req.Status)
	}

	if status == models.RequestRejected {
		return s.finalizeRejection(ctx, requestID, actingWallet, proof)
	}
	return s.applyApproval(ctx, req, actingWallet, proof)
}

// finalizeRejection marks the request rejected. The submitted proof is
// stamped for the audit trail; no chain lookups, no parcel mutation.
func (s *Service) finalizeRejection(ctx context.Context, requestID, actingWallet string, proof Proof) (*models.Request, error) {
	req, err := s.claimTerminal(ctx, requestID, models.RequestRejected, func(req *models.Request) {
		now := s.now()
		req.Governance = models.GovernanceStamp{
			ProposalAddress:      proof.ProposalAddress,
			ExecutionTxSignature: proof.ExecutionTxSignature,
			ActionTxSignature:    proof.ActionTxSignature,
			ParcelMintAddress:    proof.ParcelMintAddress,
			VerifiedSlot:         proof.VerifiedSlot,
			VerifiedAt:           &now,
		}
		if proof.PaymentTxSignature != "" {
			req.PaymentTxSignature = proof.PaymentTxSignature
		}
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementDecision(string(req.Type), string(models.RequestRejected))
	s.publishDecision(ctx, req, actingWallet, nil)
	s.logger.InfoContext(ctx, "request rejected",
		"request_id", req.ID,
		"request_type", req.Type,
		"decided_by", actingWallet,
	)
	return req, nil
}

func (s *Service) applyApproval(ctx context.Context, req *models.Request, actingWallet string, proof Proof) (*models.Request, error) {
	if s.mode == ModeStrict && !req.Workflow.ReadyForDAOAuthority {
		return nil, dErrors.New(dErrors.CodeConflict, "request has not reached the council approval threshold")
	}
	if req.Type == models.RequestRegistration {
		if proof.ParcelMintAddress == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "parcel mint address is required for registration approval")
		}
		if proof.ActionTxSignature == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "action transaction signature is required for registration approval")
		}
	}

	// Resolve the target parcel before any write so a bad reference or a
	// frozen parcel fails the decision cleanly.
	var parcel *models.Parcel
	switch req.Type {
	case models.RequestTransfer, models.RequestFreeze:
		var err error
		parcel, err = s.loadParcel(ctx, req.ParcelID)
		if err != nil {
			return nil, err
		}
		if req.Type == models.RequestTransfer && parcel.Frozen() {
			return nil, dErrors.New(dErrors.CodeConflict, "parcel is frozen")
		}
	}

	slot := proof.VerifiedSlot
	if s.mode == ModeStrict {
		verifiedSlot, err := s.verifyApproval(ctx, req, parcel, proof)
		if err != nil {
			return nil, err
		}
		if slot == 0 {
			slot = verifiedSlot
		}
	}

	// The terminal transition is the serialization point: once it commits no
	// concurrent decision can run the side effects again.
	updated, err := s.claimTerminal(ctx, req.ID, models.RequestApproved, func(req *models.Request) {
		now := s.now()
		req.Governance = models.GovernanceStamp{
			ProposalAddress:      proof.ProposalAddress,
			ExecutionTxSignature: proof.ExecutionTxSignature,
			ActionTxSignature:    proof.ActionTxSignature,
			ParcelMintAddress:    proof.ParcelMintAddress,
			VerifiedSlot:         slot,
			VerifiedAt:           &now,
		}
		if proof.PaymentTxSignature != "" {
			req.PaymentTxSignature = proof.PaymentTxSignature
		}
	})
	if err != nil {
		return nil, err
	}

	minted, err := s.applySideEffects(ctx, updated, parcel, proof)
	if err != nil {
		// The request is already terminal; surface the failure so operators
		// can reconcile the registry against the stamp.
		s.logger.ErrorContext(ctx, "approved request side effects failed",
			"request_id", updated.ID,
			"request_type", updated.Type,
			"error", err,
		)
		return nil, err
	}

	s.metrics.IncrementDecision(string(updated.Type), string(models.RequestApproved))
	s.publishDecision(ctx, updated, actingWallet, minted)
	s.logger.InfoContext(ctx, "request approved",
		"request_id", updated.ID,
		"request_type", updated.Type,
		"decided_by", actingWallet,
		"mode", s.mode,
	)
	return updated, nil
}

// verifyApproval runs the execution and action checks concurrently and
// returns the verified slot of the execution transaction.
func (s *Service) verifyApproval(ctx context.Context, req *models.Request, parcel *models.Parcel, proof Proof) (uint64, error) {
	var (
		execVerdict   chain.Verdict
		actionVerdict = chain.Verdict{OK: true}
		actionKind    string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		execVerdict, err = s.verifier.VerifyGovernanceExecution(gctx, chain.ExecutionProof{
			Signature:           proof.ExecutionTxSignature,
			Realm:               s.addresses.Realm,
			Governance:          s.addresses.Governance,
			GovernanceSigner:    s.addresses.Signer,
			Proposal:            proof.ProposalAddress,
			GovernanceProgramID: s.addresses.ProgramID,
		})
		return err
	})

	switch req.Type {
	case models.RequestRegistration:
		actionKind = "mint"
		required := []string{req.WalletAddress, proof.ParcelMintAddress, s.addresses.Signer}
		g.Go(func() error {
			var err error
			actionVerdict, err = s.verifier.VerifyParcelAction(gctx, proof.ActionTxSignature, required)
			return err
		})
	case models.RequestTransfer:
		actionKind = "transfer"
		required := []string{req.WalletAddress, req.ToWallet, s.addresses.Signer}
		if parcel.MintAddress != "" {
			required = append(required, parcel.MintAddress)
		}
		sig := proof.ActionTxSignature
		g.Go(func() error {
			var err error
			actionVerdict, err = s.verifier.VerifyParcelAction(gctx, sig, required)
			return err
		})
	case models.RequestFreeze:
		actionKind = "freeze"
		required := []string{parcel.OwnerWallet, s.addresses.Signer}
		if parcel.MintAddress != "" {
			required = append(required, parcel.MintAddress)
		}
		sig := proof.ActionTxSignature
		g.Go(func() error {
			var err error
			actionVerdict, err = s.verifier.VerifyParcelAction(gctx, sig, required)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "chain verification unavailable")
	}
	if !execVerdict.OK {
		return 0, dErrors.New(dErrors.CodeBadRequest, "execution verification failed: "+execVerdict.Reason)
	}
	if !actionVerdict.OK {
		return 0, dErrors.New(dErrors.CodeBadRequest, actionKind+" action verification failed: "+actionVerdict.Reason)
	}
	return execVerdict.Slot, nil
}

// applySideEffects mutates the parcel registry for an already-approved
// request. Returns the minted parcel for registration approvals.
func (s *Service) applySideEffects(ctx context.Context, req *models.Request, parcel *models.Parcel, proof Proof) (*models.Parcel, error) {
	switch req.Type {
	case models.RequestWhitelist:
		// The stamp on the request is the whole effect.
		return nil, nil

	case models.RequestRegistration:
		return s.mintParcel(ctx, req, proof)

	case models.RequestTransfer:
		err := s.updateParcel(ctx, parcel.ID, func(p *models.Parcel) error {
			if p.Frozen() {
				return dErrors.New(dErrors.CodeConflict, "parcel is frozen")
			}
			p.OwnerWallet = req.ToWallet
			if req.ToName != "" {
				p.OwnerName = req.ToName
			}
			if proof.ActionTxSignature != "" {
				p.TransactionHash = proof.ActionTxSignature
			}
			p.UpdatedAt = s.now()
			return nil
		})
		return nil, err

	case models.RequestFreeze:
		err := s.updateParcel(ctx, parcel.ID, func(p *models.Parcel) error {
			p.Status = models.ParcelFrozen
			p.UpdatedAt = s.now()
			return nil
		})
		return nil, err
	}
	return nil, nil
}

// mintParcel assigns the next token id and creates the parcel. A duplicate
// token id from a concurrent mint triggers a recount.
func (s *Service) mintParcel(ctx context.Context, req *models.Request, proof Proof) (*models.Parcel, error) {
	var lastErr error
	for range conflictRetries {
		count, err := s.parcels.Count(ctx)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count parcels")
		}
		parcel := models.NewParcel(count+1, req, proof.ParcelMintAddress, proof.ActionTxSignature, s.now())

		err = s.parcels.Create(ctx, parcel)
		if err == nil {
			s.metrics.IncrementParcelMinted()
			return parcel, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create parcel")
		}
		lastErr = err
	}
	return nil, dErrors.Wrap(lastErr, dErrors.CodeConflict, "parcel mint raced, retry")
}

func (s *Service) updateParcel(ctx context.Context, parcelID string, mutate func(*models.Parcel) error) error {
	var lastErr error
	for range conflictRetries {
		parcel, err := s.loadParcel(ctx, parcelID)
		if err != nil {
			return err
		}
		if err := mutate(parcel); err != nil {
			return err
		}

		err = s.parcels.Update(ctx, parcel)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist parcel")
		}
		lastErr = err
	}
	return dErrors.Wrap(lastErr, dErrors.CodeConflict, "parcel was modified concurrently, retry")
}

// claimTerminal performs the pending-to-terminal transition with the store's
// version check. A concurrent vote triggers a re-read; a concurrent decision
// surfaces as a conflict.
func (s *Service) claimTerminal(ctx context.Context, requestID string, status models.RequestStatus, stamp func(*models.Request)) (*models.Request, error) {
	var lastErr error
	for range conflictRetries {
		req, err := s.loadRequest(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if req.Terminal() {
			return nil, dErrors.Newf(dErrors.CodeConflict, "request already %s", req.Status)
		}

		req.Status = status
		stamp(req)
		req.UpdatedAt = s.now()

		err = s.requests.Update(ctx, req)
		if err == nil {
			return req, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist request")
		}
		lastErr = err
	}
	return nil, dErrors.Wrap(lastErr, dErrors.CodeConflict, "request was modified concurrently, retry")
}

func (s *Service) loadRequest(ctx context.Context, requestID string) (*models.Request, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request")
	}
	return req, nil
}

func (s *Service) loadParcel(ctx context.Context, idOrTokenID string) (*models.Parcel, error) {
	if idOrTokenID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request does not reference a parcel")
	}
	parcel, err := s.parcels.FindByIDOrTokenID(ctx, idOrTokenID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "parcel not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load parcel")
	}
	return parcel, nil
}

// publishDecision emits the decision event. Publishing is best effort: the
// decision is already durable, a failed emit is logged and dropped.
func (s *Service) publishDecision(ctx context.Context, req *models.Request, actingWallet string, minted *models.Parcel) {
	if s.publisher == nil {
		return
	}

	event := DecisionEvent{
		RequestID:            req.ID,
		RequestType:          req.Type,
		Status:               req.Status,
		WalletAddress:        req.WalletAddress,
		ProposalAddress:      req.Governance.ProposalAddress,
		ExecutionTxSignature: req.Governance.ExecutionTxSignature,
		ActionTxSignature:    req.Governance.ActionTxSignature,
		VerifiedSlot:         req.Governance.VerifiedSlot,
		DecidedBy:            actingWallet,
		DecidedAt:            s.now(),
	}
	if minted != nil {
		event.ParcelID = minted.ID
		event.ParcelTokenID = minted.TokenID
		event.ParcelMintAddress = minted.MintAddress
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode decision event", "request_id", req.ID, "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, req.ID, payload); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish decision event", "request_id", req.ID, "error", err)
	}
}

// Package council implements the proposal/vote state machine each request
// moves through before the DAO authority may execute it.
package council

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"landchain/internal/chain"
	councilmetrics "landchain/internal/council/metrics"
	"landchain/internal/registry/models"
	"landchain/internal/registry/store"
	dErrors "landchain/pkg/domain-errors"
	"landchain/pkg/platform/sentinel"
	strutil "landchain/pkg/platform/strings"
)

// conflictRetries bounds how often an operation re-reads after losing a
// version race to a concurrent writer.
const conflictRetries = 3

// ProposalVerifier checks an on-chain governance proposal account.
type ProposalVerifier interface {
	VerifyGovernanceProposal(ctx context.Context, proposal string, addrs chain.GovernanceAddresses) (chain.ProposalVerdict, error)
}

// Config is the static council configuration, loaded once at startup.
type Config struct {
	// Wallets is the fixed council allowlist.
	Wallets []string
	// RequiredApprovals is stamped onto each workflow at proposal creation.
	RequiredApprovals int
	// Addresses configure proposal verification; may be zero when governance
	// is not configured, in which case LinkExistingProposal is unavailable.
	Addresses chain.GovernanceAddresses
}

// Service is the council workflow engine.
type Service struct {
	requests store.RequestStore
	verifier ProposalVerifier

	council           map[string]struct{}
	requiredApprovals int
	addresses         chain.GovernanceAddresses

	metrics *councilmetrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics attaches council metrics.
func WithMetrics(m *councilmetrics.Metrics) Option {
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

// NewService builds the workflow engine. RequiredApprovals defaults to the
// council size, or 2 when no council is configured.
func NewService(requests store.RequestStore, verifier ProposalVerifier, cfg Config, opts ...Option) *Service {
	wallets := strutil.DedupeAndTrim(cfg.Wallets)
	council := make(map[string]struct{}, len(wallets))
	for _, w := range wallets {
		council[w] = struct{}{}
	}

	required := cfg.RequiredApprovals
	if required <= 0 {
		required = len(wallets)
	}
	if required <= 0 {
		required = 2
	}

	s := &Service{
		requests:          requests,
		verifier:          verifier,
		council:           council,
		requiredApprovals: required,
		addresses:         cfg.Addresses,
		logger:            slog.Default(),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsCouncilMember reports whether the wallet is on the council allowlist.
func (s *Service) IsCouncilMember(wallet string) bool {
	_, ok := s.council[wallet]
	return ok
}

// CreateProposal starts the workflow for a pending request. Any previously
// recorded votes are discarded: a fresh proposal starts a fresh ballot.
func (s *Service) CreateProposal(ctx context.Context, requestID, actingWallet, proposalAddress string) (*models.Request, error) {
	if !s.IsCouncilMember(actingWallet) {
		return nil, dErrors.New(dErrors.CodeForbidden, "wallet is not a council member")
	}
	if proposalAddress == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "proposal address is required")
	}

	req, err := s.withConflictRetry(ctx, requestID, func(req *models.Request) error {
		if req.Terminal() {
			return dErrors.Newf(dErrors.CodeConflict, "request already %s", req.Status)
		}
		if req.Workflow.ProposalCreated {
			return dErrors.New(dErrors.CodeConflict, "proposal already created for this request")
		}

		now := s.now()
		req.Workflow = models.CouncilWorkflow{
			ProposalCreated:   true,
			ProposalCreatedBy: actingWallet,
			ProposalCreatedAt: &now,
			ProposalAddress:   proposalAddress,
			ProposalState:     models.ProposalPending,
			RequiredApprovals: s.requiredApprovals,
		}
		req.Workflow.Normalize()
		req.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementProposalCreated()
	s.logger.InfoContext(ctx, "proposal created",
		"request_id", requestID,
		"created_by", actingWallet,
		"proposal", proposalAddress,
	)
	return req, nil
}

// LinkExistingProposal attaches an already-created on-chain proposal to a
// pending request after verifying it against the configured governance.
// Unlike CreateProposal, previously recorded local votes survive: linking may
// happen after council members have voted.
func (s *Service) LinkExistingProposal(ctx context.Context, requestID, actingWallet, proposalAddress string) (*models.Request, error) {
	if !s.IsCouncilMember(actingWallet) {
		return nil, dErrors.New(dErrors.CodeForbidden, "wallet is not a council member")
	}
	if proposalAddress == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "proposal address is required")
	}
	if !s.addresses.Configured() {
		return nil, dErrors.New(dErrors.CodeConflict, "governance verification is not configured")
	}

	verdict, err := s.verifier.VerifyGovernanceProposal(ctx, proposalAddress, s.addresses)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "proposal verification unavailable")
	}
	if !verdict.OK {
		return nil, dErrors.New(dErrors.CodeBadRequest, "proposal verification failed: "+verdict.Reason)
	}

	req, err := s.withConflictRetry(ctx, requestID, func(req *models.Request) error {
		if req.Terminal() {
			return dErrors.Newf(dErrors.CodeConflict, "request already %s", req.Status)
		}

		now := s.now()
		req.Workflow.ProposalCreated = true
		req.Workflow.ProposalCreatedBy = actingWallet
		req.Workflow.ProposalCreatedAt = &now
		req.Workflow.ProposalAddress = proposalAddress
		if verdict.IsVoting {
			req.Workflow.ProposalState = models.ProposalVoting
		} else {
			req.Workflow.ProposalState = models.ProposalPending
		}
		if req.Workflow.RequiredApprovals <= 0 {
			req.Workflow.RequiredApprovals = s.requiredApprovals
		}
		req.Workflow.Normalize()
		req.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementProposalLinked()
	s.logger.InfoContext(ctx, "existing proposal linked",
		"request_id", requestID,
		"linked_by", actingWallet,
		"proposal", proposalAddress,
		"voting", verdict.IsVoting,
	)
	return req, nil
}

// CastVote records a council member's vote. Each wallet votes at most once.
func (s *Service) CastVote(ctx context.Context, requestID, actingWallet string, choice models.VoteChoice) (*models.Request, error) {
	if !s.IsCouncilMember(actingWallet) {
		return nil, dErrors.New(dErrors.CodeForbidden, "wallet is not a council member")
	}
	if !choice.Valid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "vote must be approved or rejected")
	}

	var becameReady bool
	req, err := s.withConflictRetry(ctx, requestID, func(req *models.Request) error {
		if req.Terminal() {
			return dErrors.Newf(dErrors.CodeConflict, "request already %s", req.Status)
		}
		if !req.Workflow.ProposalCreated {
			return dErrors.New(dErrors.CodeConflict, "no proposal exists for this request")
		}
		if req.Workflow.HasVoted(actingWallet) {
			return dErrors.New(dErrors.CodeConflict, "wallet has already voted on this proposal")
		}

		wasReady := req.Workflow.ReadyForDAOAuthority
		now := s.now()
		req.Workflow.Votes = append(req.Workflow.Votes, models.Vote{
			WalletAddress: actingWallet,
			Choice:        choice,
			VotedAt:       now,
		})
		req.Workflow.Normalize()
		becameReady = req.Workflow.ReadyForDAOAuthority && !wasReady
		req.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementVoteCast(string(choice))
	if becameReady {
		s.metrics.IncrementRequestReady()
	}
	s.logger.InfoContext(ctx, "vote cast",
		"request_id", requestID,
		"wallet", actingWallet,
		"choice", choice,
		"approvals", req.Workflow.ApprovalCount,
		"ready", req.Workflow.ReadyForDAOAuthority,
	)
	return req, nil
}

// withConflictRetry loads the request, normalizes its workflow, applies
// mutate, and persists with the store's version check, re-reading on a lost
// race so concurrent votes on one request never drop each other.
func (s *Service) withConflictRetry(ctx context.Context, requestID string, mutate func(*models.Request) error) (*models.Request, error) {
	var lastErr error
	for range conflictRetries {
		req, err := s.requests.FindByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request")
		}
		req.Workflow.Normalize()

		if err := mutate(req); err != nil {
			return nil, err
		}

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

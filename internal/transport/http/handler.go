// Package httptransport is the thin HTTP layer. It delegates to domain
// services without embedding business logic so transport concerns remain
// isolated.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"landchain/internal/governance"
	"landchain/internal/registry"
	"landchain/internal/registry/models"
	"landchain/pkg/platform/httputil"
)

// RegistryService defines the interface for request intake and registry reads.
type RegistryService interface {
	SubmitRequest(ctx context.Context, in registry.SubmitRequestInput) (*models.Request, error)
	GetRequest(ctx context.Context, id string) (*models.Request, error)
	GetParcel(ctx context.Context, idOrTokenID string) (*models.Parcel, error)
}

// CouncilService defines the interface for the council workflow.
type CouncilService interface {
	CreateProposal(ctx context.Context, requestID, actingWallet, proposalAddress string) (*models.Request, error)
	LinkExistingProposal(ctx context.Context, requestID, actingWallet, proposalAddress string) (*models.Request, error)
	CastVote(ctx context.Context, requestID, actingWallet string, choice models.VoteChoice) (*models.Request, error)
}

// GovernanceService defines the interface for decision application.
type GovernanceService interface {
	ApplyDecision(ctx context.Context, requestID, actingWallet string, status models.RequestStatus, proof governance.Proof) (*models.Request, error)
}

// Handler wires registry, council and governance endpoints to their services.
type Handler struct {
	registry   RegistryService
	council    CouncilService
	governance GovernanceService
	logger     *slog.Logger
}

// NewHandler constructs the HTTP handler with its dependencies.
func NewHandler(registry RegistryService, council CouncilService, governance GovernanceService, logger *slog.Logger) *Handler {
	return &Handler{
		registry:   registry,
		council:    council,
		governance: governance,
		logger:     logger,
	}
}

// Register mounts all endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/requests", h.HandleSubmitRequest)
	r.Get("/requests/{id}", h.HandleGetRequest)
	r.Post("/requests/{id}/proposal", h.HandleCreateProposal)
	r.Post("/requests/{id}/proposal/link", h.HandleLinkProposal)
	r.Post("/requests/{id}/votes", h.HandleCastVote)
	r.Post("/requests/{id}/decision", h.HandleApplyDecision)
	r.Get("/parcels/{idOrTokenId}", h.HandleGetParcel)
}

// HandleSubmitRequest handles POST /requests.
func (h *Handler) HandleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	in, ok := httputil.DecodeJSON[registry.SubmitRequestInput](w, r, h.logger)
	if !ok {
		return
	}

	req, err := h.registry.SubmitRequest(ctx, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "request accepted",
		"request_id", req.ID,
		"request_type", req.Type,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, req)
}

// HandleGetRequest handles GET /requests/{id}.
func (h *Handler) HandleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.registry.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

// proposalRequest is the body for proposal creation and linking.
type proposalRequest struct {
	WalletAddress   string `json:"walletAddress"`
	ProposalAddress string `json:"proposalAddress"`
}

// HandleCreateProposal handles POST /requests/{id}/proposal.
func (h *Handler) HandleCreateProposal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chi.URLParam(r, "id")

	body, ok := httputil.DecodeJSON[proposalRequest](w, r, h.logger)
	if !ok {
		return
	}

	req, err := h.council.CreateProposal(ctx, requestID, body.WalletAddress, body.ProposalAddress)
	if err != nil {
		h.logger.WarnContext(ctx, "proposal creation refused",
			"request_id", requestID,
			"wallet", body.WalletAddress,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, req)
}

// HandleLinkProposal handles POST /requests/{id}/proposal/link.
func (h *Handler) HandleLinkProposal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chi.URLParam(r, "id")

	body, ok := httputil.DecodeJSON[proposalRequest](w, r, h.logger)
	if !ok {
		return
	}

	req, err := h.council.LinkExistingProposal(ctx, requestID, body.WalletAddress, body.ProposalAddress)
	if err != nil {
		h.logger.WarnContext(ctx, "proposal link refused",
			"request_id", requestID,
			"wallet", body.WalletAddress,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

// voteRequest is the body for casting a council vote.
type voteRequest struct {
	WalletAddress string `json:"walletAddress"`
	Choice        string `json:"choice"`
}

// HandleCastVote handles POST /requests/{id}/votes.
func (h *Handler) HandleCastVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chi.URLParam(r, "id")

	body, ok := httputil.DecodeJSON[voteRequest](w, r, h.logger)
	if !ok {
		return
	}

	req, err := h.council.CastVote(ctx, requestID, body.WalletAddress, models.VoteChoice(body.Choice))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

// decisionRequest is the body for applying a DAO authority decision.
type decisionRequest struct {
	WalletAddress string `json:"walletAddress"`
	Status        string `json:"status"`

	ProposalAddress      string `json:"proposalAddress"`
	ExecutionTxSignature string `json:"executionTxSignature"`
	ActionTxSignature    string `json:"actionTxSignature"`
	ParcelMintAddress    string `json:"parcelMintAddress"`
	PaymentTxSignature   string `json:"paymentTxSignature"`
	VerifiedSlot         uint64 `json:"verifiedSlot"`
}

// HandleApplyDecision handles POST /requests/{id}/decision.
func (h *Handler) HandleApplyDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chi.URLParam(r, "id")

	body, ok := httputil.DecodeJSON[decisionRequest](w, r, h.logger)
	if !ok {
		return
	}

	req, err := h.governance.ApplyDecision(ctx, requestID, body.WalletAddress, models.RequestStatus(body.Status), governance.Proof{
		ProposalAddress:      body.ProposalAddress,
		ExecutionTxSignature: body.ExecutionTxSignature,
		ActionTxSignature:    body.ActionTxSignature,
		ParcelMintAddress:    body.ParcelMintAddress,
		PaymentTxSignature:   body.PaymentTxSignature,
		VerifiedSlot:         body.VerifiedSlot,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "decision refused",
			"request_id", requestID,
			"wallet", body.WalletAddress,
			"status", body.Status,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

// HandleGetParcel handles GET /parcels/{idOrTokenId}.
func (h *Handler) HandleGetParcel(w http.ResponseWriter, r *http.Request) {
	parcel, err := h.registry.GetParcel(r.Context(), chi.URLParam(r, "idOrTokenId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, parcel)
}

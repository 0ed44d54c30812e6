// Package registry accepts citizen requests and serves registry reads. All
// state transitions beyond intake belong to the council and governance
// modules.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"landchain/internal/registry/metrics"
	"landchain/internal/registry/models"
	"landchain/internal/registry/store"
	dErrors "landchain/pkg/domain-errors"
	"landchain/pkg/platform/sentinel"
)

// SubmitRequestInput carries the fields of a new citizen request. Variant
// fields are validated per type.
type SubmitRequestInput struct {
	WalletAddress string             `json:"walletAddress"`
	Type          models.RequestType `json:"requestType"`

	OwnerName    string          `json:"ownerName"`
	Location     models.Location `json:"location"`
	Size         models.Size     `json:"size"`
	DocumentHash string          `json:"documentHash"`

	ToWallet string `json:"toWallet"`
	ToName   string `json:"toName"`
	ParcelID string `json:"parcelId"`

	FreezeReason string `json:"freezeReason"`

	PaymentTxSignature string `json:"paymentTxSignature"`
}

// Service is the registry intake and read layer.
type Service struct {
	requests store.RequestStore
	parcels  store.ParcelStore

	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics attaches registry metrics.
func WithMetrics(m *metrics.Metrics) Option {
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

// NewService builds the intake service.
func NewService(requests store.RequestStore, parcels store.ParcelStore, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		parcels:  parcels,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitRequest validates and persists a new pending request.
func (s *Service) SubmitRequest(ctx context.Context, in SubmitRequestInput) (*models.Request, error) {
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	req := models.NewRequest(in.Type, in.WalletAddress, s.now())
	req.OwnerName = in.OwnerName
	req.Location = in.Location
	req.Size = in.Size
	req.DocumentHash = in.DocumentHash
	req.ToWallet = in.ToWallet
	req.ToName = in.ToName
	req.ParcelID = in.ParcelID
	req.FreezeReason = in.FreezeReason
	req.PaymentTxSignature = in.PaymentTxSignature

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist request")
	}

	s.metrics.IncrementRequestSubmitted(string(req.Type))
	s.logger.InfoContext(ctx, "request submitted",
		"request_id", req.ID,
		"request_type", req.Type,
		"wallet", req.WalletAddress,
	)
	return req, nil
}

func (s *Service) validate(ctx context.Context, in SubmitRequestInput) error {
	if in.WalletAddress == "" {
		return dErrors.New(dErrors.CodeValidation, "wallet address is required")
	}
	if !in.Type.Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown request type")
	}

	switch in.Type {
	case models.RequestRegistration:
		if in.OwnerName == "" {
			return dErrors.New(dErrors.CodeValidation, "owner name is required")
		}
		if in.Location.Province == "" || in.Location.District == "" {
			return dErrors.New(dErrors.CodeValidation, "parcel location requires at least province and district")
		}
		if in.Size == (models.Size{}) {
			return dErrors.New(dErrors.CodeValidation, "parcel size is required")
		}

	case models.RequestTransfer:
		if in.ParcelID == "" {
			return dErrors.New(dErrors.CodeValidation, "parcel reference is required")
		}
		if in.ToWallet == "" {
			return dErrors.New(dErrors.CodeValidation, "recipient wallet is required")
		}
		if in.ToWallet == in.WalletAddress {
			return dErrors.New(dErrors.CodeValidation, "cannot transfer a parcel to its current owner")
		}
		// The parcel must exist at intake time. Frozen status is checked again
		// at decision time.
		if _, err := s.resolveParcel(ctx, in.ParcelID); err != nil {
			return err
		}

	case models.RequestFreeze:
		if in.ParcelID == "" {
			return dErrors.New(dErrors.CodeValidation, "parcel reference is required")
		}
		if in.FreezeReason == "" {
			return dErrors.New(dErrors.CodeValidation, "freeze reason is required")
		}
		if _, err := s.resolveParcel(ctx, in.ParcelID); err != nil {
			return err
		}
	}
	return nil
}

// GetRequest returns a request by id.
func (s *Service) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request")
	}
	req.Workflow.Normalize()
	return req, nil
}

// GetParcel returns a parcel by id or numeric token id.
func (s *Service) GetParcel(ctx context.Context, idOrTokenID string) (*models.Parcel, error) {
	return s.resolveParcel(ctx, idOrTokenID)
}

func (s *Service) resolveParcel(ctx context.Context, idOrTokenID string) (*models.Parcel, error) {
	parcel, err := s.parcels.FindByIDOrTokenID(ctx, idOrTokenID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "parcel not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load parcel")
	}
	return parcel, nil
}

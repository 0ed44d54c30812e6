package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"landchain/internal/registry/models"
	"landchain/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	requests *MemoryRequestStore
	parcels  *MemoryParcelStore
	ctx      context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.requests = NewMemoryRequestStore()
	s.parcels = NewMemoryParcelStore()
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) TestRequestRoundTrip() {
	req := models.NewRequest(models.RequestRegistration, "walletA", time.Now())
	s.Require().NoError(s.requests.Create(s.ctx, req))
	s.Equal(int64(1), req.Version)

	found, err := s.requests.FindByID(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(req.ID, found.ID)
	s.Equal(models.RequestPending, found.Status)
}

func (s *MemoryStoreSuite) TestRequestNotFound() {
	_, err := s.requests.FindByID(s.ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestUpdateDetectsLostVote() {
	req := models.NewRequest(models.RequestRegistration, "walletA", time.Now())
	s.Require().NoError(s.requests.Create(s.ctx, req))

	// Two council members read the same version and vote concurrently.
	readA, err := s.requests.FindByID(s.ctx, req.ID)
	s.Require().NoError(err)
	readB, err := s.requests.FindByID(s.ctx, req.ID)
	s.Require().NoError(err)

	readA.Workflow.Votes = append(readA.Workflow.Votes, models.Vote{WalletAddress: "walletA", Choice: models.VoteApproved})
	s.Require().NoError(s.requests.Update(s.ctx, readA))

	readB.Workflow.Votes = append(readB.Workflow.Votes, models.Vote{WalletAddress: "walletB", Choice: models.VoteApproved})
	err = s.requests.Update(s.ctx, readB)
	s.ErrorIs(err, sentinel.ErrConflict, "stale write must not clobber the first vote")

	final, err := s.requests.FindByID(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Require().Len(final.Workflow.Votes, 1)
	s.Equal("walletA", final.Workflow.Votes[0].WalletAddress)
}

func (s *MemoryStoreSuite) TestUpdateStampsNextVersion() {
	req := models.NewRequest(models.RequestFreeze, "walletA", time.Now())
	s.Require().NoError(s.requests.Create(s.ctx, req))

	req.Status = models.RequestApproved
	s.Require().NoError(s.requests.Update(s.ctx, req))
	s.Equal(int64(2), req.Version)

	// The stamped version must be usable for the next update.
	req.FreezeReason = "boundary dispute"
	s.Require().NoError(s.requests.Update(s.ctx, req))
	s.Equal(int64(3), req.Version)
}

func (s *MemoryStoreSuite) TestParcelFindByTokenID() {
	req := models.NewRequest(models.RequestRegistration, "walletA", time.Now())
	req.OwnerName = "Ram Bahadur"
	parcel := models.NewParcel(7, req, "MintAddr111", "Sig111", time.Now())
	s.Require().NoError(s.parcels.Create(s.ctx, parcel))

	byID, err := s.parcels.FindByIDOrTokenID(s.ctx, parcel.ID)
	s.Require().NoError(err)
	s.Equal(uint64(7), byID.TokenID)

	byToken, err := s.parcels.FindByIDOrTokenID(s.ctx, "7")
	s.Require().NoError(err)
	s.Equal(parcel.ID, byToken.ID)

	_, err = s.parcels.FindByIDOrTokenID(s.ctx, "8")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestParcelCount() {
	count, err := s.parcels.Count(s.ctx)
	s.Require().NoError(err)
	s.Zero(count)

	req := models.NewRequest(models.RequestRegistration, "walletA", time.Now())
	s.Require().NoError(s.parcels.Create(s.ctx, models.NewParcel(1, req, "Mint1", "Sig1", time.Now())))
	s.Require().NoError(s.parcels.Create(s.ctx, models.NewParcel(2, req, "Mint2", "Sig2", time.Now())))

	count, err = s.parcels.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(2), count)
}

func (s *MemoryStoreSuite) TestDuplicateTokenIDRejected() {
	req := models.NewRequest(models.RequestRegistration, "walletA", time.Now())
	s.Require().NoError(s.parcels.Create(s.ctx, models.NewParcel(1, req, "Mint1", "Sig1", time.Now())))

	err := s.parcels.Create(s.ctx, models.NewParcel(1, req, "Mint2", "Sig2", time.Now()))
	s.ErrorIs(err, sentinel.ErrConflict)
}

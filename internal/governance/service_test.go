package governance

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landchain/internal/chain"
	"landchain/internal/registry/models"
	"landchain/internal/registry/store"
	dErrors "landchain/pkg/domain-errors"
)

const (
	authority = "DAOAuthorityWallet11111111111111111111111111"
	citizen   = "CitizenWallet2222222222222222222222222222222"
	recipient = "RecipientWallet33333333333333333333333333333"

	mintAddr    = "MintAddress444444444444444444444444444444444"
	execSig     = "ExecutionSignature55555555555555555555555555"
	actSig      = "ActionSignature66666666666666666666666666666"
	transferSig = "TransferSignature888888888888888888888888888"
	propAddr    = "Proposa1Address77777777777777777777777777777"
)

type fakeActionVerifier struct {
	execVerdict   chain.Verdict
	actionVerdict chain.Verdict
	err           error

	execCalls   int
	actionCalls int
	lastSig     string
	lastAccts   []string
}

func (f *fakeActionVerifier) VerifyGovernanceExecution(ctx context.Context, proof chain.ExecutionProof) (chain.Verdict, error) {
	f.execCalls++
	return f.execVerdict, f.err
}

func (f *fakeActionVerifier) VerifyParcelAction(ctx context.Context, signature string, requiredAccounts []string) (chain.Verdict, error) {
	f.actionCalls++
	f.lastSig = signature
	f.lastAccts = requiredAccounts
	return f.actionVerdict, f.err
}

func passingVerifier() *fakeActionVerifier {
	return &fakeActionVerifier{
		execVerdict:   chain.Verdict{OK: true, Slot: 1200},
		actionVerdict: chain.Verdict{OK: true, Slot: 1201},
	}
}

type capturedEvent struct {
	key   string
	event DecisionEvent
}

type fakePublisher struct {
	events []capturedEvent
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, key string, value []byte) error {
	if f.err != nil {
		return f.err
	}
	var event DecisionEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	f.events = append(f.events, capturedEvent{key: key, event: event})
	return nil
}

func strictAddresses() chain.GovernanceAddresses {
	return chain.GovernanceAddresses{
		ProgramID:  "GovProgram",
		Realm:      "Realm",
		Governance: "Governance",
		Signer:     "GovSigner",
	}
}

type fixture struct {
	svc       *Service
	requests  *store.MemoryRequestStore
	parcels   *store.MemoryParcelStore
	verifier  *fakeActionVerifier
	publisher *fakePublisher
}

func newStrictFixture(t *testing.T, verifier *fakeActionVerifier) *fixture {
	t.Helper()
	f := &fixture{
		requests:  store.NewMemoryRequestStore(),
		parcels:   store.NewMemoryParcelStore(),
		verifier:  verifier,
		publisher: &fakePublisher{},
	}
	f.svc = NewService(f.requests, f.parcels, verifier,
		Config{DAOAuthority: authority, Addresses: strictAddresses()},
		WithPublisher(f.publisher),
	)
	require.Equal(t, ModeStrict, f.svc.Mode())
	return f
}

func (f *fixture) addReadyRequest(t *testing.T, typ models.RequestType) *models.Request {
	t.Helper()
	req := models.NewRequest(typ, citizen, time.Now())
	req.OwnerName = "Ram Bahadur"
	req.Workflow = models.CouncilWorkflow{
		ProposalCreated:   true,
		ProposalAddress:   propAddr,
		RequiredApprovals: 2,
		Votes: []models.Vote{
			{WalletAddress: "A", Choice: models.VoteApproved, VotedAt: time.Now()},
			{WalletAddress: "B", Choice: models.VoteApproved, VotedAt: time.Now()},
		},
	}
	req.Workflow.Normalize()
	require.True(t, req.Workflow.ReadyForDAOAuthority)
	require.NoError(t, f.requests.Create(context.Background(), req))
	return req
}

func (f *fixture) addParcel(t *testing.T, status models.ParcelStatus) *models.Parcel {
	t.Helper()
	reg := models.NewRequest(models.RequestRegistration, citizen, time.Now())
	reg.OwnerName = "Ram Bahadur"
	parcel := models.NewParcel(1, reg, mintAddr, actSig, time.Now())
	parcel.Status = status
	require.NoError(t, f.parcels.Create(context.Background(), parcel))
	return parcel
}

func registrationProof() Proof {
	return Proof{
		ProposalAddress:      propAddr,
		ExecutionTxSignature: execSig,
		ActionTxSignature:    actSig,
		ParcelMintAddress:    mintAddr,
	}
}

func TestApplyDecision_Authorization(t *testing.T) {
	f := newStrictFixture(t, passingVerifier())
	req := f.addReadyRequest(t, models.RequestRegistration)

	_, err := f.svc.ApplyDecision(context.Background(), req.ID, citizen, models.RequestApproved, registrationProof())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Zero(t, f.verifier.execCalls)
}

func TestApplyDecision_RegistrationMintsParcel(t *testing.T) {
	ctx := context.Background()
	f := newStrictFixture(t, passingVerifier())
	req := f.addReadyRequest(t, models.RequestRegistration)

	decided, err := f.svc.ApplyDecision(ctx, req.ID, authority, models.RequestApproved, registrationProof())
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, decided.Status)
	assert.Equal(t, execSig, decided.Governance.ExecutionTxSignature)
	assert.Equal(t, mintAddr, decided.Governance.ParcelMintAddress)
	assert.Equal(t, uint64(1200), decided.Governance.VerifiedSlot)
	require.NotNil(t, decided.Governance.VerifiedAt)

	parcel, err := f.parcels.FindByIDOrTokenID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), parcel.TokenID)
	assert.Equal(t, citizen, parcel.OwnerWallet)
	assert.Equal(t, "Ram Bahadur", parcel.OwnerName)
	assert.Equal(t, mintAddr, parcel.MintAddress)
	assert.Equal(t, models.ParcelRegistered, parcel.Status)

	// Action verification saw the submitter, the mint and the signer.
	assert.Equal(t, actSig, f.verifier.lastSig)
	assert.ElementsMatch(t, []string{citizen, mintAddr, "GovSigner"}, f.verifier.lastAccts)

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, req.ID, event.key)
	assert.Equal(t, models.RequestApproved, event.event.Status)
	assert.Equal(t, uint64(1), event.event.ParcelTokenID)
	assert.Equal(t, authority, event.event.DecidedBy)
}

func TestApplyDecision_RejectionNeverMutates(t *testing.T) {
	ctx := context.Background()
	f := newStrictFixture(t, passingVerifier())
	parcel := f.addParcel(t, models.ParcelRegistered)

	req := f.addReadyRequest(t, models.RequestFreeze)
	stored, err := f.requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	stored.ParcelID = parcel.ID
	require.NoError(t, f.requests.Update(ctx, stored))

	decided, err := f.svc.ApplyDecision(ctx, req.ID, authority, models.RequestRejected, Proof{
		ProposalAddress:      propAddr,
		ExecutionTxSignature: execSig,
		VerifiedSlot:         777,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, decided.Status)

	// The submitted proof is stamped even on rejection.
	assert.Equal(t, propAddr, decided.Governance.ProposalAddress)
	assert.Equal(t, execSig, decided.Governance.ExecutionTxSignature)
	assert.Equal(t, uint64(777), decided.Governance.VerifiedSlot)
	require.NotNil(t, decided.Governance.VerifiedAt)

	// No chain calls, no parcel change.
	assert.Zero(t, f.verifier.execCalls)
	assert.Zero(t, f.verifier.actionCalls)
	after, err := f.parcels.FindByIDOrTokenID(ctx, parcel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ParcelRegistered, after.Status)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, models.RequestRejected, f.publisher.events[0].event.Status)
}

func TestApplyDecision_TransferReassignsOwner(t *testing.T) {
	ctx := context.Background()
	f := newStrictFixture(t, passingVerifier())
	parcel := f.addParcel(t, models.ParcelRegistered)

	req := f.addReadyRequest(t, models.RequestTransfer)
	stored, err := f.requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	stored.ParcelID = parcel.ID
	stored.ToWallet = recipient
	stored.ToName = "Sita Kumari"
	require.NoError(t, f.requests.Update(ctx, stored))

	_, err = f.svc.ApplyDecision(ctx, req.ID, authority, models.RequestApproved, Proof{
		ProposalAddress:      propAddr,
		ExecutionTxSignature: execSig,
		ActionTxSignature:    transferSig,
	})
	require.NoError(t, err)

	after, err := f.parcels.FindByIDOrTokenID(ctx, parcel.ID)
	require.NoError(t, err)
	assert.Equal(t, recipient, after.OwnerWallet)
	assert.Equal(t, "Sita Kumari", after.OwnerName)
	assert.Equal(t, transferSig, after.TransactionHash, "parcel must record the transfer transaction, not its mint")
	assert.Equal(t, mintAddr, after.MintAddress)
	assert.ElementsMatch(t, []string{citizen, recipient, "GovSigner", mintAddr}, f.verifier.lastAccts)
}

func TestApplyDecision_FrozenParcelBlocksTransfer(t *testing.T) {
	ctx := context.Background()
	f := newStrictFixture(t, passingVerifier())
	parcel := f.addParcel(t, models.ParcelFrozen)

	req := f.addReadyRequest(t, models.RequestTransfer)
	stored, err := f.requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	stored.ParcelID = parcel.ID
	stored.ToWallet = recipient
	require.NoError(t, f.requests.Update(ctx, stored))

	_, err = f.svc.ApplyDecision(ctx, req.ID, authority, models.RequestApproved, Proof{
		ProposalAddress:      propAddr,
		ExecutionTxSignature: execSig,
		ActionTxSignature:    actSig,
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	assert.Contains(t, err.Error(), "parcel is frozen")

	// The request stays pending; the decision never committed.
	after, err := f.requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, after.Status)
	assert.Zero(t, f.verifier.execCalls)
}

func TestApplyDecision_FreezeMarksParcel(t *testing.T) {
	ctx := context.Background()
	f := newStrictFixture(t, passingVerifier())
	parcel := f.addParcel(t, models.ParcelRegistered)

	req := f.addReadyRequest(t, models.RequestFreeze)
	stored, err := f.requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	stored.ParcelID = parcel.ID
	stored.FreezeReason = "ownership dispute"
	require.NoError(t, f.requests.Update(ctx, stored))

	_, err = f.svc.ApplyDecision(ctx, req.ID, authority, models.RequestApproved, Proof{
		ProposalAddress:      propAddr,
		ExecutionTxSignature: execSig,
		ActionTxSignature:    actSig,
	})
	require.NoError(t, err)

	after, err := f.parcels.FindByIDOrTokenID(ctx, parcel.ID)
	require.NoError(t, err)
	assert.True(t, after.Frozen())
	assert.ElementsMatch(t, []string{citizen, "GovSigner", mintAddr}, f.verifier.lastAccts)
}

func TestApplyDecision_AlreadyDecided(t *testing.T) {
	ctx := context.Background()
	f := newStrictFixture(t, passingVerifier())
	req := f.addReadyRequest(t, models.RequestWhitelist)

	_, err := f.svc.ApplyDecision(ctx, req.ID, authority, models.RequestApproved, Proof{
		ProposalAddress:      propAddr,
		ExecutionTxSignature: execSig,
	})
	require.NoError(t, err)

	_, err = f.svc.ApplyDecision(ctx, req.ID, authority, models.RequestApproved, Proof{
		ProposalAddress:      propAddr,
		ExecutionTxSignature: execSig,
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	assert.Contains(t, err.Error(), "already approved")
}

func TestApplyDecision_StrictRequiresReadiness(t *testing.T) {
	ctx := context.Background()
	f := newStrictFixture(t, passingVerifier())

	req := models.NewRequest(models.RequestWhitelist, citizen, time.Now())
	require.NoError(t, f.requests.Create(ctx, req))

	_, err := f.svc.ApplyDecision(ctx, req.ID, authority, models.RequestApproved, Proof{
		ProposalAddress:      propAddr,
		ExecutionTxSignature: execSig,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "approval threshold")
	assert.Zero(t, f.verifier.execCalls)
}

func TestApplyDecision_StrictFailureLeavesPending(t *testing.T) {
	ctx := context.Background()
	verifier := passingVerifier()
	verifier.execVerdict = chain.Verdict{Reason: "transaction not found"}

	f := newStrictFixture(t, verifier)
	req := f.addReadyRequest(t, models.RequestRegistration)

	_, err := f.svc.ApplyDecision(ctx, req.ID, authority, models.RequestApproved, registrationProof())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	assert.Contains(t, err.Error(), "execution verification failed: transaction not found")

	after, err := f.requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, after.Status)
	count, err := f.parcels.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, f.publisher.events)
}

func TestApplyDecision_ActionFailureNamesKind(t *testing.T) {
	ctx := context.Background()
	verifier := passingVerifier()
	verifier.actionVerdict = chain.Verdict{Reason: "missing required accounts in action tx: " + mintAddr}

	f := newStrictFixture(t, verifier)
	req := f.addReadyRequest(t, models.RequestRegistration)

	_, err := f.svc.ApplyDecision(ctx, req.ID, authority, models.RequestApproved, registrationProof())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mint action verification failed: missing required accounts")
}

func TestApplyDecision_TransportFailureIsUnavailable(t *testing.T) {
	ctx := context.Background()
	verifier := passingVerifier()
	verifier.err = &chain.RPCUnavailableError{Endpoints: []string{"https://rpc-a"}}

	f := newStrictFixture(t, verifier)
	req := f.addReadyRequest(t, models.RequestRegistration)

	_, err := f.svc.ApplyDecision(ctx, req.ID, authority, models.RequestApproved, registrationProof())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestApplyDecision_UnverifiedSkipsChain(t *testing.T) {
	ctx := context.Background()
	verifier := &fakeActionVerifier{}
	requests := store.NewMemoryRequestStore()
	parcels := store.NewMemoryParcelStore()
	svc := NewService(requests, parcels, verifier, Config{DAOAuthority: authority})
	require.Equal(t, ModeUnverified, svc.Mode())

	// Not council-ready; unverified mode applies anyway.
	req := models.NewRequest(models.RequestRegistration, citizen, time.Now())
	req.OwnerName = "Ram Bahadur"
	require.NoError(t, requests.Create(ctx, req))

	decided, err := svc.ApplyDecision(ctx, req.ID, authority, models.RequestApproved, registrationProof())
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, decided.Status)
	assert.Zero(t, verifier.execCalls)
	assert.Zero(t, verifier.actionCalls)

	count, err := parcels.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestApplyDecision_InvalidStatus(t *testing.T) {
	f := newStrictFixture(t, passingVerifier())
	req := f.addReadyRequest(t, models.RequestWhitelist)

	_, err := f.svc.ApplyDecision(context.Background(), req.ID, authority, models.RequestStatus("maybe"), Proof{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestApplyDecision_RegistrationRequiresMint(t *testing.T) {
	f := newStrictFixture(t, passingVerifier())
	req := f.addReadyRequest(t, models.RequestRegistration)

	proof := registrationProof()
	proof.ParcelMintAddress = ""
	_, err := f.svc.ApplyDecision(context.Background(), req.ID, authority, models.RequestApproved, proof)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parcel mint address is required")
}

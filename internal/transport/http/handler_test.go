package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landchain/internal/chain"
	"landchain/internal/council"
	"landchain/internal/governance"
	"landchain/internal/platform/logger"
	"landchain/internal/registry"
	"landchain/internal/registry/models"
	"landchain/internal/registry/store"
)

const (
	councilA  = "CouncilWalletA"
	councilB  = "CouncilWalletB"
	authority = "DAOAuthorityWallet"
	citizen   = "CitizenWallet"
)

type stubProposalVerifier struct{}

func (stubProposalVerifier) VerifyGovernanceProposal(ctx context.Context, proposal string, addrs chain.GovernanceAddresses) (chain.ProposalVerdict, error) {
	return chain.ProposalVerdict{OK: true, IsVoting: true}, nil
}

type stubActionVerifier struct{}

func (stubActionVerifier) VerifyGovernanceExecution(ctx context.Context, proof chain.ExecutionProof) (chain.Verdict, error) {
	return chain.Verdict{OK: true, Slot: 500}, nil
}

func (stubActionVerifier) VerifyParcelAction(ctx context.Context, signature string, requiredAccounts []string) (chain.Verdict, error) {
	return chain.Verdict{OK: true, Slot: 501}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	requests := store.NewMemoryRequestStore()
	parcels := store.NewMemoryParcelStore()
	log := logger.New()

	addrs := chain.GovernanceAddresses{
		ProgramID:  "GovProgram",
		Realm:      "Realm",
		Governance: "Governance",
		Signer:     "GovSigner",
	}

	registrySvc := registry.NewService(requests, parcels, registry.WithLogger(log))
	councilSvc := council.NewService(requests, stubProposalVerifier{}, council.Config{
		Wallets:           []string{councilA, councilB},
		RequiredApprovals: 2,
		Addresses:         addrs,
	}, council.WithLogger(log))
	governanceSvc := governance.NewService(requests, parcels, stubActionVerifier{}, governance.Config{
		DAOAuthority: authority,
		Addresses:    addrs,
	}, governance.WithLogger(log))

	handler := NewHandler(registrySvc, councilSvc, governanceSvc, log)
	srv := httptest.NewServer(NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeRequest(t *testing.T, resp *http.Response) models.Request {
	t.Helper()
	defer resp.Body.Close()
	var req models.Request
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&req))
	return req
}

func submitRegistration(t *testing.T, srv *httptest.Server) models.Request {
	t.Helper()
	resp := postJSON(t, srv.URL+"/requests", map[string]any{
		"walletAddress": citizen,
		"requestType":   "registration",
		"ownerName":     "Ram Bahadur",
		"location":      map[string]string{"province": "Bagmati", "district": "Kathmandu"},
		"size":          map[string]int{"kattha": 2},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeRequest(t, resp)
}

// Full lifecycle over the wire: submit, propose, vote to threshold, approve,
// then read the minted parcel back.
func TestRegistrationLifecycle(t *testing.T) {
	srv := newTestServer(t)
	req := submitRegistration(t, srv)

	resp := postJSON(t, fmt.Sprintf("%s/requests/%s/proposal", srv.URL, req.ID), map[string]string{
		"walletAddress":   councilA,
		"proposalAddress": "Proposal111",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	for _, wallet := range []string{councilA, councilB} {
		resp = postJSON(t, fmt.Sprintf("%s/requests/%s/votes", srv.URL, req.ID), map[string]string{
			"walletAddress": wallet,
			"choice":        "approved",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp = postJSON(t, fmt.Sprintf("%s/requests/%s/decision", srv.URL, req.ID), map[string]any{
		"walletAddress":        authority,
		"status":               "approved",
		"proposalAddress":      "Proposal111",
		"executionTxSignature": "ExecSig",
		"actionTxSignature":    "ActionSig",
		"parcelMintAddress":    "Mint111",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decided := decodeRequest(t, resp)
	assert.Equal(t, models.RequestApproved, decided.Status)
	assert.Equal(t, "Mint111", decided.Governance.ParcelMintAddress)

	getResp, err := http.Get(srv.URL + "/parcels/1")
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var parcel models.Parcel
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&parcel))
	assert.Equal(t, uint64(1), parcel.TokenID)
	assert.Equal(t, citizen, parcel.OwnerWallet)
	assert.Equal(t, "Mint111", parcel.MintAddress)
}

func TestStatusCodeMapping(t *testing.T) {
	srv := newTestServer(t)
	req := submitRegistration(t, srv)

	t.Run("validation failure is 422", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/requests", map[string]string{
			"requestType": "registration",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/requests", "application/json", bytes.NewReader([]byte("{not json")))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown request is 404", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/requests/missing")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("non-council proposal is 403", func(t *testing.T) {
		resp := postJSON(t, fmt.Sprintf("%s/requests/%s/proposal", srv.URL, req.ID), map[string]string{
			"walletAddress":   citizen,
			"proposalAddress": "Proposal111",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "forbidden", body["error"])
		assert.NotEmpty(t, body["error_description"])
	})

	t.Run("vote without proposal is 409", func(t *testing.T) {
		resp := postJSON(t, fmt.Sprintf("%s/requests/%s/votes", srv.URL, req.ID), map[string]string{
			"walletAddress": councilA,
			"choice":        "approved",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("premature decision is 409", func(t *testing.T) {
		resp := postJSON(t, fmt.Sprintf("%s/requests/%s/decision", srv.URL, req.ID), map[string]string{
			"walletAddress": authority,
			"status":        "approved",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

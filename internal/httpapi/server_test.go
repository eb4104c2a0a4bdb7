package httpapi

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialwire/claimbridge/internal/chainadapter"
	"github.com/socialwire/claimbridge/internal/chainadapter/signstate"
	xrpadapter "github.com/socialwire/claimbridge/internal/chainadapter/xrp"
	"github.com/socialwire/claimbridge/internal/claimstore"
	"github.com/socialwire/claimbridge/internal/claimtypes"
	"github.com/socialwire/claimbridge/internal/settlement"
)

type slowXRPChain struct {
	mu    sync.Mutex
	calls int
}

func (c *slowXRPChain) SubmitPaymentChannelClaim(ctx context.Context, channelID string, counterpart claimtypes.XRPClaim) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	time.Sleep(15 * time.Millisecond)
	return "settletx", nil
}

func edKeypair() (string, string) {
	seed := bytes.Repeat([]byte{0x09}, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return "ED" + strings.ToUpper(hex.EncodeToString(seed)), "ED" + strings.ToUpper(hex.EncodeToString(pub))
}

type fakeChannelRegistry struct{ mu sync.Mutex }

func (f *fakeChannelRegistry) MarkSettled(claimtypes.Chain, string) {}

type fakeReconfig struct {
	evmCalls, xrpCalls, aptosCalls int
	failXRP                        bool
}

func (f *fakeReconfig) ReconfigureEVM(ConfigureEVMRequest) error   { f.evmCalls++; return nil }
func (f *fakeReconfig) ReconfigureAptos(ConfigureAptosRequest) error { f.aptosCalls++; return nil }
func (f *fakeReconfig) ReconfigureXRP(ConfigureXRPRequest) error {
	f.xrpCalls++
	if f.failXRP {
		return errors.New("reconfigure failed")
	}
	return nil
}

type alwaysEnabled struct{}

func (alwaysEnabled) ClaimExchangeEnabled() bool { return true }

type alwaysDisabled struct{}

func (alwaysDisabled) ClaimExchangeEnabled() bool { return false }

func setupServer(t *testing.T, flag FeatureFlag, reconfig ReconfigureAdapters) (*Server, *claimstore.Store, *settlement.Trigger) {
	t.Helper()
	store, err := claimstore.Open(filepath.Join(t.TempDir(), "claims"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ss, err := signstate.Open(filepath.Join(t.TempDir(), "signstate"))
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	privHex, pubHex := edKeypair()
	xa := xrpadapter.New(privHex, pubHex, ss, &slowXRPChain{}, nil)
	adapters := chainadapter.NewRegistry()
	adapters.Register(xa)

	trig := settlement.New(decimal.NewFromInt(1_000_000), store, &fakeChannelRegistry{}, adapters, nil)

	srv := New(store, trig, adapters, flag, reconfig, nil, nil)
	return srv, store, trig
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetClaimsReturnsStoredClaimsByChain(t *testing.T) {
	srv, store, _ := setupServer(t, alwaysEnabled{}, nil)
	require.True(t, store.Store("peer-a", claimtypes.XRPClaim{ChannelID: "chan-1", Amount: 42, PublicKey: "EDabc", Signature: "sig"}))

	rec := doJSON(t, srv, http.MethodGet, "/claims/peer-a?chain=xrp", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var views []claimView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "chan-1", views[0].ChannelKey)
	assert.Equal(t, "42", views[0].TransferredAmount)
}

func TestGetClaimsDisabledReturns503(t *testing.T) {
	srv, _, _ := setupServer(t, alwaysDisabled{}, nil)
	rec := doJSON(t, srv, http.MethodGet, "/claims/peer-a", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetClaimsBadChainReturns400(t *testing.T) {
	srv, _, _ := setupServer(t, alwaysEnabled{}, nil)
	rec := doJSON(t, srv, http.MethodGet, "/claims/peer-a?chain=solana", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettlementExecuteTriggersAndStatusReportsBalance(t *testing.T) {
	srv, store, _ := setupServer(t, alwaysEnabled{}, nil)
	require.True(t, store.Store("peer-a", claimtypes.XRPClaim{ChannelID: "chan-1", Amount: 42, PublicKey: "EDabc", Signature: "sig"}))

	rec := doJSON(t, srv, http.MethodPost, "/settlement/execute", SettlementExecuteRequest{PeerID: "peer-a", TokenID: "chan-1", Chain: "xrp"})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec2 := doJSON(t, srv, http.MethodGet, "/settlement/status/peer-a?tokenId=chan-1&chain=xrp", nil)
	assert.Equal(t, http.StatusOK, rec2.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &body))
	assert.Equal(t, "42", body["balance"])
}

func TestSettlementExecuteMissingChainReturns400(t *testing.T) {
	srv, _, _ := setupServer(t, alwaysEnabled{}, nil)
	rec := doJSON(t, srv, http.MethodPost, "/settlement/execute", map[string]string{"peerId": "p", "tokenId": "c"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigureSettlementUpdatesThreshold(t *testing.T) {
	srv, _, trig := setupServer(t, alwaysEnabled{}, nil)
	rec := doJSON(t, srv, http.MethodPost, "/configure-settlement", ConfigureSettlementRequest{Threshold: "5"})
	assert.Equal(t, http.StatusOK, rec.Code)

	trig.OnOutboundDebit(context.Background(), "peer-a", claimtypes.ChainXRP, "chan-1", "6")
	// No assertion on settlement completing here; this just exercises that
	// SetThreshold took effect without requiring the heavier adapter wiring
	// used by the dedicated settlement package tests.
}

func TestConfigureXRPDelegatesToReconfigurer(t *testing.T) {
	reconfig := &fakeReconfig{}
	srv, _, _ := setupServer(t, alwaysEnabled{}, reconfig)
	rec := doJSON(t, srv, http.MethodPost, "/configure-xrp", ConfigureXRPRequest{PrivateKeyHex: "a", PublicKeyHex: "b"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, reconfig.xrpCalls)
}

func TestConfigureXRPPropagatesReconfigurerError(t *testing.T) {
	reconfig := &fakeReconfig{failXRP: true}
	srv, _, _ := setupServer(t, alwaysEnabled{}, reconfig)
	rec := doJSON(t, srv, http.MethodPost, "/configure-xrp", ConfigureXRPRequest{PrivateKeyHex: "a", PublicKeyHex: "b"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestConfigureWithoutReconfigurerReturns503(t *testing.T) {
	srv, _, _ := setupServer(t, alwaysEnabled{}, nil)
	rec := doJSON(t, srv, http.MethodPost, "/configure-xrp", ConfigureXRPRequest{PrivateKeyHex: "a", PublicKeyHex: "b"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

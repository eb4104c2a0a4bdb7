package evm

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialwire/claimbridge/internal/chainadapter"
	"github.com/socialwire/claimbridge/internal/chainadapter/signstate"
	"github.com/socialwire/claimbridge/internal/claimcodec"
	"github.com/socialwire/claimbridge/internal/claimtypes"
)

// testChannelID is a 32-byte channel id, the size the EIP-712 bytes32
// channelId field requires.
const testChannelID = "0x00000000000000000000000000000000000000000000000000000000000000c1"

type fakeChain struct {
	fail  int
	calls int
}

func (f *fakeChain) CooperativeSettle(ctx context.Context, channelID string, counterpart claimtypes.EVMClaim) (string, error) {
	f.calls++
	if f.calls <= f.fail {
		return "", fmt.Errorf("rpc unavailable")
	}
	return "0xdeadbeef", nil
}

func testDomain() claimcodec.EIP712Domain {
	return claimcodec.EIP712Domain{
		Name:              "TokenNetwork",
		Version:           "1",
		ChainID:           big.NewInt(1),
		VerifyingContract: "0x0000000000000000000000000000000000000001",
	}
}

func newTestAdapter(t *testing.T, chain ChainClient) *Adapter {
	t.Helper()
	ss, err := signstate.Open(filepath.Join(t.TempDir(), "signstate"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	// Anvil default account #0 private key, a well-known test-only key.
	a, err := New(testDomain(), "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", ss, chain, nil)
	require.NoError(t, err)
	return a
}

func TestSignProducesVerifiableClaim(t *testing.T) {
	a := newTestAdapter(t, &fakeChain{})
	claim, err := a.Sign(context.Background(), testChannelID, "1000")
	require.NoError(t, err)
	assert.NoError(t, a.Verify(context.Background(), claim))
}

func TestSignNonceStrictlyIncreases(t *testing.T) {
	a := newTestAdapter(t, &fakeChain{})
	c1, err := a.Sign(context.Background(), testChannelID, "1000")
	require.NoError(t, err)
	c2, err := a.Sign(context.Background(), testChannelID, "2000")
	require.NoError(t, err)

	assert.Less(t, c1.(claimtypes.EVMClaim).Nonce, c2.(claimtypes.EVMClaim).Nonce)
}

func TestVerifyRejectsReplayedNonce(t *testing.T) {
	a := newTestAdapter(t, &fakeChain{})
	claim, err := a.Sign(context.Background(), testChannelID, "1000")
	require.NoError(t, err)

	require.NoError(t, a.Verify(context.Background(), claim))
	err = a.Verify(context.Background(), claim)
	require.Error(t, err)
	var adapterErr *chainadapter.Error
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, chainadapter.ErrStaleSequence, adapterErr.Kind)
}

func TestVerifyRejectsTamperedAmount(t *testing.T) {
	a := newTestAdapter(t, &fakeChain{})
	claim, err := a.Sign(context.Background(), testChannelID, "1000")
	require.NoError(t, err)

	tampered := claim.(claimtypes.EVMClaim)
	tampered.TransferredAmount = "999999"

	err = a.Verify(context.Background(), tampered)
	require.Error(t, err)
	var adapterErr *chainadapter.Error
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, chainadapter.ErrInvalidSignature, adapterErr.Kind)
}

func TestCooperativeSettleRetriesTransientFailures(t *testing.T) {
	chain := &fakeChain{fail: 2}
	a := newTestAdapter(t, chain)
	claim, err := a.Sign(context.Background(), testChannelID, "1000")
	require.NoError(t, err)

	result, err := a.CooperativeSettle(context.Background(), testChannelID, claim)
	require.NoError(t, err)
	assert.True(t, result.Confirmed)
	assert.Equal(t, 3, chain.calls)
}

func TestCooperativeSettleExhaustsRetries(t *testing.T) {
	chain := &fakeChain{fail: 99}
	a := newTestAdapter(t, chain)
	claim, err := a.Sign(context.Background(), testChannelID, "1000")
	require.NoError(t, err)

	_, err = a.CooperativeSettle(context.Background(), testChannelID, claim)
	require.Error(t, err)
	var adapterErr *chainadapter.Error
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, chainadapter.ErrTransient, adapterErr.Kind)
}

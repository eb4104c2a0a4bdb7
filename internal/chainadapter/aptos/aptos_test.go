package aptos

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialwire/claimbridge/internal/chainadapter"
	"github.com/socialwire/claimbridge/internal/chainadapter/signstate"
	"github.com/socialwire/claimbridge/internal/claimtypes"
)

type fakeChain struct {
	fail  int
	calls int
}

func (f *fakeChain) SubmitClaim(ctx context.Context, channelOwner string, counterpart claimtypes.AptosClaim) (string, error) {
	f.calls++
	if f.calls <= f.fail {
		return "", fmt.Errorf("fullnode unreachable")
	}
	return "0xsettletx", nil
}

func testSeedHex() string {
	return strings.Repeat("11", 32)
}

func channelOwner() string {
	return "0x" + strings.Repeat("ab", 32)
}

func newTestAdapter(t *testing.T, chain ChainClient) *Adapter {
	t.Helper()
	ss, err := signstate.Open(filepath.Join(t.TempDir(), "signstate"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })
	a, err := New(testSeedHex(), ss, chain, nil)
	require.NoError(t, err)
	return a
}

func TestSignProducesVerifiableClaim(t *testing.T) {
	a := newTestAdapter(t, &fakeChain{})
	claim, err := a.Sign(context.Background(), channelOwner(), "500")
	require.NoError(t, err)
	assert.NoError(t, a.Verify(context.Background(), claim))
}

func TestVerifyRejectsReplayedNonce(t *testing.T) {
	a := newTestAdapter(t, &fakeChain{})
	claim, err := a.Sign(context.Background(), channelOwner(), "500")
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
	claim, err := a.Sign(context.Background(), channelOwner(), "500")
	require.NoError(t, err)

	tampered := claim.(claimtypes.AptosClaim)
	tampered.Amount = 999

	err = a.Verify(context.Background(), tampered)
	require.Error(t, err)
	var adapterErr *chainadapter.Error
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, chainadapter.ErrInvalidSignature, adapterErr.Kind)
}

func TestNewRejectsWrongSeedLength(t *testing.T) {
	ss, err := signstate.Open(filepath.Join(t.TempDir(), "signstate"))
	require.NoError(t, err)
	defer ss.Close()

	_, err = New(hex.EncodeToString([]byte{1, 2, 3}), ss, &fakeChain{}, nil)
	require.Error(t, err)
}

func TestCooperativeSettleRetriesWithBackoff(t *testing.T) {
	chain := &fakeChain{fail: 2}
	a := newTestAdapter(t, chain)
	claim, err := a.Sign(context.Background(), channelOwner(), "500")
	require.NoError(t, err)

	result, err := a.CooperativeSettle(context.Background(), channelOwner(), claim)
	require.NoError(t, err)
	assert.True(t, result.Confirmed)
	assert.Equal(t, 3, chain.calls)
}

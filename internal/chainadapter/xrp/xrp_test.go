package xrp

import (
	"bytes"
	"context"
	"crypto/ed25519"
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
	err error
}

func (f *fakeChain) SubmitPaymentChannelClaim(ctx context.Context, channelID string, counterpart claimtypes.XRPClaim) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "ABCDEF0123", nil
}

// edPrefixedKeypair derives deterministic ED-prefixed hex keys matching
// the layout xrpl-go's ED25519 algorithm produces, without going through
// XRPL family-seed derivation (unnecessary for testing the signing
// adapter in isolation).
func edPrefixedKeypair(t *testing.T) (privHex, pubHex string) {
	t.Helper()
	seed := bytes.Repeat([]byte{0x07}, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	privHex = "ED" + strings.ToUpper(hex.EncodeToString(seed))
	pubHex = "ED" + strings.ToUpper(hex.EncodeToString(pub))
	return
}

func channelIDHex() string {
	return strings.Repeat("ab", 32)
}

func newTestAdapter(t *testing.T, chain ChainClient) *Adapter {
	t.Helper()
	privHex, pubHex := edPrefixedKeypair(t)
	ss, err := signstate.Open(filepath.Join(t.TempDir(), "signstate"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })
	return New(privHex, pubHex, ss, chain, nil)
}

func TestSignProducesVerifiableClaim(t *testing.T) {
	a := newTestAdapter(t, &fakeChain{})
	claim, err := a.Sign(context.Background(), channelIDHex(), "1000000")
	require.NoError(t, err)
	assert.NoError(t, a.Verify(context.Background(), claim))
}

func TestVerifyRejectsNonIncreasingAmount(t *testing.T) {
	a := newTestAdapter(t, &fakeChain{})
	first, err := a.Sign(context.Background(), channelIDHex(), "1000000")
	require.NoError(t, err)
	require.NoError(t, a.Verify(context.Background(), first))

	same, err := a.Sign(context.Background(), channelIDHex(), "1000000")
	require.NoError(t, err)
	// Signing succeeds (signing doesn't consult the admission guard) but
	// verification must reject the non-increasing amount.
	err = a.Verify(context.Background(), same)
	require.Error(t, err)
	var adapterErr *chainadapter.Error
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, chainadapter.ErrStaleSequence, adapterErr.Kind)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	a := newTestAdapter(t, &fakeChain{})
	claim, err := a.Sign(context.Background(), channelIDHex(), "1000000")
	require.NoError(t, err)

	tampered := claim.(claimtypes.XRPClaim)
	tampered.Amount = 2_000_000

	err = a.Verify(context.Background(), tampered)
	require.Error(t, err)
	var adapterErr *chainadapter.Error
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, chainadapter.ErrInvalidSignature, adapterErr.Kind)
}

func TestCooperativeSettlePropagatesTransientError(t *testing.T) {
	a := newTestAdapter(t, &fakeChain{err: fmt.Errorf("ledger not synced")})
	claim, err := a.Sign(context.Background(), channelIDHex(), "1000000")
	require.NoError(t, err)

	_, err = a.CooperativeSettle(context.Background(), channelIDHex(), claim)
	require.Error(t, err)
	var adapterErr *chainadapter.Error
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, chainadapter.ErrTransient, adapterErr.Kind)
}

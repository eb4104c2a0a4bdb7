package wirebridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialwire/claimbridge/internal/claimcodec"
	"github.com/socialwire/claimbridge/internal/claimmanager"
	"github.com/socialwire/claimbridge/internal/claimtypes"
)

// recordingClaims captures the amount it was asked to sign a claim for,
// so tests can assert SendEvent passed a cumulative total rather than
// the raw per-packet amount.
type recordingClaims struct {
	lastAmount string
}

func (r *recordingClaims) GenerateClaim(ctx context.Context, chain claimtypes.Chain, channelKey string, amount string) (claimtypes.SignedClaim, bool) {
	r.lastAmount = amount
	return claimtypes.EVMClaim{ChannelID: channelKey, TransferredAmount: amount}, true
}
func (r *recordingClaims) GenerateClaimEvent(innerContent string, claims []claimtypes.SignedClaim, requests []claimtypes.ClaimRequest) (*claimcodec.ClaimEvent, bool) {
	return nil, false
}
func (r *recordingClaims) ProcessReceivedClaimEvent(ctx context.Context, peerID string, ev *claimcodec.ClaimEvent) claimmanager.ProcessResult {
	return claimmanager.ProcessResult{}
}

// stubEVMRegistry is a single-EVM-channel registry stub that actually
// applies debits, so tests can observe the cumulative amount evolve
// across repeated sends.
type stubEVMRegistry struct {
	state claimtypes.EVMChannelState
}

func (s *stubEVMRegistry) FindEVMChannelByPeer(peerAddress string) (claimtypes.EVMChannelState, bool) {
	if s.state.PeerAddress != peerAddress {
		return claimtypes.EVMChannelState{}, false
	}
	return s.state, true
}
func (s *stubEVMRegistry) FindXRPChannelByDest(string) (claimtypes.XRPChannelState, bool) {
	return claimtypes.XRPChannelState{}, false
}
func (s *stubEVMRegistry) FindAptosChannelByDest(string) (claimtypes.AptosChannelState, bool) {
	return claimtypes.AptosChannelState{}, false
}
func (s *stubEVMRegistry) FindEVMChannel(channelID string) (claimtypes.EVMChannelState, bool) {
	if s.state.ChannelID != channelID {
		return claimtypes.EVMChannelState{}, false
	}
	return s.state, true
}
func (s *stubEVMRegistry) FindXRPChannel(string) (claimtypes.XRPChannelState, bool) {
	return claimtypes.XRPChannelState{}, false
}
func (s *stubEVMRegistry) FindAptosChannel(string) (claimtypes.AptosChannelState, bool) {
	return claimtypes.AptosChannelState{}, false
}
func (s *stubEVMRegistry) ApplyEVMDebit(channelID string, newTransferredAmount string) {
	s.state.TransferredAmount = newTransferredAmount
}
func (s *stubEVMRegistry) ApplyXRPDebit(string, uint64)   {}
func (s *stubEVMRegistry) ApplyAptosDebit(string, uint64) {}

func sendOnce(b *Bridge, conn *Conn, amount string) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, _ = b.SendEvent(ctx, conn.PeerID, "peer-evm-address", amount, "cond", []byte("hello"))
}

// TestSendEventAccumulatesAgainstPriorCumulative covers the bug where
// SendEvent signed/debited each packet's amount as if it were the
// channel's whole cumulative total, instead of adding it to what was
// already claimed.
func TestSendEventAccumulatesAgainstPriorCumulative(t *testing.T) {
	registry := &stubEVMRegistry{state: claimtypes.EVMChannelState{
		ChannelID:         "chan-evm-1",
		PeerAddress:       "peer-evm-address",
		Deposit:           "1000",
		Status:            claimtypes.StatusOpen,
		TransferredAmount: "100",
	}}
	claims := &recordingClaims{}
	b := New(claims, registry, fakeSettlement{}, fakeEvents{}, nil, nil, "local.node", nil)

	conn := newConn("peer-a", nil, nil)
	b.conns["peer-a"] = conn

	sendOnce(b, conn, "50")
	assert.Equal(t, "150", claims.lastAmount, "first send should claim prior (100) + packet amount (50)")
	assert.Equal(t, "150", registry.state.TransferredAmount)

	sendOnce(b, conn, "25")
	assert.Equal(t, "175", claims.lastAmount, "second send should add to the already-updated cumulative, not restart from the packet amount")
	assert.Equal(t, "175", registry.state.TransferredAmount)
}

func TestResolveOutboundChannelNoMatch(t *testing.T) {
	registry := &stubEVMRegistry{}
	b := New(&recordingClaims{}, registry, fakeSettlement{}, fakeEvents{}, nil, nil, "local.node", nil)

	_, ok := b.resolveOutboundChannel("unknown-destination")
	require.False(t, ok)
}

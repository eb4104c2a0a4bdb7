package channelregistry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/socialwire/claimbridge/internal/claimtypes"
)

func TestUpsertAndFindEVMChannel(t *testing.T) {
	r := New()
	r.UpsertEVM(claimtypes.EVMChannelState{
		ChannelID: "0x1", PeerAddress: "0xpeer", Status: claimtypes.StatusOpen, Deposit: "1000",
	})

	state, ok := r.FindEVMChannel("0x1")
	assert.True(t, ok)
	assert.Equal(t, "0xpeer", state.PeerAddress)

	byPeer, ok := r.FindEVMChannelByPeer("0xpeer")
	assert.True(t, ok)
	assert.Equal(t, "0x1", byPeer.ChannelID)
}

func TestFindByPeerIgnoresNonOpenChannels(t *testing.T) {
	r := New()
	r.UpsertEVM(claimtypes.EVMChannelState{ChannelID: "0x1", PeerAddress: "0xpeer", Status: claimtypes.StatusClosed})

	_, ok := r.FindEVMChannelByPeer("0xpeer")
	assert.False(t, ok)
}

func TestApplyDebitUpdatesTransferredAmount(t *testing.T) {
	r := New()
	r.UpsertEVM(claimtypes.EVMChannelState{ChannelID: "0x1", TransferredAmount: "0"})
	r.ApplyEVMDebit("0x1", "500")

	state, _ := r.FindEVMChannel("0x1")
	assert.Equal(t, "500", state.TransferredAmount)
}

func TestMarkSettledTransitionsStatus(t *testing.T) {
	r := New()
	r.UpsertXRP(claimtypes.XRPChannelState{ChannelID: "chan-1", Status: claimtypes.StatusClosing})
	r.MarkSettled(claimtypes.ChainXRP, "chan-1")

	state, _ := r.FindXRPChannel("chan-1")
	assert.Equal(t, claimtypes.StatusSettled, state.Status)
}

func TestConcurrentUpsertsToDifferentChannelsDoNotRace(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.UpsertAptos(claimtypes.AptosChannelState{ChannelOwner: string(rune('a' + i%26)), Claimed: uint64(i)})
		}()
	}
	wg.Wait()
}

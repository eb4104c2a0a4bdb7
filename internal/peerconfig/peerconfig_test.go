package peerconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialwire/claimbridge/internal/channelregistry"
	"github.com/socialwire/claimbridge/internal/claimtypes"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peers.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadParsesValidFile(t *testing.T) {
	path := writeFile(t, `{"peers": [
		{"peerId": "peer-a", "chain": "xrp", "walletAddress": "EDabc", "channelKey": "chan-1", "deposit": "1000000"}
	]}`)

	peers, err := Load(path)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "peer-a", peers[0].PeerID)
}

func TestLoadRejectsSchemaViolation(t *testing.T) {
	path := writeFile(t, `{"peers": [{"peerId": "peer-a"}]}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestNewResolverPopulatesWalletsAndChannels(t *testing.T) {
	reg := channelregistry.New()
	resolver := NewResolver([]Peer{
		{PeerID: "peer-a", Chain: "xrp", WalletAddress: "EDabc", ChannelKey: "chan-1", Deposit: "500"},
	}, reg)

	addr, ok := resolver.WalletFor("peer-a", claimtypes.ChainXRP)
	require.True(t, ok)
	assert.Equal(t, "EDabc", addr)

	state, ok := reg.FindXRPChannel("chan-1")
	require.True(t, ok)
	assert.Equal(t, uint64(500), state.Amount)
}

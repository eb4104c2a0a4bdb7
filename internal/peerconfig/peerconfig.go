// Package peerconfig loads the operator-provided bootstrap file binding
// peers to their registered wallet addresses and known channels, an
// out-of-band input conventionally named peer_wallet_addrs. The file is
// validated against a JSON Schema before decode, the same defensive
// pattern the wire envelope uses (internal/wirebridge), so a malformed
// bootstrap file fails fast at startup instead of surfacing as silent
// signer-mismatch rejections later.
package peerconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"

	"github.com/socialwire/claimbridge/internal/channelregistry"
	"github.com/socialwire/claimbridge/internal/claimtypes"
)

var fileSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["peers"],
	"properties": {
		"peers": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["peerId", "chain", "walletAddress", "channelKey"],
				"properties": {
					"peerId": {"type": "string"},
					"chain": {"type": "string", "enum": ["evm", "xrp", "aptos"]},
					"walletAddress": {"type": "string"},
					"channelKey": {"type": "string"},
					"deposit": {"type": "string"},
					"settleDelay": {"type": "integer"}
				}
			}
		}
	}
}`)

// Peer is one bootstrap entry: the wallet a peer is expected to sign
// claims with on one chain, plus that chain's channel identifier and
// deposit so the channel registry can be pre-populated.
type Peer struct {
	PeerID        string `json:"peerId"`
	Chain         string `json:"chain"`
	WalletAddress string `json:"walletAddress"`
	ChannelKey    string `json:"channelKey"`
	Deposit       string `json:"deposit"`
	SettleDelay   uint32 `json:"settleDelay"`
}

type file struct {
	Peers []Peer `json:"peers"`
}

// Load reads and schema-validates the bootstrap file at path.
func Load(path string) ([]Peer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("peerconfig: read %s: %w", path, err)
	}

	result, err := gojsonschema.Validate(fileSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("peerconfig: validate %s: %w", path, err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("peerconfig: %s failed schema validation: %v", path, result.Errors())
	}

	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("peerconfig: decode %s: %w", path, err)
	}
	return f.Peers, nil
}

// Resolver is a static, in-memory WalletResolver populated from a Load'd
// peer list, implementing claimmanager.WalletResolver.
type Resolver struct {
	wallets map[string]string // "peerId/chain" -> wallet address
}

// NewResolver builds a Resolver and pre-populates reg with every peer's
// channel, matching what the claim manager's deposit-bound checks need.
func NewResolver(peers []Peer, reg *channelregistry.Registry) *Resolver {
	r := &Resolver{wallets: make(map[string]string, len(peers))}
	for _, p := range peers {
		chain, ok := parseChain(p.Chain)
		if !ok {
			continue
		}
		r.wallets[resolverKey(p.PeerID, chain)] = p.WalletAddress
		if reg == nil {
			continue
		}
		switch chain {
		case claimtypes.ChainEVM:
			reg.UpsertEVM(claimtypes.EVMChannelState{
				ChannelID:   p.ChannelKey,
				PeerAddress: p.WalletAddress,
				Deposit:     p.Deposit,
				Status:      claimtypes.StatusOpen,
			})
		case claimtypes.ChainXRP:
			var amount uint64
			fmt.Sscanf(p.Deposit, "%d", &amount)
			reg.UpsertXRP(claimtypes.XRPChannelState{
				ChannelID:   p.ChannelKey,
				Destination: p.WalletAddress,
				Amount:      amount,
				Status:      claimtypes.StatusOpen,
				SettleDelay: p.SettleDelay,
				PublicKey:   p.WalletAddress,
			})
		case claimtypes.ChainAptos:
			var deposited uint64
			fmt.Sscanf(p.Deposit, "%d", &deposited)
			reg.UpsertAptos(claimtypes.AptosChannelState{
				ChannelOwner:      p.ChannelKey,
				Destination:       p.WalletAddress,
				DestinationPubkey: p.WalletAddress,
				Deposited:         deposited,
				Status:            claimtypes.StatusOpen,
				SettleDelay:       p.SettleDelay,
			})
		}
	}
	return r
}

// WalletFor implements claimmanager.WalletResolver.
func (r *Resolver) WalletFor(peerID string, chain claimtypes.Chain) (string, bool) {
	addr, ok := r.wallets[resolverKey(peerID, chain)]
	return addr, ok
}

func resolverKey(peerID string, chain claimtypes.Chain) string {
	return peerID + "/" + string(chain)
}

// parseChain maps the lowercase wire/config spelling of a chain name to
// its claimtypes.Chain constant, matching httpapi's parseChain.
func parseChain(raw string) (claimtypes.Chain, bool) {
	switch raw {
	case "evm":
		return claimtypes.ChainEVM, true
	case "xrp":
		return claimtypes.ChainXRP, true
	case "aptos":
		return claimtypes.ChainAptos, true
	default:
		return "", false
	}
}

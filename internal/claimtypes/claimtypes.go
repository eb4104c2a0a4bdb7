// Package claimtypes defines the chain-tagged data model shared by the
// claim codec, claim store, chain adapters and claim manager: signed
// claims, claim requests and channel state for the three chain families
// claimbridge supports.
package claimtypes

import "fmt"

// Chain identifies one of the three supported chain families. All other
// types in this package are tagged sums discriminated by Chain.
type Chain string

const (
	ChainEVM   Chain = "EVM"
	ChainXRP   Chain = "XRP"
	ChainAptos Chain = "APTOS"
)

func (c Chain) Valid() bool {
	switch c {
	case ChainEVM, ChainXRP, ChainAptos:
		return true
	default:
		return false
	}
}

// SignedClaim is a cryptographically signed statement of a cumulative
// amount (and, for EVM/Aptos, a nonce) owed on a specific channel.
type SignedClaim interface {
	Chain() Chain
	// ChannelKey is the chain-specific channel primary key: a 32-byte id
	// (hex) for EVM, a 64-hex id for XRP, or the channel owner's account
	// address for Aptos.
	ChannelKey() string
	// Signer is the address/public key that produced the signature.
	Signer() string
	// Sequence is the monotonic admission key: nonce for EVM/Aptos,
	// cumulative amount for XRP. Claim Store compares this value with
	// strict ">" semantics appropriate to the chain (see Greater).
	Sequence() string
	// Greater reports whether this claim strictly supersedes other under
	// the chain's monotonic rule. other must be the same chain and
	// channel; callers are responsible for that check.
	Greater(other SignedClaim) bool
}

// EVMClaim is a signed balance proof over a Raiden-style token-network
// channel: nonce-max monotonic, EIP-712/secp256k1 signed.
type EVMClaim struct {
	ChannelID         string // 32-byte channel id, hex-encoded with 0x prefix
	Nonce             uint64
	TransferredAmount string // u256 decimal string
	LockedAmount      string // u256 decimal string
	LocksRoot         string // 32 bytes, hex
	Signature         string // 65 bytes (r||s||v), hex
	SignerAddr        string // 20-byte address, hex
}

func (c EVMClaim) Chain() Chain        { return ChainEVM }
func (c EVMClaim) ChannelKey() string  { return c.ChannelID }
func (c EVMClaim) Signer() string      { return c.SignerAddr }
func (c EVMClaim) Sequence() string    { return fmt.Sprintf("%d", c.Nonce) }
func (c EVMClaim) Greater(o SignedClaim) bool {
	other, ok := o.(EVMClaim)
	if !ok {
		return false
	}
	return c.Nonce > other.Nonce
}

// XRPClaim is a signed PaymentChannelClaim. XRP has no nonce; the
// cumulative drops amount is the monotonic key.
type XRPClaim struct {
	ChannelID string // 64-hex channel id
	Amount    uint64 // cumulative drops
	Signature string // 64-byte ed25519 signature, hex
	PublicKey string // 33-byte ed25519 public key (with ED prefix byte), hex
}

func (c XRPClaim) Chain() Chain        { return ChainXRP }
func (c XRPClaim) ChannelKey() string  { return c.ChannelID }
func (c XRPClaim) Signer() string      { return c.PublicKey }
func (c XRPClaim) Sequence() string    { return fmt.Sprintf("%d", c.Amount) }
func (c XRPClaim) Greater(o SignedClaim) bool {
	other, ok := o.(XRPClaim)
	if !ok {
		return false
	}
	return c.Amount > other.Amount
}

// AptosClaim is a signed claim against a Move channel resource.
type AptosClaim struct {
	ChannelOwner string // channel owner account address, hex
	Amount       uint64 // cumulative octas
	Nonce        uint64
	Signature    string // 64-byte ed25519 signature, hex
	PublicKey    string // 32-byte ed25519 public key, hex
}

func (c AptosClaim) Chain() Chain        { return ChainAptos }
func (c AptosClaim) ChannelKey() string  { return c.ChannelOwner }
func (c AptosClaim) Signer() string      { return c.PublicKey }
func (c AptosClaim) Sequence() string    { return fmt.Sprintf("%d", c.Nonce) }
func (c AptosClaim) Greater(o SignedClaim) bool {
	other, ok := o.(AptosClaim)
	if !ok {
		return false
	}
	return c.Nonce > other.Nonce
}

// ClaimRequest is the unsigned ask a sender attaches to an event: "please
// sign a claim back for this channel". An amount=0/nonce=0 placeholder
// is treated as "tell me your current view", not an authoritative
// demand.
type ClaimRequest struct {
	RequestChain  Chain
	ChannelKey    string
	ExpectAmount  string
	ExpectNonce   uint64 // meaningful for EVM/Aptos only
}

// ChannelStatus is the lifecycle state of a registry entry. Each chain
// uses its own label set; these are the union used internally.
type ChannelStatus string

const (
	StatusOpen    ChannelStatus = "OPEN"
	StatusClosing ChannelStatus = "CLOSING"
	StatusClosed  ChannelStatus = "CLOSED"
	StatusSettled ChannelStatus = "SETTLED"
)

// EVMChannelState mirrors a token-network channel's on-chain fields.
type EVMChannelState struct {
	ChannelID         string
	PeerAddress       string
	Deposit           string // u256 decimal string
	Status            ChannelStatus
	Nonce             uint64
	TransferredAmount string // u256 decimal string
}

// XRPChannelState mirrors a PayChannel ledger entry's fields.
type XRPChannelState struct {
	ChannelID   string
	Destination string
	Amount      uint64 // deposit, drops
	Balance     uint64 // claimed, drops
	Status      ChannelStatus
	SettleDelay uint32
	PublicKey   string
}

// AptosChannelState mirrors a Move channel resource's fields.
type AptosChannelState struct {
	ChannelOwner      string
	Destination       string
	DestinationPubkey string
	Deposited         uint64 // octas
	Claimed           uint64 // octas
	Status            ChannelStatus
	SettleDelay       uint32
	Nonce             uint64
}

// Package claimmanager is the orchestration hub wiring the channel
// registry, claim store, chain adapters and claim codec together: the
// only component that touches all four.
package claimmanager

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/socialwire/claimbridge/internal/chainadapter"
	"github.com/socialwire/claimbridge/internal/claimcodec"
	"github.com/socialwire/claimbridge/internal/claimstore"
	"github.com/socialwire/claimbridge/internal/claimtypes"
)

// ProcessResult is the total, never-throws outcome of processing a
// received claim event: every failure becomes an entry here rather than
// an error return, so callers can always deliver the inner event.
type ProcessResult struct {
	StoredClaims    []claimtypes.SignedClaim
	UnsignedRequests []claimtypes.ClaimRequest
	SignedResponses []claimtypes.SignedClaim
	Errors          []ProcessError
}

// ProcessError records one claim (or request) that could not be
// processed and why, without aborting the rest of the pipeline.
type ProcessError struct {
	Chain claimtypes.Chain
	Key   string
	Op    string
	Err   error
}

// Registry is the subset of channelregistry.Registry the claim manager
// depends on, narrowed so tests can supply a fake.
type Registry interface {
	FindEVMChannel(channelID string) (claimtypes.EVMChannelState, bool)
	FindXRPChannel(channelID string) (claimtypes.XRPChannelState, bool)
	FindAptosChannel(channelOwner string) (claimtypes.AptosChannelState, bool)
	ApplyEVMDebit(channelID string, newTransferredAmount string)
	ApplyXRPDebit(channelID string, newBalance uint64)
	ApplyAptosDebit(channelOwner string, newClaimed uint64)
}

// Adapters resolves the chain adapter for a chain family.
type Adapters interface {
	For(chain claimtypes.Chain) (chainadapter.Adapter, bool)
}

// WalletResolver maps a peer id and chain to the wallet address/public
// key that peer is expected to sign claims with, for the admission-time
// signer-binding check.
type WalletResolver interface {
	WalletFor(peerID string, chain claimtypes.Chain) (string, bool)
}

// Manager implements generate_claim / generate_claim_event /
// process_received_claim_event / get_claims_for_settlement.
type Manager struct {
	registry Registry
	store    *claimstore.Store
	adapters Adapters
	wallets  WalletResolver
	log      *zap.Logger
}

func New(registry Registry, store *claimstore.Store, adapters Adapters, wallets WalletResolver, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{registry: registry, store: store, adapters: adapters, wallets: wallets, log: log}
}

// GenerateClaim signs a claim for the outbound channel (chain,
// channelKey) claiming amount, after checking amount does not exceed the
// channel's deposit. Returns (nil, false) if the channel is unknown or
// signing is refused.
func (m *Manager) GenerateClaim(ctx context.Context, chain claimtypes.Chain, channelKey string, amount string) (claimtypes.SignedClaim, bool) {
	if !m.amountWithinDeposit(chain, channelKey, amount) {
		m.log.Warn("generate_claim refused: amount exceeds deposit",
			zap.String("chain", string(chain)), zap.String("channel", channelKey))
		return nil, false
	}

	adapter, ok := m.adapters.For(chain)
	if !ok {
		m.log.Warn("generate_claim refused: no adapter for chain", zap.String("chain", string(chain)))
		return nil, false
	}

	claim, err := adapter.Sign(ctx, channelKey, amount)
	if err != nil {
		m.log.Error("generate_claim: adapter sign failed",
			zap.String("chain", string(chain)), zap.String("channel", channelKey), zap.Error(err))
		return nil, false
	}
	return claim, true
}

func (m *Manager) amountWithinDeposit(chain claimtypes.Chain, channelKey string, amount string) bool {
	switch chain {
	case claimtypes.ChainEVM:
		state, ok := m.registry.FindEVMChannel(channelKey)
		if !ok {
			return false
		}
		return compareDecimal(amount, state.Deposit) <= 0
	case claimtypes.ChainXRP:
		state, ok := m.registry.FindXRPChannel(channelKey)
		if !ok {
			return false
		}
		return compareUint(amount, state.Amount) <= 0
	case claimtypes.ChainAptos:
		state, ok := m.registry.FindAptosChannel(channelKey)
		if !ok {
			return false
		}
		return compareUint(amount, state.Deposited) <= 0
	default:
		return false
	}
}

// GenerateClaimEvent delegates to the claim codec's Wrap.
func (m *Manager) GenerateClaimEvent(innerContent string, claims []claimtypes.SignedClaim, requests []claimtypes.ClaimRequest) (*claimcodec.ClaimEvent, bool) {
	ev, err := claimcodec.Wrap(innerContent, claims, requests)
	if err != nil {
		m.log.Warn("generate_claim_event failed", zap.Error(err))
		return nil, false
	}
	return ev, true
}

// ProcessReceivedClaimEvent runs the six-step invariant pipeline over
// every claim in ev, then attempts to answer every request directed at
// us. It never returns an error; every failure is folded into the
// result so the pipeline degrades gracefully instead of aborting.
func (m *Manager) ProcessReceivedClaimEvent(ctx context.Context, peerID string, ev *claimcodec.ClaimEvent) ProcessResult {
	var result ProcessResult
	if ev == nil {
		return result
	}

	_, claims, requests := claimcodec.Unwrap(ev)

	for _, claim := range claims {
		if err := m.admitClaim(ctx, peerID, claim); err != nil {
			result.Errors = append(result.Errors, ProcessError{
				Chain: claim.Chain(), Key: claim.ChannelKey(), Op: "admit_claim", Err: err,
			})
			continue
		}
		result.StoredClaims = append(result.StoredClaims, claim)
	}

	for _, req := range requests {
		signed, ok := m.answerRequest(ctx, req)
		if !ok {
			result.UnsignedRequests = append(result.UnsignedRequests, req)
			continue
		}
		result.SignedResponses = append(result.SignedResponses, signed)
	}

	return result
}

// admitClaim runs steps 2-6 of the pipeline for one claim (step 1,
// discriminator check, already happened: Unwrap only yields claims from
// a recognized claim event).
func (m *Manager) admitClaim(ctx context.Context, peerID string, claim claimtypes.SignedClaim) error {
	expectedSigner, ok := m.wallets.WalletFor(peerID, claim.Chain())
	if !ok || !sameAddress(expectedSigner, claim.Signer()) {
		return fmt.Errorf("signer %q does not match registered wallet for peer %q on %s", claim.Signer(), peerID, claim.Chain())
	}

	adapter, ok := m.adapters.For(claim.Chain())
	if !ok {
		return fmt.Errorf("no chain adapter for %s", claim.Chain())
	}
	if err := adapter.Verify(ctx, claim); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}

	if !m.withinInboundDepositBound(claim) {
		return fmt.Errorf("claimed amount exceeds inbound channel deposit")
	}

	if !m.store.Store(peerID, claim) {
		return fmt.Errorf("claim did not supersede the stored value (stale or equal)")
	}
	return nil
}

func (m *Manager) withinInboundDepositBound(claim claimtypes.SignedClaim) bool {
	switch c := claim.(type) {
	case claimtypes.EVMClaim:
		state, ok := m.registry.FindEVMChannel(c.ChannelID)
		if !ok {
			return false
		}
		return compareDecimal(c.TransferredAmount, state.Deposit) <= 0
	case claimtypes.XRPClaim:
		state, ok := m.registry.FindXRPChannel(c.ChannelID)
		if !ok {
			return false
		}
		return c.Amount <= state.Amount
	case claimtypes.AptosClaim:
		state, ok := m.registry.FindAptosChannel(c.ChannelOwner)
		if !ok {
			return false
		}
		return c.Amount <= state.Deposited
	default:
		return false
	}
}

// answerRequest decides whether a peer's claim request can be honored.
// An amount=0 request (nonce=0 too, on EVM/Aptos) is the placeholder
// meaning "tell me your current view": it is resolved to the channel's
// current cumulative amount rather than signed literally. Any other
// request that asks for an amount lower than what we have already
// signed on that channel is refused, since honoring it would regress
// the channel's monotonic balance.
func (m *Manager) answerRequest(ctx context.Context, req claimtypes.ClaimRequest) (claimtypes.SignedClaim, bool) {
	current, ok := m.currentCumulative(req.RequestChain, req.ChannelKey)
	if !ok {
		return nil, false
	}

	amount := req.ExpectAmount
	switch {
	case isPlaceholderRequest(req):
		amount = current
	case m.regresses(req.RequestChain, amount, current):
		m.log.Warn("answer_request refused: amount regresses from last signed value",
			zap.String("chain", string(req.RequestChain)), zap.String("channel", req.ChannelKey))
		return nil, false
	}

	claim, ok := m.GenerateClaim(ctx, req.RequestChain, req.ChannelKey, amount)
	if !ok {
		return nil, false
	}
	m.applyCumulative(req.RequestChain, req.ChannelKey, amount)
	return claim, true
}

// isPlaceholderRequest reports whether req uses the amount=0 (and, for
// EVM/Aptos, nonce=0) convention meaning "sign whatever I'm currently
// owed" rather than an authoritative demand for a specific amount.
func isPlaceholderRequest(req claimtypes.ClaimRequest) bool {
	if req.ExpectAmount != "0" {
		return false
	}
	if req.RequestChain == claimtypes.ChainXRP {
		return true
	}
	return req.ExpectNonce == 0
}

// currentCumulative returns the channel's current claimed cumulative
// amount, as a base-10 string in the chain's base unit.
func (m *Manager) currentCumulative(chain claimtypes.Chain, channelKey string) (string, bool) {
	switch chain {
	case claimtypes.ChainEVM:
		state, ok := m.registry.FindEVMChannel(channelKey)
		if !ok {
			return "", false
		}
		return state.TransferredAmount, true
	case claimtypes.ChainXRP:
		state, ok := m.registry.FindXRPChannel(channelKey)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%d", state.Balance), true
	case claimtypes.ChainAptos:
		state, ok := m.registry.FindAptosChannel(channelKey)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%d", state.Claimed), true
	default:
		return "", false
	}
}

// applyCumulative records amount as the channel's new current
// cumulative claimed value after a claim has been signed for it.
func (m *Manager) applyCumulative(chain claimtypes.Chain, channelKey, amount string) {
	switch chain {
	case claimtypes.ChainEVM:
		m.registry.ApplyEVMDebit(channelKey, amount)
	case claimtypes.ChainXRP:
		var v uint64
		fmt.Sscanf(amount, "%d", &v)
		m.registry.ApplyXRPDebit(channelKey, v)
	case claimtypes.ChainAptos:
		var v uint64
		fmt.Sscanf(amount, "%d", &v)
		m.registry.ApplyAptosDebit(channelKey, v)
	}
}

// regresses reports whether amount is strictly less than current,
// i.e. honoring the request would move the channel's claimed balance
// backwards.
func (m *Manager) regresses(chain claimtypes.Chain, amount, current string) bool {
	if chain == claimtypes.ChainEVM {
		return compareDecimal(amount, current) < 0
	}
	var cur uint64
	fmt.Sscanf(current, "%d", &cur)
	return compareUint(amount, cur) < 0
}

// GetClaimsForSettlement is a thin pass-through to the claim store, used
// by operator tooling and the settlement trigger.
func (m *Manager) GetClaimsForSettlement(peerID string, chain claimtypes.Chain) []claimtypes.SignedClaim {
	return m.store.ClaimsForPeerChain(peerID, chain)
}

func sameAddress(a, b string) bool {
	return normalizeAddr(a) == normalizeAddr(b)
}

func normalizeAddr(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r = r - 'A' + 'a'
		}
		out = append(out, byte(r))
	}
	return string(out)
}

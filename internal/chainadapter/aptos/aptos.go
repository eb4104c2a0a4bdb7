// Package aptos implements the chainadapter.Adapter contract for Move
// channel resources: ed25519 signatures over a fixed BCS-style preimage,
// nonce-monotonic admission, and settlement via a submit_claim entry
// function call with exponential backoff. No pack example or ecosystem
// library implements the Aptos SDK or BCS encoding, so signing operates
// directly on stdlib crypto/ed25519
// (see DESIGN.md).
package aptos

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/socialwire/claimbridge/internal/chainadapter"
	"github.com/socialwire/claimbridge/internal/chainadapter/signstate"
	"github.com/socialwire/claimbridge/internal/claimcodec"
	"github.com/socialwire/claimbridge/internal/claimtypes"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoffStep = 3 // 1s, 2s, 4s
)

// ChainClient submits a signed submit_claim entry function call,
// falling back to a secondary fullnode URL on failure.
type ChainClient interface {
	SubmitClaim(ctx context.Context, channelOwner string, counterpart claimtypes.AptosClaim) (txHash string, err error)
}

// Adapter signs, verifies and settles Aptos Move channel claims.
type Adapter struct {
	privateKey ed25519.PrivateKey
	publicHex  string
	signstate  *signstate.Store
	chain      ChainClient
	log        *zap.Logger
}

// New builds an adapter from a 32-byte ed25519 seed, hex-encoded.
func New(seedHex string, ss *signstate.Store, chain ChainClient, log *zap.Logger) (*Adapter, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(seedHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid Aptos ed25519 seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("Aptos ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		privateKey: priv,
		publicHex:  "0x" + hex.EncodeToString(pub),
		signstate:  ss,
		chain:      chain,
		log:        log,
	}, nil
}

func (a *Adapter) Chain() claimtypes.Chain { return claimtypes.ChainAptos }

// Sign allocates the next nonce for channelKey (the channel owner's
// account address) and signs a claim for cumulativeAmount octas.
func (a *Adapter) Sign(ctx context.Context, channelKey string, cumulativeAmount string) (claimtypes.SignedClaim, error) {
	var amount uint64
	if _, err := fmt.Sscanf(cumulativeAmount, "%d", &amount); err != nil {
		return nil, chainadapter.NewError("sign", chainadapter.ErrFatal, fmt.Errorf("invalid octas amount: %w", err))
	}

	nonce, err := a.signstate.NextOutbound(string(claimtypes.ChainAptos), channelKey)
	if err != nil {
		return nil, chainadapter.NewError("sign", chainadapter.ErrFatal, err)
	}

	preimage, err := claimcodec.AptosClaimPreimage(channelKey, amount, nonce)
	if err != nil {
		return nil, chainadapter.NewError("sign", chainadapter.ErrFatal, err)
	}

	sig := ed25519.Sign(a.privateKey, preimage)

	return claimtypes.AptosClaim{
		ChannelOwner: channelKey,
		Amount:       amount,
		Nonce:        nonce,
		Signature:    hex.EncodeToString(sig),
		PublicKey:    a.publicHex,
	}, nil
}

// Verify checks the ed25519 signature and inbound nonce replay guard.
func (a *Adapter) Verify(ctx context.Context, sc claimtypes.SignedClaim) error {
	claim, ok := sc.(claimtypes.AptosClaim)
	if !ok {
		return chainadapter.NewError("verify", chainadapter.ErrFatal, fmt.Errorf("not an Aptos claim"))
	}

	preimage, err := claimcodec.AptosClaimPreimage(claim.ChannelOwner, claim.Amount, claim.Nonce)
	if err != nil {
		return chainadapter.NewError("verify", chainadapter.ErrInvalidSignature, err)
	}

	pub, err := hex.DecodeString(strings.TrimPrefix(claim.PublicKey, "0x"))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return chainadapter.NewError("verify", chainadapter.ErrInvalidSignature, fmt.Errorf("malformed public key"))
	}
	sig, err := hex.DecodeString(claim.Signature)
	if err != nil {
		return chainadapter.NewError("verify", chainadapter.ErrInvalidSignature, fmt.Errorf("malformed signature"))
	}

	if !ed25519.Verify(ed25519.PublicKey(pub), preimage, sig) {
		return chainadapter.NewError("verify", chainadapter.ErrInvalidSignature, fmt.Errorf("ed25519 verification failed"))
	}

	admitted, err := a.signstate.AdmitInbound(string(claimtypes.ChainAptos), claim.ChannelOwner, claim.Nonce)
	if err != nil {
		return chainadapter.NewError("verify", chainadapter.ErrFatal, err)
	}
	if !admitted {
		return chainadapter.NewError("verify", chainadapter.ErrStaleSequence, fmt.Errorf("nonce %d already seen or superseded", claim.Nonce))
	}
	return nil
}

// CooperativeSettle submits the counterpart claim to submit_claim,
// retrying with exponential backoff (1s, 2s, 4s) before giving up.
func (a *Adapter) CooperativeSettle(ctx context.Context, channelKey string, counterpart claimtypes.SignedClaim) (chainadapter.SettleResult, error) {
	claim, ok := counterpart.(claimtypes.AptosClaim)
	if !ok {
		return chainadapter.SettleResult{}, chainadapter.NewError("cooperative_settle", chainadapter.ErrFatal, fmt.Errorf("not an Aptos claim"))
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt <= maxBackoffStep; attempt++ {
		txHash, err := a.chain.SubmitClaim(ctx, channelKey, claim)
		if err == nil {
			return chainadapter.SettleResult{TxHash: txHash, Confirmed: true}, nil
		}
		lastErr = err
		a.log.Warn("aptos cooperative_settle attempt failed",
			zap.String("channel", channelKey), zap.Int("attempt", attempt), zap.Error(err))

		if attempt == maxBackoffStep {
			break
		}
		select {
		case <-ctx.Done():
			return chainadapter.SettleResult{}, chainadapter.NewError("cooperative_settle", chainadapter.ErrTimeout, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return chainadapter.SettleResult{}, chainadapter.NewError("cooperative_settle", chainadapter.ErrTransient, lastErr)
}

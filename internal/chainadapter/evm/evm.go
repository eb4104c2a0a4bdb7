// Package evm implements the chainadapter.Adapter contract for
// Raiden-style token-network channels: ECDSA/secp256k1 signatures over
// an EIP-712 BalanceProof, nonce-monotonic admission, and a
// cooperativeSettle contract call with bounded retries.
package evm

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/socialwire/claimbridge/internal/chainadapter"
	"github.com/socialwire/claimbridge/internal/chainadapter/signstate"
	"github.com/socialwire/claimbridge/internal/claimcodec"
	"github.com/socialwire/claimbridge/internal/claimtypes"
)

const (
	settleRetries = 3
	settleTimeout = 30 * time.Second
)

// ChainClient is the minimal on-chain surface an EVM adapter needs: a
// cooperative-close RPC call. Tests supply a fake; production wires an
// ethclient-backed contract binding.
type ChainClient interface {
	CooperativeSettle(ctx context.Context, channelID string, counterpart claimtypes.EVMClaim) (txHash string, err error)
}

// Adapter signs, verifies and settles EVM token-network claims.
type Adapter struct {
	domain     claimcodec.EIP712Domain
	privateKey *ecdsa.PrivateKey
	address    string
	signstate  *signstate.Store
	chain      ChainClient
	log        *zap.Logger
}

func New(domain claimcodec.EIP712Domain, privateKeyHex string, ss *signstate.Store, chain ChainClient, log *zap.Logger) (*Adapter, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid EVM private key: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		domain:     domain,
		privateKey: pk,
		address:    crypto.PubkeyToAddress(pk.PublicKey).Hex(),
		signstate:  ss,
		chain:      chain,
		log:        log,
	}, nil
}

func (a *Adapter) Chain() claimtypes.Chain { return claimtypes.ChainEVM }

// Sign allocates the next nonce for channelKey and signs a BalanceProof
// claiming cumulativeAmount; the nonce strictly increases with every
// signed claim on that channel.
func (a *Adapter) Sign(ctx context.Context, channelKey string, cumulativeAmount string) (claimtypes.SignedClaim, error) {
	nonce, err := a.signstate.NextOutbound(string(claimtypes.ChainEVM), channelKey)
	if err != nil {
		return nil, chainadapter.NewError("sign", chainadapter.ErrFatal, err)
	}

	claim := claimtypes.EVMClaim{
		ChannelID:         channelKey,
		Nonce:             nonce,
		TransferredAmount: cumulativeAmount,
		LockedAmount:      "0",
		LocksRoot:         "0x0000000000000000000000000000000000000000000000000000000000000000",
		SignerAddr:        a.address,
	}

	preimage, err := claimcodec.EVMBalanceProofPreimage(a.domain, claim)
	if err != nil {
		return nil, chainadapter.NewError("sign", chainadapter.ErrFatal, err)
	}
	digest := crypto.Keccak256(preimage)

	sig, err := crypto.Sign(digest, a.privateKey)
	if err != nil {
		return nil, chainadapter.NewError("sign", chainadapter.ErrFatal, err)
	}
	sig[64] += 27 // recovery id -> Ethereum v

	claim.Signature = "0x" + hex.EncodeToString(sig)
	return claim, nil
}

// Verify checks the claim's EIP-712 signature recovers to the claimed
// signer and that its nonce passes the inbound replay guard.
func (a *Adapter) Verify(ctx context.Context, sc claimtypes.SignedClaim) error {
	claim, ok := sc.(claimtypes.EVMClaim)
	if !ok {
		return chainadapter.NewError("verify", chainadapter.ErrFatal, fmt.Errorf("not an EVM claim"))
	}

	preimage, err := claimcodec.EVMBalanceProofPreimage(a.domain, claim)
	if err != nil {
		return chainadapter.NewError("verify", chainadapter.ErrInvalidSignature, err)
	}
	digest := crypto.Keccak256(preimage)

	sig, err := hex.DecodeString(strings.TrimPrefix(claim.Signature, "0x"))
	if err != nil || len(sig) != 65 {
		return chainadapter.NewError("verify", chainadapter.ErrInvalidSignature, fmt.Errorf("malformed signature"))
	}

	recoverSig := make([]byte, 65)
	copy(recoverSig, sig)
	if recoverSig[64] >= 27 {
		recoverSig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest, recoverSig)
	if err != nil {
		return chainadapter.NewError("verify", chainadapter.ErrInvalidSignature, err)
	}
	recovered := crypto.PubkeyToAddress(*pubKey).Hex()
	if !strings.EqualFold(recovered, claim.SignerAddr) {
		return chainadapter.NewError("verify", chainadapter.ErrInvalidSignature, fmt.Errorf("signature does not match claimed signer"))
	}

	admitted, err := a.signstate.AdmitInbound(string(claimtypes.ChainEVM), claim.ChannelID, claim.Nonce)
	if err != nil {
		return chainadapter.NewError("verify", chainadapter.ErrFatal, err)
	}
	if !admitted {
		return chainadapter.NewError("verify", chainadapter.ErrStaleSequence, fmt.Errorf("nonce %d already seen or superseded", claim.Nonce))
	}
	return nil
}

// CooperativeSettle submits the counterpart claim to the token-network
// contract's cooperativeSettle entry point, retrying transient failures
// up to settleRetries times within settleTimeout.
func (a *Adapter) CooperativeSettle(ctx context.Context, channelKey string, counterpart claimtypes.SignedClaim) (chainadapter.SettleResult, error) {
	claim, ok := counterpart.(claimtypes.EVMClaim)
	if !ok {
		return chainadapter.SettleResult{}, chainadapter.NewError("cooperative_settle", chainadapter.ErrFatal, fmt.Errorf("not an EVM claim"))
	}

	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= settleRetries; attempt++ {
		txHash, err := a.chain.CooperativeSettle(ctx, channelKey, claim)
		if err == nil {
			return chainadapter.SettleResult{TxHash: txHash, Confirmed: true}, nil
		}
		lastErr = err
		a.log.Warn("evm cooperative_settle attempt failed",
			zap.String("channel", channelKey), zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return chainadapter.SettleResult{}, chainadapter.NewError("cooperative_settle", chainadapter.ErrTimeout, ctx.Err())
		default:
		}
	}
	return chainadapter.SettleResult{}, chainadapter.NewError("cooperative_settle", chainadapter.ErrTransient, lastErr)
}


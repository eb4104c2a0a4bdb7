// Package xrp implements the chainadapter.Adapter contract for XRPL
// payment channels: ed25519 signatures over the PaymentChannelClaim
// preimage, cumulative-amount-monotonic admission (XRP has no nonce),
// and channel close via a PaymentChannelClaim transaction.
package xrp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Peersyst/xrpl-go/keypairs"
	"go.uber.org/zap"

	"github.com/socialwire/claimbridge/internal/chainadapter"
	"github.com/socialwire/claimbridge/internal/chainadapter/signstate"
	"github.com/socialwire/claimbridge/internal/claimcodec"
	"github.com/socialwire/claimbridge/internal/claimtypes"
)

const submitTimeout = 20 * time.Second

// ChainClient submits a signed PaymentChannelClaim transaction to an
// XRPL node and reports the settled transaction hash.
type ChainClient interface {
	SubmitPaymentChannelClaim(ctx context.Context, channelID string, counterpart claimtypes.XRPClaim) (txHash string, err error)
}

// Adapter signs, verifies and settles XRPL payment channel claims.
type Adapter struct {
	privateKeyHex string // ED25519 family-seed-derived private key, ED-prefixed hex
	publicKeyHex  string // ED-prefixed hex public key
	signstate     *signstate.Store
	chain         ChainClient
	log           *zap.Logger
}

func New(privateKeyHex, publicKeyHex string, ss *signstate.Store, chain ChainClient, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		privateKeyHex: strings.ToUpper(privateKeyHex),
		publicKeyHex:  strings.ToUpper(publicKeyHex),
		signstate:     ss,
		chain:         chain,
		log:           log,
	}
}

// Sign produces a claim for the cumulative drops amount. XRP channels
// have no nonce, and Sign does not compare the amount against earlier
// claims: it only advances the signstate outbound counter for the
// channel. Amount monotonicity is enforced on the receiving side by
// Verify's inbound guard.
func (a *Adapter) Sign(ctx context.Context, channelKey string, cumulativeAmount string) (claimtypes.SignedClaim, error) {
	var amount uint64
	if _, err := fmt.Sscanf(cumulativeAmount, "%d", &amount); err != nil {
		return nil, chainadapter.NewError("sign", chainadapter.ErrFatal, fmt.Errorf("invalid drops amount: %w", err))
	}

	preimage, err := claimcodec.XRPClaimPreimage(channelKey, amount)
	if err != nil {
		return nil, chainadapter.NewError("sign", chainadapter.ErrFatal, err)
	}

	sig, err := keypairs.Sign(string(preimage), a.privateKeyHex)
	if err != nil {
		return nil, chainadapter.NewError("sign", chainadapter.ErrFatal, err)
	}

	if _, err := a.signstate.NextOutbound(string(claimtypes.ChainXRP), channelKey); err != nil {
		return nil, chainadapter.NewError("sign", chainadapter.ErrFatal, err)
	}

	return claimtypes.XRPClaim{
		ChannelID: channelKey,
		Amount:    amount,
		Signature: sig,
		PublicKey: a.publicKeyHex,
	}, nil
}

// Verify checks the ed25519 signature and the inbound amount-monotonic
// replay guard.
func (a *Adapter) Verify(ctx context.Context, sc claimtypes.SignedClaim) error {
	claim, ok := sc.(claimtypes.XRPClaim)
	if !ok {
		return chainadapter.NewError("verify", chainadapter.ErrFatal, fmt.Errorf("not an XRP claim"))
	}

	preimage, err := claimcodec.XRPClaimPreimage(claim.ChannelID, claim.Amount)
	if err != nil {
		return chainadapter.NewError("verify", chainadapter.ErrInvalidSignature, err)
	}

	valid, err := keypairs.Validate(string(preimage), claim.PublicKey, claim.Signature)
	if err != nil {
		return chainadapter.NewError("verify", chainadapter.ErrInvalidSignature, err)
	}
	if !valid {
		return chainadapter.NewError("verify", chainadapter.ErrInvalidSignature, fmt.Errorf("ed25519 verification failed"))
	}

	admitted, err := a.signstate.AdmitInbound(string(claimtypes.ChainXRP), claim.ChannelID, claim.Amount)
	if err != nil {
		return chainadapter.NewError("verify", chainadapter.ErrFatal, err)
	}
	if !admitted {
		return chainadapter.NewError("verify", chainadapter.ErrStaleSequence, fmt.Errorf("amount %d does not exceed previously admitted claim", claim.Amount))
	}
	return nil
}

// CooperativeSettle submits a PaymentChannelClaim transaction closing the
// channel with the peer's highest claimed amount.
func (a *Adapter) CooperativeSettle(ctx context.Context, channelKey string, counterpart claimtypes.SignedClaim) (chainadapter.SettleResult, error) {
	claim, ok := counterpart.(claimtypes.XRPClaim)
	if !ok {
		return chainadapter.SettleResult{}, chainadapter.NewError("cooperative_settle", chainadapter.ErrFatal, fmt.Errorf("not an XRP claim"))
	}

	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	txHash, err := a.chain.SubmitPaymentChannelClaim(ctx, channelKey, claim)
	if err != nil {
		a.log.Warn("xrp cooperative_settle failed", zap.String("channel", channelKey), zap.Error(err))
		return chainadapter.SettleResult{}, chainadapter.NewError("cooperative_settle", chainadapter.ErrTransient, err)
	}
	return chainadapter.SettleResult{TxHash: txHash, Confirmed: true}, nil
}

func (a *Adapter) Chain() claimtypes.Chain { return claimtypes.ChainXRP }

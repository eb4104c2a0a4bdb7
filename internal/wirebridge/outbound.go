package wirebridge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/socialwire/claimbridge/internal/claimcodec"
	"github.com/socialwire/claimbridge/internal/claimtypes"
)

func encodeClaimEventBytes(ev *claimcodec.ClaimEvent) ([]byte, error) {
	return claimcodec.Encode(ev)
}

const defaultPrepareTimeout = 30 * time.Second

// outboundChannel resolves which chain/channel to pay an event's
// associated amount through, preferring EVM, then XRP, then Aptos.
type outboundChannel struct {
	chain      claimtypes.Chain
	channelKey string
}

func (b *Bridge) resolveOutboundChannel(destination string) (outboundChannel, bool) {
	if s, ok := b.registry.FindEVMChannelByPeer(destination); ok {
		return outboundChannel{chain: claimtypes.ChainEVM, channelKey: s.ChannelID}, true
	}
	if s, ok := b.registry.FindXRPChannelByDest(destination); ok {
		return outboundChannel{chain: claimtypes.ChainXRP, channelKey: s.ChannelID}, true
	}
	if s, ok := b.registry.FindAptosChannelByDest(destination); ok {
		return outboundChannel{chain: claimtypes.ChainAptos, channelKey: s.ChannelOwner}, true
	}
	return outboundChannel{}, false
}

// SendEvent implements the outbound prepare construction sequence: it
// adds amount to the matching channel's current cumulative claimed
// total, generates and piggy-backs a claim for that new total (if a
// channel matches), debits Channel State, checks the settlement
// threshold, wraps the event, and transmits a PREPARE, blocking until
// the correlated response arrives or expiresAt passes.
func (b *Bridge) SendEvent(ctx context.Context, peerID, destination, amount string, executionCondition string, innerContent []byte) (*Fulfill, *Reject, error) {
	conn, ok := b.conns[peerID]
	if !ok {
		return nil, nil, fmt.Errorf("no open connection to peer %q", peerID)
	}

	payload := innerContent
	if oc, ok := b.resolveOutboundChannel(destination); ok {
		if newCumulative, err := b.nextCumulative(oc, amount); err != nil {
			b.log.Warn("send_event: failed to compute new cumulative amount",
				zap.String("chain", string(oc.chain)), zap.String("channel", oc.channelKey), zap.Error(err))
		} else if claim, ok := b.claims.GenerateClaim(ctx, oc.chain, oc.channelKey, newCumulative); ok {
			b.applyDebit(oc, newCumulative)
			b.settlement.OnOutboundDebit(ctx, peerID, oc.chain, oc.channelKey, newCumulative)

			if ev, ok := b.claims.GenerateClaimEvent(string(innerContent), []claimtypes.SignedClaim{claim}, nil); ok {
				if wrapped, err := encodeClaimEventBytes(ev); err == nil {
					payload = wrapped
				}
			}
		}
	}

	packetID := newPacketID()
	expiresAt := time.Now().Add(defaultPrepareTimeout)
	prepare := Prepare{
		Amount:             amount,
		Destination:        destination,
		ExecutionCondition: executionCondition,
		ExpiresAt:          expiresAt,
		Data:               payload,
	}

	frame, err := encodePrepare(packetID, prepare)
	if err != nil {
		return nil, nil, fmt.Errorf("encode prepare: %w", err)
	}

	resultCh := conn.registerPending(packetID, destination, amount, expiresAt)
	if err := conn.enqueue(frame); err != nil {
		return nil, nil, err
	}

	select {
	case result := <-resultCh:
		return result.fulfill, result.reject, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// nextCumulative reads oc's current claimed cumulative amount from the
// registry and adds amount to it, returning the new total to claim.
// EVM amounts are u256 decimal strings added via shopspring/decimal; XRP
// drops and Aptos octas fit uint64.
func (b *Bridge) nextCumulative(oc outboundChannel, amount string) (string, error) {
	switch oc.chain {
	case claimtypes.ChainEVM:
		state, ok := b.registry.FindEVMChannel(oc.channelKey)
		if !ok {
			return "", fmt.Errorf("unknown EVM channel %q", oc.channelKey)
		}
		pre, err := decimal.NewFromString(state.TransferredAmount)
		if err != nil {
			return "", fmt.Errorf("invalid stored transferred amount %q: %w", state.TransferredAmount, err)
		}
		delta, err := decimal.NewFromString(amount)
		if err != nil {
			return "", fmt.Errorf("invalid amount %q: %w", amount, err)
		}
		return pre.Add(delta).String(), nil
	case claimtypes.ChainXRP:
		state, ok := b.registry.FindXRPChannel(oc.channelKey)
		if !ok {
			return "", fmt.Errorf("unknown XRP channel %q", oc.channelKey)
		}
		var delta uint64
		if _, err := fmt.Sscanf(amount, "%d", &delta); err != nil {
			return "", fmt.Errorf("invalid amount %q: %w", amount, err)
		}
		return strconv.FormatUint(state.Balance+delta, 10), nil
	case claimtypes.ChainAptos:
		state, ok := b.registry.FindAptosChannel(oc.channelKey)
		if !ok {
			return "", fmt.Errorf("unknown Aptos channel %q", oc.channelKey)
		}
		var delta uint64
		if _, err := fmt.Sscanf(amount, "%d", &delta); err != nil {
			return "", fmt.Errorf("invalid amount %q: %w", amount, err)
		}
		return strconv.FormatUint(state.Claimed+delta, 10), nil
	default:
		return "", fmt.Errorf("unsupported chain %q", oc.chain)
	}
}

// applyDebit stores newCumulative (the total claimed so far, not a
// delta) as oc's channel state.
func (b *Bridge) applyDebit(oc outboundChannel, newCumulative string) {
	switch oc.chain {
	case claimtypes.ChainEVM:
		b.registry.ApplyEVMDebit(oc.channelKey, newCumulative)
	case claimtypes.ChainXRP:
		var v uint64
		fmt.Sscanf(newCumulative, "%d", &v)
		b.registry.ApplyXRPDebit(oc.channelKey, v)
	case claimtypes.ChainAptos:
		var v uint64
		fmt.Sscanf(newCumulative, "%d", &v)
		b.registry.ApplyAptosDebit(oc.channelKey, v)
	}
}

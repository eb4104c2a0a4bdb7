// Package settlement implements the threshold watcher that cooperatively
// settles a channel once its outbound debits cross a configured
// cumulative amount.
package settlement

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/socialwire/claimbridge/internal/chainadapter"
	"github.com/socialwire/claimbridge/internal/claimstore"
	"github.com/socialwire/claimbridge/internal/claimtypes"
)

// Registry is the channel-state surface the trigger needs: marking a
// channel settled once cooperative_settle succeeds.
type Registry interface {
	MarkSettled(chain claimtypes.Chain, key string)
}

// Adapters resolves the per-chain adapter used to sign the counterpart
// claim and submit cooperative_settle.
type Adapters interface {
	For(chain claimtypes.Chain) (chainadapter.Adapter, bool)
}

// Trigger watches outbound debits and settles channels that cross
// Threshold, guarding against concurrent settlement attempts on the same
// channel with a per-channel in-flight flag.
type Trigger struct {
	threshold decimal.Decimal
	store     *claimstore.Store
	registry  Registry
	adapters  Adapters
	log       *zap.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

func New(threshold decimal.Decimal, store *claimstore.Store, registry Registry, adapters Adapters, log *zap.Logger) *Trigger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trigger{
		threshold: threshold,
		store:     store,
		registry:  registry,
		adapters:  adapters,
		log:       log,
		inFlight:  make(map[string]bool),
	}
}

// OnOutboundDebit is called by the wire bridge after every outbound
// debit, with the channel's new cumulative transferred amount. If the
// amount crosses Threshold and no settlement is already in flight for
// this (chain, channelKey), it kicks off settlement asynchronously and
// returns immediately.
func (t *Trigger) OnOutboundDebit(ctx context.Context, peerID string, chain claimtypes.Chain, channelKey string, newCumulativeAmount string) {
	amount, err := decimal.NewFromString(newCumulativeAmount)
	if err != nil {
		t.log.Error("settlement: malformed cumulative amount", zap.String("channel", channelKey), zap.Error(err))
		return
	}
	key := string(chain) + "/" + channelKey
	t.mu.Lock()
	if amount.LessThan(t.threshold) {
		t.mu.Unlock()
		return
	}
	if t.inFlight[key] {
		t.mu.Unlock()
		return
	}
	t.inFlight[key] = true
	t.mu.Unlock()

	go t.settle(ctx, peerID, chain, channelKey, key)
}

// State is the externally-visible settlement status for one channel,
// reported by the HTTP management surface.
type State string

const (
	StateIdle       State = "Idle"
	StatePending    State = "Pending"
	StateInProgress State = "InProgress"
)

// Status reports whether a settlement is currently in flight for
// (chain, channelKey), independent of OnOutboundDebit.
func (t *Trigger) Status(chain claimtypes.Chain, channelKey string) State {
	key := string(chain) + "/" + channelKey
	t.mu.Lock()
	inFlight := t.inFlight[key]
	t.mu.Unlock()
	if inFlight {
		return StateInProgress
	}
	return StateIdle
}

// ExecuteNow triggers cooperative_settle immediately regardless of
// Threshold, used by the HTTP management surface's POST
// /settlement/execute. It returns false without starting settlement if
// one is already in flight for this channel.
func (t *Trigger) ExecuteNow(ctx context.Context, peerID string, chain claimtypes.Chain, channelKey string) bool {
	key := string(chain) + "/" + channelKey
	t.mu.Lock()
	if t.inFlight[key] {
		t.mu.Unlock()
		return false
	}
	t.inFlight[key] = true
	t.mu.Unlock()

	go t.settle(ctx, peerID, chain, channelKey, key)
	return true
}

// SetThreshold updates the settlement threshold at runtime (HTTP
// management surface's POST /configure-settlement).
func (t *Trigger) SetThreshold(threshold decimal.Decimal) {
	t.mu.Lock()
	t.threshold = threshold
	t.mu.Unlock()
}

func (t *Trigger) settle(ctx context.Context, peerID string, chain claimtypes.Chain, channelKey, flagKey string) {
	defer func() {
		t.mu.Lock()
		delete(t.inFlight, flagKey)
		t.mu.Unlock()
	}()

	inbound, ok := t.store.Latest(peerID, chain, channelKey)
	if !ok {
		t.log.Warn("settlement: no inbound claim on file, skipping", zap.String("channel", channelKey))
		return
	}

	adapter, ok := t.adapters.For(chain)
	if !ok {
		t.log.Error("settlement: no adapter for chain", zap.String("chain", string(chain)))
		return
	}

	if _, err := adapter.Sign(ctx, channelKey, ClaimedAmount(inbound)); err != nil {
		t.log.Error("settlement: failed to sign counterpart claim", zap.String("channel", channelKey), zap.Error(err))
		return
	}

	// The peer-signed inbound claim is the one submitted on chain.
	result, err := adapter.CooperativeSettle(ctx, channelKey, inbound)
	if err != nil {
		t.log.Error("settlement: cooperative_settle failed, channel state unchanged",
			zap.String("channel", channelKey), zap.Error(err))
		return
	}

	t.registry.MarkSettled(chain, channelKey)
	t.log.Info("settlement: channel settled",
		zap.String("channel", channelKey), zap.String("tx", result.TxHash))
}

// ClaimedAmount extracts the cumulative owed amount from a signed claim
// as a decimal string, regardless of chain. Unlike Sequence(), which is
// the nonce for EVM/Aptos, this is always the amount the counterpart
// claim must mirror.
func ClaimedAmount(c claimtypes.SignedClaim) string {
	switch v := c.(type) {
	case claimtypes.EVMClaim:
		return v.TransferredAmount
	case claimtypes.XRPClaim:
		return formatUint(v.Amount)
	case claimtypes.AptosClaim:
		return formatUint(v.Amount)
	default:
		return "0"
	}
}

func formatUint(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

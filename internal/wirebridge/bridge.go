// Package wirebridge terminates bilateral long-lived connections with
// peers and frames, correlates and dispatches PREPARE/FULFILL/REJECT
// packets, piggy-backing claim events on the packets' data fields.
package wirebridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/socialwire/claimbridge/internal/claimcodec"
	"github.com/socialwire/claimbridge/internal/claimmanager"
	"github.com/socialwire/claimbridge/internal/claimtypes"
)

const (
	connectorFeeRate  = 0.01 // 1%, rounded up
	expiryShrinkDelta = 1 * time.Second
)

// EventHandler delivers unwrapped inner events to whatever application
// logic consumes them (note/follow/query handlers in the larger agent;
// out of scope here, represented by this narrow interface).
type EventHandler interface {
	HandleEvent(ctx context.Context, peerID string, innerContent []byte) (fulfillData []byte, reject *Reject, err error)
}

// Gateway is an optional side-channel (private messaging) that may claim
// a destination before ordinary routing is attempted.
type Gateway interface {
	// Accepts reports whether this gateway handles destination.
	Accepts(destination string) bool
	Handle(ctx context.Context, peerID string, prepare Prepare) (*Fulfill, *Reject)
}

// Upstream sends a prepare on to the next hop when this node is not the
// destination (multi-hop forwarding).
type Upstream interface {
	ForwardPrepare(ctx context.Context, destination string, prepare Prepare) (*Fulfill, *Reject, error)
}

// Registry is the channel-state surface the bridge debits on outbound
// sends.
type Registry interface {
	FindEVMChannelByPeer(peerAddress string) (claimtypes.EVMChannelState, bool)
	FindXRPChannelByDest(destination string) (claimtypes.XRPChannelState, bool)
	FindAptosChannelByDest(destination string) (claimtypes.AptosChannelState, bool)
	FindEVMChannel(channelID string) (claimtypes.EVMChannelState, bool)
	FindXRPChannel(channelID string) (claimtypes.XRPChannelState, bool)
	FindAptosChannel(channelOwner string) (claimtypes.AptosChannelState, bool)
	ApplyEVMDebit(channelID string, newTransferredAmount string)
	ApplyXRPDebit(channelID string, newBalance uint64)
	ApplyAptosDebit(channelOwner string, newClaimed uint64)
}

// SettlementWatcher is notified after every outbound debit so it can
// check the settlement threshold.
type SettlementWatcher interface {
	OnOutboundDebit(ctx context.Context, peerID string, chain claimtypes.Chain, channelKey string, newCumulativeAmount string)
}

// ClaimManager is the subset of claimmanager.Manager the bridge drives.
type ClaimManager interface {
	GenerateClaim(ctx context.Context, chain claimtypes.Chain, channelKey string, amount string) (claimtypes.SignedClaim, bool)
	GenerateClaimEvent(innerContent string, claims []claimtypes.SignedClaim, requests []claimtypes.ClaimRequest) (*claimcodec.ClaimEvent, bool)
	ProcessReceivedClaimEvent(ctx context.Context, peerID string, ev *claimcodec.ClaimEvent) claimmanager.ProcessResult
}

// Bridge owns every active connection and dispatches inbound/outbound
// traffic through the claim pipeline.
type Bridge struct {
	upgrader websocket.Upgrader

	conns map[string]*Conn // by peer id; one connection per peer

	claims     ClaimManager
	registry   Registry
	settlement SettlementWatcher
	events     EventHandler
	gateway    Gateway // nil if not configured
	upstream   Upstream // nil if this node has no upstream connector

	localAddress string // this node's destination identifier
	log          *zap.Logger
}

func New(claims ClaimManager, registry Registry, settlement SettlementWatcher, events EventHandler, gateway Gateway, upstream Upstream, localAddress string, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		upgrader:     websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		conns:        make(map[string]*Conn),
		claims:       claims,
		registry:     registry,
		settlement:   settlement,
		events:       events,
		gateway:      gateway,
		upstream:     upstream,
		localAddress: localAddress,
		log:          log,
	}
}

// ServeHTTP upgrades an incoming HTTP request to a WebSocket connection
// and registers it under peerID exactly as the caller supplies it. No
// handshake or authentication runs on the connection itself.
func (b *Bridge) ServeHTTP(peerID string, w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("wirebridge upgrade failed", zap.Error(err))
		return
	}
	conn := newConn(peerID, ws, b.log)
	b.conns[peerID] = conn

	go conn.sendLoop()
	conn.readLoop(func(frame []byte) { b.handleFrame(conn, frame) })
}

func (b *Bridge) handleFrame(conn *Conn, frame []byte) {
	env, err := decodeEnvelope(frame)
	if err != nil {
		b.replyReject(conn, "", Reject{Code: RejectInvalidPacket, Message: "malformed frame"})
		return
	}

	switch env.Type {
	case PacketPrepare:
		b.handlePrepare(conn, env)
	case PacketFulfill, PacketReject:
		b.handleResponse(conn, env)
	default:
		b.replyReject(conn, env.PacketID, Reject{Code: RejectInvalidPacket, Message: "unknown packet type"})
	}
}

func (b *Bridge) handleResponse(conn *Conn, env envelope) {
	var result prepareResult
	switch env.Type {
	case PacketFulfill:
		var f Fulfill
		if err := unmarshalBody(env.Body, &f); err != nil {
			return
		}
		result = prepareResult{fulfill: &f}
	case PacketReject:
		var rj Reject
		if err := unmarshalBody(env.Body, &rj); err != nil {
			return
		}
		result = prepareResult{reject: &rj}
	}
	conn.resolvePending(env.PacketID, result)
}

func (b *Bridge) handlePrepare(conn *Conn, env envelope) {
	var prepare Prepare
	if err := unmarshalBody(env.Body, &prepare); err != nil {
		b.replyReject(conn, env.PacketID, Reject{Code: RejectInvalidPacket, Message: "malformed prepare body"})
		return
	}
	if time.Now().After(prepare.ExpiresAt) {
		b.replyReject(conn, env.PacketID, Reject{Code: RejectInvalidAmount, Message: "prepare already expired"})
		return
	}

	ctx := context.Background()

	// Step 2: optional side-channel gateway hand-off.
	if b.gateway != nil && b.gateway.Accepts(prepare.Destination) {
		fulfill, reject := b.gateway.Handle(ctx, conn.PeerID, prepare)
		b.replyResult(conn, env.PacketID, fulfill, reject)
		return
	}

	// Step 3: multi-hop forwarding if destination is not ours.
	if prepare.Destination != b.localAddress {
		if b.upstream == nil {
			b.replyReject(conn, env.PacketID, Reject{Code: RejectUnreachable, Message: "no upstream connector configured"})
			return
		}
		forwarded, err := forwardPrepare(prepare)
		if err != nil {
			b.replyReject(conn, env.PacketID, Reject{Code: RejectInvalidAmount, Message: err.Error()})
			return
		}
		fulfill, reject, err := b.upstream.ForwardPrepare(ctx, prepare.Destination, forwarded)
		if err != nil {
			b.replyReject(conn, env.PacketID, Reject{Code: RejectPeerUnreachable, Message: err.Error()})
			return
		}
		b.replyResult(conn, env.PacketID, fulfill, reject)
		return
	}

	// Step 4: terminate locally.
	b.terminateLocally(ctx, conn, env.PacketID, prepare)
}

// forwardPrepare applies the 1% connector fee (rounded up) and shrinks
// expiry by one second before resending upstream.
func forwardPrepare(p Prepare) (Prepare, error) {
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return Prepare{}, fmt.Errorf("invalid amount %q", p.Amount)
	}
	fee := amount.Mul(decimal.NewFromFloat(connectorFeeRate)).Ceil()
	forwardedAmount := amount.Sub(fee)
	if forwardedAmount.IsNegative() {
		return Prepare{}, fmt.Errorf("amount too small to cover connector fee")
	}

	return Prepare{
		Amount:             forwardedAmount.String(),
		Destination:        p.Destination,
		ExecutionCondition: p.ExecutionCondition,
		ExpiresAt:          p.ExpiresAt.Add(-expiryShrinkDelta),
		Data:               p.Data,
	}, nil
}

func (b *Bridge) terminateLocally(ctx context.Context, conn *Conn, packetID string, prepare Prepare) {
	innerContent, claims, requests := b.decodeClaimPayload(prepare.Data)

	result := claimmanager.ProcessResult{}
	if claims != nil || requests != nil {
		ev, err := claimcodec.Wrap("", claims, requests)
		if err == nil {
			result = b.claims.ProcessReceivedClaimEvent(ctx, conn.PeerID, ev)
		}
	}

	fulfillData, reject, err := b.events.HandleEvent(ctx, conn.PeerID, innerContent)
	if err != nil {
		b.replyReject(conn, packetID, Reject{Code: RejectApplication, Message: err.Error()})
		return
	}
	if reject != nil {
		b.replyResult(conn, packetID, nil, reject)
		return
	}

	// Graceful degradation: claim-pipeline failures never block delivery
	// of the fulfill, but successfully-signed responses are piggy-backed.
	if len(result.SignedResponses) > 0 {
		if ev, ok := b.claims.GenerateClaimEvent(string(fulfillData), result.SignedResponses, nil); ok {
			if wrapped, err := claimcodec.Encode(ev); err == nil {
				fulfillData = wrapped
			}
		}
	}

	b.replyResult(conn, packetID, &Fulfill{Fulfillment: generateFulfillment(prepare.ExecutionCondition), Data: fulfillData}, nil)
}

// decodeClaimPayload extracts a claim event from prepare data if
// present, otherwise treats the whole payload as plain inner content
// (the discriminator check that is step 1 of the claim pipeline).
func (b *Bridge) decodeClaimPayload(data []byte) (string, []claimtypes.SignedClaim, []claimtypes.ClaimRequest) {
	if !claimcodec.IsClaimEvent(data) {
		return string(data), nil, nil
	}
	ev, err := claimcodec.Decode(data)
	if err != nil {
		return string(data), nil, nil
	}
	content, claims, requests := claimcodec.Unwrap(ev)
	return content, claims, requests
}

func (b *Bridge) replyReject(conn *Conn, packetID string, reject Reject) {
	b.replyResult(conn, packetID, nil, &reject)
}

func (b *Bridge) replyResult(conn *Conn, packetID string, fulfill *Fulfill, reject *Reject) {
	var frame []byte
	var err error
	if fulfill != nil {
		frame, err = encodeFulfill(packetID, *fulfill)
	} else if reject != nil {
		frame, err = encodeReject(packetID, *reject)
	} else {
		return
	}
	if err != nil {
		b.log.Error("wirebridge failed to encode response", zap.Error(err))
		return
	}
	if err := conn.enqueue(frame); err != nil {
		b.log.Warn("wirebridge failed to send response", zap.Error(err))
	}
}

func unmarshalBody(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}

// generateFulfillment is a placeholder preimage-reveal step; production
// fulfillment is the SHA-256 preimage of executionCondition, supplied by
// whichever component constructed the original condition. Wired here so
// the packet's shape is exercised end to end; callers needing real
// fulfillment-condition hashing supply it through EventHandler.
func generateFulfillment(executionCondition string) string {
	return executionCondition
}

func newPacketID() string {
	return uuid.NewString()
}

package wirebridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialwire/claimbridge/internal/claimcodec"
	"github.com/socialwire/claimbridge/internal/claimmanager"
	"github.com/socialwire/claimbridge/internal/claimtypes"
)

type fakeClaims struct{}

func (fakeClaims) GenerateClaim(ctx context.Context, chain claimtypes.Chain, channelKey string, amount string) (claimtypes.SignedClaim, bool) {
	return nil, false
}
func (fakeClaims) GenerateClaimEvent(innerContent string, claims []claimtypes.SignedClaim, requests []claimtypes.ClaimRequest) (*claimcodec.ClaimEvent, bool) {
	return nil, false
}
func (fakeClaims) ProcessReceivedClaimEvent(ctx context.Context, peerID string, ev *claimcodec.ClaimEvent) claimmanager.ProcessResult {
	return claimmanager.ProcessResult{}
}

type fakeRegistry struct{}

func (fakeRegistry) FindEVMChannelByPeer(string) (claimtypes.EVMChannelState, bool) { return claimtypes.EVMChannelState{}, false }
func (fakeRegistry) FindXRPChannelByDest(string) (claimtypes.XRPChannelState, bool) { return claimtypes.XRPChannelState{}, false }
func (fakeRegistry) FindAptosChannelByDest(string) (claimtypes.AptosChannelState, bool) {
	return claimtypes.AptosChannelState{}, false
}
func (fakeRegistry) FindEVMChannel(string) (claimtypes.EVMChannelState, bool) { return claimtypes.EVMChannelState{}, false }
func (fakeRegistry) FindXRPChannel(string) (claimtypes.XRPChannelState, bool) { return claimtypes.XRPChannelState{}, false }
func (fakeRegistry) FindAptosChannel(string) (claimtypes.AptosChannelState, bool) {
	return claimtypes.AptosChannelState{}, false
}
func (fakeRegistry) ApplyEVMDebit(string, string)   {}
func (fakeRegistry) ApplyXRPDebit(string, uint64)   {}
func (fakeRegistry) ApplyAptosDebit(string, uint64) {}

type fakeSettlement struct{}

func (fakeSettlement) OnOutboundDebit(context.Context, string, claimtypes.Chain, string, string) {}

type fakeEvents struct{}

func (fakeEvents) HandleEvent(ctx context.Context, peerID string, innerContent []byte) ([]byte, *Reject, error) {
	return append([]byte("echo:"), innerContent...), nil, nil
}

func startTestServer(t *testing.T, b *Bridge) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.ServeHTTP("peer-client", w, r)
	}))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

// TestLocalTerminatePrepareReturnsFulfill covers the local-terminate
// branch of the PREPARE state machine end to end over a real WebSocket.
func TestLocalTerminatePrepareReturnsFulfill(t *testing.T) {
	b := New(fakeClaims{}, fakeRegistry{}, fakeSettlement{}, fakeEvents{}, nil, nil, "local.node", nil)
	_, wsURL := startTestServer(t, b)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	prepare := Prepare{
		Amount:             "10",
		Destination:        "local.node",
		ExecutionCondition: "cond-hash",
		ExpiresAt:          time.Now().Add(5 * time.Second),
		Data:               []byte("hello-event"),
	}
	frame, err := encodePrepare("packet-1", prepare)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)

	env, err := decodeEnvelope(reply)
	require.NoError(t, err)
	assert.Equal(t, PacketFulfill, env.Type)
	assert.Equal(t, "packet-1", env.PacketID)

	var fulfill Fulfill
	require.NoError(t, unmarshalBody(env.Body, &fulfill))
	assert.Equal(t, "echo:hello-event", string(fulfill.Data))
}

// TestMalformedFrameRejectsF01 covers the parse-failure branch of the
// state machine.
func TestMalformedFrameRejectsF01(t *testing.T) {
	b := New(fakeClaims{}, fakeRegistry{}, fakeSettlement{}, fakeEvents{}, nil, nil, "local.node", nil)
	_, wsURL := startTestServer(t, b)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("not json")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)

	env, err := decodeEnvelope(reply)
	require.NoError(t, err)
	assert.Equal(t, PacketReject, env.Type)

	var reject Reject
	require.NoError(t, unmarshalBody(env.Body, &reject))
	assert.Equal(t, RejectInvalidPacket, reject.Code)
}

// TestPrepareToUnreachableDestinationWithNoUpstreamRejects covers the
// forwarding branch when no upstream connector is configured.
func TestPrepareToUnreachableDestinationWithNoUpstreamRejects(t *testing.T) {
	b := New(fakeClaims{}, fakeRegistry{}, fakeSettlement{}, fakeEvents{}, nil, nil, "local.node", nil)
	_, wsURL := startTestServer(t, b)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	prepare := Prepare{Amount: "10", Destination: "other.node", ExpiresAt: time.Now().Add(5 * time.Second)}
	frame, err := encodePrepare("packet-2", prepare)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)

	env, err := decodeEnvelope(reply)
	require.NoError(t, err)
	var reject Reject
	require.NoError(t, unmarshalBody(env.Body, &reject))
	assert.Equal(t, RejectUnreachable, reject.Code)
}

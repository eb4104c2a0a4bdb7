package wirebridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEnvelopeRoundTrip(t *testing.T) {
	p := Prepare{Amount: "100", Destination: "peer.b", ExecutionCondition: "cond", ExpiresAt: time.Now().Add(time.Minute)}
	frame, err := encodePrepare("packet-1", p)
	require.NoError(t, err)

	env, err := decodeEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, PacketPrepare, env.Type)
	assert.Equal(t, "packet-1", env.PacketID)

	var decoded Prepare
	require.NoError(t, unmarshalBody(env.Body, &decoded))
	assert.Equal(t, p.Amount, decoded.Amount)
	assert.Equal(t, p.Destination, decoded.Destination)
}

// TestForwardPrepareDeductsFeeAndShrinksExpiry covers S6: multi-hop
// forwarding subtracts a 1% connector fee (rounded up) and shrinks
// expiry by one second.
func TestForwardPrepareDeductsFeeAndShrinksExpiry(t *testing.T) {
	expiry := time.Now().Add(10 * time.Second)
	p := Prepare{Amount: "1000", Destination: "peer.c", ExecutionCondition: "cond", ExpiresAt: expiry}

	forwarded, err := forwardPrepare(p)
	require.NoError(t, err)

	assert.Equal(t, "990", forwarded.Amount) // 1% of 1000 = 10, rounded up is still 10
	assert.Equal(t, expiry.Add(-time.Second), forwarded.ExpiresAt)
}

func TestForwardPrepareRoundsFeeUp(t *testing.T) {
	p := Prepare{Amount: "101", ExpiresAt: time.Now()}
	forwarded, err := forwardPrepare(p)
	require.NoError(t, err)
	// 1% of 101 = 1.01, rounded up to 2.
	assert.Equal(t, "99", forwarded.Amount)
}

func TestDecodeEnvelopeRejectsSchemaViolation(t *testing.T) {
	_, err := decodeEnvelope([]byte(`{"packetId": "x", "type": "BOGUS"}`))
	require.Error(t, err)

	_, err = decodeEnvelope([]byte(`{"type": "PREPARE"}`))
	require.Error(t, err)
}

func TestForwardPrepareForwardsZeroAndRejectsMalformedAmount(t *testing.T) {
	p := Prepare{Amount: "0", ExpiresAt: time.Now()}
	_, err := forwardPrepare(p)
	require.NoError(t, err) // zero fee on zero amount is legal, still forwards zero

	bad := Prepare{Amount: "not-a-number", ExpiresAt: time.Now()}
	_, err = forwardPrepare(bad)
	require.Error(t, err)
}

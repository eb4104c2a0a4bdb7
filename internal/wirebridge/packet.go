package wirebridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// envelopeSchema is the §6 JSON wire form's shape: a packet id, one of
// the three recognized packet types, and an opaque body object. Frames
// failing this schema are rejected before they ever reach packet-specific
// decoding, so a malformed peer can never crash the connection loop.
var envelopeSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["packetId", "type"],
	"properties": {
		"packetId": {"type": "string"},
		"type": {"type": "string", "enum": ["PREPARE", "FULFILL", "REJECT"]},
		"body": {"type": "object"}
	}
}`)

// PacketType discriminates the three ILP-shaped packet kinds a
// connection can carry.
type PacketType string

const (
	PacketPrepare PacketType = "PREPARE"
	PacketFulfill PacketType = "FULFILL"
	PacketReject  PacketType = "REJECT"
)

// RejectCode is the fixed REJECT error-code taxonomy. Codes starting
// with F are final (do not retry); T codes are temporary.
type RejectCode string

const (
	RejectInvalidPacket  RejectCode = "F01"
	RejectUnreachable    RejectCode = "F02"
	RejectInvalidAmount  RejectCode = "F03"
	RejectApplication    RejectCode = "F99"
	RejectInternal       RejectCode = "T00"
	RejectPeerUnreachable RejectCode = "T01"
)

// Prepare is the outbound-intent packet: move amount to destination,
// released against a 32-byte execution condition before expiresAt.
type Prepare struct {
	Amount             string    `json:"amount"`
	Destination        string    `json:"destination"`
	ExecutionCondition string    `json:"executionCondition"` // 32 bytes, hex
	ExpiresAt          time.Time `json:"expiresAt"`
	Data               []byte    `json:"data"`
}

// Fulfill closes out a prepare successfully with the 32-byte
// fulfillment that hashes to the prepare's execution condition.
type Fulfill struct {
	Fulfillment string `json:"fulfillment"` // 32 bytes, hex
	Data        []byte `json:"data"`
}

// Reject closes out a prepare unsuccessfully.
type Reject struct {
	Code    RejectCode `json:"code"`
	Message string     `json:"message"`
	Data    []byte     `json:"data"`
}

// envelope is the BTP-shaped frame carried over one WebSocket binary
// message: one packet id correlating request/response, one packet type
// discriminator, and the packet's own JSON body. Production BTP framing
// is a compact binary format; this is its field set expressed as the
// teacher's JSON-over-websocket idiom (see DESIGN.md).
type envelope struct {
	PacketID string          `json:"packetId"`
	Type     PacketType      `json:"type"`
	Body     json.RawMessage `json:"body"`
}

func encodePrepare(packetID string, p Prepare) ([]byte, error) {
	return encodeEnvelope(packetID, PacketPrepare, p)
}

func encodeFulfill(packetID string, f Fulfill) ([]byte, error) {
	return encodeEnvelope(packetID, PacketFulfill, f)
}

func encodeReject(packetID string, r Reject) ([]byte, error) {
	return encodeEnvelope(packetID, PacketReject, r)
}

func encodeEnvelope(packetID string, t PacketType, body interface{}) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{PacketID: packetID, Type: t, Body: raw})
}

func decodeEnvelope(frame []byte) (envelope, error) {
	result, err := gojsonschema.Validate(envelopeSchema, gojsonschema.NewBytesLoader(frame))
	if err != nil {
		return envelope{}, fmt.Errorf("validate envelope: %w", err)
	}
	if !result.Valid() {
		return envelope{}, fmt.Errorf("envelope failed schema validation: %v", result.Errors())
	}

	var e envelope
	if err := json.Unmarshal(frame, &e); err != nil {
		return envelope{}, err
	}
	return e, nil
}

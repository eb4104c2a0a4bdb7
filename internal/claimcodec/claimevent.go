package claimcodec

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/socialwire/claimbridge/internal/claimtypes"
)

// ClaimWrapperKind is the discriminator value that marks a wire event as
// a claim wrapper rather than a plain application event. It deliberately
// sits outside any range a Nostr-style relay would otherwise assign, so a
// peer that does not understand claims can still treat the event as
// "some unrecognized kind" and ignore the extra fields.
const ClaimWrapperKind = 33001

// wireSignedClaim is the on-the-wire shape of a claimtypes.SignedClaim.
// Fields irrelevant to a given chain are simply omitted; unknown fields
// on decode are silently dropped by encoding/json, giving forward
// compatibility for free.
type wireSignedClaim struct {
	Chain             string `json:"chain"`
	ChannelKey        string `json:"channelKey"`
	Signer            string `json:"signer"`
	Signature         string `json:"signature"`
	Nonce             uint64 `json:"nonce,omitempty"`
	Amount            string `json:"amount,omitempty"`
	TransferredAmount string `json:"transferredAmount,omitempty"`
	LockedAmount      string `json:"lockedAmount,omitempty"`
	LocksRoot         string `json:"locksRoot,omitempty"`
}

type wireClaimRequest struct {
	Chain        string `json:"chain"`
	ChannelKey   string `json:"channelKey"`
	ExpectAmount string `json:"amount"`
	ExpectNonce  uint64 `json:"nonce"`
}

// ClaimEvent is the decoded form of a claim-wrapper wire event: an
// opaque inner payload plus the sender's signed claims and requests.
type ClaimEvent struct {
	Kind     int                `json:"kind"`
	Content  string             `json:"content"`
	Claims   []wireSignedClaim  `json:"claims,omitempty"`
	Requests []wireClaimRequest `json:"requests,omitempty"`
}

// kindProbe is used to cheaply peek the discriminator without fully
// decoding a payload whose shape we don't yet trust.
type kindProbe struct {
	Kind int `json:"kind"`
}

// IsClaimEvent reports whether raw is a claim-wrapper event. It never
// errors: anything that fails to parse as JSON, or parses without the
// claim discriminator, is treated as a plain event.
func IsClaimEvent(raw []byte) bool {
	var probe kindProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Kind == ClaimWrapperKind
}

// claimEventSchema is a permissive JSON Schema used only to reject
// structurally malformed wrapper frames before they reach field-level
// decoding; it intentionally does not constrain extra/unknown fields so
// forward compatibility is preserved.
const claimEventSchema = `{
  "type": "object",
  "required": ["kind", "content"],
  "properties": {
    "kind": {"type": "integer"},
    "content": {"type": "string"},
    "claims": {"type": "array"},
    "requests": {"type": "array"}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(claimEventSchema)

// Wrap builds a ClaimEvent carrying innerContent plus the given outbound
// claims and requests. It never fails on well-formed Go inputs; the
// returned error type is CodecError for symmetry with Decode.
func Wrap(innerContent string, claims []claimtypes.SignedClaim, requests []claimtypes.ClaimRequest) (*ClaimEvent, error) {
	ev := &ClaimEvent{
		Kind:    ClaimWrapperKind,
		Content: innerContent,
	}
	for _, c := range claims {
		w, err := toWireClaim(c)
		if err != nil {
			return nil, wrap("wrap-claim", err)
		}
		ev.Claims = append(ev.Claims, w)
	}
	for _, r := range requests {
		ev.Requests = append(ev.Requests, wireClaimRequest{
			Chain:        string(r.RequestChain),
			ChannelKey:   r.ChannelKey,
			ExpectAmount: r.ExpectAmount,
			ExpectNonce:  r.ExpectNonce,
		})
	}
	return ev, nil
}

// Encode serializes a ClaimEvent to its wire JSON form.
func Encode(ev *ClaimEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, wrap("encode", err)
	}
	return data, nil
}

// Decode parses raw wire bytes into a ClaimEvent. Schema validation runs
// first so malformed frames fail fast as a CodecError without touching
// the chain-specific claim parsing; unknown fields inside an otherwise
// valid frame are ignored, not rejected.
func Decode(raw []byte) (*ClaimEvent, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, wrap("schema-validate", err)
	}
	if !result.Valid() {
		return nil, wrap("schema-validate", fmt.Errorf("%d schema violations", len(result.Errors())))
	}

	var ev ClaimEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, wrap("decode", err)
	}
	return &ev, nil
}

// Unwrap extracts the inner content, claims and requests from a decoded
// ClaimEvent. Individual claims/requests that fail to parse for their
// declared chain are dropped rather than failing the whole unwrap, since
// the codec must tolerate unknown/malformed entries from newer peers.
func Unwrap(ev *ClaimEvent) (content string, claims []claimtypes.SignedClaim, requests []claimtypes.ClaimRequest) {
	content = ev.Content
	for _, w := range ev.Claims {
		c, err := fromWireClaim(w)
		if err != nil {
			continue
		}
		claims = append(claims, c)
	}
	for _, w := range ev.Requests {
		chain := claimtypes.Chain(w.Chain)
		if !chain.Valid() {
			continue
		}
		requests = append(requests, claimtypes.ClaimRequest{
			RequestChain: chain,
			ChannelKey:   w.ChannelKey,
			ExpectAmount: w.ExpectAmount,
			ExpectNonce:  w.ExpectNonce,
		})
	}
	return content, claims, requests
}

func toWireClaim(c claimtypes.SignedClaim) (wireSignedClaim, error) {
	switch v := c.(type) {
	case claimtypes.EVMClaim:
		return wireSignedClaim{
			Chain:             string(claimtypes.ChainEVM),
			ChannelKey:        v.ChannelID,
			Signer:            v.SignerAddr,
			Signature:         v.Signature,
			Nonce:             v.Nonce,
			TransferredAmount: v.TransferredAmount,
			LockedAmount:      v.LockedAmount,
			LocksRoot:         v.LocksRoot,
		}, nil
	case claimtypes.XRPClaim:
		return wireSignedClaim{
			Chain:      string(claimtypes.ChainXRP),
			ChannelKey: v.ChannelID,
			Signer:     v.PublicKey,
			Signature:  v.Signature,
			Amount:     fmt.Sprintf("%d", v.Amount),
		}, nil
	case claimtypes.AptosClaim:
		return wireSignedClaim{
			Chain:      string(claimtypes.ChainAptos),
			ChannelKey: v.ChannelOwner,
			Signer:     v.PublicKey,
			Signature:  v.Signature,
			Nonce:      v.Nonce,
			Amount:     fmt.Sprintf("%d", v.Amount),
		}, nil
	default:
		return wireSignedClaim{}, fmt.Errorf("unknown claim implementation %T", c)
	}
}

func fromWireClaim(w wireSignedClaim) (claimtypes.SignedClaim, error) {
	switch claimtypes.Chain(w.Chain) {
	case claimtypes.ChainEVM:
		return claimtypes.EVMClaim{
			ChannelID:         w.ChannelKey,
			Nonce:             w.Nonce,
			TransferredAmount: w.TransferredAmount,
			LockedAmount:      w.LockedAmount,
			LocksRoot:         w.LocksRoot,
			Signature:         w.Signature,
			SignerAddr:        w.Signer,
		}, nil
	case claimtypes.ChainXRP:
		var amount uint64
		if _, err := fmt.Sscanf(w.Amount, "%d", &amount); err != nil {
			return nil, err
		}
		return claimtypes.XRPClaim{
			ChannelID: w.ChannelKey,
			Amount:    amount,
			Signature: w.Signature,
			PublicKey: w.Signer,
		}, nil
	case claimtypes.ChainAptos:
		var amount uint64
		if _, err := fmt.Sscanf(w.Amount, "%d", &amount); err != nil {
			return nil, err
		}
		return claimtypes.AptosClaim{
			ChannelOwner: w.ChannelKey,
			Amount:       amount,
			Nonce:        w.Nonce,
			Signature:    w.Signature,
			PublicKey:    w.Signer,
		}, nil
	default:
		return nil, fmt.Errorf("unknown chain %q", w.Chain)
	}
}

// Package chainadapter defines the per-chain signing/verification/
// settlement contract and its shared error taxonomy. Concrete adapters
// live in the evm, xrp and aptos subpackages.
package chainadapter

import (
	"context"

	"github.com/socialwire/claimbridge/internal/claimtypes"
)

// ErrorKind is the 8-value error taxonomy every adapter operation
// reports through, so callers can branch on retryability without
// knowing which chain produced the error.
type ErrorKind int

const (
	ErrConnectionFailed ErrorKind = iota
	ErrTimeout
	ErrRateLimited
	ErrInvalidSignature
	ErrStaleSequence
	ErrInsufficientBalance
	ErrTransient
	ErrFatal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrConnectionFailed:
		return "connection_failed"
	case ErrTimeout:
		return "timeout"
	case ErrRateLimited:
		return "rate_limited"
	case ErrInvalidSignature:
		return "invalid_signature"
	case ErrStaleSequence:
		return "stale_sequence"
	case ErrInsufficientBalance:
		return "insufficient_balance"
	case ErrTransient:
		return "transient"
	case ErrFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Retryable reports whether a caller may reasonably retry the operation
// that produced this error kind.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrConnectionFailed, ErrTimeout, ErrRateLimited, ErrTransient:
		return true
	default:
		return false
	}
}

// Error is the concrete error type every adapter method returns.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(op string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// SettleResult reports the outcome of a cooperative_settle call.
type SettleResult struct {
	TxHash      string
	Confirmed   bool
	SettledAt   string // chain-reported timestamp or block/ledger reference, opaque to callers
}

// Registry resolves the configured Adapter for a chain family. Wiring
// (cmd/claimrelay) populates it at startup; any component that needs a
// per-chain adapter depends on this interface rather than a concrete map.
type Registry struct {
	adapters map[claimtypes.Chain]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[claimtypes.Chain]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.Chain()] = a
}

func (r *Registry) For(chain claimtypes.Chain) (Adapter, bool) {
	a, ok := r.adapters[chain]
	return a, ok
}

// Adapter is the uniform per-chain contract: sign a new claim, verify one
// received from a peer, and cooperatively settle a channel on-chain using
// the counterpart claim. Each chain family's implementation enforces its
// own nonce/replay guard and settlement mechanics behind this interface.
type Adapter interface {
	Chain() claimtypes.Chain

	// Sign produces a new SignedClaim for the given channel and cumulative
	// amount, consuming the adapter's local outbound sequence guard.
	Sign(ctx context.Context, channelKey string, cumulativeAmount string) (claimtypes.SignedClaim, error)

	// Verify checks a peer-supplied claim's signature and replay guard.
	// It does not check amount bounds against channel deposit; that is
	// the claim manager's job.
	Verify(ctx context.Context, claim claimtypes.SignedClaim) error

	// CooperativeSettle submits the counterpart claim on-chain to close
	// out a channel cooperatively.
	CooperativeSettle(ctx context.Context, channelKey string, counterpart claimtypes.SignedClaim) (SettleResult, error)
}

package claimcodec

import "fmt"

// CodecError wraps any failure while encoding/decoding a claim event or
// hashing/verifying a chain-specific signing payload. Codec errors are
// soft: callers must treat them as "not a claim event" rather than
// aborting the surrounding wire transaction.
type CodecError struct {
	Op  string
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("claimcodec: %s: %v", e.Op, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CodecError{Op: op, Err: err}
}

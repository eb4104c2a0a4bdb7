package claimmanager

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// compareDecimal compares two u256 decimal-string amounts, returning -1,
// 0 or 1. EVM amounts can exceed uint64 range, so comparison goes through
// shopspring/decimal rather than a native integer type.
func compareDecimal(a, b string) int {
	da, err := decimal.NewFromString(a)
	if err != nil {
		return 1 // malformed input never satisfies a <= bound
	}
	db, err := decimal.NewFromString(b)
	if err != nil {
		return 1
	}
	return da.Cmp(db)
}

// compareUint compares a decimal-string amount against a uint64 bound,
// used for XRP drops and Aptos octas.
func compareUint(a string, bound uint64) int {
	var v uint64
	if _, err := fmt.Sscanf(a, "%d", &v); err != nil {
		return 1
	}
	switch {
	case v < bound:
		return -1
	case v > bound:
		return 1
	default:
		return 0
	}
}

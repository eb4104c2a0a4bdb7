package claimcodec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// aptosDomainPrefix is the 11-byte ASCII domain separator for Aptos
// channel claims, disambiguating them from any other BCS message this
// key might be asked to sign.
var aptosDomainPrefix = []byte("CLAIM_APTOS")

// AptosClaimPreimage builds the exact byte sequence an Aptos claim's
// ed25519 signature covers: "CLAIM_APTOS" || channel owner address (32
// bytes) || amount (u64 little-endian) || nonce (u64 little-endian).
// This is a fixed-layout subset of BCS encoding; no pack example or
// ecosystem library implements Aptos BCS, so the layout is written
// directly against encoding/binary (see DESIGN.md).
func AptosClaimPreimage(channelOwnerHex string, amountOctas uint64, nonce uint64) ([]byte, error) {
	ownerBytes, err := hex.DecodeString(trimHexPrefix(channelOwnerHex))
	if err != nil {
		return nil, fmt.Errorf("decode channel owner address: %w", err)
	}
	if len(ownerBytes) != 32 {
		return nil, fmt.Errorf("channel owner address must be 32 bytes, got %d", len(ownerBytes))
	}

	buf := make([]byte, 0, len(aptosDomainPrefix)+32+8+8)
	buf = append(buf, aptosDomainPrefix...)
	buf = append(buf, ownerBytes...)

	amountBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(amountBuf, amountOctas)
	buf = append(buf, amountBuf...)

	nonceBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(nonceBuf, nonce)
	buf = append(buf, nonceBuf...)

	return buf, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

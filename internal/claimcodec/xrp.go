package claimcodec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// clmPrefix is XRPL's PaymentChannelClaim pre-image ASCII prefix.
var clmPrefix = [4]byte{'C', 'L', 'M', 0}

// XRPClaimPreimage builds the exact byte sequence an XRP claim's ed25519
// signature covers: "CLM\0" || channelId (32 bytes, big-endian from hex)
// || amount (u64 big-endian).
func XRPClaimPreimage(channelIDHex string, amountDrops uint64) ([]byte, error) {
	channelBytes, err := hex.DecodeString(channelIDHex)
	if err != nil {
		return nil, fmt.Errorf("decode channel id: %w", err)
	}
	if len(channelBytes) != 32 {
		return nil, fmt.Errorf("channel id must be 32 bytes, got %d", len(channelBytes))
	}

	buf := make([]byte, 0, 4+32+8)
	buf = append(buf, clmPrefix[:]...)
	buf = append(buf, channelBytes...)
	amountBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(amountBuf, amountDrops)
	buf = append(buf, amountBuf...)
	return buf, nil
}

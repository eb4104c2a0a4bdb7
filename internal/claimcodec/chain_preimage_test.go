package claimcodec

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialwire/claimbridge/internal/claimtypes"
)

func TestXRPClaimPreimageShape(t *testing.T) {
	channel := "11" // will be rejected: not 32 bytes
	_, err := XRPClaimPreimage(channel, 100)
	require.Error(t, err)

	channel32 := ""
	for i := 0; i < 64; i++ {
		channel32 += "a"
	}
	preimage, err := XRPClaimPreimage(channel32, 6_000_000)
	require.NoError(t, err)
	require.Len(t, preimage, 4+32+8)
	assert.Equal(t, []byte("CLM\x00"), preimage[:4])
}

func TestAptosClaimPreimageShape(t *testing.T) {
	owner := "0x" + "ab"
	_, err := AptosClaimPreimage(owner, 1, 1)
	require.Error(t, err) // not 32 bytes

	owner32 := "0x"
	for i := 0; i < 64; i++ {
		owner32 += "1"
	}
	preimage, err := AptosClaimPreimage(owner32, 500, 3)
	require.NoError(t, err)
	require.Len(t, preimage, len("CLAIM_APTOS")+32+8+8)
	assert.Equal(t, []byte("CLAIM_APTOS"), preimage[:11])
}

func TestEVMBalanceProofPreimageDeterministic(t *testing.T) {
	domain := EIP712Domain{
		Name:              "TokenNetwork",
		Version:           "1",
		ChainID:           big.NewInt(1),
		VerifyingContract: "0x0000000000000000000000000000000000000001",
	}
	claim := claimtypes.EVMClaim{
		ChannelID:         "0x0000000000000000000000000000000000000000000000000000000000000001",
		Nonce:             1,
		TransferredAmount: "100",
		LockedAmount:      "0",
		LocksRoot:         "0x0000000000000000000000000000000000000000000000000000000000000000",
	}

	a, err := EVMBalanceProofPreimage(domain, claim)
	require.NoError(t, err)
	b, err := EVMBalanceProofPreimage(domain, claim)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	claim.Nonce = 2
	c, err := EVMBalanceProofPreimage(domain, claim)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

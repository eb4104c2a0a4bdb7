package claimcodec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/socialwire/claimbridge/internal/claimtypes"
)

// EIP712Domain is the token-network contract's EIP-712 domain separator
// fields, obtained out-of-band from the deployed contract.
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract string
}

// balanceProofTypes is the EIP-712 type set for the BalanceProof struct:
// (channelId, nonce, transferredAmount, lockedAmount, locksRoot).
var balanceProofTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"BalanceProof": {
		{Name: "channelId", Type: "bytes32"},
		{Name: "nonce", Type: "uint256"},
		{Name: "transferredAmount", Type: "uint256"},
		{Name: "lockedAmount", Type: "uint256"},
		{Name: "locksRoot", Type: "bytes32"},
	},
}

// EVMBalanceProofPreimage computes the exact byte sequence an EVM claim's
// signature covers once hashed: 0x19 0x01 || domainSeparator ||
// hashStruct(BalanceProof). Callers keccak256 this to get the 32-byte
// digest that is actually signed. This is the canonical signing
// payload; chain adapters sign/verify the resulting digest, they never
// recompute the hashing scheme themselves.
func EVMBalanceProofPreimage(domain EIP712Domain, claim claimtypes.EVMClaim) ([]byte, error) {
	transferred, ok := new(big.Int).SetString(claim.TransferredAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid transferredAmount %q", claim.TransferredAmount)
	}
	locked, ok := new(big.Int).SetString(claim.LockedAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid lockedAmount %q", claim.LockedAmount)
	}

	typedData := apitypes.TypedData{
		Types:       balanceProofTypes,
		PrimaryType: "BalanceProof",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"channelId":         claim.ChannelID,
			"nonce":             fmt.Sprintf("%d", claim.Nonce),
			"transferredAmount": transferred.String(),
			"lockedAmount":      locked.String(),
			"locksRoot":         claim.LocksRoot,
		},
	}

	dataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("hash BalanceProof struct: %w", err)
	}
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash EIP712Domain: %w", err)
	}

	raw := []byte{0x19, 0x01}
	raw = append(raw, domainSeparator...)
	raw = append(raw, dataHash...)
	return raw, nil
}

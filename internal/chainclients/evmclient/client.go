// Package evmclient submits cooperativeSettle transactions to a deployed
// token-network contract, implementing evm.ChainClient. Calldata is
// packed with go-ethereum's accounts/abi, fees follow EIP-1559, and the
// transaction is signed locally with the adapter's own private key
// before broadcast — the same crypto primitives the evm adapter already
// uses for claim signing.
package evmclient

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/socialwire/claimbridge/internal/claimtypes"
)

// cooperativeSettleABI packs a single signed BalanceProof, matching the
// fields claimtypes.EVMClaim carries: the contract accepts a channel's
// latest counterpart proof and closes the channel paying out the
// transferred amount.
const cooperativeSettleABI = `[{
	"name": "cooperativeSettle",
	"type": "function",
	"inputs": [
		{"name": "channelId", "type": "bytes32"},
		{"name": "nonce", "type": "uint256"},
		{"name": "transferredAmount", "type": "uint256"},
		{"name": "lockedAmount", "type": "uint256"},
		{"name": "locksRoot", "type": "bytes32"},
		{"name": "signature", "type": "bytes"}
	],
	"outputs": []
}]`

// Client submits cooperativeSettle calls to one token-network contract
// over an Ethereum JSON-RPC endpoint.
type Client struct {
	eth        *ethclient.Client
	abi        abi.ABI
	contract   common.Address
	privateKey *ecdsa.PrivateKey
	from       common.Address
	chainID    *big.Int
}

// New dials nodeURL and prepares a Client that signs with privateKey and
// calls contractAddr on chainID.
func New(ctx context.Context, nodeURL string, chainID *big.Int, contractAddr string, privateKey *ecdsa.PrivateKey) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, nodeURL)
	if err != nil {
		return nil, fmt.Errorf("evmclient: dial %s: %w", nodeURL, err)
	}
	parsedABI, err := abi.JSON(strings.NewReader(cooperativeSettleABI))
	if err != nil {
		return nil, fmt.Errorf("evmclient: parse ABI: %w", err)
	}
	return &Client{
		eth:        eth,
		abi:        parsedABI,
		contract:   common.HexToAddress(contractAddr),
		privateKey: privateKey,
		from:       crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    chainID,
	}, nil
}

// CooperativeSettle implements evm.ChainClient.
func (c *Client) CooperativeSettle(ctx context.Context, channelID string, counterpart claimtypes.EVMClaim) (string, error) {
	channelBytes := common.HexToHash(channelID)
	transferredAmount, ok := new(big.Int).SetString(counterpart.TransferredAmount, 10)
	if !ok {
		return "", fmt.Errorf("evmclient: invalid transferredAmount %q", counterpart.TransferredAmount)
	}
	lockedAmount, ok := new(big.Int).SetString(counterpart.LockedAmount, 10)
	if !ok {
		return "", fmt.Errorf("evmclient: invalid lockedAmount %q", counterpart.LockedAmount)
	}
	locksRoot := common.HexToHash(counterpart.LocksRoot)
	sig := common.FromHex(counterpart.Signature)

	proofNonce := new(big.Int).SetUint64(counterpart.Nonce)

	calldata, err := c.abi.Pack("cooperativeSettle", channelBytes, proofNonce, transferredAmount, lockedAmount, locksRoot, sig)
	if err != nil {
		return "", fmt.Errorf("evmclient: pack calldata: %w", err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("evmclient: fetch nonce: %w", err)
	}
	tipCap, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("evmclient: suggest tip cap: %w", err)
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("evmclient: fetch head: %w", err)
	}
	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &c.contract,
		Data: calldata,
	})
	if err != nil {
		return "", fmt.Errorf("evmclient: estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &c.contract,
		Data:      calldata,
	})

	signer := types.LatestSignerForChainID(c.chainID)
	signedTx, err := types.SignTx(tx, signer, c.privateKey)
	if err != nil {
		return "", fmt.Errorf("evmclient: sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("evmclient: send tx: %w", err)
	}
	return signedTx.Hash().Hex(), nil
}

// Package xrpclient submits PaymentChannelClaim transactions to an XRPL
// node, implementing xrp.ChainClient. It wraps the rpc.Client from
// Peersyst/xrpl-go: Autofill populates Fee/Sequence/LastLedgerSequence,
// wallet.Wallet.Sign produces the transaction-level signature over the
// whole tx, and the claim's own Signature/PublicKey fields (already
// produced by the xrp adapter against the channel's claim preimage) are
// carried through untouched as the PaymentChannelClaim's inner fields.
package xrpclient

import (
	"context"
	"fmt"
	"strconv"

	addresscodec "github.com/Peersyst/xrpl-go/address-codec"
	"github.com/Peersyst/xrpl-go/xrpl/hash"
	"github.com/Peersyst/xrpl-go/xrpl/rpc"
	rpctypes "github.com/Peersyst/xrpl-go/xrpl/rpc/types"
	"github.com/Peersyst/xrpl-go/xrpl/transaction"
	xrpltypes "github.com/Peersyst/xrpl-go/xrpl/transaction/types"
	"github.com/Peersyst/xrpl-go/xrpl/wallet"

	"github.com/socialwire/claimbridge/internal/claimtypes"
)

// Client submits signed PaymentChannelClaim transactions over an XRPL
// JSON-RPC endpoint using one account's own wallet.
type Client struct {
	rpc    *rpc.Client
	wallet wallet.Wallet
}

// New builds a Client against nodeURL, deriving the submitting account's
// classic address from privateKeyHex/publicKeyHex (the same ED-prefixed
// hex keypair the xrp adapter signs claims with).
func New(nodeURL, privateKeyHex, publicKeyHex string) (*Client, error) {
	cfg, err := rpc.NewClientConfig(nodeURL)
	if err != nil {
		return nil, fmt.Errorf("xrpclient: build rpc config: %w", err)
	}

	classicAddr, err := addresscodec.EncodeClassicAddressFromPublicKeyHex(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("xrpclient: derive classic address: %w", err)
	}

	w := wallet.Wallet{
		PublicKey:      publicKeyHex,
		PrivateKey:     privateKeyHex,
		ClassicAddress: xrpltypes.Address(classicAddr),
	}

	return &Client{rpc: rpc.NewClient(cfg), wallet: w}, nil
}

// SubmitPaymentChannelClaim implements xrp.ChainClient.
func (c *Client) SubmitPaymentChannelClaim(ctx context.Context, channelID string, counterpart claimtypes.XRPClaim) (string, error) {
	tx := transaction.FlatTransaction{
		"TransactionType": "PaymentChannelClaim",
		"Account":         string(c.wallet.ClassicAddress),
		"Channel":         channelID,
		"Balance":         strconv.FormatUint(counterpart.Amount, 10),
		"Signature":       counterpart.Signature,
		"PublicKey":       counterpart.PublicKey,
	}

	resp, err := c.rpc.SubmitTx(tx, &rpctypes.SubmitOptions{
		Autofill: true,
		Wallet:   &c.wallet,
		FailHard: false,
	})
	if err != nil {
		return "", fmt.Errorf("xrpclient: submit PaymentChannelClaim: %w", err)
	}
	// Engine results beginning "tes" indicate acceptance; anything else
	// (ter/tec/tef/tel buckets) is a rejection per XRPL convention.
	if len(resp.EngineResult) >= 3 && resp.EngineResult[:3] != "tes" {
		return "", fmt.Errorf("xrpclient: PaymentChannelClaim rejected: %s (%s)", resp.EngineResult, resp.EngineResultMessage)
	}

	txHash, err := hash.SignTxBlob(resp.TxBlob)
	if err != nil {
		return "", fmt.Errorf("xrpclient: compute tx hash: %w", err)
	}
	return txHash, nil
}

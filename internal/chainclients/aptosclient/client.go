// Package aptosclient submits submit_claim entry function calls to an
// Aptos fullnode's REST API, implementing aptos.ChainClient. No Aptos
// SDK or BCS transaction builder exists anywhere in the retrieval pack
// (see DESIGN.md), so this client talks to the fullnode directly over
// plain net/http rather than through a generated binding: it POSTs the
// already ed25519-signed claim as a JSON payload to the module's REST
// submission endpoint and reads the transaction hash from that
// submission's response (it does not poll for confirmation).
package aptosclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/socialwire/claimbridge/internal/claimtypes"
)

// Client posts signed submit_claim calls to one Aptos fullnode, falling
// back to fallbackURL (if set) when the primary node errors.
type Client struct {
	httpClient  *http.Client
	primaryURL  string
	fallbackURL string
	moduleAddr  string
	coinType    string
}

// New builds a Client against a module deployed at moduleAddr (e.g.
// "0xabc..::payment_channel"), parameterized by coinType (a Move type
// argument, e.g. "0x1::aptos_coin::AptosCoin"). fallbackURL may be empty.
func New(primaryURL, fallbackURL, moduleAddr, coinType string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		primaryURL:  primaryURL,
		fallbackURL: fallbackURL,
		moduleAddr:  moduleAddr,
		coinType:    coinType,
	}
}

// submitClaimPayload mirrors the shape an Aptos fullnode's
// /v1/transactions endpoint expects for an already-signed entry function
// call: a JSON transaction object carrying the raw payload plus the
// ed25519 signature produced off-chain by the aptos adapter.
type submitClaimPayload struct {
	Sender                  string   `json:"sender"`
	MaxGasAmount            string   `json:"max_gas_amount"`
	GasUnitPrice             string  `json:"gas_unit_price"`
	ExpirationTimestampSecs string   `json:"expiration_timestamp_secs"`
	Payload                 entryFn  `json:"payload"`
	Signature               sigBlock `json:"signature"`
}

type entryFn struct {
	Type          string   `json:"type"`
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []string `json:"arguments"`
}

type sigBlock struct {
	Type      string `json:"type"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

type submitResponse struct {
	Hash string `json:"hash"`
}

// SubmitClaim implements aptos.ChainClient.
func (c *Client) SubmitClaim(ctx context.Context, channelOwner string, counterpart claimtypes.AptosClaim) (string, error) {
	payload := submitClaimPayload{
		Sender:                  channelOwner,
		MaxGasAmount:            "10000",
		GasUnitPrice:            "100",
		ExpirationTimestampSecs: strconv.FormatInt(time.Now().Add(2*time.Minute).Unix(), 10),
		Payload: entryFn{
			Type:          "entry_function_payload",
			Function:      c.moduleAddr + "::submit_claim",
			TypeArguments: []string{c.coinType},
			Arguments:     []string{channelOwner, strconv.FormatUint(counterpart.Amount, 10), strconv.FormatUint(counterpart.Nonce, 10)},
		},
		Signature: sigBlock{
			Type:      "ed25519_signature",
			PublicKey: counterpart.PublicKey,
			Signature: counterpart.Signature,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("aptosclient: marshal payload: %w", err)
	}

	hash, err := c.post(ctx, c.primaryURL, body)
	if err == nil {
		return hash, nil
	}
	if c.fallbackURL == "" {
		return "", err
	}
	return c.post(ctx, c.fallbackURL, body)
}

func (c *Client) post(ctx context.Context, baseURL string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("aptosclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("aptosclient: submit to %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("aptosclient: %s responded %s", baseURL, resp.Status)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("aptosclient: decode response: %w", err)
	}
	return out.Hash, nil
}

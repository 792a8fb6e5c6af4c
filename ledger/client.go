/*
Copyright 2025 Sealmart Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ledger

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/sealmart/sealmart/config"
	"github.com/sealmart/sealmart/internal/fault"
	"github.com/sealmart/sealmart/internal/request"
)

const (
	releaseEscrowTarget    = "marketplace::escrow::release"
	completePurchaseTarget = "marketplace::purchase::complete"
)

// Client talks JSON-RPC to a ledger node and signs submissions with the
// platform sponsor key, so buyers and sellers never pay gas for settlement.
type Client struct {
	rpcURL     string
	sponsor    string
	sponsorKey ed25519.PrivateKey
	gasBudget  int64
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// NewClient builds a settlement client from the ledger section of the
// configuration. The sponsor key is a base64 ed25519 seed.
func NewClient(conf *config.LedgerConfig) (*Client, error) {
	seed, err := base64.StdEncoding.DecodeString(conf.SponsorKey)
	if err != nil {
		return nil, fmt.Errorf("invalid sponsor key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("sponsor key must be a %d byte seed, got %d", ed25519.SeedSize, len(seed))
	}

	return &Client{
		rpcURL:     conf.RpcUrl,
		sponsor:    conf.SponsorAddress,
		sponsorKey: ed25519.NewKeyFromSeed(seed),
		gasBudget:  conf.GasBudget,
	}, nil
}

// BuildReleaseTransaction assembles the two entry-point calls of a
// settlement: consume the escrow object transferring funds to the seller,
// and mark the purchase object settled.
func (c *Client) BuildReleaseTransaction(_ context.Context, purchaseID, escrowID, sellerAddress string) (*UnsignedTx, error) {
	if purchaseID == "" || escrowID == "" || sellerAddress == "" {
		return nil, fault.New(fault.Validation, "purchase id, escrow id and seller address are required", nil)
	}

	return &UnsignedTx{
		PurchaseID: purchaseID,
		EscrowID:   escrowID,
		Seller:     sellerAddress,
		Calls: []MoveCall{
			{Target: releaseEscrowTarget, Args: []string{escrowID, sellerAddress}},
			{Target: completePurchaseTarget, Args: []string{purchaseID}},
		},
		GasBudget: c.gasBudget,
	}, nil
}

func (c *Client) Submit(ctx context.Context, tx *UnsignedTx) (TxRef, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return "", err
	}
	signature := base64.StdEncoding.EncodeToString(ed25519.Sign(c.sponsorKey, payload))

	var result struct {
		TxDigest string `json:"tx_digest"`
	}
	if err := c.call(ctx, "sealmart_submitTransaction", []interface{}{
		json.RawMessage(payload), c.sponsor, signature,
	}, &result); err != nil {
		return "", err
	}
	if result.TxDigest == "" {
		return "", fault.New(fault.Settlement, "ledger returned no transaction digest", nil)
	}

	logrus.WithField("tx_digest", result.TxDigest).Info("settlement transaction submitted")
	return TxRef(result.TxDigest), nil
}

// AwaitConfirmation polls the receipt endpoint with exponential backoff
// until the effects report success or failure, or the timeout elapses.
// "Not yet indexed" keeps the poll alive; an on-chain failure ends it.
func (c *Client) AwaitConfirmation(ctx context.Context, ref TxRef, timeout time.Duration) (*Receipt, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = timeout

	var receipt *Receipt
	operation := func() error {
		r, err := c.getReceipt(pollCtx, ref)
		if err != nil {
			if fault.CodeOf(err) == fault.Settlement {
				// The ledger reported the transaction failed. Stop polling.
				return backoff.Permanent(err)
			}
			return err
		}
		receipt = r
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, pollCtx)); err != nil {
		if pollCtx.Err() != nil || fault.CodeOf(err) == fault.Transient {
			return nil, fault.New(fault.Settlement,
				fmt.Sprintf("confirmation of %s not observed within %s; funds must not be assumed released", ref, timeout), err)
		}
		return nil, err
	}
	return receipt, nil
}

func (c *Client) getReceipt(ctx context.Context, ref TxRef) (*Receipt, error) {
	var receipt Receipt
	if err := c.call(ctx, "sealmart_getTransactionReceipt", []interface{}{string(ref)}, &receipt); err != nil {
		return nil, err
	}

	switch receipt.Status {
	case ReceiptSuccess:
		return &receipt, nil
	case ReceiptFailure:
		return nil, fault.New(fault.Settlement, "transaction failed on chain: "+receipt.TxDigest, nil)
	default:
		return nil, fault.New(fault.Transient, "transaction not yet indexed: "+string(ref), nil)
	}
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}

	var resp rpcResponse
	httpResp, err := request.PostJSON(ctx, c.rpcURL, req, &resp)
	if err != nil {
		return fault.New(fault.Transient, "ledger rpc call failed", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return fault.New(fault.Transient, fmt.Sprintf("ledger rpc returned status %d", httpResp.StatusCode), nil)
	}
	if resp.Error != nil {
		if strings.Contains(strings.ToLower(resp.Error.Message), "not yet indexed") {
			return fault.New(fault.Transient, resp.Error.Message, nil)
		}
		return fault.New(fault.Settlement, resp.Error.Message, nil)
	}
	if result != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fault.New(fault.Transient, "decoding ledger rpc result", err)
		}
	}
	return nil
}

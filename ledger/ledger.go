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
	"time"
)

// TxRef identifies a submitted ledger transaction (its digest).
type TxRef string

// MoveCall is one entry-point invocation inside a release transaction.
type MoveCall struct {
	Target string   `json:"target"`
	Args   []string `json:"args"`
}

// UnsignedTx is a settlement transaction before sponsor signing: one ledger
// transaction that releases the escrow to the seller and marks the on-chain
// purchase object settled.
type UnsignedTx struct {
	PurchaseID string     `json:"purchase_id"`
	EscrowID   string     `json:"escrow_id"`
	Seller     string     `json:"seller"`
	Calls      []MoveCall `json:"calls"`
	GasBudget  int64      `json:"gas_budget"`
}

// Receipt reports the confirmed effects of a settlement transaction. The
// released escrow object id comes from the transaction's object-change
// effects, never derived locally.
type Receipt struct {
	TxDigest         string    `json:"tx_digest"`
	Status           string    `json:"status"`
	ReleasedEscrowID string    `json:"released_escrow_id"`
	GasUsed          int64     `json:"gas_used"`
	Timestamp        time.Time `json:"timestamp"`
}

const (
	ReceiptSuccess = "success"
	ReceiptFailure = "failure"
)

// Settler is the boundary to the settlement ledger. The on-chain program
// guarantees a given escrow object can be consumed by at most one release
// transaction; this interface only exposes build, submit and a bounded
// confirmation wait.
type Settler interface {
	// BuildReleaseTransaction assembles the escrow-release plus
	// purchase-completion transaction for sponsor signing.
	BuildReleaseTransaction(ctx context.Context, purchaseID, escrowID, sellerAddress string) (*UnsignedTx, error)

	// Submit signs the transaction with the platform sponsor key, pays gas,
	// and returns the transaction digest.
	Submit(ctx context.Context, tx *UnsignedTx) (TxRef, error)

	// AwaitConfirmation polls until the transaction's effects report
	// success or failure, or the timeout elapses. A transaction that is
	// not yet indexed keeps the poll alive; one that failed on chain ends
	// it.
	AwaitConfirmation(ctx context.Context, ref TxRef, timeout time.Duration) (*Receipt, error)
}

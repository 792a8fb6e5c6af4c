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

package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Purchase lifecycle. Transitions are pending -> completed or
	// pending -> failed, never backward.
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	// Escrow lifecycle.
	EscrowHolding  = "holding"
	EscrowReleased = "released"
	EscrowRefunded = "refunded"
)

// PurchaseRequest is one buyer's claim on one asset listing. It is created
// when the buyer's on-chain purchase transaction confirms and is mutated only
// by the fulfillment pipeline's terminal step.
type PurchaseRequest struct {
	ID              int64                  `json:"-"`
	PurchaseID      string                 `json:"purchase_id"`
	AssetID         string                 `json:"asset_id"`
	BuyerAddress    string                 `json:"buyer_address"`
	SellerAddress   string                 `json:"seller_address"`
	BuyerPublicKey  string                 `json:"buyer_public_key"`
	Price           decimal.Decimal        `json:"price"`
	Status          string                 `json:"status"`
	EncryptedBlobID string                 `json:"encrypted_blob_id,omitempty"`
	DecryptionKey   string                 `json:"decryption_key,omitempty"`
	TxDigest        string                 `json:"tx_digest,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	MetaData        map[string]interface{} `json:"meta_data,omitempty"`
}

func (p *PurchaseRequest) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// Fulfilled reports whether a re-encrypted copy has already been delivered
// for this purchase. A completed purchase always has a non-empty blob id.
func (p *PurchaseRequest) Fulfilled() bool {
	return p.EncryptedBlobID != ""
}

// EscrowRecord holds a buyer's payment until fulfillment releases it to the
// seller. Status released always moves together with the linked purchase
// turning completed, inside the same database transaction.
type EscrowRecord struct {
	ID            int64           `json:"-"`
	EscrowID      string          `json:"escrow_id"`
	PurchaseID    string          `json:"purchase_id"`
	SellerAddress string          `json:"seller_address"`
	BuyerAddress  string          `json:"buyer_address"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	TxDigest      string          `json:"tx_digest,omitempty"`
	ReleasedAt    *time.Time      `json:"released_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AuditEntry is one append-only audit row recorded alongside a completed
// fulfillment.
type AuditEntry struct {
	TxDigest    string                 `json:"tx_digest"`
	TxType      string                 `json:"tx_type"`
	UserAddress string                 `json:"user_address"`
	AssetID     string                 `json:"asset_id"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// StepResult is the fixed shape every pipeline step reports, regardless of
// what the step does.
type StepResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Detail   string        `json:"detail,omitempty"`
}

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

package database

import (
	"context"
	"time"

	"github.com/sealmart/sealmart/model"
)

type purchase interface {
	CreatePurchase(ctx context.Context, purchase *model.PurchaseRequest) (*model.PurchaseRequest, error)
	GetPurchase(ctx context.Context, purchaseID string) (*model.PurchaseRequest, error)
	MarkPurchaseFailed(ctx context.Context, purchaseID string, reason string) error
}

type escrow interface {
	CreateEscrow(ctx context.Context, record *model.EscrowRecord) (*model.EscrowRecord, error)
	GetEscrowByPurchase(ctx context.Context, purchaseID string) (*model.EscrowRecord, error)
}

type asset interface {
	CreateAssetStaging(ctx context.Context, record *model.AssetStagingRecord) (*model.AssetStagingRecord, error)
	GetAssetStaging(ctx context.Context, assetID string) (*model.AssetStagingRecord, error)
}

type fulfillment interface {
	CommitFulfillment(ctx context.Context, result *FulfillmentResult) error
	GetAuditTrail(ctx context.Context, assetID string, limit int) ([]*model.AuditEntry, error)
}

// IDataSource groups the persistence operations the pipeline depends on.
type IDataSource interface {
	purchase
	escrow
	asset
	fulfillment
}

// FulfillmentResult carries everything the terminal commit writes in one
// transaction.
type FulfillmentResult struct {
	PurchaseID      string
	AssetID         string
	EscrowID        string
	BuyerAddress    string
	EncryptedBlobID string
	DecryptionKey   string
	TxDigest        string
	CompletedAt     time.Time
}

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
	"database/sql"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/sealmart/sealmart/internal/fault"
	"github.com/sealmart/sealmart/model"
)

// CreatePurchase inserts a pending purchase row.
func (d *Datasource) CreatePurchase(ctx context.Context, purchase *model.PurchaseRequest) (*model.PurchaseRequest, error) {
	ctx, span := otel.Tracer("sealmart.database").Start(ctx, "CreatePurchase")
	defer span.End()

	metaDataJSON, err := json.Marshal(purchase.MetaData)
	if err != nil {
		return nil, fault.New(fault.Persistence, "failed to marshal purchase metadata", err)
	}

	if purchase.PurchaseID == "" {
		purchase.PurchaseID = GenerateUUIDWithSuffix("prc")
	}
	if purchase.Status == "" {
		purchase.Status = model.StatusPending
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO sealmart.purchases (purchase_id, asset_id, buyer_address, seller_address, buyer_public_key, price, status, created_at, meta_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), $8)`,
		purchase.PurchaseID, purchase.AssetID, purchase.BuyerAddress, purchase.SellerAddress,
		purchase.BuyerPublicKey, purchase.Price, purchase.Status, metaDataJSON,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "purchase insert failed")
		return nil, fault.New(fault.Persistence, fmt.Sprintf("failed to create purchase %s", purchase.PurchaseID), err)
	}
	return purchase, nil
}

// GetPurchase fetches a purchase by its public identifier. A missing row is a
// validation fault, not a transient one: the job referenced a purchase that
// does not exist.
func (d *Datasource) GetPurchase(ctx context.Context, purchaseID string) (*model.PurchaseRequest, error) {
	ctx, span := otel.Tracer("sealmart.database").Start(ctx, "GetPurchase")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx,
		`SELECT purchase_id, asset_id, buyer_address, seller_address, buyer_public_key, price, status,
		        COALESCE(encrypted_blob_id, ''), COALESCE(decryption_key, ''), COALESCE(tx_digest, ''),
		        completed_at, created_at, COALESCE(meta_data, '{}'::jsonb)
		 FROM sealmart.purchases WHERE purchase_id = $1`, purchaseID)

	purchase := &model.PurchaseRequest{}
	var completedAt sql.NullTime
	var metaDataJSON []byte
	err := row.Scan(
		&purchase.PurchaseID, &purchase.AssetID, &purchase.BuyerAddress, &purchase.SellerAddress,
		&purchase.BuyerPublicKey, &purchase.Price, &purchase.Status,
		&purchase.EncryptedBlobID, &purchase.DecryptionKey, &purchase.TxDigest,
		&completedAt, &purchase.CreatedAt, &metaDataJSON,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fault.New(fault.Validation, fmt.Sprintf("purchase %s not found", purchaseID), err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "purchase lookup failed")
		return nil, fault.New(fault.Persistence, fmt.Sprintf("failed to get purchase %s", purchaseID), err)
	}
	if completedAt.Valid {
		purchase.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal(metaDataJSON, &purchase.MetaData); err != nil {
		return nil, fault.New(fault.Persistence, "failed to unmarshal purchase metadata", err)
	}
	return purchase, nil
}

// MarkPurchaseFailed records a terminal failure reason. It deliberately does
// not touch escrow state; a failed fulfillment leaves funds held.
func (d *Datasource) MarkPurchaseFailed(ctx context.Context, purchaseID string, reason string) error {
	ctx, span := otel.Tracer("sealmart.database").Start(ctx, "MarkPurchaseFailed")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx,
		`UPDATE sealmart.purchases
		 SET status = $2, meta_data = COALESCE(meta_data, '{}'::jsonb) || jsonb_build_object('failure_reason', $3::text)
		 WHERE purchase_id = $1 AND status != $4`,
		purchaseID, model.StatusFailed, reason, model.StatusCompleted)
	if err != nil {
		span.RecordError(err)
		return fault.New(fault.Persistence, fmt.Sprintf("failed to mark purchase %s failed", purchaseID), err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fault.New(fault.Persistence, "failed to read affected rows", err)
	}
	if rows == 0 {
		return fault.New(fault.Persistence, fmt.Sprintf("purchase %s not updated; missing or already completed", purchaseID), sql.ErrNoRows)
	}
	return nil
}

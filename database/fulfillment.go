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

// CommitFulfillment applies the terminal state of a delivered purchase in a
// single transaction: the purchase turns completed with its delivery
// artifacts, the escrow turns released, the asset sales counter increments,
// and an audit row is appended. Either all four land or none do.
func (d *Datasource) CommitFulfillment(ctx context.Context, result *FulfillmentResult) error {
	ctx, span := otel.Tracer("sealmart.database").Start(ctx, "CommitFulfillment")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return fault.New(fault.Persistence, "failed to begin fulfillment transaction", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			span.RecordError(err)
		}
	}()

	if err := completePurchaseInTx(ctx, tx, result); err != nil {
		span.SetStatus(codes.Error, "purchase completion failed")
		return err
	}
	if err := releaseEscrowInTx(ctx, tx, result); err != nil {
		span.SetStatus(codes.Error, "escrow release failed")
		return err
	}
	if err := incrementSalesInTx(ctx, tx, result.AssetID); err != nil {
		span.SetStatus(codes.Error, "sales increment failed")
		return err
	}
	if err := appendAuditInTx(ctx, tx, result); err != nil {
		span.SetStatus(codes.Error, "audit append failed")
		return err
	}

	if err := tx.Commit(); err != nil {
		return fault.New(fault.Persistence, fmt.Sprintf("failed to commit fulfillment of %s", result.PurchaseID), err)
	}
	return nil
}

func completePurchaseInTx(ctx context.Context, tx *sql.Tx, result *FulfillmentResult) error {
	// A failed purchase may be completed by a re-run; only an already
	// completed one is refused.
	res, err := tx.ExecContext(ctx,
		`UPDATE sealmart.purchases
		 SET status = $2, encrypted_blob_id = $3, decryption_key = $4, tx_digest = $5, completed_at = $6
		 WHERE purchase_id = $1 AND status != $2`,
		result.PurchaseID, model.StatusCompleted, result.EncryptedBlobID, result.DecryptionKey,
		result.TxDigest, result.CompletedAt)
	if err != nil {
		return fault.New(fault.Persistence, fmt.Sprintf("failed to complete purchase %s", result.PurchaseID), err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fault.New(fault.Persistence, "failed to read affected rows", err)
	}
	if rows == 0 {
		return fault.New(fault.Persistence, fmt.Sprintf("purchase %s is already completed; refusing to overwrite", result.PurchaseID), sql.ErrNoRows)
	}
	return nil
}

func releaseEscrowInTx(ctx context.Context, tx *sql.Tx, result *FulfillmentResult) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE sealmart.escrows
		 SET status = $2, tx_digest = $3, released_at = $4
		 WHERE escrow_id = $1 AND status = $5`,
		result.EscrowID, model.EscrowReleased, result.TxDigest, result.CompletedAt, model.EscrowHolding)
	if err != nil {
		return fault.New(fault.Persistence, fmt.Sprintf("failed to release escrow %s", result.EscrowID), err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fault.New(fault.Persistence, "failed to read affected rows", err)
	}
	if rows == 0 {
		return fault.New(fault.Persistence, fmt.Sprintf("escrow %s is not holding; refusing to release", result.EscrowID), sql.ErrNoRows)
	}
	return nil
}

func incrementSalesInTx(ctx context.Context, tx *sql.Tx, assetID string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE sealmart.asset_staging SET total_sales = total_sales + 1 WHERE asset_id = $1`, assetID)
	if err != nil {
		return fault.New(fault.Persistence, fmt.Sprintf("failed to increment sales for asset %s", assetID), err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fault.New(fault.Persistence, "failed to read affected rows", err)
	}
	if rows == 0 {
		return fault.New(fault.Persistence, fmt.Sprintf("asset %s has no staging row to increment", assetID), sql.ErrNoRows)
	}
	return nil
}

func appendAuditInTx(ctx context.Context, tx *sql.Tx, result *FulfillmentResult) error {
	payload, err := json.Marshal(map[string]interface{}{
		"purchase_id":       result.PurchaseID,
		"escrow_id":         result.EscrowID,
		"encrypted_blob_id": result.EncryptedBlobID,
	})
	if err != nil {
		return fault.New(fault.Persistence, "failed to marshal audit payload", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sealmart.audit_log (tx_digest, tx_type, user_address, asset_id, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		result.TxDigest, "purchase_completed", result.BuyerAddress, result.AssetID, payload, result.CompletedAt)
	if err != nil {
		return fault.New(fault.Persistence, fmt.Sprintf("failed to append audit row for %s", result.PurchaseID), err)
	}
	return nil
}

// GetAuditTrail returns the most recent audit rows for an asset.
func (d *Datasource) GetAuditTrail(ctx context.Context, assetID string, limit int) ([]*model.AuditEntry, error) {
	ctx, span := otel.Tracer("sealmart.database").Start(ctx, "GetAuditTrail")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	rows, err := d.Conn.QueryContext(ctx,
		`SELECT tx_digest, tx_type, user_address, asset_id, COALESCE(payload, '{}'::jsonb), created_at
		 FROM sealmart.audit_log WHERE asset_id = $1 ORDER BY created_at DESC LIMIT $2`, assetID, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fault.New(fault.Persistence, fmt.Sprintf("failed to list audit trail for %s", assetID), err)
	}
	defer rows.Close()

	var entries []*model.AuditEntry
	for rows.Next() {
		entry := &model.AuditEntry{}
		var payloadJSON []byte
		if err := rows.Scan(&entry.TxDigest, &entry.TxType, &entry.UserAddress, &entry.AssetID, &payloadJSON, &entry.CreatedAt); err != nil {
			return nil, fault.New(fault.Persistence, "failed to scan audit row", err)
		}
		if err := json.Unmarshal(payloadJSON, &entry.Payload); err != nil {
			return nil, fault.New(fault.Persistence, "failed to unmarshal audit payload", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.New(fault.Persistence, "failed to iterate audit rows", err)
	}
	return entries, nil
}

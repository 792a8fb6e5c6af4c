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
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/sealmart/sealmart/internal/fault"
	"github.com/sealmart/sealmart/model"
)

// CreateEscrow inserts a holding escrow row linked to a purchase.
func (d *Datasource) CreateEscrow(ctx context.Context, record *model.EscrowRecord) (*model.EscrowRecord, error) {
	ctx, span := otel.Tracer("sealmart.database").Start(ctx, "CreateEscrow")
	defer span.End()

	if record.EscrowID == "" {
		record.EscrowID = GenerateUUIDWithSuffix("esc")
	}
	if record.Status == "" {
		record.Status = model.EscrowHolding
	}

	_, err := d.Conn.ExecContext(ctx,
		`INSERT INTO sealmart.escrows (escrow_id, purchase_id, seller_address, buyer_address, amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		record.EscrowID, record.PurchaseID, record.SellerAddress, record.BuyerAddress,
		record.Amount, record.Status,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fault.New(fault.Persistence, fmt.Sprintf("failed to create escrow for purchase %s", record.PurchaseID), err)
	}
	return record, nil
}

// GetEscrowByPurchase fetches the escrow row holding funds for a purchase.
func (d *Datasource) GetEscrowByPurchase(ctx context.Context, purchaseID string) (*model.EscrowRecord, error) {
	ctx, span := otel.Tracer("sealmart.database").Start(ctx, "GetEscrowByPurchase")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx,
		`SELECT escrow_id, purchase_id, seller_address, buyer_address, amount, status,
		        COALESCE(tx_digest, ''), released_at, created_at
		 FROM sealmart.escrows WHERE purchase_id = $1`, purchaseID)

	record := &model.EscrowRecord{}
	var releasedAt sql.NullTime
	err := row.Scan(
		&record.EscrowID, &record.PurchaseID, &record.SellerAddress, &record.BuyerAddress,
		&record.Amount, &record.Status, &record.TxDigest, &releasedAt, &record.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fault.New(fault.Validation, fmt.Sprintf("no escrow found for purchase %s", purchaseID), err)
		}
		span.RecordError(err)
		return nil, fault.New(fault.Persistence, fmt.Sprintf("failed to get escrow for purchase %s", purchaseID), err)
	}
	if releasedAt.Valid {
		record.ReleasedAt = &releasedAt.Time
	}
	return record, nil
}

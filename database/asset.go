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

	"github.com/sealmart/sealmart/internal/fault"
	"github.com/sealmart/sealmart/model"
)

// CreateAssetStaging inserts the seller-side staging row for a listed asset.
func (d *Datasource) CreateAssetStaging(ctx context.Context, record *model.AssetStagingRecord) (*model.AssetStagingRecord, error) {
	ctx, span := otel.Tracer("sealmart.database").Start(ctx, "CreateAssetStaging")
	defer span.End()

	metaDataJSON, err := json.Marshal(record.MetaData)
	if err != nil {
		return nil, fault.New(fault.Persistence, "failed to marshal asset metadata", err)
	}
	if record.AssetID == "" {
		record.AssetID = GenerateUUIDWithSuffix("ast")
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO sealmart.asset_staging (asset_id, content_id, content_hash, seller_key, total_sales, meta_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		record.AssetID, record.ContentID, record.ContentHash, record.SellerKey,
		record.TotalSales, metaDataJSON,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fault.New(fault.Persistence, fmt.Sprintf("failed to create asset staging %s", record.AssetID), err)
	}
	return record, nil
}

// GetAssetStaging fetches the staging record for an asset. A missing row
// means the purchase references an asset that was never listed through this
// service, which is not recoverable by retrying.
func (d *Datasource) GetAssetStaging(ctx context.Context, assetID string) (*model.AssetStagingRecord, error) {
	ctx, span := otel.Tracer("sealmart.database").Start(ctx, "GetAssetStaging")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx,
		`SELECT asset_id, content_id, content_hash, COALESCE(seller_key, ''), total_sales,
		        COALESCE(meta_data, '{}'::jsonb), created_at
		 FROM sealmart.asset_staging WHERE asset_id = $1`, assetID)

	record := &model.AssetStagingRecord{}
	var metaDataJSON []byte
	err := row.Scan(
		&record.AssetID, &record.ContentID, &record.ContentHash, &record.SellerKey,
		&record.TotalSales, &metaDataJSON, &record.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fault.New(fault.Validation, fmt.Sprintf("asset %s has no staging record", assetID), err)
		}
		span.RecordError(err)
		return nil, fault.New(fault.Persistence, fmt.Sprintf("failed to get asset staging %s", assetID), err)
	}
	if err := json.Unmarshal(metaDataJSON, &record.MetaData); err != nil {
		return nil, fault.New(fault.Persistence, "failed to unmarshal asset metadata", err)
	}
	return record, nil
}

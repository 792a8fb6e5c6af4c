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
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealmart/sealmart/internal/fault"
	"github.com/sealmart/sealmart/model"
)

func newMockDatasource(t *testing.T) (*Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Datasource{Conn: db}, mock
}

func sampleResult() *FulfillmentResult {
	return &FulfillmentResult{
		PurchaseID:      "prc_123",
		AssetID:         "ast_456",
		EscrowID:        "esc_789",
		BuyerAddress:    "0xbuyer",
		EncryptedBlobID: "blob_abc",
		DecryptionKey:   "wrapped-key",
		TxDigest:        "digest_1",
		CompletedAt:     time.Now(),
	}
}

func TestCommitFulfillment(t *testing.T) {
	ds, mock := newMockDatasource(t)
	result := sampleResult()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sealmart.purchases`)).
		WithArgs(result.PurchaseID, model.StatusCompleted, result.EncryptedBlobID, result.DecryptionKey,
			result.TxDigest, result.CompletedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sealmart.escrows`)).
		WithArgs(result.EscrowID, model.EscrowReleased, result.TxDigest, result.CompletedAt, model.EscrowHolding).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sealmart.asset_staging SET total_sales = total_sales + 1`)).
		WithArgs(result.AssetID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sealmart.audit_log`)).
		WithArgs(result.TxDigest, "purchase_completed", result.BuyerAddress, result.AssetID, sqlmock.AnyArg(), result.CompletedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := ds.CommitFulfillment(context.Background(), result)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFulfillmentRollsBackWhenPurchaseAlreadyCompleted(t *testing.T) {
	ds, mock := newMockDatasource(t)
	result := sampleResult()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sealmart.purchases`)).
		WithArgs(result.PurchaseID, model.StatusCompleted, result.EncryptedBlobID, result.DecryptionKey,
			result.TxDigest, result.CompletedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := ds.CommitFulfillment(context.Background(), result)
	assert.Error(t, err)
	assert.Equal(t, fault.Persistence, fault.CodeOf(err))
	assert.Contains(t, err.Error(), "already completed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFulfillmentRollsBackWhenEscrowAlreadyReleased(t *testing.T) {
	ds, mock := newMockDatasource(t)
	result := sampleResult()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sealmart.purchases`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sealmart.escrows`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := ds.CommitFulfillment(context.Background(), result)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to release")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPurchaseFailed(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sealmart.purchases`)).
		WithArgs("prc_123", model.StatusFailed, "blob missing upstream", model.StatusCompleted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.MarkPurchaseFailed(context.Background(), "prc_123", "blob missing upstream")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPurchaseFailedNeverDowngradesCompleted(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sealmart.purchases`)).
		WithArgs("prc_done", model.StatusFailed, "late failure", model.StatusCompleted).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.MarkPurchaseFailed(context.Background(), "prc_done", "late failure")
	assert.Error(t, err)
	assert.Equal(t, fault.Persistence, fault.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPurchaseNotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT purchase_id`)).
		WithArgs("prc_missing").
		WillReturnRows(sqlmock.NewRows([]string{"purchase_id"}))

	_, err := ds.GetPurchase(context.Background(), "prc_missing")
	assert.Error(t, err)
	assert.Equal(t, fault.Validation, fault.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAssetStaging(t *testing.T) {
	ds, mock := newMockDatasource(t)

	rows := sqlmock.NewRows([]string{"asset_id", "content_id", "content_hash", "seller_key", "total_sales", "meta_data", "created_at"}).
		AddRow("ast_456", "cid_1", "deadbeef", "c2VsbGVyLWtleQ==", int64(3), []byte(`{"title":"weather-data"}`), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT asset_id`)).
		WithArgs("ast_456").
		WillReturnRows(rows)

	record, err := ds.GetAssetStaging(context.Background(), "ast_456")
	require.NoError(t, err)
	assert.True(t, record.HasSellerKey())
	assert.Equal(t, int64(3), record.TotalSales)
	assert.Equal(t, "weather-data", record.MetaData["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

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

package sealmart

import (
	"context"
	"sync"

	"github.com/sealmart/sealmart/database"
	"github.com/sealmart/sealmart/internal/fault"
	"github.com/sealmart/sealmart/model"
)

// MockDataSource is an in-memory database.IDataSource for pipeline tests.
// Function fields override individual operations; unset fields fall back to
// the in-memory maps.
type MockDataSource struct {
	mu        sync.Mutex
	Purchases map[string]*model.PurchaseRequest
	Assets    map[string]*model.AssetStagingRecord
	Escrows   map[string]*model.EscrowRecord
	Audit     []*model.AuditEntry

	MockCommitFulfillment func(ctx context.Context, result *database.FulfillmentResult) error
	CommitCalls           int
	FailedReasons         map[string]string
}

func NewMockDataSource() *MockDataSource {
	return &MockDataSource{
		Purchases:     make(map[string]*model.PurchaseRequest),
		Assets:        make(map[string]*model.AssetStagingRecord),
		Escrows:       make(map[string]*model.EscrowRecord),
		FailedReasons: make(map[string]string),
	}
}

func (m *MockDataSource) CreatePurchase(_ context.Context, purchase *model.PurchaseRequest) (*model.PurchaseRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if purchase.Status == "" {
		purchase.Status = model.StatusPending
	}
	m.Purchases[purchase.PurchaseID] = purchase
	return purchase, nil
}

func (m *MockDataSource) GetPurchase(_ context.Context, purchaseID string) (*model.PurchaseRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Purchases[purchaseID]
	if !ok {
		return nil, fault.New(fault.Validation, "purchase "+purchaseID+" not found", nil)
	}
	clone := *p
	return &clone, nil
}

func (m *MockDataSource) MarkPurchaseFailed(_ context.Context, purchaseID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Purchases[purchaseID]
	if !ok {
		return fault.New(fault.Persistence, "purchase "+purchaseID+" not found", nil)
	}
	if p.Status == model.StatusCompleted {
		return fault.New(fault.Persistence, "purchase "+purchaseID+" already completed", nil)
	}
	p.Status = model.StatusFailed
	m.FailedReasons[purchaseID] = reason
	return nil
}

func (m *MockDataSource) CreateEscrow(_ context.Context, record *model.EscrowRecord) (*model.EscrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.Status == "" {
		record.Status = model.EscrowHolding
	}
	m.Escrows[record.PurchaseID] = record
	return record, nil
}

func (m *MockDataSource) GetEscrowByPurchase(_ context.Context, purchaseID string) (*model.EscrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Escrows[purchaseID]
	if !ok {
		return nil, fault.New(fault.Validation, "no escrow found for purchase "+purchaseID, nil)
	}
	clone := *e
	return &clone, nil
}

func (m *MockDataSource) CreateAssetStaging(_ context.Context, record *model.AssetStagingRecord) (*model.AssetStagingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Assets[record.AssetID] = record
	return record, nil
}

func (m *MockDataSource) GetAssetStaging(_ context.Context, assetID string) (*model.AssetStagingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Assets[assetID]
	if !ok {
		return nil, fault.New(fault.Validation, "asset "+assetID+" has no staging record", nil)
	}
	clone := *a
	return &clone, nil
}

func (m *MockDataSource) CommitFulfillment(ctx context.Context, result *database.FulfillmentResult) error {
	m.mu.Lock()
	m.CommitCalls++
	override := m.MockCommitFulfillment
	m.mu.Unlock()

	if override != nil {
		if err := override(ctx, result); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Purchases[result.PurchaseID]
	if !ok || p.Status == model.StatusCompleted {
		return fault.New(fault.Persistence, "purchase "+result.PurchaseID+" is already completed; refusing to overwrite", nil)
	}
	p.Status = model.StatusCompleted
	p.EncryptedBlobID = result.EncryptedBlobID
	p.DecryptionKey = result.DecryptionKey
	p.TxDigest = result.TxDigest
	completedAt := result.CompletedAt
	p.CompletedAt = &completedAt

	if e, ok := m.Escrows[result.PurchaseID]; ok {
		e.Status = model.EscrowReleased
		e.TxDigest = result.TxDigest
		e.ReleasedAt = &completedAt
	}
	if a, ok := m.Assets[result.AssetID]; ok {
		a.TotalSales++
	}
	m.Audit = append(m.Audit, &model.AuditEntry{
		TxDigest:    result.TxDigest,
		TxType:      "purchase_completed",
		UserAddress: result.BuyerAddress,
		AssetID:     result.AssetID,
		Payload: map[string]interface{}{
			"purchase_id":       result.PurchaseID,
			"escrow_id":         result.EscrowID,
			"encrypted_blob_id": result.EncryptedBlobID,
		},
		CreatedAt: completedAt,
	})
	return nil
}

func (m *MockDataSource) GetAuditTrail(_ context.Context, assetID string, limit int) ([]*model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []*model.AuditEntry
	for i := len(m.Audit) - 1; i >= 0; i-- {
		if m.Audit[i].AssetID == assetID {
			entries = append(entries, m.Audit[i])
		}
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries, nil
}

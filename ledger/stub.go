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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sealmart/sealmart/internal/fault"
)

// Stub is an in-memory Settler for tests and local runs. It confirms every
// submission immediately unless scripted otherwise.
type Stub struct {
	mu sync.Mutex

	// SubmitErr makes Submit fail.
	SubmitErr error
	// ConfirmPending makes AwaitConfirmation report not-yet-indexed until
	// the timeout elapses.
	ConfirmPending bool
	// ConfirmFailure makes the receipt report an on-chain failure.
	ConfirmFailure bool

	SubmitCalls  int
	ConfirmCalls int
	Submitted    []*UnsignedTx
}

func NewStub() *Stub {
	return &Stub{}
}

func (s *Stub) BuildReleaseTransaction(_ context.Context, purchaseID, escrowID, sellerAddress string) (*UnsignedTx, error) {
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
		GasBudget: 20_000_000,
	}, nil
}

func (s *Stub) Submit(_ context.Context, tx *UnsignedTx) (TxRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SubmitCalls++
	if s.SubmitErr != nil {
		return "", s.SubmitErr
	}
	s.Submitted = append(s.Submitted, tx)
	return TxRef(fmt.Sprintf("stub_tx_%s", uuid.New().String())), nil
}

func (s *Stub) AwaitConfirmation(ctx context.Context, ref TxRef, timeout time.Duration) (*Receipt, error) {
	s.mu.Lock()
	s.ConfirmCalls++
	pending, failure := s.ConfirmPending, s.ConfirmFailure
	var escrowID string
	if n := len(s.Submitted); n > 0 {
		escrowID = s.Submitted[n-1].EscrowID
	}
	s.mu.Unlock()

	if pending {
		return nil, fault.New(fault.Settlement,
			fmt.Sprintf("confirmation of %s not observed within %s; funds must not be assumed released", ref, timeout), nil)
	}
	if failure {
		return nil, fault.New(fault.Settlement, "transaction failed on chain: "+string(ref), nil)
	}

	return &Receipt{
		TxDigest:         string(ref),
		Status:           ReceiptSuccess,
		ReleasedEscrowID: escrowID,
		GasUsed:          1_000_000,
		Timestamp:        time.Now(),
	}, nil
}

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
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealmart/sealmart/config"
	"github.com/sealmart/sealmart/internal/fault"
)

func testLedgerConfig(t *testing.T) *config.LedgerConfig {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	_, err := rand.Read(seed)
	require.NoError(t, err)

	return &config.LedgerConfig{
		RpcUrl:                 "http://ledger.local/rpc",
		SponsorAddress:         "0xsponsor",
		SponsorKey:             base64.StdEncoding.EncodeToString(seed),
		GasBudget:              20_000_000,
		ConfirmationTimeoutSec: 5,
	}
}

func TestNewClientRejectsBadSponsorKey(t *testing.T) {
	conf := testLedgerConfig(t)
	conf.SponsorKey = "not base64!"
	_, err := NewClient(conf)
	assert.Error(t, err)

	conf.SponsorKey = base64.StdEncoding.EncodeToString([]byte("too short"))
	_, err = NewClient(conf)
	assert.Error(t, err)
}

func TestBuildReleaseTransaction(t *testing.T) {
	client, err := NewClient(testLedgerConfig(t))
	require.NoError(t, err)

	tx, err := client.BuildReleaseTransaction(context.Background(), "purchase_1", "escrow_1", "0xseller")
	require.NoError(t, err)

	require.Len(t, tx.Calls, 2)
	assert.Equal(t, releaseEscrowTarget, tx.Calls[0].Target)
	assert.Equal(t, []string{"escrow_1", "0xseller"}, tx.Calls[0].Args)
	assert.Equal(t, completePurchaseTarget, tx.Calls[1].Target)
	assert.Equal(t, int64(20_000_000), tx.GasBudget)

	_, err = client.BuildReleaseTransaction(context.Background(), "purchase_1", "", "0xseller")
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.CodeOf(err))
}

func TestSubmit(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodPost, "http://ledger.local/rpc",
		httpmock.NewStringResponder(200, `{"jsonrpc":"2.0","id":1,"result":{"tx_digest":"digest_abc"}}`))

	client, err := NewClient(testLedgerConfig(t))
	require.NoError(t, err)

	tx, err := client.BuildReleaseTransaction(context.Background(), "purchase_1", "escrow_1", "0xseller")
	require.NoError(t, err)

	ref, err := client.Submit(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, TxRef("digest_abc"), ref)
}

func TestSubmitLedgerError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodPost, "http://ledger.local/rpc",
		httpmock.NewStringResponder(200, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"gas budget exceeded"}}`))

	client, err := NewClient(testLedgerConfig(t))
	require.NoError(t, err)

	tx, _ := client.BuildReleaseTransaction(context.Background(), "purchase_1", "escrow_1", "0xseller")
	_, err = client.Submit(context.Background(), tx)
	require.Error(t, err)
	assert.Equal(t, fault.Settlement, fault.CodeOf(err))
}

func TestAwaitConfirmationNotYetIndexedThenSuccess(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	var calls int32
	httpmock.RegisterResponder(http.MethodPost, "http://ledger.local/rpc",
		func(req *http.Request) (*http.Response, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return httpmock.NewStringResponse(200,
					`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"transaction not yet indexed"}}`), nil
			}
			return httpmock.NewStringResponse(200,
				`{"jsonrpc":"2.0","id":1,"result":{"tx_digest":"digest_abc","status":"success","released_escrow_id":"escrow_1","gas_used":900}}`), nil
		})

	client, err := NewClient(testLedgerConfig(t))
	require.NoError(t, err)

	receipt, err := client.AwaitConfirmation(context.Background(), "digest_abc", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, ReceiptSuccess, receipt.Status)
	assert.Equal(t, "escrow_1", receipt.ReleasedEscrowID)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestAwaitConfirmationOnChainFailureStopsPolling(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodPost, "http://ledger.local/rpc",
		httpmock.NewStringResponder(200,
			`{"jsonrpc":"2.0","id":1,"result":{"tx_digest":"digest_abc","status":"failure"}}`))

	client, err := NewClient(testLedgerConfig(t))
	require.NoError(t, err)

	_, err = client.AwaitConfirmation(context.Background(), "digest_abc", 30*time.Second)
	require.Error(t, err)
	assert.Equal(t, fault.Settlement, fault.CodeOf(err))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestAwaitConfirmationTimeout(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterResponder(http.MethodPost, "http://ledger.local/rpc",
		httpmock.NewStringResponder(200,
			`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"transaction not yet indexed"}}`))

	client, err := NewClient(testLedgerConfig(t))
	require.NoError(t, err)

	_, err = client.AwaitConfirmation(context.Background(), "digest_abc", 2*time.Second)
	require.Error(t, err)
	assert.Equal(t, fault.Settlement, fault.CodeOf(err))
	assert.Contains(t, err.Error(), "must not be assumed released")
}

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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealmart/sealmart/config"
	"github.com/sealmart/sealmart/model"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)

	conf := &config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
		Queue: config.QueueConfig{
			FulfillmentQueue: "new:fulfillment",
			WebhookQueue:     "new:webhook",
			NumberOfQueues:   4,
			MaxRetryAttempts: 3,
		},
	}
	config.MockConfig(conf)

	q := NewQueue(conf)
	t.Cleanup(func() { q.Close() })
	return q
}

func getJobMock(purchaseID string) *model.FulfillmentJob {
	return &model.FulfillmentJob{
		PurchaseID:     purchaseID,
		AssetID:        "ast_123",
		SellerAddress:  "0xseller",
		BuyerAddress:   "0xbuyer",
		BuyerPublicKey: "a2V5LWJ5dGVzLWhlcmUtMzItYnl0ZXMtbG9uZyEh",
		Price:          decimal.NewFromInt(50),
	}
}

func TestEnqueueFulfillmentSuccess(t *testing.T) {
	q := newTestQueue(t)

	err := q.Enqueue(context.Background(), getJobMock("prc_123"))
	assert.NoError(t, err)

	info, err := q.JobInfo("prc_123")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "prc_123", info.ID)
}

func TestEnqueueDuplicatePurchaseRejected(t *testing.T) {
	q := newTestQueue(t)

	err := q.Enqueue(context.Background(), getJobMock("prc_dup"))
	require.NoError(t, err)

	err = q.Enqueue(context.Background(), getJobMock("prc_dup"))
	assert.ErrorIs(t, err, ErrDuplicateJob)
}

func TestEnqueueInvalidJobRejected(t *testing.T) {
	q := newTestQueue(t)

	job := getJobMock("prc_bad")
	job.BuyerPublicKey = ""
	err := q.Enqueue(context.Background(), job)
	assert.Error(t, err)

	info, err := q.JobInfo("prc_bad")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestEnqueueNegativePriceRejected(t *testing.T) {
	q := newTestQueue(t)

	job := getJobMock("prc_neg")
	job.Price = decimal.NewFromInt(-5)
	err := q.Enqueue(context.Background(), job)
	assert.Error(t, err)
}

// Jobs for the same asset always land in the same shard so sales counter
// updates for one listing never race across queues.
func TestSameAssetSameShard(t *testing.T) {
	cnf := &config.Configuration{
		Queue: config.QueueConfig{FulfillmentQueue: "new:fulfillment", NumberOfQueues: 4},
	}

	q := &Queue{}
	a := q.geTask(cnf, getJobMock("prc_1"), []byte(`{}`))
	b := q.geTask(cnf, getJobMock("prc_2"), []byte(`{}`))
	assert.Equal(t, a.Type(), b.Type())
}

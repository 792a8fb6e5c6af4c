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

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := &Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432/sealmart"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	}

	err := cnf.validateAndAddDefaults()
	require.NoError(t, err)

	assert.Equal(t, "Sealmart Fulfillment", cnf.ProjectName)
	assert.Equal(t, "new:fulfillment", cnf.Queue.FulfillmentQueue)
	assert.Equal(t, "new:webhook", cnf.Queue.WebhookQueue)
	assert.Equal(t, 4, cnf.Queue.NumberOfQueues)
	assert.Equal(t, 5, cnf.Queue.WorkerConcurrency)
	assert.Equal(t, 3, cnf.Queue.MaxRetryAttempts)
	assert.Equal(t, "2s,5s", cnf.Pipeline.DownloadRetryDelays)
	assert.Equal(t, int64(20_000_000), cnf.Ledger.GasBudget)
	assert.Equal(t, 90, cnf.Ledger.ConfirmationTimeoutSec)
}

func TestValidateRequiredFields(t *testing.T) {
	cnf := &Configuration{Redis: RedisConfig{Dns: "localhost:6379"}}
	assert.Error(t, cnf.validateAndAddDefaults())

	cnf = &Configuration{DataSource: DataSourceConfig{Dns: "postgres://localhost/sealmart"}}
	assert.Error(t, cnf.validateAndAddDefaults())
}

func TestEnvOverride(t *testing.T) {
	os.Setenv("SEALMART_DATA_SOURCE_DNS", "postgres://env:5432/sealmart")
	os.Setenv("SEALMART_REDIS_DNS", "env-redis:6379")
	os.Setenv("SEALMART_QUEUE_WORKER_CONCURRENCY", "9")
	defer func() {
		os.Unsetenv("SEALMART_DATA_SOURCE_DNS")
		os.Unsetenv("SEALMART_REDIS_DNS")
		os.Unsetenv("SEALMART_QUEUE_WORKER_CONCURRENCY")
	}()

	err := loadConfigFromFile("nonexistent.json")
	require.NoError(t, err)

	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "postgres://env:5432/sealmart", cnf.DataSource.Dns)
	assert.Equal(t, "env-redis:6379", cnf.Redis.Dns)
	assert.Equal(t, 9, cnf.Queue.WorkerConcurrency)
}

func TestParseDelays(t *testing.T) {
	assert.Equal(t, []time.Duration{2 * time.Second, 5 * time.Second}, ParseDelays("2s,5s"))
	assert.Equal(t, []time.Duration{time.Second}, ParseDelays(" 1s , nonsense "))
	assert.Nil(t, ParseDelays(""))
}

func TestParseBudget(t *testing.T) {
	assert.Equal(t, 45*time.Second, ParseBudget("45s", time.Minute))
	assert.Equal(t, time.Minute, ParseBudget("", time.Minute))
	assert.Equal(t, time.Minute, ParseBudget("bogus", time.Minute))
}

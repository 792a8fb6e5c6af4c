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
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_MONITORING_PORT = "5002"
)

var ConfigStore atomic.Value

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"SEALMART_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"SEALMART_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"SEALMART_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	FulfillmentQueue  string `json:"fulfillment_queue" envconfig:"SEALMART_QUEUE_FULFILLMENT"`
	WebhookQueue      string `json:"webhook_queue" envconfig:"SEALMART_QUEUE_WEBHOOK"`
	NumberOfQueues    int    `json:"number_of_queues" envconfig:"SEALMART_QUEUE_NUMBER_OF_QUEUES"`
	WorkerConcurrency int    `json:"worker_concurrency" envconfig:"SEALMART_QUEUE_WORKER_CONCURRENCY"`
	MaxRetryAttempts  int    `json:"max_retry_attempts" envconfig:"SEALMART_QUEUE_MAX_RETRY_ATTEMPTS"`
	MonitoringPort    string `json:"monitoring_port" envconfig:"SEALMART_QUEUE_MONITORING_PORT"`
}

type StorageConfig struct {
	S3Endpoint         string `json:"s3_endpoint" envconfig:"SEALMART_S3_ENDPOINT"`
	S3Region           string `json:"s3_region" envconfig:"SEALMART_S3_REGION"`
	S3BucketName       string `json:"s3_bucket_name" envconfig:"SEALMART_S3_BUCKET_NAME"`
	AwsAccessKeyId     string `json:"aws_access_key_id" envconfig:"SEALMART_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"SEALMART_AWS_SECRET_ACCESS_KEY"`
}

type LedgerConfig struct {
	RpcUrl                 string `json:"rpc_url" envconfig:"SEALMART_LEDGER_RPC_URL"`
	SponsorAddress         string `json:"sponsor_address" envconfig:"SEALMART_LEDGER_SPONSOR_ADDRESS"`
	SponsorKey             string `json:"sponsor_key" envconfig:"SEALMART_LEDGER_SPONSOR_KEY"`
	GasBudget              int64  `json:"gas_budget" envconfig:"SEALMART_LEDGER_GAS_BUDGET"`
	ConfirmationTimeoutSec int    `json:"confirmation_timeout_sec" envconfig:"SEALMART_LEDGER_CONFIRMATION_TIMEOUT_SEC"`
}

// PipelineConfig holds the explicit retry schedules, one per external
// dependency class, plus the advisory per-step duration budgets. Schedules
// are comma-separated duration lists, e.g. "2s,5s,10s".
type PipelineConfig struct {
	DownloadRetryDelays    string `json:"download_retry_delays" envconfig:"SEALMART_PIPELINE_DOWNLOAD_RETRY_DELAYS"`
	UploadRetryDelays      string `json:"upload_retry_delays" envconfig:"SEALMART_PIPELINE_UPLOAD_RETRY_DELAYS"`
	SettlementRetryDelays  string `json:"settlement_retry_delays" envconfig:"SEALMART_PIPELINE_SETTLEMENT_RETRY_DELAYS"`
	PersistenceRetryDelays string `json:"persistence_retry_delays" envconfig:"SEALMART_PIPELINE_PERSISTENCE_RETRY_DELAYS"`
	StepBudget             string `json:"step_budget" envconfig:"SEALMART_PIPELINE_STEP_BUDGET"`
	SettleBudget           string `json:"settle_budget" envconfig:"SEALMART_PIPELINE_SETTLE_BUDGET"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type ObservabilityConfig struct {
	TraceEndpoint string `json:"trace_endpoint" envconfig:"SEALMART_TRACE_ENDPOINT"`
}

type Configuration struct {
	ProjectName   string              `json:"project_name" envconfig:"SEALMART_PROJECT_NAME"`
	DataSource    DataSourceConfig    `json:"data_source"`
	Redis         RedisConfig         `json:"redis"`
	Queue         QueueConfig         `json:"queue"`
	Storage       StorageConfig       `json:"storage"`
	Ledger        LedgerConfig        `json:"ledger"`
	Pipeline      PipelineConfig      `json:"pipeline"`
	Notification  Notification        `json:"notification"`
	Observability ObservabilityConfig `json:"observability"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("sealmart", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called sealmart.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Sealmart Fulfillment"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Queue.FulfillmentQueue == "" {
		cnf.Queue.FulfillmentQueue = "new:fulfillment"
	}
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "new:webhook"
	}
	if cnf.Queue.NumberOfQueues <= 0 {
		cnf.Queue.NumberOfQueues = 4
	}
	if cnf.Queue.WorkerConcurrency <= 0 {
		cnf.Queue.WorkerConcurrency = 5
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 3
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DEFAULT_MONITORING_PORT
		log.Printf("Warning: Monitoring port not specified in config. Setting default port: %s", DEFAULT_MONITORING_PORT)
	}

	// Storage propagation is quick to recover; ledger confirmation is not.
	if cnf.Pipeline.DownloadRetryDelays == "" {
		cnf.Pipeline.DownloadRetryDelays = "2s,5s"
	}
	if cnf.Pipeline.UploadRetryDelays == "" {
		cnf.Pipeline.UploadRetryDelays = "2s,5s,10s"
	}
	if cnf.Pipeline.SettlementRetryDelays == "" {
		cnf.Pipeline.SettlementRetryDelays = "5s,15s"
	}
	if cnf.Pipeline.PersistenceRetryDelays == "" {
		cnf.Pipeline.PersistenceRetryDelays = "1s,2s,5s"
	}
	if cnf.Pipeline.StepBudget == "" {
		cnf.Pipeline.StepBudget = "30s"
	}
	if cnf.Pipeline.SettleBudget == "" {
		cnf.Pipeline.SettleBudget = "120s"
	}

	if cnf.Ledger.GasBudget <= 0 {
		cnf.Ledger.GasBudget = 20_000_000
	}
	if cnf.Ledger.ConfirmationTimeoutSec <= 0 {
		cnf.Ledger.ConfirmationTimeoutSec = 90
	}

	return nil
}

// ParseDelays converts a comma-separated duration list into a retry schedule.
// Malformed entries are skipped with a warning so a bad config cannot take
// the workers down.
func ParseDelays(s string) []time.Duration {
	var delays []time.Duration
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			log.Printf("Warning: skipping malformed retry delay %q: %v", part, err)
			continue
		}
		delays = append(delays, d)
	}
	return delays
}

// ParseBudget converts an advisory budget string into a duration, falling
// back to the given default when unset or malformed.
func ParseBudget(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Warning: skipping malformed budget %q: %v", s, err)
		return fallback
	}
	return d
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}

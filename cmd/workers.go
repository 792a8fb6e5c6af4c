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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
	"go.opentelemetry.io/otel"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"

	"github.com/sealmart/sealmart"
	"github.com/sealmart/sealmart/config"
	"github.com/sealmart/sealmart/internal/fault"
	redis_db "github.com/sealmart/sealmart/internal/redis-db"
	"github.com/sealmart/sealmart/internal/traces"
	"github.com/sealmart/sealmart/model"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// processFulfillment runs the pipeline for a job taken off the Redis queue.
// Validation and integrity faults skip the dispatcher's retry, since no
// number of re-runs fixes a missing seller key or a corrupted blob. An
// execution already in flight elsewhere counts as success.
func (b *instance) processFulfillment(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("sealmart.fulfillment.worker").Start(ctx, "Process Fulfillment From Redis Queue")
	defer span.End()

	var job model.FulfillmentJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		logrus.Error(err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := job.ValidateFulfillmentJob(); err != nil {
		logrus.Error(err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	_, err := b.svc.Fulfill(ctx, job.PurchaseID)
	if err != nil {
		if errors.Is(err, sealmart.ErrFulfillmentInFlight) {
			log.Println(" [*] Fulfillment already running, coalescing:", job.PurchaseID)
			return nil
		}
		if !fault.IsRetryable(err) {
			b.notifyFailed(ctx, &job, err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		retryCount, _ := asynq.GetRetryCount(ctx)
		if retryCount >= b.cnf.Queue.MaxRetryAttempts {
			b.notifyFailed(ctx, &job, fmt.Errorf("max retry attempts reached: %v", err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		logrus.Infof("Fulfillment %s pushed back for retry due to error: %v", job.PurchaseID, err)
		return err // This will trigger a retry
	}

	log.Println(" [*] Fulfillment Processed", job.PurchaseID)
	return nil
}

func (b *instance) notifyFailed(ctx context.Context, job *model.FulfillmentJob, cause error) {
	err := sealmart.SendWebhook(ctx, b.queue, sealmart.NewWebhook{
		Event: sealmart.EventPurchaseFailed,
		Payload: map[string]interface{}{
			"purchase_id": job.PurchaseID,
			"asset_id":    job.AssetID,
			"reason":      cause.Error(),
		},
	})
	if err != nil {
		logrus.Warnf("failed to queue failure webhook for %s: %v", job.PurchaseID, err)
	}
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.WebhookQueue] = 3

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.FulfillmentQueue, i)
		queues[queueName] = 1
	}
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency:    conf.Queue.WorkerConcurrency,
			Queues:         queues,
			RetryDelayFunc: retryDelay,
		},
	), nil
}

/// retryDelay spaces dispatcher-level retries exponentially: 5s, 10s, 20s,
// capped at two minutes. Step-level schedules inside the pipeline stay
// explicit; this only governs whole-job re-runs. asynq passes n == 0 for
// the first failure, so the backoff is advanced n+1 times.
func retryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Second
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = 2 * time.Minute

	var d time.Duration
	for i := 0; i <= n; i++ {
		d = bo.NextBackOff()
	}
	return d
}

func initializeTaskHandlers(b *instance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.FulfillmentQueue, i)
		mux.HandleFunc(queueName, b.processFulfillment)
	}

	mux.HandleFunc(cfg.Queue.WebhookQueue, sealmart.ProcessWebhook)
}

// workerCommands defines the "workers" command: the fulfillment worker pool
// plus the asynqmon monitoring endpoint.
func workerCommands(b *instance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start sealmart fulfillment workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			shutdown, err := traces.SetupOTelSDK(ctx, "SEALMART", conf.Observability.TraceEndpoint)
			if err != nil {
				log.Printf("Tracing initialization error: %v", err)
			}
			if shutdown != nil {
				defer func() {
					if err := shutdown(ctx); err != nil {
						log.Printf("Error during shutdown: %v", err)
					}
				}()
			}

			queues := initializeQueues()

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			// Start asynqmon server for health checks and monitoring
			redisOption, _ := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			h := asynqmon.New(asynqmon.Options{
				RootPath: "/monitoring",
				RedisConnOpt: asynq.RedisClientOpt{
					Addr:      redisOption.Addr,
					Password:  redisOption.Password,
					DB:        redisOption.DB,
					TLSConfig: redisOption.TLSConfig,
				},
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}

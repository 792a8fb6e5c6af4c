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
	"fmt"
	"hash/fnv"
	"log"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"github.com/sealmart/sealmart/config"
	redis_db "github.com/sealmart/sealmart/internal/redis-db"
	"github.com/sealmart/sealmart/model"
)

// ErrDuplicateJob is returned when a fulfillment job for the same purchase is
// already queued or running. Callers treat it as success: the work is already
// on its way.
var ErrDuplicateJob = errors.New("fulfillment job already enqueued for this purchase")

// Queue hands fulfillment jobs and webhook deliveries to the worker pool.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

func (q *Queue) Close() error {
	return q.Client.Close()
}

// Enqueue adds a fulfillment job to the Redis queue. The purchase id doubles
// as the task id, so a second enqueue for the same purchase is rejected while
// the first is still queued or running.
func (q *Queue) Enqueue(ctx context.Context, job *model.FulfillmentJob) error {
	if err := job.ValidateFulfillmentJob(); err != nil {
		return err
	}

	payload, err := job.ToJSON()
	if err != nil {
		return err
	}

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	info, err := q.Client.EnqueueContext(ctx, q.geTask(cnf, job, payload), asynq.MaxRetry(cnf.Queue.MaxRetryAttempts))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return ErrDuplicateJob
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued fulfillment: %+v", job.PurchaseID)
	return nil
}

// queueWebhook enqueues a webhook delivery. Deliveries are not deduplicated;
// each event is its own task.
func (q *Queue) queueWebhook(ctx context.Context, payload []byte) error {
	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{asynq.Queue(cnf.Queue.WebhookQueue), asynq.MaxRetry(cnf.Queue.MaxRetryAttempts)}
	task := asynq.NewTask(cnf.Queue.WebhookQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	return nil
}

// geTask generates a task for a fulfillment job and assigns it to a specific
// queue based on the asset id. All purchases of the same asset land in the
// same queue and are processed serially, which keeps the staging record's
// sales counter free of cross-queue contention.
func (q *Queue) geTask(cnf *config.Configuration, job *model.FulfillmentJob, payload []byte) *asynq.Task {
	queueIndex := hashAssetID(job.AssetID) % cnf.Queue.NumberOfQueues
	queueName := fmt.Sprintf("%s_%d", cnf.Queue.FulfillmentQueue, queueIndex+1)

	taskOptions := []asynq.Option{asynq.TaskID(job.PurchaseID), asynq.Queue(queueName)}
	return asynq.NewTask(queueName, payload, taskOptions...)
}

// JobInfo looks up the queued task for a purchase across the sharded
// fulfillment queues. Returns nil when no task exists.
func (q *Queue) JobInfo(purchaseID string) (*asynq.TaskInfo, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	for i := 1; i <= cnf.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cnf.Queue.FulfillmentQueue, i)
		info, err := q.Inspector.GetTaskInfo(queueName, purchaseID)
		if err == nil {
			return info, nil
		}
	}
	return nil, nil
}

func hashAssetID(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(1<<31))
}

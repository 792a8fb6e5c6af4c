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
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sealmart/sealmart/config"
	"github.com/sealmart/sealmart/internal/request"
)

const (
	// EventPurchaseCompleted fires when a purchase's delivery artifacts are
	// persisted and visible to the buyer.
	EventPurchaseCompleted = "purchase.completed"

	// EventPaymentReleased fires when escrowed funds reach the seller.
	EventPaymentReleased = "payment.released"

	// EventPurchaseFailed fires when the job dispatcher gives up on a
	// purchase after exhausting its retries.
	EventPurchaseFailed = "purchase.failed"
)

// NewWebhook represents the structure of a webhook notification.
// It includes an event type and associated payload data.
type NewWebhook struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// SendWebhook enqueues a webhook notification task. A missing webhook URL
// disables delivery silently; events are informational, never load-bearing.
func SendWebhook(ctx context.Context, q *Queue, newWebhook NewWebhook) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	if newWebhook.Timestamp.IsZero() {
		newWebhook.Timestamp = time.Now()
	}
	payload, err := json.Marshal(newWebhook)
	if err != nil {
		return err
	}
	return q.queueWebhook(ctx, payload)
}

// ProcessWebhook processes a webhook notification task from the queue.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	if conf.Notification.Webhook.Url == "" {
		return nil
	}
	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		log.Printf("Error unmarshaling task payload: %v", err)
		return err
	}
	log.Printf("Processing webhook: %+v\n", payload.Event)
	return processHTTP(ctx, conf, payload)
}

// processHTTP sends a webhook notification via HTTP POST request.
func processHTTP(ctx context.Context, conf *config.Configuration, data NewWebhook) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Println("Error marshaling data:", err)
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Webhook.Url, bytes.NewBuffer(jsonData))
	if err != nil {
		log.Println("Error creating request:", err)
		return err
	}
	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	var response map[string]interface{}
	resp, err := request.Call(req, &response)
	if err != nil {
		log.Println("Error sending request:", err)
		return err
	}

	// Check if the status code is not in the 2XX success range
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("Request failed with status code: %d\n", resp.StatusCode)
		return nil
	}

	log.Println("Webhook notification sent successfully:", response)
	return nil
}

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
	"encoding/json"
	"net/http"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealmart/sealmart/config"
)

func TestProcessWebhookDeliversEvent(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{
		Notification: config.Notification{
			Webhook: struct {
				Url     string            `json:"url"`
				Headers map[string]string `json:"headers"`
			}{
				Url:     "http://example.com/webhook",
				Headers: map[string]string{"X-Api-Key": "secret"},
			},
		},
	})

	var received NewWebhook
	var gotHeader string
	httpmock.RegisterResponder("POST", "http://example.com/webhook",
		func(req *http.Request) (*http.Response, error) {
			gotHeader = req.Header.Get("X-Api-Key")
			if err := json.NewDecoder(req.Body).Decode(&received); err != nil {
				return nil, err
			}
			return httpmock.NewJsonResponse(200, map[string]interface{}{"ok": true})
		})

	payload, err := json.Marshal(NewWebhook{
		Event:   EventPurchaseCompleted,
		Payload: map[string]interface{}{"purchase_id": "prc_123"},
	})
	require.NoError(t, err)

	task := asynq.NewTask("new:webhook", payload)
	err = ProcessWebhook(context.Background(), task)
	assert.NoError(t, err)
	assert.Equal(t, EventPurchaseCompleted, received.Event)
	assert.Equal(t, "secret", gotHeader)
}

func TestProcessWebhookNoURLConfigured(t *testing.T) {
	config.MockConfig(&config.Configuration{})

	payload, err := json.Marshal(NewWebhook{Event: EventPaymentReleased})
	require.NoError(t, err)

	err = ProcessWebhook(context.Background(), asynq.NewTask("new:webhook", payload))
	assert.NoError(t, err)
}

func TestProcessWebhookBadPayload(t *testing.T) {
	config.MockConfig(&config.Configuration{
		Notification: config.Notification{
			Webhook: struct {
				Url     string            `json:"url"`
				Headers map[string]string `json:"headers"`
			}{Url: "http://example.com/webhook"},
		},
	})

	err := ProcessWebhook(context.Background(), asynq.NewTask("new:webhook", []byte("{not json")))
	assert.Error(t, err)
}

func TestSendWebhookNoURLIsNoop(t *testing.T) {
	config.MockConfig(&config.Configuration{})

	err := SendWebhook(context.Background(), nil, NewWebhook{Event: EventPurchaseFailed})
	assert.NoError(t, err)
}

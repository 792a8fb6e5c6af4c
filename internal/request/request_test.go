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

package request

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJsonReq(t *testing.T) {
	buf, err := ToJsonReq(map[string]string{"event": "purchase.completed"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"purchase.completed"}`, buf.String())
}

func TestPostJSON(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, "http://ledger.local/rpc",
		httpmock.NewStringResponder(200, `{"result":"ok"}`))

	var response map[string]string
	resp, err := PostJSON(context.Background(), "http://ledger.local/rpc",
		map[string]string{"method": "submit"}, &response)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ok", response["result"])
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

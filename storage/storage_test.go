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

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealmart/sealmart/internal/fault"
)

func TestMemoryPutGet(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	id, err := store.Put(ctx, []byte("encrypted asset bytes"))
	require.NoError(t, err)
	assert.Len(t, id, 64)

	data, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("encrypted asset bytes"), data)
}

func TestMemoryContentAddressing(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	first, err := store.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)
	second, err := store.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := store.Put(ctx, []byte("different bytes"))
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestMemoryMissingContentIsTransient(t *testing.T) {
	store := NewMemory()
	_, err := store.Get(context.Background(), "deadbeef")
	require.Error(t, err)
	assert.Equal(t, fault.Transient, fault.CodeOf(err))
}

func TestMemoryScriptedFailures(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	id := store.Seed([]byte("eventually visible"))

	store.FailGets = 2

	_, err := store.Get(ctx, id)
	assert.Error(t, err)
	_, err = store.Get(ctx, id)
	assert.Error(t, err)

	data, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("eventually visible"), data)
}

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
	"sync"

	"github.com/sealmart/sealmart/internal/fault"
	"github.com/sealmart/sealmart/internal/sealbox"
)

// Store is the content-addressed blob boundary the pipeline fetches seller
// assets from and publishes buyer copies to. Content is immutable once
// published: no update-in-place, no delete. A Get shortly after a remote Put
// may transiently report not-found while replication completes, which is why
// callers wrap Get and Put in retry schedules.
type Store interface {
	// Get returns the blob for a content id, or a transient fault when the
	// id is not (yet) visible.
	Get(ctx context.Context, contentID string) ([]byte, error)

	// Put stores the blob and returns its content id. Putting the same
	// bytes twice yields the same id.
	Put(ctx context.Context, data []byte) (string, error)
}

// Memory is an in-process Store used by tests and local runs. FailGets
// scripts transient not-found responses to exercise retry schedules.
type Memory struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	FailGets int
	GetCalls int
	PutCalls int
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, contentID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls++
	if m.FailGets > 0 {
		m.FailGets--
		return nil, fault.New(fault.Transient, "content not found: "+contentID, nil)
	}

	data, ok := m.blobs[contentID]
	if !ok {
		return nil, fault.New(fault.Transient, "content not found: "+contentID, nil)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Put(ctx context.Context, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PutCalls++
	id := sealbox.ContentHash(data)
	stored := make([]byte, len(data))
	copy(stored, data)
	m.blobs[id] = stored
	return id, nil
}

// Seed stores a blob directly, returning its content id.
func (m *Memory) Seed(data []byte) string {
	id, _ := m.Put(context.Background(), data)
	return id
}

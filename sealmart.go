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
	"github.com/redis/go-redis/v9"

	"github.com/sealmart/sealmart/database"
	"github.com/sealmart/sealmart/ledger"
	"github.com/sealmart/sealmart/storage"
)

// Sealmart wires the fulfillment pipeline's collaborators together. All
// dependencies are injected at construction; nothing here reaches for
// package-level state, so tests can assemble a service from fakes and two
// services can coexist in one process.
type Sealmart struct {
	datasource database.IDataSource
	store      storage.Store
	settler    ledger.Settler
	redis      redis.UniversalClient
	queue      *Queue
}

// Deps carries the collaborators for NewSealmart. Queue may be nil for
// callers that never enqueue (pure workers handle tasks they are given).
type Deps struct {
	Datasource database.IDataSource
	Store      storage.Store
	Settler    ledger.Settler
	Redis      redis.UniversalClient
	Queue      *Queue
}

func NewSealmart(deps Deps) *Sealmart {
	return &Sealmart{
		datasource: deps.Datasource,
		store:      deps.Store,
		settler:    deps.Settler,
		redis:      deps.Redis,
		queue:      deps.Queue,
	}
}

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

package model

import "time"

// AssetStagingRecord is the immutable seller-side source of truth for the
// original encrypted asset. The seller's symmetric key is persisted here so
// the pipeline can decrypt later; its absence is a hard validation failure.
type AssetStagingRecord struct {
	ID          int64                  `json:"-"`
	AssetID     string                 `json:"asset_id"`
	ContentID   string                 `json:"content_id"`
	ContentHash string                 `json:"content_hash"`
	SellerKey   string                 `json:"seller_key,omitempty"`
	TotalSales  int64                  `json:"total_sales"`
	MetaData    map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// HasSellerKey reports whether the staging record carries the symmetric key
// the fulfillment pipeline needs for the decrypt step.
func (a *AssetStagingRecord) HasSellerKey() bool {
	return a.SellerKey != ""
}

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

import (
	"encoding/json"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// FulfillmentJob is the queue payload for one fulfillment execution. The
// purchase id doubles as the task's dedup key, so at most one job per
// purchase is ever queued or running.
type FulfillmentJob struct {
	PurchaseID     string          `json:"purchase_id"`
	AssetID        string          `json:"asset_id"`
	SellerAddress  string          `json:"seller_address"`
	BuyerAddress   string          `json:"buyer_address"`
	BuyerPublicKey string          `json:"buyer_public_key"`
	Price          decimal.Decimal `json:"price"`
}

func (j *FulfillmentJob) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

func positivePriceValidation(j *FulfillmentJob) validation.RuleFunc {
	return func(value interface{}) error {
		if j.Price.IsNegative() {
			return errors.New("price cannot be negative")
		}
		return nil
	}
}

func (j *FulfillmentJob) ValidateFulfillmentJob() error {
	return validation.ValidateStruct(j,
		validation.Field(&j.PurchaseID, validation.Required),
		validation.Field(&j.AssetID, validation.Required),
		validation.Field(&j.SellerAddress, validation.Required),
		validation.Field(&j.BuyerAddress, validation.Required),
		validation.Field(&j.BuyerPublicKey, validation.Required),
		validation.Field(&j.Price, validation.By(positivePriceValidation(j))),
	)
}

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
	"log"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sealmart/sealmart"
	"github.com/sealmart/sealmart/model"
)

// enqueueCommands defines the "enqueue" command, a manual entry point for
// queuing a fulfillment job. The normal path is the chain listener pushing
// jobs as purchase transactions confirm; this exists for replays and
// operational recovery.
func enqueueCommands(b *instance) *cobra.Command {
	var job model.FulfillmentJob
	var price string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "queue a fulfillment job for a confirmed purchase",
		Run: func(cmd *cobra.Command, args []string) {
			p, err := decimal.NewFromString(price)
			if err != nil {
				log.Fatalf("invalid price %q: %v", price, err)
			}
			job.Price = p

			err = b.queue.Enqueue(cmd.Context(), &job)
			if errors.Is(err, sealmart.ErrDuplicateJob) {
				log.Printf("Fulfillment for %s is already queued or running", job.PurchaseID)
				return
			}
			if err != nil {
				log.Fatalf("Error enqueueing fulfillment: %v", err)
			}
			log.Printf("Fulfillment queued for %s", job.PurchaseID)
		},
	}

	cmd.Flags().StringVar(&job.PurchaseID, "purchase-id", "", "purchase to fulfill")
	cmd.Flags().StringVar(&job.AssetID, "asset-id", "", "asset being delivered")
	cmd.Flags().StringVar(&job.SellerAddress, "seller", "", "seller address")
	cmd.Flags().StringVar(&job.BuyerAddress, "buyer", "", "buyer address")
	cmd.Flags().StringVar(&job.BuyerPublicKey, "buyer-public-key", "", "buyer's base64 encryption public key")
	cmd.Flags().StringVar(&price, "price", "0", "purchase price")

	return cmd
}

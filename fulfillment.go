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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/sealmart/sealmart/config"
	"github.com/sealmart/sealmart/database"
	"github.com/sealmart/sealmart/internal/fault"
	redlock "github.com/sealmart/sealmart/internal/lock"
	"github.com/sealmart/sealmart/internal/notification"
	"github.com/sealmart/sealmart/internal/retry"
	"github.com/sealmart/sealmart/internal/sealbox"
	"github.com/sealmart/sealmart/ledger"
	"github.com/sealmart/sealmart/model"
)

var tracer = otel.Tracer("sealmart.fulfillment")

// ErrFulfillmentInFlight is returned when another execution currently holds
// the per-purchase lock. The caller coalesces: the running execution will
// deliver, so there is nothing to do.
var ErrFulfillmentInFlight = errors.New("fulfillment already in flight for this purchase")

// fulfillLockTTL bounds how long a crashed worker can hold a purchase lock.
// Generous on purpose: a lost lock mid-settlement is worse than a slow
// retry after a crash.
const fulfillLockTTL = 10 * time.Minute

// DeliveryEnvelope is the published blob shape: the buyer-encrypted payload
// without its wrapped key. The wrapped key travels separately on the purchase
// record, so possession of the blob alone is useless.
type DeliveryEnvelope struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	AuthTag    string `json:"auth_tag"`
}

// fulfillState accumulates what the steps produce as the pipeline advances.
type fulfillState struct {
	purchase  *model.PurchaseRequest
	asset     *model.AssetStagingRecord
	escrow    *model.EscrowRecord
	blob      []byte
	plaintext []byte
	sealed    *sealbox.SealedAsset
	blobID    string
	receipt   *ledger.Receipt
}

// Fulfill runs the full pipeline for one purchase: validate, fetch, decrypt,
// re-encrypt, publish, settle, persist, notify, release. It returns the
// per-step results for every step that ran, alongside the terminal error if
// any step failed. Exactly one execution runs per purchase at a time; a
// concurrent call returns ErrFulfillmentInFlight.
//
// Fulfill is safe to re-run after a failure. A purchase that already carries
// its delivery artifacts is rejected at validation without touching storage
// or the ledger again; the escrow is released at most once.
func (s *Sealmart) Fulfill(ctx context.Context, purchaseID string) ([]model.StepResult, error) {
	ctx, span := tracer.Start(ctx, "Fulfilling Purchase")
	defer span.End()

	locker := redlock.NewLocker(s.redis, "fulfill:"+purchaseID, uuid.New().String())
	if err := locker.Lock(ctx, fulfillLockTTL); err != nil {
		if errors.Is(err, redlock.ErrAlreadyHeld) {
			return nil, ErrFulfillmentInFlight
		}
		return nil, err
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.Warnf("failed to release fulfillment lock for %s: %v", purchaseID, err)
		}
	}()

	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	steps, err := s.runPipeline(ctx, cnf, purchaseID)
	if err != nil {
		span.SetStatus(codes.Error, "fulfillment failed")
		span.RecordError(err)
	}
	return steps, err
}

func (s *Sealmart) runPipeline(ctx context.Context, cnf *config.Configuration, purchaseID string) ([]model.StepResult, error) {
	var steps []model.StepResult
	state := &fulfillState{}
	stepBudget := config.ParseBudget(cnf.Pipeline.StepBudget, 30*time.Second)
	settleBudget := config.ParseBudget(cnf.Pipeline.SettleBudget, 120*time.Second)
	// Plaintext and key material are wiped no matter where the pipeline
	// stops. The release step only reports that this happened.
	defer state.release()

	run := func(name string, budget time.Duration, fn func(ctx context.Context) error) error {
		return runStep(ctx, &steps, name, budget, fn)
	}

	if err := run("validate", stepBudget, func(ctx context.Context) error {
		return s.validatePurchase(ctx, state, purchaseID)
	}); err != nil {
		return steps, s.failPurchase(ctx, purchaseID, steps, err)
	}

	if err := run("fetch", stepBudget, func(ctx context.Context) error {
		return s.fetchAsset(ctx, cnf, state)
	}); err != nil {
		return steps, s.failPurchase(ctx, purchaseID, steps, err)
	}

	if err := run("decrypt", stepBudget, func(ctx context.Context) error {
		return s.decryptAsset(state)
	}); err != nil {
		return steps, s.failPurchase(ctx, purchaseID, steps, err)
	}

	if err := run("reencrypt", stepBudget, func(ctx context.Context) error {
		return s.reencryptForBuyer(state)
	}); err != nil {
		return steps, s.failPurchase(ctx, purchaseID, steps, err)
	}

	if err := run("publish", stepBudget, func(ctx context.Context) error {
		return s.publishDelivery(ctx, cnf, state)
	}); err != nil {
		return steps, s.failPurchase(ctx, purchaseID, steps, err)
	}

	if err := run("settle", settleBudget, func(ctx context.Context) error {
		return s.settleEscrow(ctx, cnf, state)
	}); err != nil {
		return steps, s.failPurchase(ctx, purchaseID, steps, err)
	}

	if err := run("persist", stepBudget, func(ctx context.Context) error {
		return s.persistFulfillment(ctx, cnf, state)
	}); err != nil {
		// Settlement already confirmed: funds moved, records did not.
		// This needs a human, not a failed-status overwrite.
		critical := fault.NewCritical(fault.Persistence,
			fmt.Sprintf("purchase %s: escrow released on chain but records not updated; manual reconciliation required", purchaseID), err)
		notification.NotifyError(critical)
		return steps, critical
	}

	_ = run("notify", stepBudget, func(ctx context.Context) error {
		return s.notifyFulfilled(ctx, state)
	})

	_ = run("release", 0, func(ctx context.Context) error {
		state.release()
		return nil
	})

	logrus.WithFields(logrus.Fields{
		"purchase_id": purchaseID,
		"blob_id":     state.blobID,
		"tx_digest":   state.receipt.TxDigest,
	}).Info("fulfillment completed")
	return steps, nil
}

// runStep executes one pipeline step, timing it and recording the fixed
// result shape. Budgets are advisory: an overrun is logged, never enforced,
// so a slow settlement cannot strand funds in a half-released state.
func runStep(ctx context.Context, steps *[]model.StepResult, name string, budget time.Duration, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "Step: "+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	result := model.StepResult{Name: name, Duration: elapsed, Success: err == nil}
	if err != nil {
		result.Detail = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
	}
	*steps = append(*steps, result)

	entry := logrus.WithFields(logrus.Fields{
		"step":     name,
		"duration": elapsed.String(),
		"success":  err == nil,
	})
	if budget > 0 && elapsed > budget {
		entry.Warnf("step exceeded budget of %s", budget)
	} else if err != nil {
		entry.Warnf("step failed: %v", err)
	} else {
		entry.Debug("step completed")
	}
	return err
}

// validatePurchase loads the purchase, its staging record and its escrow,
// and checks every precondition the later steps assume.
func (s *Sealmart) validatePurchase(ctx context.Context, state *fulfillState, purchaseID string) error {
	purchase, err := s.datasource.GetPurchase(ctx, purchaseID)
	if err != nil {
		return err
	}
	state.purchase = purchase

	// A fulfilled purchase never gets a second run: the delivery artifacts
	// exist and the escrow release already happened. A failed purchase may
	// pass through here; the dispatcher's whole-job retry re-drives it.
	if purchase.Fulfilled() {
		return fault.New(fault.Validation,
			fmt.Sprintf("purchase %s is already fulfilled; refusing a second settlement", purchaseID), nil)
	}
	if purchase.Status == model.StatusCompleted {
		return fault.New(fault.Validation,
			fmt.Sprintf("purchase %s is completed but has no delivery artifacts", purchaseID), nil)
	}

	asset, err := s.datasource.GetAssetStaging(ctx, purchase.AssetID)
	if err != nil {
		return err
	}
	if !asset.HasSellerKey() {
		return fault.New(fault.Validation,
			fmt.Sprintf("asset %s has no seller key on record; cannot decrypt", purchase.AssetID), nil)
	}
	state.asset = asset

	escrow, err := s.datasource.GetEscrowByPurchase(ctx, purchaseID)
	if err != nil {
		return err
	}
	if escrow.Status != model.EscrowHolding {
		return fault.New(fault.Validation,
			fmt.Sprintf("escrow %s is %s, expected holding", escrow.EscrowID, escrow.Status), nil)
	}
	state.escrow = escrow
	return nil
}

// fetchAsset downloads the seller's original blob and verifies it against the
// recorded content hash before anything downstream touches it.
func (s *Sealmart) fetchAsset(ctx context.Context, cnf *config.Configuration, state *fulfillState) error {
	delays := config.ParseDelays(cnf.Pipeline.DownloadRetryDelays)
	err := retry.Do(ctx, "download "+state.asset.ContentID, delays, func(ctx context.Context) error {
		blob, err := s.store.Get(ctx, state.asset.ContentID)
		if err != nil {
			return err
		}
		state.blob = blob
		return nil
	})
	if err != nil {
		return err
	}

	if got := sealbox.ContentHash(state.blob); got != state.asset.ContentHash {
		critical := fault.NewCritical(fault.Integrity,
			fmt.Sprintf("asset %s content hash mismatch: stored blob does not match listing", state.asset.AssetID), nil)
		notification.NotifyError(critical)
		return critical
	}
	return nil
}

func (s *Sealmart) decryptAsset(state *fulfillState) error {
	sellerKey, err := base64.StdEncoding.DecodeString(state.asset.SellerKey)
	if err != nil {
		return fault.New(fault.Validation, "seller key on record is not valid base64", err)
	}
	defer sealbox.Zero(sellerKey)

	plaintext, err := sealbox.Open(state.blob, sellerKey)
	if err != nil {
		critical := fault.NewCritical(fault.Integrity,
			fmt.Sprintf("asset %s failed authenticated decryption", state.asset.AssetID), err)
		notification.NotifyError(critical)
		return critical
	}
	state.plaintext = plaintext
	return nil
}

func (s *Sealmart) reencryptForBuyer(state *fulfillState) error {
	sealed, err := sealbox.ReEncryptForBuyer(state.plaintext, state.purchase.BuyerPublicKey)
	if err != nil {
		return fault.New(fault.Validation,
			fmt.Sprintf("cannot encrypt for buyer %s", state.purchase.BuyerAddress), err)
	}
	state.sealed = sealed
	return nil
}

func (s *Sealmart) publishDelivery(ctx context.Context, cnf *config.Configuration, state *fulfillState) error {
	envelope, err := json.Marshal(&DeliveryEnvelope{
		Ciphertext: state.sealed.Ciphertext,
		Nonce:      state.sealed.Nonce,
		AuthTag:    state.sealed.AuthTag,
	})
	if err != nil {
		return err
	}

	delays := config.ParseDelays(cnf.Pipeline.UploadRetryDelays)
	return retry.Do(ctx, "publish delivery for "+state.purchase.PurchaseID, delays, func(ctx context.Context) error {
		blobID, err := s.store.Put(ctx, envelope)
		if err != nil {
			return err
		}
		state.blobID = blobID
		return nil
	})
}

// settleEscrow builds, submits and confirms the single ledger transaction
// that releases the escrow to the seller and completes the on-chain purchase.
// Submission is retried on transient errors; the on-chain escrow object can
// only be consumed once, so a duplicate submit after a silent success fails
// as already-settled rather than double-paying.
func (s *Sealmart) settleEscrow(ctx context.Context, cnf *config.Configuration, state *fulfillState) error {
	tx, err := s.settler.BuildReleaseTransaction(ctx, state.purchase.PurchaseID, state.escrow.EscrowID, state.purchase.SellerAddress)
	if err != nil {
		return err
	}

	var ref ledger.TxRef
	delays := config.ParseDelays(cnf.Pipeline.SettlementRetryDelays)
	err = retry.Do(ctx, "submit settlement for "+state.purchase.PurchaseID, delays, func(ctx context.Context) error {
		ref, err = s.settler.Submit(ctx, tx)
		return err
	})
	if err != nil {
		return err
	}

	timeout := time.Duration(cnf.Ledger.ConfirmationTimeoutSec) * time.Second
	receipt, err := s.settler.AwaitConfirmation(ctx, ref, timeout)
	if err != nil {
		return err
	}
	if receipt.ReleasedEscrowID != "" && receipt.ReleasedEscrowID != state.escrow.EscrowID {
		critical := fault.NewCritical(fault.Settlement,
			fmt.Sprintf("transaction %s released escrow %s, expected %s", receipt.TxDigest, receipt.ReleasedEscrowID, state.escrow.EscrowID), nil)
		notification.NotifyError(critical)
		return critical
	}
	state.receipt = receipt
	return nil
}

func (s *Sealmart) persistFulfillment(ctx context.Context, cnf *config.Configuration, state *fulfillState) error {
	result := &database.FulfillmentResult{
		PurchaseID:      state.purchase.PurchaseID,
		AssetID:         state.purchase.AssetID,
		EscrowID:        state.escrow.EscrowID,
		BuyerAddress:    state.purchase.BuyerAddress,
		EncryptedBlobID: state.blobID,
		DecryptionKey:   state.sealed.WrappedKey,
		TxDigest:        state.receipt.TxDigest,
		CompletedAt:     time.Now(),
	}

	delays := config.ParseDelays(cnf.Pipeline.PersistenceRetryDelays)
	return retry.Do(ctx, "persist fulfillment of "+state.purchase.PurchaseID, delays, func(ctx context.Context) error {
		return s.datasource.CommitFulfillment(ctx, result)
	})
}

// notifyFulfilled emits the completion webhooks. Delivery is queued and
// best-effort; a dead webhook endpoint never fails a fulfilled purchase.
func (s *Sealmart) notifyFulfilled(ctx context.Context, state *fulfillState) error {
	if s.queue == nil {
		return nil
	}
	err := SendWebhook(ctx, s.queue, NewWebhook{
		Event: EventPurchaseCompleted,
		Payload: map[string]interface{}{
			"purchase_id":       state.purchase.PurchaseID,
			"asset_id":          state.purchase.AssetID,
			"buyer_address":     state.purchase.BuyerAddress,
			"encrypted_blob_id": state.blobID,
			"tx_digest":         state.receipt.TxDigest,
		},
	})
	if err != nil {
		logrus.Warnf("failed to queue completion webhook for %s: %v", state.purchase.PurchaseID, err)
		return err
	}
	return SendWebhook(ctx, s.queue, NewWebhook{
		Event: EventPaymentReleased,
		Payload: map[string]interface{}{
			"purchase_id":    state.purchase.PurchaseID,
			"escrow_id":      state.escrow.EscrowID,
			"seller_address": state.purchase.SellerAddress,
			"amount":         state.purchase.Price,
			"tx_digest":      state.receipt.TxDigest,
		},
	})
}

// failPurchase records the terminal failure reason on the purchase row. The
// write is best-effort: the job dispatcher owns retries, and a database that
// is down for the status write was likely the failure in the first place.
func (s *Sealmart) failPurchase(ctx context.Context, purchaseID string, steps []model.StepResult, cause error) error {
	if len(steps) > 0 {
		last := steps[len(steps)-1]
		logrus.WithFields(logrus.Fields{
			"purchase_id": purchaseID,
			"step":        last.Name,
		}).Warnf("fulfillment failed: %v", cause)
	}

	if err := s.datasource.MarkPurchaseFailed(ctx, purchaseID, cause.Error()); err != nil {
		logrus.Warnf("failed to record failure for purchase %s: %v", purchaseID, err)
	}
	return cause
}

func (f *fulfillState) release() {
	sealbox.Zero(f.plaintext)
	f.plaintext = nil
}

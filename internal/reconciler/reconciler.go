/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package reconciler applies provider events to the transaction ledger
// exactly once, whatever order and however often they are delivered.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"custody-wallet-go/internal/cache"
	"custody-wallet-go/internal/capability"
	"custody-wallet-go/internal/directory"
	"custody-wallet-go/internal/metrics"
	"custody-wallet-go/internal/models"
	"custody-wallet-go/internal/notify"
	"custody-wallet-go/internal/provider"
	"custody-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidEvent = errors.New("invalid event")

// Journal mirrors settled records into an external ledger.
type Journal interface {
	Record(ctx context.Context, record models.TransactionRecord) error
}

type Reconciler struct {
	store     store.WalletStore
	directory *directory.Directory
	matrix    *capability.Matrix
	adapters  *provider.Registry
	emitter   notify.Emitter
	journal   Journal
	cache     cache.Cache
	dedupTtl  time.Duration
}

func New(
	st store.WalletStore,
	dir *directory.Directory,
	matrix *capability.Matrix,
	adapters *provider.Registry,
	emitter notify.Emitter,
	journal Journal,
	c cache.Cache,
	dedupTtl time.Duration,
) *Reconciler {
	return &Reconciler{
		store:     st,
		directory: dir,
		matrix:    matrix,
		adapters:  adapters,
		emitter:   emitter,
		journal:   journal,
		cache:     c,
		dedupTtl:  dedupTtl,
	}
}

// Handle applies one event reported by providerName. The error is non-nil
// only for the Failed outcome.
func (r *Reconciler) Handle(ctx context.Context, providerName string, ev Event) (Outcome, error) {
	var (
		outcome Outcome
		err     error
	)

	switch e := ev.(type) {
	case DepositSettled:
		outcome, err = r.withMarker(ctx, providerName, e.ProviderTransactionId, func() (Outcome, error) {
			return r.depositSettled(ctx, providerName, e)
		})
	case WithdrawalSettled:
		outcome, err = r.withMarker(ctx, providerName, e.ProviderTransactionId, func() (Outcome, error) {
			return r.withdrawalFinished(ctx, providerName, e.ProviderTransactionId, models.StatusDone, e.Fee, "")
		})
	case WithdrawalFailed:
		outcome, err = r.withMarker(ctx, providerName, e.ProviderTransactionId, func() (Outcome, error) {
			return r.withdrawalFinished(ctx, providerName, e.ProviderTransactionId, models.StatusFailed, decimal.Zero, e.Reason)
		})
	case AddressGenerated:
		outcome, err = r.addressGenerated(ctx, providerName, e)
	default:
		zap.L().Info("Ignoring unrecognized provider event",
			zap.String("provider", providerName),
			zap.String("event", ev.Name()))
		outcome = Ignored
	}

	metrics.WebhookEvents.WithLabelValues(r.providerLabel(providerName), eventLabel(ev), string(outcome)).Inc()
	if err != nil {
		zap.L().Error("Provider event failed",
			zap.String("provider", providerName),
			zap.String("event", ev.Name()),
			zap.Error(err))
	}
	return outcome, err
}

// RecordMalformed counts a delivery that could not be decoded.
func (r *Reconciler) RecordMalformed(providerName string) {
	metrics.WebhookEvents.WithLabelValues(r.providerLabel(providerName), "malformed", string(Failed)).Inc()
}

// providerLabel bounds the provider label to registered adapters; the name
// comes from the request path.
func (r *Reconciler) providerLabel(providerName string) string {
	if r.adapters.Has(providerName) {
		return providerName
	}
	return metrics.UnknownLabel
}

func eventLabel(ev Event) string {
	if _, ok := ev.(Unknown); ok {
		return metrics.UnknownLabel
	}
	return ev.Name()
}

func markerKey(providerName, providerTxId string) string {
	return fmt.Sprintf("reconcile:%s:%s", providerName, providerTxId)
}

// withMarker suppresses concurrent deliveries of the same transaction through
// the cache. The store and its unique constraint remain authoritative; a
// cache error only costs that first layer. Markers of events that changed
// nothing are released so a later redelivery is evaluated again.
func (r *Reconciler) withMarker(ctx context.Context, providerName, providerTxId string, apply func() (Outcome, error)) (Outcome, error) {
	if providerTxId == "" {
		return Failed, fmt.Errorf("%w: missing transaction id", ErrInvalidEvent)
	}

	key := markerKey(providerName, providerTxId)
	acquired, err := r.cache.SetNX(ctx, key, "1", r.dedupTtl)
	if err != nil {
		zap.L().Warn("Dedup cache unavailable, relying on ledger check",
			zap.String("provider_transaction_id", providerTxId),
			zap.Error(err))
		acquired = true
	}
	if !acquired {
		zap.L().Info("Event already in flight or recently applied",
			zap.String("provider", providerName),
			zap.String("provider_transaction_id", providerTxId))
		return Duplicate, nil
	}

	outcome, err := apply()
	if outcome == Failed || outcome == Unattributable {
		if delErr := r.cache.Delete(ctx, key); delErr != nil {
			zap.L().Warn("Failed to release dedup marker", zap.String("key", key), zap.Error(delErr))
		}
	}
	return outcome, err
}

func (r *Reconciler) depositSettled(ctx context.Context, providerName string, e DepositSettled) (Outcome, error) {
	existing, err := r.store.FindTransactionByProviderId(ctx, e.ProviderTransactionId)
	if err == nil {
		zap.L().Info("Deposit already recorded, discarding",
			zap.String("provider_transaction_id", e.ProviderTransactionId),
			zap.String("status", string(existing.Status)))
		return Duplicate, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Failed, err
	}

	assetCode := capability.NormalizeAsset(e.AssetCode)
	network := capability.NormalizeNetwork(e.Network)
	if !e.Amount.IsPositive() {
		return Failed, fmt.Errorf("%w: deposit amount %s", ErrInvalidEvent, e.Amount)
	}

	wallet, err := r.directory.FindByAddress(ctx, e.DepositAddress)
	if errors.Is(err, store.ErrNotFound) {
		zap.L().Warn("Deposit to unrecognized address, discarding",
			zap.String("provider", providerName),
			zap.String("provider_transaction_id", e.ProviderTransactionId),
			zap.String("address", e.DepositAddress))
		return Unattributable, nil
	}
	if err != nil {
		return Failed, err
	}

	if !r.attributable(wallet, providerName, assetCode, network, e.DepositAddress) {
		zap.L().Warn("Deposit does not match the wallet holding the address, discarding",
			zap.String("provider", providerName),
			zap.String("wallet_id", wallet.Id),
			zap.String("wallet_provider", wallet.Provider),
			zap.String("asset", assetCode),
			zap.String("network", network))
		return Unattributable, nil
	}

	record := &models.TransactionRecord{
		ProviderTransactionId: e.ProviderTransactionId,
		Provider:              providerName,
		Direction:             models.DirectionInbound,
		AssetCode:             assetCode,
		Network:               network,
		Amount:                e.Amount,
		Fee:                   e.Fee,
		Status:                models.StatusDone,
		SourceAddress:         e.SourceAddress,
		DestinationAddress:    e.DepositAddress,
		WalletId:              wallet.Id,
		UserId:                wallet.UserId,
	}
	if err := r.store.CreateTransaction(ctx, record); err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) {
			return Duplicate, nil
		}
		return Failed, err
	}

	zap.L().Info("Deposit applied",
		zap.String("user_id", wallet.UserId),
		zap.String("provider_transaction_id", e.ProviderTransactionId),
		zap.String("asset", assetCode),
		zap.String("network", network),
		zap.String("amount", e.Amount.String()))

	r.settled(ctx, wallet, *record, "Deposit received",
		fmt.Sprintf("%s %s received on %s", e.Amount, assetCode, network))
	return Applied, nil
}

// attributable reports whether the wallet holding a deposit address can
// receive the asset on the network from this provider, at that address.
func (r *Reconciler) attributable(wallet *models.Wallet, providerName, assetCode, network, depositAddress string) bool {
	if wallet.Provider != providerName || !wallet.HasNetwork(network) {
		return false
	}
	if expected, _ := wallet.DepositAddress(assetCode, network); !models.SameAddress(expected, depositAddress) {
		return false
	}
	entry, ok := r.matrix.Lookup(wallet.WalletType, wallet.Provider, network)
	if !ok {
		return false
	}
	_, ok = entry.Token(assetCode)
	return ok
}

func (r *Reconciler) withdrawalFinished(ctx context.Context, providerName, providerTxId string, status models.TransactionStatus, fee decimal.Decimal, reason string) (Outcome, error) {
	record, err := r.store.FindTransactionByProviderId(ctx, providerTxId)
	if errors.Is(err, store.ErrNotFound) {
		zap.L().Warn("Withdrawal event for unknown transaction, discarding",
			zap.String("provider", providerName),
			zap.String("provider_transaction_id", providerTxId))
		return Unattributable, nil
	}
	if err != nil {
		return Failed, err
	}

	if record.Direction != models.DirectionOutbound || record.Provider != providerName {
		zap.L().Warn("Withdrawal event does not match recorded transaction, discarding",
			zap.String("provider", providerName),
			zap.String("provider_transaction_id", providerTxId),
			zap.String("recorded_provider", record.Provider),
			zap.String("direction", string(record.Direction)))
		return Unattributable, nil
	}
	if record.Status.IsTerminal() {
		zap.L().Info("Withdrawal already final, discarding",
			zap.String("provider_transaction_id", providerTxId),
			zap.String("status", string(record.Status)))
		return Duplicate, nil
	}

	err = r.store.UpdateTransactionStatus(ctx, store.StatusUpdate{Id: record.Id, Status: status, Fee: fee})
	if errors.Is(err, store.ErrTerminalStatus) {
		return Duplicate, nil
	}
	if err != nil {
		return Failed, err
	}
	record.Status = status
	record.Fee = fee

	wallet, err := r.store.GetWallet(ctx, record.WalletId)
	if err != nil {
		zap.L().Error("Wallet of settled withdrawal not found",
			zap.String("wallet_id", record.WalletId),
			zap.Error(err))
		return Applied, nil
	}

	zap.L().Info("Withdrawal finished",
		zap.String("user_id", record.UserId),
		zap.String("provider_transaction_id", providerTxId),
		zap.String("status", string(status)),
		zap.String("reason", reason))

	if status == models.StatusDone {
		r.settled(ctx, wallet, *record, "Withdrawal completed",
			fmt.Sprintf("%s %s sent to %s on %s", record.Amount, record.AssetCode, record.DestinationAddress, record.Network))
		return Applied, nil
	}

	r.refreshBalance(ctx, wallet, record.AssetCode, record.Network)
	message := fmt.Sprintf("%s %s to %s on %s failed", record.Amount, record.AssetCode, record.DestinationAddress, record.Network)
	if reason != "" {
		message += ": " + reason
	}
	r.notify(ctx, *record, "Withdrawal failed", message)
	return Applied, nil
}

func (r *Reconciler) addressGenerated(ctx context.Context, providerName string, e AddressGenerated) (Outcome, error) {
	if e.ProviderWalletId == "" || e.Network == "" {
		return Failed, fmt.Errorf("%w: address event missing wallet or network", ErrInvalidEvent)
	}
	if models.IsPlaceholderAddress(e.Address) {
		return Ignored, nil
	}

	updated, err := r.directory.BackfillAddress(ctx, providerName, e.ProviderWalletId, e.Network, e.AssetCode, e.Address, e.Memo)
	if errors.Is(err, store.ErrNotFound) {
		zap.L().Warn("Address generated for unknown wallet, discarding",
			zap.String("provider", providerName),
			zap.String("provider_wallet_id", e.ProviderWalletId),
			zap.String("network", e.Network))
		return Unattributable, nil
	}
	if err != nil {
		return Failed, err
	}
	if !updated {
		return Ignored, nil
	}

	zap.L().Info("Address backfilled",
		zap.String("provider", providerName),
		zap.String("provider_wallet_id", e.ProviderWalletId),
		zap.String("asset", e.AssetCode),
		zap.String("network", e.Network))
	return Applied, nil
}

// settled runs the side effects of a Done record: balance refresh from the
// provider, notification and journal. None of them can fail the event.
func (r *Reconciler) settled(ctx context.Context, wallet *models.Wallet, record models.TransactionRecord, title, message string) {
	r.refreshBalance(ctx, wallet, record.AssetCode, record.Network)
	r.notify(ctx, record, title, message)

	if err := r.journal.Record(ctx, record); err != nil {
		zap.L().Error("Failed to journal settled transaction",
			zap.String("provider_transaction_id", record.ProviderTransactionId),
			zap.Error(err))
	}
}

// refreshBalance re-reads the authoritative balance rather than trusting the event.
func (r *Reconciler) refreshBalance(ctx context.Context, wallet *models.Wallet, assetCode, network string) {
	entry, ok := r.matrix.Lookup(wallet.WalletType, wallet.Provider, network)
	if !ok {
		return
	}
	token, _ := entry.Token(assetCode)

	adapter, err := r.adapters.Get(wallet.Provider)
	if err != nil {
		zap.L().Error("No adapter for wallet provider", zap.String("provider", wallet.Provider), zap.Error(err))
		return
	}

	balance, err := adapter.GetBalance(ctx, provider.BalanceQuery{
		Wallet:            provider.WalletRef{WalletId: wallet.Id, ProviderWalletId: wallet.ProviderWalletId},
		AssetCode:         assetCode,
		Network:           network,
		ProviderNetworkId: entry.ProviderNetwork(),
		ProviderTokenId:   token.ProviderTokenId,
	})
	if err != nil {
		zap.L().Warn("Balance refresh after settlement failed",
			zap.String("wallet_id", wallet.Id),
			zap.String("asset", assetCode),
			zap.String("network", network),
			zap.Error(err))
		return
	}

	if err := r.store.UpdateTokenBalance(ctx, wallet.Id, assetCode, network, balance); err != nil {
		zap.L().Error("Failed to update token balance",
			zap.String("wallet_id", wallet.Id),
			zap.String("asset", assetCode),
			zap.Error(err))
	}
}

func (r *Reconciler) notify(ctx context.Context, record models.TransactionRecord, title, message string) {
	metadata := map[string]string{
		"transaction_id":          record.Id,
		"provider_transaction_id": record.ProviderTransactionId,
		"asset":                   record.AssetCode,
		"network":                 record.Network,
		"amount":                  record.Amount.String(),
		"status":                  string(record.Status),
	}
	if sc := models.GetSettlementContext(ctx); sc != nil && sc.TxHash != "" {
		metadata["tx_hash"] = sc.TxHash
	}

	err := r.emitter.Emit(ctx, notify.Notification{
		UserId:   record.UserId,
		Title:    title,
		Message:  message,
		Metadata: metadata,
	})
	if err != nil {
		zap.L().Warn("Failed to emit notification",
			zap.String("user_id", record.UserId),
			zap.Error(err))
	}
}

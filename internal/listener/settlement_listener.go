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

// Package listener polls providers for withdrawals whose settlement webhook
// never arrived and feeds the result to the reconciler.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"custody-wallet-go/internal/cache"
	"custody-wallet-go/internal/metrics"
	"custody-wallet-go/internal/models"
	"custody-wallet-go/internal/provider"
	"custody-wallet-go/internal/reconciler"
	"custody-wallet-go/internal/store"

	"go.uber.org/zap"
)

// Handler applies a provider event.
type Handler interface {
	Handle(ctx context.Context, providerName string, ev reconciler.Event) (reconciler.Outcome, error)
}

// SettlementListenerConfig contains configuration for SettlementListener
type SettlementListenerConfig struct {
	Store           store.WalletStore
	Handler         Handler
	Adapters        *provider.Registry
	Cache           cache.Cache // optional; keeps replicas from polling the same transfer
	PollingInterval time.Duration
	Grace           time.Duration
	BatchSize       int
}

// SettlementListener checks the status of withdrawals stuck in Processing.
type SettlementListener struct {
	store           store.WalletStore
	handler         Handler
	adapters        *provider.Registry
	cache           cache.Cache
	pollingInterval time.Duration
	grace           time.Duration
	batchSize       int
	now             func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewSettlementListener(cfg SettlementListenerConfig) (*SettlementListener, error) {
	if cfg.Store == nil || cfg.Handler == nil || cfg.Adapters == nil {
		return nil, fmt.Errorf("settlement listener requires a store, a handler, and adapters")
	}
	if cfg.PollingInterval <= 0 {
		return nil, fmt.Errorf("invalid polling interval: %s", cfg.PollingInterval)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	return &SettlementListener{
		store:           cfg.Store,
		handler:         cfg.Handler,
		adapters:        cfg.Adapters,
		cache:           cfg.Cache,
		pollingInterval: cfg.PollingInterval,
		grace:           cfg.Grace,
		batchSize:       cfg.BatchSize,
		now:             func() time.Time { return time.Now().UTC() },
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}, nil
}

// Start begins polling in the background until Stop or ctx ends.
func (l *SettlementListener) Start(ctx context.Context) {
	zap.L().Info("Starting settlement listener",
		zap.Duration("polling_interval", l.pollingInterval),
		zap.Duration("grace", l.grace))
	go l.pollLoop(ctx)
}

// Stop gracefully stops the listener
func (l *SettlementListener) Stop() {
	l.stopOnce.Do(func() {
		zap.L().Info("Stopping settlement listener")
		close(l.stopChan)
	})
	<-l.doneChan
	zap.L().Info("Settlement listener stopped")
}

func (l *SettlementListener) pollLoop(ctx context.Context) {
	defer close(l.doneChan)

	ticker := time.NewTicker(l.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := l.Poll(ctx); err != nil {
				zap.L().Error("Settlement poll failed", zap.Error(err))
			}
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Poll checks one batch of processing withdrawals and returns how many of
// them the reconciler applied.
func (l *SettlementListener) Poll(ctx context.Context) (int, error) {
	records, err := l.store.ProcessingTransactions(ctx, l.now().Add(-l.grace), l.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list processing transactions: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	zap.L().Debug("Polling processing withdrawals", zap.Int("count", len(records)))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for _, record := range records {
		if record.Direction != models.DirectionOutbound {
			continue
		}

		wg.Add(1)
		go func(r models.TransactionRecord) {
			defer wg.Done()

			outcome, err := l.check(ctx, r)
			if err != nil {
				zap.L().Error("Failed to check withdrawal status",
					zap.String("transaction_id", r.Id),
					zap.String("provider", r.Provider),
					zap.String("provider_transaction_id", r.ProviderTransactionId),
					zap.Error(err))
				return
			}
			if outcome == reconciler.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(record)
	}
	wg.Wait()

	return applied, nil
}

func (l *SettlementListener) check(ctx context.Context, record models.TransactionRecord) (reconciler.Outcome, error) {
	if l.cache != nil {
		acquired, err := l.cache.SetNX(ctx, "poll:"+record.Id, l.now().Format(time.RFC3339), l.pollingInterval)
		if err != nil {
			zap.L().Warn("Poll lock unavailable, checking anyway",
				zap.String("transaction_id", record.Id),
				zap.Error(err))
		} else if !acquired {
			return reconciler.Ignored, nil
		}
	}

	adapter, err := l.adapters.Get(record.Provider)
	if err != nil {
		return "", err
	}
	checker, ok := adapter.(provider.StatusChecker)
	if !ok {
		return reconciler.Ignored, nil
	}

	wallet, err := l.store.GetWallet(ctx, record.WalletId)
	if err != nil {
		return "", fmt.Errorf("failed to load wallet %s: %w", record.WalletId, err)
	}

	status, err := checker.TransferStatus(ctx,
		provider.WalletRef{WalletId: wallet.Id, ProviderWalletId: wallet.ProviderWalletId},
		provider.TxRef(record.ProviderTransactionId))
	if errors.Is(err, provider.ErrStatusUnsupported) {
		metrics.SettlementPolls.WithLabelValues(record.Provider, "unsupported").Inc()
		return reconciler.Ignored, nil
	}
	if err != nil {
		metrics.SettlementPolls.WithLabelValues(record.Provider, "error").Inc()
		return "", err
	}
	metrics.SettlementPolls.WithLabelValues(record.Provider, string(status.State)).Inc()

	var ev reconciler.Event
	switch status.State {
	case provider.TransferCompleted:
		ev = reconciler.WithdrawalSettled{
			ProviderTransactionId: record.ProviderTransactionId,
			Fee:                   status.Fee,
			TxHash:                status.TxHash,
		}
	case provider.TransferFailed:
		ev = reconciler.WithdrawalFailed{
			ProviderTransactionId: record.ProviderTransactionId,
			Reason:                status.Reason,
		}
	default:
		return reconciler.Ignored, nil
	}

	ctx = models.WithSettlementContext(ctx, &models.SettlementContext{
		Provider:   record.Provider,
		Source:     "poller",
		EventType:  ev.Name(),
		TxHash:     status.TxHash,
		ReceivedAt: l.now(),
	})

	outcome, err := l.handler.Handle(ctx, record.Provider, ev)
	if err != nil {
		return outcome, err
	}

	zap.L().Info("Withdrawal settled by polling",
		zap.String("transaction_id", record.Id),
		zap.String("provider", record.Provider),
		zap.String("state", string(status.State)),
		zap.String("outcome", string(outcome)))
	return outcome, nil
}

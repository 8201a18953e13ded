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

// Package aggregator fans balance reads out to every provider wallet a user
// holds and reduces them into one per-asset summary.
package aggregator

import (
	"context"
	"time"

	"custody-wallet-go/internal/capability"
	"custody-wallet-go/internal/metrics"
	"custody-wallet-go/internal/models"
	"custody-wallet-go/internal/provider"
	"custody-wallet-go/internal/rates"
	"custody-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

type Aggregator struct {
	store         store.WalletStore
	matrix        *capability.Matrix
	adapters      *provider.Registry
	rates         rates.Source
	localCurrency string
	concurrency   int
	timeout       time.Duration
	recentLimit   int
}

func New(
	st store.WalletStore,
	matrix *capability.Matrix,
	adapters *provider.Registry,
	rateSource rates.Source,
	cfg models.AggregatorConfig,
	localCurrency string,
) *Aggregator {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Aggregator{
		store:         st,
		matrix:        matrix,
		adapters:      adapters,
		rates:         rateSource,
		localCurrency: localCurrency,
		concurrency:   concurrency,
		timeout:       cfg.Timeout,
		recentLimit:   cfg.RecentTransactions,
	}
}

// task is one balance read for a (wallet, token) pair. order is the task's
// position in matrix iteration order and breaks address ties.
type task struct {
	order  int
	wallet *models.Wallet
	entry  capability.Entry
	token  capability.Token
}

func (t task) address() string {
	address, _ := t.wallet.DepositAddress(t.token.Symbol, t.entry.Network)
	return address
}

// buildTasks walks the matrix for each wallet's type and keeps entries the
// wallet's provider serves on a network the wallet holds.
func (a *Aggregator) buildTasks(wallets []models.Wallet) []task {
	var tasks []task
	for i := range wallets {
		w := &wallets[i]
		for _, entry := range a.matrix.EntriesFor(w.WalletType) {
			if entry.Provider != w.Provider || !w.HasNetwork(entry.Network) {
				continue
			}
			for _, token := range entry.Tokens {
				tasks = append(tasks, task{order: len(tasks), wallet: w, entry: entry, token: token})
			}
		}
	}
	return tasks
}

// Summary returns the user's aggregated balances. It never fails because of a
// provider: failed or unfinished reads contribute zero and are reported in
// Failures and Partial.
func (a *Aggregator) Summary(ctx context.Context, userId string) (*models.BalanceSummary, error) {
	wallets, err := a.store.GetWallets(ctx, userId)
	if err != nil {
		return nil, err
	}

	tasks := a.buildTasks(wallets)
	acc := newAccumulator()
	for _, t := range tasks {
		acc.declare(t.token.Symbol)
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if a.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, a.timeout)
	}
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)

		var g errgroup.Group
		g.SetLimit(a.concurrency)
		for _, t := range tasks {
			if runCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				a.fetch(runCtx, t, acc)
				return nil
			})
		}
		g.Wait()
	}()

	select {
	case <-done:
	case <-runCtx.Done():
	}
	perAsset, failures := acc.seal()
	partial := runCtx.Err() != nil

	if partial {
		metrics.AggregationPartial.Inc()
		zap.L().Warn("Balance aggregation timed out, returning partial summary",
			zap.String("user_id", userId),
			zap.Int("tasks", len(tasks)),
			zap.Duration("timeout", a.timeout))
	}

	summary := &models.BalanceSummary{
		UserId:               userId,
		LocalCurrency:        a.localCurrency,
		TotalInLocalCurrency: decimal.Zero,
		PerAsset:             make(map[string]models.AssetBalance, len(perAsset)),
		Failures:             failures,
		Partial:              partial,
	}

	for assetCode, ab := range perAsset {
		rate, ok := a.rates.Rate(ctx, assetCode)
		if !ok {
			zap.L().Warn("No exchange rate for asset, valuing at zero",
				zap.String("asset", assetCode),
				zap.String("currency", a.localCurrency))
			rate = decimal.Zero
		}
		ab.Valuation = ab.Balance.Mul(rate)
		ab.RecentTransactions = a.recentTransactions(ctx, userId, assetCode)

		summary.TotalInLocalCurrency = summary.TotalInLocalCurrency.Add(ab.Valuation)
		summary.PerAsset[assetCode] = ab
	}

	return summary, nil
}

func (a *Aggregator) fetch(ctx context.Context, t task, acc *accumulator) {
	adapter, err := a.adapters.Get(t.wallet.Provider)
	if err == nil {
		var balance decimal.Decimal
		balance, err = adapter.GetBalance(ctx, provider.BalanceQuery{
			Wallet:            provider.WalletRef{WalletId: t.wallet.Id, ProviderWalletId: t.wallet.ProviderWalletId},
			AssetCode:         t.token.Symbol,
			Network:           t.entry.Network,
			ProviderNetworkId: t.entry.ProviderNetwork(),
			ProviderTokenId:   t.token.ProviderTokenId,
		})
		if err == nil {
			if acc.add(t, balance) {
				a.refreshToken(ctx, t, balance)
			}
			return
		}
	}

	metrics.AggregationTaskFailures.WithLabelValues(t.wallet.Provider, t.entry.Network).Inc()
	zap.L().Warn("Balance fetch failed",
		zap.String("provider", t.wallet.Provider),
		zap.String("wallet_id", t.wallet.Id),
		zap.String("network", t.entry.Network),
		zap.String("asset", t.token.Symbol),
		zap.Error(err))

	acc.fail(models.TaskFailure{
		Provider:  t.wallet.Provider,
		Network:   t.entry.Network,
		AssetCode: t.token.Symbol,
		WalletId:  t.wallet.Id,
		Error:     err.Error(),
	})
}

func (a *Aggregator) refreshToken(ctx context.Context, t task, balance decimal.Decimal) {
	err := a.store.UpdateTokenBalance(ctx, t.wallet.Id, t.token.Symbol, t.entry.Network, balance)
	if err != nil {
		zap.L().Warn("Failed to refresh cached token balance",
			zap.String("wallet_id", t.wallet.Id),
			zap.String("asset", t.token.Symbol),
			zap.String("network", t.entry.Network),
			zap.Error(err))
	}
}

func (a *Aggregator) recentTransactions(ctx context.Context, userId, assetCode string) []models.TransactionRecord {
	if a.recentLimit <= 0 {
		return []models.TransactionRecord{}
	}
	records, err := a.store.RecentTransactions(ctx, userId, assetCode, a.recentLimit)
	if err != nil {
		zap.L().Warn("Failed to load recent transactions",
			zap.String("user_id", userId),
			zap.String("asset", assetCode),
			zap.Error(err))
		return []models.TransactionRecord{}
	}
	if records == nil {
		return []models.TransactionRecord{}
	}
	return records
}

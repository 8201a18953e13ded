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

package main

import (
	"context"
	"flag"
	"fmt"
	"sort"

	"custody-wallet-go/internal/common"
	"custody-wallet-go/internal/config"
	"custody-wallet-go/internal/formance"
	"custody-wallet-go/internal/models"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalUsers        int
	totalBalances     int
	usersWithBalances int
	partialSummaries  int
}

func sortedAssets(summary *models.BalanceSummary) []string {
	assets := make([]string, 0, len(summary.PerAsset))
	for asset := range summary.PerAsset {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

func printBalance(balance models.AssetBalance, localCurrency string, isLast bool) {
	fmt.Printf("%s %-8s: %20s (%s, networks: %v)\n",
		common.BoxPrefix(isLast),
		balance.AssetCode,
		balance.Balance.String(),
		common.FormatLocal(balance.Valuation, localCurrency),
		balance.ContributingNetworks)
	fmt.Printf("%s address: %s, recent transactions: %d\n",
		common.BoxDetailPrefix(isLast), common.DisplayAddress(balance.Address), len(balance.RecentTransactions))
}

func printUserHeader(user models.User, summary *models.BalanceSummary) {
	details := []string{"Total: " + common.FormatLocal(summary.TotalInLocalCurrency, summary.LocalCurrency)}
	if summary.Partial || len(summary.Failures) > 0 {
		details = append(details, fmt.Sprintf("Incomplete: partial=%t, failed reads=%d", summary.Partial, len(summary.Failures)))
	}
	common.PrintUserBox(user, common.DefaultWidth, details...)
}

func printJournal(ctx context.Context, journal *formance.Journal, userId string) {
	mirrored, err := journal.MirroredBalances(ctx, userId)
	if err != nil {
		zap.L().Warn("Failed to read journaled balances", zap.String("user_id", userId), zap.Error(err))
		return
	}
	for asset, balance := range mirrored {
		fmt.Printf("│  journaled %-8s: %s\n", asset, balance.String())
	}
}

func processUser(ctx context.Context, user models.User, services *common.Services) (int, bool, error) {
	summary, err := services.Api.GetBalanceSummary(ctx, user.Id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get balances: %w", err)
	}

	if len(summary.PerAsset) == 0 {
		return 0, false, nil
	}

	printUserHeader(user, summary)
	if journal, ok := services.Journal.(*formance.Journal); ok {
		printJournal(ctx, journal, user.Id)
	}

	assets := sortedAssets(summary)
	for i, asset := range assets {
		printBalance(summary.PerAsset[asset], summary.LocalCurrency, i == len(assets)-1)
	}

	return len(assets), summary.Partial, nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific user email (optional)")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	users, err := common.SelectUsers(ctx, services.DbService, *emailFlag)
	if err != nil {
		logger.Fatal("Failed to initialize users", zap.Error(err))
	}

	common.PrintHeader("USER BALANCE REPORT", common.DefaultWidth)

	stats := balanceStats{}
	for _, user := range users {
		stats.totalUsers++

		count, partial, err := processUser(ctx, user, services)
		if err != nil {
			logger.Error("Failed to process user",
				zap.String("user_id", user.Id),
				zap.String("user_name", user.Name),
				zap.Error(err))
			continue
		}
		if partial {
			stats.partialSummaries++
		}
		if count > 0 {
			stats.usersWithBalances++
			stats.totalBalances += count
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d users with balances (%d assets across %d users queried, %d partial)",
		stats.usersWithBalances, stats.totalBalances, stats.totalUsers, stats.partialSummaries)
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_balances", stats.usersWithBalances),
		zap.Int("total_balances", stats.totalBalances))
}

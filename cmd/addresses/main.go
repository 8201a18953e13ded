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
	"errors"
	"flag"
	"fmt"
	"sort"

	"custody-wallet-go/internal/common"
	"custody-wallet-go/internal/config"
	"custody-wallet-go/internal/directory"
	"custody-wallet-go/internal/models"

	"go.uber.org/zap"
)

type reportStats struct {
	totalUsers       int
	totalAddresses   int
	pendingAddresses int
}

type addressLine struct {
	provider string
	asset    string
	network  string
	address  string
	memo     string
}

func printUserHeader(user models.User, count int) {
	common.PrintUserBox(user, common.WideWidth, fmt.Sprintf("Addresses: %d", count))
}

func printAddress(line addressLine, isLast bool) {
	address := common.DisplayAddress(line.address)
	assetNetwork := fmt.Sprintf("%s-%s", line.asset, line.network)
	fmt.Printf("%s %-12s %-20s → %s\n", common.BoxPrefix(isLast), line.provider, assetNetwork, address)

	if line.memo != "" {
		fmt.Printf("%s   Memo: %s\n", common.BoxDetailPrefix(isLast), line.memo)
	}
}

// collectAddresses lists one line per token, resolving placeholders through
// the provider when resolve is set.
func collectAddresses(ctx context.Context, services *common.Services, userId string, wallets []models.Wallet, resolve bool) []addressLine {
	var lines []addressLine
	for _, w := range wallets {
		for _, t := range w.Tokens {
			address, memo := w.DepositAddress(t.AssetCode, t.Network)
			line := addressLine{provider: w.Provider, asset: t.AssetCode, network: t.Network, address: address, memo: memo}

			if models.IsPlaceholderAddress(address) && resolve {
				address, err := services.Api.DepositAddress(ctx, userId, t.AssetCode, t.Network)
				switch {
				case err == nil:
					line.address = address
				case errors.Is(err, directory.ErrAddressPending):
				default:
					zap.L().Warn("Failed to resolve address",
						zap.String("user_id", userId),
						zap.String("asset", t.AssetCode),
						zap.String("network", t.Network),
						zap.Error(err))
				}
			}
			lines = append(lines, line)
		}
	}

	sort.Slice(lines, func(i, j int) bool {
		if lines[i].asset != lines[j].asset {
			return lines[i].asset < lines[j].asset
		}
		return lines[i].network < lines[j].network
	})
	return lines
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific user email (optional)")
	resolveFlag := flag.Bool("resolve", false, "Ask providers for addresses still pending")
	flag.Parse()

	logger.Info("Starting address query")

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

	common.PrintHeader("DEPOSIT ADDRESS REPORT", common.WideWidth)

	stats := reportStats{}
	for _, user := range users {
		stats.totalUsers++

		wallets, err := services.Directory.Wallets(ctx, user.Id)
		if err != nil {
			logger.Error("Failed to get wallets", zap.String("user_id", user.Id), zap.Error(err))
			continue
		}

		lines := collectAddresses(ctx, services, user.Id, wallets, *resolveFlag)
		if len(lines) == 0 {
			continue
		}

		printUserHeader(user, len(lines))
		for i, line := range lines {
			printAddress(line, i == len(lines)-1)
			stats.totalAddresses++
			if line.address == "" {
				stats.pendingAddresses++
			}
		}
	}

	common.PrintFooter(fmt.Sprintf("SUMMARY: %d addresses (%d pending) across %d users",
		stats.totalAddresses, stats.pendingAddresses, stats.totalUsers), common.WideWidth)
}

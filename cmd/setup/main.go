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

	"custody-wallet-go/internal/common"
	"custody-wallet-go/internal/config"

	"go.uber.org/zap"
)

// setup provisions missing wallets for every existing user. Already
// provisioned wallets are left untouched, so it is safe to re-run.
func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Only provision wallets for this user (optional)")
	walletTypeFlag := flag.String("wallet-type", "standard", "Wallet type to provision")
	flag.Parse()

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

	common.PrintHeader("WALLET SETUP", common.DefaultWidth)

	var failedUsers int
	for _, user := range users {
		fmt.Printf("\n%s (%s)\n", user.Name, user.Email)
		result := common.ProvisionAll(ctx, services, user.Id, *walletTypeFlag)
		if len(result.Failed) > 0 {
			failedUsers++
		}
	}

	common.PrintFooter(fmt.Sprintf("SUMMARY: %d users processed, %d with failures", len(users), failedUsers), common.DefaultWidth)

	logger.Info("Setup completed",
		zap.Int("users", len(users)),
		zap.Int("users_with_failures", failedUsers))
}

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

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type withdrawalRequest struct {
	email       string
	asset       string
	network     string
	amount      decimal.Decimal
	destination string
	memo        string
}

func parseAndValidateFlags() (*withdrawalRequest, error) {
	emailFlag := flag.String("email", "", "User email (required)")
	assetFlag := flag.String("asset", "", "Asset symbol (e.g., USDT) (required)")
	networkFlag := flag.String("network", "", "Network (e.g., bep20, trc20) (required)")
	amountFlag := flag.String("amount", "", "Amount to withdraw (required)")
	destinationFlag := flag.String("destination", "", "Destination address (required)")
	memoFlag := flag.String("memo", "", "Destination memo or tag (optional)")
	flag.Parse()

	if *emailFlag == "" || *assetFlag == "" || *networkFlag == "" || *amountFlag == "" || *destinationFlag == "" {
		return nil, fmt.Errorf("all flags are required: --email, --asset, --network, --amount, --destination")
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be greater than zero")
	}

	return &withdrawalRequest{
		email:       *emailFlag,
		asset:       *assetFlag,
		network:     *networkFlag,
		amount:      amount,
		destination: *destinationFlag,
		memo:        *memoFlag,
	}, nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid flags", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	user, err := services.DbService.GetUserByEmail(ctx, req.email)
	if err != nil {
		zap.L().Fatal("User not found", zap.String("email", req.email), zap.Error(err))
	}

	// refreshes cached token balances so the pre-flight check sees current funds
	if _, err := services.Api.GetBalanceSummary(ctx, user.Id); err != nil {
		zap.L().Warn("Unable to refresh balances before withdrawal", zap.Error(err))
	}

	result, err := services.Api.InitiateWithdrawalWithMemo(ctx, user.Id, req.asset, req.network, req.amount, req.destination, req.memo)
	if err != nil {
		zap.L().Fatal("Withdrawal failed", zap.Error(err))
	}

	common.PrintHeader("WITHDRAWAL SUBMITTED", common.DefaultWidth)
	fmt.Printf("User:           %s (%s)\n", user.Name, user.Email)
	fmt.Printf("Asset:          %s on %s\n", req.asset, req.network)
	fmt.Printf("Amount:         %s\n", req.amount.String())
	fmt.Printf("Destination:    %s\n", req.destination)
	fmt.Printf("Provider:       %s\n", result.Provider)
	fmt.Printf("Transaction ID: %s\n", result.TransactionId)
	fmt.Printf("Status:         %s\n", result.Status)
	common.PrintFooter("Settlement is reported by provider webhook or the settlement poller", common.DefaultWidth)
}

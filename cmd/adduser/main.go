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
	"regexp"
	"strings"

	"custody-wallet-go/internal/common"
	"custody-wallet-go/internal/config"
	"custody-wallet-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nameFlag := flag.String("name", "", "User's full name (required)")
	emailFlag := flag.String("email", "", "User's email address (required)")
	walletTypeFlag := flag.String("wallet-type", "standard", "Wallet type to provision at every provider offering it")
	flag.Parse()

	if *nameFlag == "" || *emailFlag == "" {
		zap.L().Fatal("Both flags are required: --name and --email")
	}
	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}

	zap.L().Info("Starting user creation process",
		zap.String("name", *nameFlag),
		zap.String("email", *emailFlag))

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if _, err := services.DbService.GetUserByEmail(ctx, *emailFlag); err == nil {
		zap.L().Fatal("User already exists with this email", zap.String("email", *emailFlag))
	} else if !errors.Is(err, store.ErrUserNotFound) {
		zap.L().Fatal("Failed to check existing user", zap.Error(err))
	}

	user, err := services.DbService.CreateUser(ctx, uuid.New().String(), *nameFlag, *emailFlag)
	if err != nil {
		zap.L().Fatal("Failed to create user", zap.Error(err))
	}

	fmt.Println()
	common.PrintHeader("USER CREATED", common.DefaultWidth)
	fmt.Printf("ID:    %s\n", user.Id)
	fmt.Printf("Name:  %s\n", user.Name)
	fmt.Printf("Email: %s\n", user.Email)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("User created successfully", zap.String("id", user.Id))

	result := common.ProvisionAll(ctx, services, user.Id, *walletTypeFlag)

	fmt.Println()
	common.PrintHeader("WALLET PROVISIONING SUMMARY", common.DefaultWidth)
	fmt.Printf("Wallet Type:       %s\n", *walletTypeFlag)
	fmt.Printf("Providers:         %d\n", len(result.Provisioned))
	fmt.Printf("Failed:            %d\n", len(result.Failed))
	if len(result.Failed) > 0 {
		fmt.Printf("Failed Providers:  %s\n", strings.Join(result.Failed, ", "))
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	if len(result.Failed) > 0 {
		zap.L().Warn("User created but some wallets failed to provision",
			zap.String("user_id", user.Id),
			zap.Strings("failed_providers", result.Failed))
		fmt.Println("You can re-run setup to retry: go run cmd/setup/main.go")
	}
}

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

// Package prime adapts Coinbase Prime portfolio wallets. Prime wallets hold a
// single symbol, so a custody wallet maps to one Prime wallet per symbol,
// named "<reference>-<SYMBOL>". The custody wallet's provider id is the reference.
package prime

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"custody-wallet-go/internal/provider"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const Name = "prime"

type Config struct {
	AccessKey   string
	Passphrase  string
	SigningKey  string
	PortfolioId string
	WalletType  string
}

type Adapter struct {
	api         primeAPI
	portfolioId string
	walletType  string

	mu        sync.Mutex
	walletIds map[string]string
}

var (
	_ provider.Adapter        = (*Adapter)(nil)
	_ provider.TokenAddresser = (*Adapter)(nil)
)

func New(cfg Config, httpClient *http.Client) (*Adapter, error) {
	if cfg.AccessKey == "" || cfg.Passphrase == "" || cfg.SigningKey == "" {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}
	if cfg.PortfolioId == "" {
		return nil, fmt.Errorf("missing required PRIME_PORTFOLIO_ID")
	}

	creds := &credentials.Credentials{
		AccessKey:  cfg.AccessKey,
		Passphrase: cfg.Passphrase,
		SigningKey: cfg.SigningKey,
	}

	return newAdapter(newSDKService(creds, httpClient), cfg.PortfolioId, cfg.WalletType), nil
}

func newAdapter(api primeAPI, portfolioId, walletType string) *Adapter {
	if walletType == "" {
		walletType = "TRADING"
	}
	return &Adapter{
		api:         api,
		portfolioId: portfolioId,
		walletType:  walletType,
		walletIds:   make(map[string]string),
	}
}

func (a *Adapter) Name() string { return Name }

func walletName(reference, symbol string) string {
	return reference + "-" + strings.ToUpper(symbol)
}

// splitNetwork turns "ethereum-mainnet" into ("ethereum", "mainnet").
func splitNetwork(providerNetworkId string) (string, string) {
	idx := strings.LastIndex(providerNetworkId, "-")
	if idx <= 0 || idx == len(providerNetworkId)-1 {
		return providerNetworkId, ""
	}
	return providerNetworkId[:idx], providerNetworkId[idx+1:]
}

// classify maps Prime SDK failures onto the provider error taxonomy. The SDK
// only exposes messages, so matching is textual.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient"):
		return fmt.Errorf("%w: %w", provider.ErrInsufficientProviderBalance, err)
	case strings.Contains(msg, "address"):
		return fmt.Errorf("%w: %w", provider.ErrDestinationInvalid, err)
	case strings.Contains(msg, "not found"), strings.Contains(msg, "unsupported"):
		return fmt.Errorf("%w: %w", provider.ErrUnsupportedAsset, err)
	}
	return provider.Unavailable(Name, err)
}

func (a *Adapter) resolveWallet(ctx context.Context, reference, symbol string) (string, error) {
	name := walletName(reference, symbol)

	a.mu.Lock()
	id, ok := a.walletIds[name]
	a.mu.Unlock()
	if ok {
		return id, nil
	}

	list, err := a.api.ListWallets(ctx, a.portfolioId, a.walletType, []string{strings.ToUpper(symbol)})
	if err != nil {
		return "", provider.Unavailable(Name, err)
	}

	for _, w := range list {
		if w.Name == name {
			a.mu.Lock()
			a.walletIds[name] = w.Id
			a.mu.Unlock()
			return w.Id, nil
		}
	}

	return "", fmt.Errorf("%w: no prime wallet named %s", provider.ErrUnsupportedAsset, name)
}

func (a *Adapter) GetBalance(ctx context.Context, q provider.BalanceQuery) (decimal.Decimal, error) {
	walletId, err := a.resolveWallet(ctx, q.Wallet.ProviderWalletId, q.AssetCode)
	if err != nil {
		return decimal.Zero, err
	}

	raw, err := a.api.WalletBalance(ctx, a.portfolioId, walletId)
	if err != nil {
		return decimal.Zero, classify(err)
	}
	if raw == "" {
		return decimal.Zero, nil
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance %q for %s: %w", raw, q.AssetCode, err)
	}
	return balance, nil
}

func (a *Adapter) InitiateWithdrawal(ctx context.Context, req provider.WithdrawalRequest) (provider.TxRef, error) {
	walletId, err := a.resolveWallet(ctx, req.Wallet.ProviderWalletId, req.AssetCode)
	if err != nil {
		return "", err
	}

	networkId, networkType := splitNetwork(req.ProviderNetworkId)

	zap.L().Info("Creating withdrawal via Prime API",
		zap.String("portfolio_id", a.portfolioId),
		zap.String("wallet_id", walletId),
		zap.String("asset", req.AssetCode),
		zap.String("network", req.Network),
		zap.String("amount", req.Amount.String()))

	activityId, err := a.api.CreateWithdrawal(ctx, withdrawalParams{
		PortfolioId:        a.portfolioId,
		WalletId:           walletId,
		Symbol:             strings.ToUpper(req.AssetCode),
		Amount:             req.Amount.String(),
		DestinationAddress: req.Destination,
		NetworkId:          networkId,
		NetworkType:        networkType,
		IdempotencyKey:     req.IdempotencyKey,
	})
	if err != nil {
		zap.L().Error("Failed to create withdrawal",
			zap.String("wallet_id", walletId),
			zap.String("amount", req.Amount.String()),
			zap.Error(err))
		return "", classify(err)
	}

	zap.L().Info("Withdrawal created successfully",
		zap.String("activity_id", activityId),
		zap.String("wallet_id", walletId))

	return provider.TxRef(activityId), nil
}

// AddressPerToken is true: every symbol lives in its own Prime wallet, so
// USDT and USDC on the same network have different addresses.
func (a *Adapter) AddressPerToken() bool { return true }

// LookupAddress generates a deposit address on the symbol's Prime wallet.
func (a *Adapter) LookupAddress(ctx context.Context, q provider.AddressQuery) (string, error) {
	walletId, err := a.resolveWallet(ctx, q.Wallet.ProviderWalletId, q.AssetCode)
	if err != nil {
		return "", err
	}

	address, err := a.api.CreateWalletAddress(ctx, a.portfolioId, walletId, q.ProviderNetworkId)
	if err != nil {
		return "", classify(err)
	}
	return address, nil
}

// CreateWallet creates one Prime wallet per distinct symbol. Prime returns an
// activity id rather than a wallet, so every address starts as a placeholder.
func (a *Adapter) CreateWallet(ctx context.Context, req provider.CreateWalletRequest) ([]provider.ProviderWallet, error) {
	wallet := provider.ProviderWallet{
		ProviderWalletId: req.Reference,
		Addresses:        make(map[string]provider.Address, len(req.Networks)),
	}

	created := make(map[string]bool)
	for _, n := range req.Networks {
		if wallet.DefaultNetwork == "" {
			wallet.DefaultNetwork = n.Network
		}
		wallet.Addresses[n.Network] = provider.Address{}

		for _, tok := range n.Tokens {
			symbol := strings.ToUpper(tok.AssetCode)
			if created[symbol] {
				continue
			}

			activityId, err := a.api.CreateWallet(ctx, a.portfolioId, walletName(req.Reference, symbol), symbol, a.walletType)
			if err != nil {
				return nil, classify(err)
			}
			created[symbol] = true

			zap.L().Info("Prime wallet creation submitted",
				zap.String("name", walletName(req.Reference, symbol)),
				zap.String("activity_id", activityId))
		}
	}

	return []provider.ProviderWallet{wallet}, nil
}

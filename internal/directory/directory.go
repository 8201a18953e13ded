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

// Package directory owns the user -> profile -> wallet -> network address
// mapping and provisions wallets at providers.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"custody-wallet-go/internal/capability"
	"custody-wallet-go/internal/models"
	"custody-wallet-go/internal/provider"
	"custody-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNoWalletForNetwork = errors.New("no wallet for network")
	ErrNoCapability       = errors.New("wallet type not offered by provider")
	ErrAddressPending     = errors.New("address not yet derived")
	ErrAssetRequired      = errors.New("asset required for per-token address")
)

type Directory struct {
	store    store.WalletStore
	matrix   *capability.Matrix
	adapters *provider.Registry
}

func New(st store.WalletStore, matrix *capability.Matrix, adapters *provider.Registry) *Directory {
	return &Directory{store: st, matrix: matrix, adapters: adapters}
}

func (d *Directory) EnsureProfile(ctx context.Context, userId, providerName string) (*models.WalletProfile, error) {
	return d.store.EnsureProfile(ctx, userId, providerName)
}

func (d *Directory) Wallets(ctx context.Context, userId string) ([]models.Wallet, error) {
	return d.store.GetWallets(ctx, userId)
}

func (d *Directory) FindByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	return d.store.FindWalletByAddress(ctx, address)
}

// ProvisionWallet creates the user's wallets of a type at a provider, covering
// every network the matrix lists for that pair. Existing wallets are returned as is.
func (d *Directory) ProvisionWallet(ctx context.Context, userId, providerName, walletType string) ([]models.Wallet, error) {
	entries := d.matrix.ProviderEntries(walletType, providerName)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoCapability, walletType, providerName)
	}

	if _, err := d.store.GetUserById(ctx, userId); err != nil {
		return nil, err
	}

	existing, err := d.walletsOf(ctx, userId, providerName, walletType)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		zap.L().Debug("Wallet already provisioned",
			zap.String("user_id", userId),
			zap.String("provider", providerName),
			zap.String("wallet_type", walletType))
		return existing, nil
	}

	adapter, err := d.adapters.Get(providerName)
	if err != nil {
		return nil, err
	}

	profile, err := d.store.EnsureProfile(ctx, userId, providerName)
	if err != nil {
		return nil, err
	}

	req := provider.CreateWalletRequest{
		UserId:     userId,
		Reference:  fmt.Sprintf("%s-%s", userId, walletType),
		WalletType: walletType,
	}
	byNetwork := make(map[string]capability.Entry, len(entries))
	for _, e := range entries {
		byNetwork[e.Network] = e
		spec := provider.NetworkSpec{Network: e.Network, ProviderNetworkId: e.ProviderNetwork()}
		for _, t := range e.Tokens {
			spec.Tokens = append(spec.Tokens, provider.TokenSpec{AssetCode: t.Symbol, ProviderTokenId: t.ProviderTokenId})
		}
		req.Networks = append(req.Networks, spec)
	}

	created, err := adapter.CreateWallet(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("unable to create %s wallet at %s: %w", walletType, providerName, err)
	}

	var out []models.Wallet
	for _, pw := range created {
		wallet := models.Wallet{
			ProfileId:        profile.Id,
			UserId:           userId,
			Provider:         providerName,
			WalletType:       walletType,
			ProviderWalletId: pw.ProviderWalletId,
			DefaultNetwork:   pw.DefaultNetwork,
			Networks:         make(map[string]models.NetworkMetadata),
		}

		for network, addr := range pw.Addresses {
			entry, ok := byNetwork[network]
			if !ok {
				zap.L().Warn("Provider returned an address for an unlisted network",
					zap.String("provider", providerName),
					zap.String("network", network))
				continue
			}
			wallet.Networks[network] = models.NetworkMetadata{
				Network:         network,
				Address:         addr.Address,
				ProviderTokenId: singleTokenId(entry),
				Memo:            addr.Memo,
			}
			for _, t := range entry.Tokens {
				wallet.Tokens = append(wallet.Tokens, models.Token{AssetCode: t.Symbol, Network: network, Balance: decimal.Zero})
			}
		}

		if len(wallet.Networks) == 0 {
			continue
		}
		if _, ok := wallet.Networks[wallet.DefaultNetwork]; !ok {
			wallet.DefaultNetwork = sortedNetworks(wallet.Networks)[0]
		}

		if err := d.store.SaveWallet(ctx, &wallet); err != nil {
			return nil, err
		}
		out = append(out, wallet)
	}

	zap.L().Info("Wallet provisioned",
		zap.String("user_id", userId),
		zap.String("provider", providerName),
		zap.String("wallet_type", walletType),
		zap.Int("wallets", len(out)))

	return out, nil
}

func singleTokenId(e capability.Entry) string {
	if len(e.Tokens) == 1 {
		return e.Tokens[0].ProviderTokenId
	}
	return ""
}

func (d *Directory) walletsOf(ctx context.Context, userId, providerName, walletType string) ([]models.Wallet, error) {
	wallets, err := d.store.GetWallets(ctx, userId)
	if err != nil {
		return nil, err
	}

	var out []models.Wallet
	for _, w := range wallets {
		if w.Provider == providerName && w.WalletType == walletType {
			out = append(out, w)
		}
	}
	return out, nil
}

// WalletFor resolves the user's wallet that holds network and whose capability
// entry lists the asset. Wallets are tried in Wallets order.
func (d *Directory) WalletFor(ctx context.Context, userId, assetCode, network string) (*models.Wallet, capability.Entry, error) {
	wallets, err := d.store.GetWallets(ctx, userId)
	if err != nil {
		return nil, capability.Entry{}, err
	}

	for i := range wallets {
		w := &wallets[i]
		if !w.HasNetwork(network) {
			continue
		}
		entry, ok := d.matrix.Lookup(w.WalletType, w.Provider, network)
		if !ok {
			continue
		}
		if _, ok := entry.Token(assetCode); ok {
			return w, entry, nil
		}
	}

	return nil, capability.Entry{}, fmt.Errorf("%w: %s on %s", ErrNoWalletForNetwork, assetCode, network)
}

// ResolveAddress returns the deposit address for an asset on a network,
// asking the provider when only a placeholder is cached. Providers that derive
// an address per token get it cached on the token, so assets sharing a
// network never share an address.
func (d *Directory) ResolveAddress(ctx context.Context, userId, assetCode, network string) (string, error) {
	assetCode = capability.NormalizeAsset(assetCode)
	network = capability.NormalizeNetwork(network)

	wallet, entry, err := d.WalletFor(ctx, userId, assetCode, network)
	if err != nil {
		return "", err
	}

	address, memo := wallet.DepositAddress(assetCode, network)
	if !models.IsPlaceholderAddress(address) {
		return address, nil
	}

	adapter, err := d.adapters.Get(wallet.Provider)
	if err != nil {
		return "", err
	}

	token, _ := entry.Token(assetCode)
	address, err = adapter.LookupAddress(ctx, provider.AddressQuery{
		Wallet:            provider.WalletRef{WalletId: wallet.Id, ProviderWalletId: wallet.ProviderWalletId},
		AssetCode:         assetCode,
		Network:           network,
		ProviderNetworkId: entry.ProviderNetwork(),
		ProviderTokenId:   token.ProviderTokenId,
	})
	if err != nil {
		return "", fmt.Errorf("unable to look up address: %w", err)
	}
	if models.IsPlaceholderAddress(address) {
		return "", fmt.Errorf("%w: %s on %s", ErrAddressPending, assetCode, network)
	}

	if provider.AddressPerToken(adapter) {
		_, err = d.store.SetTokenAddress(ctx, wallet.Id, assetCode, network, address, memo, true)
	} else {
		_, err = d.store.SetNetworkAddress(ctx, wallet.Id, network, address, memo, true)
	}
	if err != nil {
		zap.L().Warn("Failed to cache looked up address",
			zap.String("wallet_id", wallet.Id),
			zap.String("asset", assetCode),
			zap.String("network", network),
			zap.Error(err))
	}

	return address, nil
}

// BackfillAddress fills a placeholder address reported by the provider. It
// reports false when the address was already set. Per-token providers must
// name the asset.
func (d *Directory) BackfillAddress(ctx context.Context, providerName, providerWalletId, network, assetCode, address, memo string) (bool, error) {
	network = capability.NormalizeNetwork(network)

	wallet, err := d.store.FindWalletByProviderId(ctx, providerName, providerWalletId)
	if err != nil {
		return false, err
	}
	if !wallet.HasNetwork(network) {
		return false, fmt.Errorf("%w: network %s on wallet %s", store.ErrNotFound, network, wallet.Id)
	}

	adapter, err := d.adapters.Get(providerName)
	if err != nil {
		return false, err
	}
	if !provider.AddressPerToken(adapter) {
		return d.store.SetNetworkAddress(ctx, wallet.Id, network, address, memo, true)
	}

	if assetCode == "" {
		return false, fmt.Errorf("%w: %s on %s", ErrAssetRequired, providerName, network)
	}
	assetCode = capability.NormalizeAsset(assetCode)
	if _, ok := wallet.Token(assetCode, network); !ok {
		return false, fmt.Errorf("%w: %s on %s in wallet %s", store.ErrNotFound, assetCode, network, wallet.Id)
	}
	return d.store.SetTokenAddress(ctx, wallet.Id, assetCode, network, address, memo, true)
}

func sortedNetworks(networks map[string]models.NetworkMetadata) []string {
	keys := make([]string, 0, len(networks))
	for k := range networks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"custody-wallet-go/internal/models"
	"custody-wallet-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EnsureProfile returns the user's profile at a provider, creating it on first use.
func (s *Service) EnsureProfile(ctx context.Context, userId, provider string) (*models.WalletProfile, error) {
	if _, err := s.exec(ctx, queryInsertProfile, uuid.New().String(), userId, provider, nowUTC()); err != nil {
		zap.L().Error("Failed to insert wallet profile",
			zap.String("user_id", userId),
			zap.String("provider", provider),
			zap.Error(err))
		return nil, fmt.Errorf("unable to insert wallet profile: %w", err)
	}

	var profile models.WalletProfile
	err := s.queryRow(ctx, queryGetProfile, userId, provider).Scan(
		&profile.Id, &profile.UserId, &profile.Provider, &profile.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("unable to read wallet profile: %w", err)
	}

	return &profile, nil
}

func (s *Service) GetProfiles(ctx context.Context, userId string) ([]models.WalletProfile, error) {
	rows, err := s.query(ctx, queryGetProfiles, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query wallet profiles: %w", err)
	}
	defer closeRows(rows)

	var profiles []models.WalletProfile
	for rows.Next() {
		var p models.WalletProfile
		if err := rows.Scan(&p.Id, &p.UserId, &p.Provider, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan wallet profile row: %w", err)
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet profile rows: %w", err)
	}
	return profiles, nil
}

// SaveWallet inserts a wallet with its network metadata and tokens atomically.
// Empty ids are generated.
func (s *Service) SaveWallet(ctx context.Context, wallet *models.Wallet) error {
	if wallet.Id == "" {
		wallet.Id = uuid.New().String()
	}
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = nowUTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(queryInsertWallet),
		wallet.Id, wallet.ProfileId, wallet.UserId, wallet.Provider, wallet.WalletType,
		wallet.ProviderWalletId, wallet.DefaultNetwork, wallet.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("wallet %s/%s already exists: %w", wallet.Provider, wallet.ProviderWalletId, err)
		}
		return fmt.Errorf("failed to insert wallet: %w", err)
	}

	for _, network := range sortedNetworks(wallet.Networks) {
		meta := wallet.Networks[network]
		_, err := tx.ExecContext(ctx, s.rebind(queryInsertWalletNetwork),
			wallet.Id, network, meta.Address, meta.ProviderTokenId, meta.Memo)
		if err != nil {
			return fmt.Errorf("failed to insert network %s: %w", network, err)
		}
	}

	for i := range wallet.Tokens {
		token := &wallet.Tokens[i]
		if token.Id == "" {
			token.Id = uuid.New().String()
		}
		token.WalletId = wallet.Id
		if token.UpdatedAt.IsZero() {
			token.UpdatedAt = wallet.CreatedAt
		}
		_, err := tx.ExecContext(ctx, s.rebind(queryInsertToken),
			token.Id, wallet.Id, token.AssetCode, token.Network, token.Balance.String(), token.Address, token.Memo, token.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert token %s on %s: %w", token.AssetCode, token.Network, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Wallet stored successfully",
		zap.String("wallet_id", wallet.Id),
		zap.String("provider", wallet.Provider),
		zap.String("wallet_type", wallet.WalletType),
		zap.Int("networks", len(wallet.Networks)))
	return nil
}

// GetWallets returns the user's wallets ordered by provider then creation time.
func (s *Service) GetWallets(ctx context.Context, userId string) ([]models.Wallet, error) {
	zap.L().Debug("Querying wallets", zap.String("user_id", userId))

	rows, err := s.query(ctx, queryGetUserWallets, userId)
	if err != nil {
		return nil, fmt.Errorf("unable to query wallets: %w", err)
	}

	var wallets []models.Wallet
	for rows.Next() {
		var w models.Wallet
		if err := scanWallet(rows, &w); err != nil {
			closeRows(rows)
			return nil, fmt.Errorf("unable to scan wallet row: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		closeRows(rows)
		return nil, fmt.Errorf("error iterating wallet rows: %w", err)
	}
	closeRows(rows)

	for i := range wallets {
		if err := s.loadWalletDetails(ctx, &wallets[i]); err != nil {
			return nil, err
		}
	}

	return wallets, nil
}

func (s *Service) GetWallet(ctx context.Context, walletId string) (*models.Wallet, error) {
	return s.getWallet(ctx, queryGetWallet, walletId)
}

func (s *Service) FindWalletByProviderId(ctx context.Context, provider, providerWalletId string) (*models.Wallet, error) {
	return s.getWallet(ctx, queryGetWalletByProviderId, provider, providerWalletId)
}

// FindWalletByAddress resolves a deposit address, network-wide or per token,
// to its wallet. Only hex addresses match regardless of case. Placeholder
// addresses never match.
func (s *Service) FindWalletByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	if models.IsPlaceholderAddress(address) {
		return nil, fmt.Errorf("%w: empty address", store.ErrNotFound)
	}

	rows, err := s.query(ctx, queryFindWalletIdsByAddress, address, address)
	if err != nil {
		return nil, fmt.Errorf("unable to query wallet by address: %w", err)
	}

	var walletId string
	for rows.Next() {
		var id, stored string
		if err := rows.Scan(&id, &stored); err != nil {
			closeRows(rows)
			return nil, fmt.Errorf("unable to scan address row: %w", err)
		}
		if models.SameAddress(stored, address) {
			walletId = id
			break
		}
	}
	if err := rows.Err(); err != nil {
		closeRows(rows)
		return nil, fmt.Errorf("error iterating address rows: %w", err)
	}
	closeRows(rows)

	if walletId == "" {
		zap.L().Debug("No wallet found for address", zap.String("address", address))
		return nil, fmt.Errorf("%w: no wallet for address %s", store.ErrNotFound, address)
	}

	return s.GetWallet(ctx, walletId)
}

// SetNetworkAddress writes a network address. With onlyPlaceholder set the
// update applies only while the stored address is still a placeholder.
func (s *Service) SetNetworkAddress(ctx context.Context, walletId, network, address, memo string, onlyPlaceholder bool) (bool, error) {
	q := querySetNetworkAddress
	if onlyPlaceholder {
		q = querySetPlaceholderAddress
	}

	result, err := s.exec(ctx, q, address, memo, walletId, network)
	if err != nil {
		return false, fmt.Errorf("unable to update network address: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unable to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// SetTokenAddress writes the address of a single token, for providers that
// derive one per token. onlyPlaceholder behaves as in SetNetworkAddress.
func (s *Service) SetTokenAddress(ctx context.Context, walletId, assetCode, network, address, memo string, onlyPlaceholder bool) (bool, error) {
	q := querySetTokenAddress
	if onlyPlaceholder {
		q = querySetPlaceholderTokenAddress
	}

	result, err := s.exec(ctx, q, address, memo, walletId, assetCode, network)
	if err != nil {
		return false, fmt.Errorf("unable to update token address: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unable to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// UpdateTokenBalance overwrites the cached balance, creating the token if needed.
func (s *Service) UpdateTokenBalance(ctx context.Context, walletId, assetCode, network string, balance decimal.Decimal) error {
	_, err := s.exec(ctx, queryUpsertTokenBalance,
		uuid.New().String(), walletId, assetCode, network, balance.String(), nowUTC())
	if err != nil {
		zap.L().Error("Failed to update token balance",
			zap.String("wallet_id", walletId),
			zap.String("asset", assetCode),
			zap.String("network", network),
			zap.Error(err))
		return fmt.Errorf("unable to update token balance: %w", err)
	}

	zap.L().Debug("Token balance updated",
		zap.String("wallet_id", walletId),
		zap.String("asset", assetCode),
		zap.String("network", network),
		zap.String("balance", balance.String()))
	return nil
}

func (s *Service) getWallet(ctx context.Context, query string, args ...interface{}) (*models.Wallet, error) {
	var w models.Wallet
	err := scanWallet(s.queryRow(ctx, query, args...), &w)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: wallet", store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query wallet: %w", err)
	}

	if err := s.loadWalletDetails(ctx, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWallet(row rowScanner, w *models.Wallet) error {
	return row.Scan(&w.Id, &w.ProfileId, &w.UserId, &w.Provider, &w.WalletType,
		&w.ProviderWalletId, &w.DefaultNetwork, &w.CreatedAt)
}

func (s *Service) loadWalletDetails(ctx context.Context, w *models.Wallet) error {
	rows, err := s.query(ctx, queryGetWalletNetworks, w.Id)
	if err != nil {
		return fmt.Errorf("unable to query wallet networks: %w", err)
	}

	w.Networks = make(map[string]models.NetworkMetadata)
	for rows.Next() {
		var meta models.NetworkMetadata
		if err := rows.Scan(&meta.Network, &meta.Address, &meta.ProviderTokenId, &meta.Memo); err != nil {
			closeRows(rows)
			return fmt.Errorf("unable to scan wallet network row: %w", err)
		}
		w.Networks[meta.Network] = meta
	}
	if err := rows.Err(); err != nil {
		closeRows(rows)
		return fmt.Errorf("error iterating wallet network rows: %w", err)
	}
	closeRows(rows)

	rows, err = s.query(ctx, queryGetWalletTokens, w.Id)
	if err != nil {
		return fmt.Errorf("unable to query wallet tokens: %w", err)
	}
	defer closeRows(rows)

	w.Tokens = nil
	for rows.Next() {
		var t models.Token
		var balanceStr string
		if err := rows.Scan(&t.Id, &t.WalletId, &t.AssetCode, &t.Network, &balanceStr, &t.Address, &t.Memo, &t.UpdatedAt); err != nil {
			return fmt.Errorf("unable to scan token row: %w", err)
		}
		t.Balance, err = decimal.NewFromString(balanceStr)
		if err != nil {
			return fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
		}
		w.Tokens = append(w.Tokens, t)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating token rows: %w", err)
	}
	return nil
}

func sortedNetworks(networks map[string]models.NetworkMetadata) []string {
	keys := make([]string, 0, len(networks))
	for k := range networks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

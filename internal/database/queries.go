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

// schema is shared by both drivers; {ts} is the driver's timestamp type.
const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at {ts} NOT NULL,
		updated_at {ts} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	CREATE TABLE IF NOT EXISTS wallet_profiles (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		provider TEXT NOT NULL,
		created_at {ts} NOT NULL,
		UNIQUE(user_id, provider)
	);

	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL REFERENCES wallet_profiles(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		wallet_type TEXT NOT NULL,
		provider_wallet_id TEXT NOT NULL,
		default_network TEXT NOT NULL,
		created_at {ts} NOT NULL,
		UNIQUE(provider, provider_wallet_id)
	);

	CREATE INDEX IF NOT EXISTS idx_wallets_user_id ON wallets(user_id);

	CREATE TABLE IF NOT EXISTS wallet_networks (
		wallet_id TEXT NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
		network TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		provider_token_id TEXT NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (wallet_id, network)
	);

	CREATE INDEX IF NOT EXISTS idx_wallet_networks_address ON wallet_networks(LOWER(address));

	CREATE TABLE IF NOT EXISTS tokens (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
		asset_code TEXT NOT NULL,
		network TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		address TEXT NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT '',
		updated_at {ts} NOT NULL,
		UNIQUE(wallet_id, asset_code, network)
	);

	CREATE INDEX IF NOT EXISTS idx_tokens_address ON tokens(LOWER(address));

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		provider_transaction_id TEXT NOT NULL UNIQUE,
		provider TEXT NOT NULL,
		direction TEXT NOT NULL,
		asset_code TEXT NOT NULL,
		network TEXT NOT NULL,
		amount TEXT NOT NULL,
		fee TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		source_address TEXT NOT NULL DEFAULT '',
		destination_address TEXT NOT NULL DEFAULT '',
		wallet_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at {ts} NOT NULL,
		updated_at {ts} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user_asset ON transactions(user_id, asset_code, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status, created_at);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		consumed BOOLEAN NOT NULL DEFAULT FALSE,
		expires_at {ts} NOT NULL,
		created_at {ts} NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_expires_at ON notifications(expires_at);
`

const (
	// User queries
	queryGetActiveUsers = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE active = TRUE
		ORDER BY created_at`

	queryInsertUser = `
		INSERT INTO users (id, name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`

	queryGetUserById = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = ? AND active = TRUE`

	queryGetUserByEmail = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE email = ? AND active = TRUE`

	// Profile queries
	queryInsertProfile = `
		INSERT INTO wallet_profiles (id, user_id, provider, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO NOTHING`

	queryGetProfile = `
		SELECT id, user_id, provider, created_at
		FROM wallet_profiles
		WHERE user_id = ? AND provider = ?`

	queryGetProfiles = `
		SELECT id, user_id, provider, created_at
		FROM wallet_profiles
		WHERE user_id = ?
		ORDER BY provider`

	// Wallet queries
	queryInsertWallet = `
		INSERT INTO wallets (id, profile_id, user_id, provider, wallet_type, provider_wallet_id, default_network, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryInsertWalletNetwork = `
		INSERT INTO wallet_networks (wallet_id, network, address, provider_token_id, memo)
		VALUES (?, ?, ?, ?, ?)`

	queryInsertToken = `
		INSERT INTO tokens (id, wallet_id, asset_code, network, balance, address, memo, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (wallet_id, asset_code, network) DO NOTHING`

	walletColumns = `id, profile_id, user_id, provider, wallet_type, provider_wallet_id, default_network, created_at`

	queryGetUserWallets = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE user_id = ?
		ORDER BY provider, created_at`

	queryGetWallet = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE id = ?`

	queryGetWalletByProviderId = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE provider = ? AND provider_wallet_id = ?`

	// Candidates only; exact comparison rules are applied by the caller.
	queryFindWalletIdsByAddress = `
		SELECT wallet_id, address
		FROM wallet_networks
		WHERE LOWER(address) = LOWER(?) AND address != ''
		UNION ALL
		SELECT wallet_id, address
		FROM tokens
		WHERE LOWER(address) = LOWER(?) AND address != ''`

	queryGetWalletNetworks = `
		SELECT network, address, provider_token_id, memo
		FROM wallet_networks
		WHERE wallet_id = ?
		ORDER BY network`

	queryGetWalletTokens = `
		SELECT id, wallet_id, asset_code, network, balance, address, memo, updated_at
		FROM tokens
		WHERE wallet_id = ?
		ORDER BY asset_code, network`

	querySetNetworkAddress = `
		UPDATE wallet_networks
		SET address = ?, memo = ?
		WHERE wallet_id = ? AND network = ?`

	querySetPlaceholderAddress = querySetNetworkAddress + ` AND address = ''`

	querySetTokenAddress = `
		UPDATE tokens
		SET address = ?, memo = ?
		WHERE wallet_id = ? AND asset_code = ? AND network = ?`

	querySetPlaceholderTokenAddress = querySetTokenAddress + ` AND address = ''`

	// Token queries
	queryUpsertTokenBalance = `
		INSERT INTO tokens (id, wallet_id, asset_code, network, balance, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (wallet_id, asset_code, network)
		DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`

	// Transaction queries
	transactionColumns = `id, provider_transaction_id, provider, direction, asset_code, network, amount, fee, status,
		source_address, destination_address, wallet_id, user_id, created_at, updated_at`

	queryInsertTransaction = `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransactionByProviderId = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE provider_transaction_id = ?`

	queryGetTransactionStatus = `
		SELECT status FROM transactions WHERE id = ?`

	queryUpdateTransactionStatus = `
		UPDATE transactions
		SET status = ?, fee = ?, updated_at = ?
		WHERE id = ? AND status NOT IN ('Done', 'Failed')`

	queryGetRecentTransactions = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = ? AND asset_code = ?
		ORDER BY created_at DESC
		LIMIT ?`

	queryGetProcessingTransactions = `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = 'Processing' AND created_at < ?
		ORDER BY created_at
		LIMIT ?`

	// Notification queries
	queryInsertNotification = `
		INSERT INTO notifications (id, user_id, title, message, metadata, consumed, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	notificationColumns = `id, user_id, title, message, metadata, consumed, expires_at, created_at`

	queryListNotifications = `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = ? AND expires_at > ?
		ORDER BY created_at DESC`

	queryListUnconsumedNotifications = `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = ? AND expires_at > ? AND consumed = FALSE
		ORDER BY created_at DESC`

	queryMarkNotificationConsumed = `
		UPDATE notifications SET consumed = TRUE WHERE id = ?`

	queryDeleteExpiredNotifications = `
		DELETE FROM notifications WHERE expires_at <= ?`
)

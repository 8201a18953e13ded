package store

import (
	"context"
	"errors"
	"time"

	"custody-wallet-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound             = errors.New("not found")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrTerminalStatus       = errors.New("transaction already in a terminal status")
	ErrUserNotFound         = errors.New("user not found")
)

// StatusUpdate describes a status transition for a transaction record.
type StatusUpdate struct {
	Id     string
	Status models.TransactionStatus
	Fee    decimal.Decimal
}

// WalletStore defines the contract every persistence backend must satisfy.
type WalletStore interface {
	// --- Users ---
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, userId, name, email string) (*models.User, error)

	// --- Profiles & wallets ---
	EnsureProfile(ctx context.Context, userId, provider string) (*models.WalletProfile, error)
	GetProfiles(ctx context.Context, userId string) ([]models.WalletProfile, error)
	SaveWallet(ctx context.Context, wallet *models.Wallet) error
	GetWallets(ctx context.Context, userId string) ([]models.Wallet, error)
	GetWallet(ctx context.Context, walletId string) (*models.Wallet, error)
	FindWalletByAddress(ctx context.Context, address string) (*models.Wallet, error)
	FindWalletByProviderId(ctx context.Context, provider, providerWalletId string) (*models.Wallet, error)
	SetNetworkAddress(ctx context.Context, walletId, network, address, memo string, onlyPlaceholder bool) (bool, error)
	SetTokenAddress(ctx context.Context, walletId, assetCode, network, address, memo string, onlyPlaceholder bool) (bool, error)

	// --- Tokens ---
	UpdateTokenBalance(ctx context.Context, walletId, assetCode, network string, balance decimal.Decimal) error

	// --- Transactions ---
	CreateTransaction(ctx context.Context, record *models.TransactionRecord) error
	FindTransactionByProviderId(ctx context.Context, providerTransactionId string) (*models.TransactionRecord, error)
	UpdateTransactionStatus(ctx context.Context, update StatusUpdate) error
	RecentTransactions(ctx context.Context, userId, assetCode string, limit int) ([]models.TransactionRecord, error)
	ProcessingTransactions(ctx context.Context, olderThan time.Time, limit int) ([]models.TransactionRecord, error)

	// --- Notifications ---
	CreateNotification(ctx context.Context, n *models.NotificationRecord) error
	ListNotifications(ctx context.Context, userId string, includeConsumed bool) ([]models.NotificationRecord, error)
	MarkNotificationConsumed(ctx context.Context, id string) error
	DeleteExpiredNotifications(ctx context.Context, now time.Time) (int64, error)

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}

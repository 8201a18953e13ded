package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"custody-wallet-go/internal/models"
	"custody-wallet-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateTransaction inserts a record keyed by its provider transaction id.
// A second record for the same id fails with store.ErrDuplicateTransaction.
func (s *Service) CreateTransaction(ctx context.Context, record *models.TransactionRecord) error {
	if record.Id == "" {
		record.Id = uuid.New().String()
	}
	now := nowUTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	zap.L().Info("Recording transaction",
		zap.String("provider_transaction_id", record.ProviderTransactionId),
		zap.String("provider", record.Provider),
		zap.String("direction", string(record.Direction)),
		zap.String("asset", record.AssetCode),
		zap.String("network", record.Network),
		zap.String("amount", record.Amount.String()),
		zap.String("status", string(record.Status)))

	_, err := s.exec(ctx, queryInsertTransaction,
		record.Id, record.ProviderTransactionId, record.Provider, string(record.Direction),
		record.AssetCode, record.Network, record.Amount.String(), record.Fee.String(), string(record.Status),
		record.SourceAddress, record.DestinationAddress, record.WalletId, record.UserId,
		record.CreatedAt, record.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			zap.L().Warn("Duplicate provider transaction id detected, skipping",
				zap.String("provider_transaction_id", record.ProviderTransactionId))
			return fmt.Errorf("%w: provider_transaction_id %s already exists", store.ErrDuplicateTransaction, record.ProviderTransactionId)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

func (s *Service) FindTransactionByProviderId(ctx context.Context, providerTransactionId string) (*models.TransactionRecord, error) {
	record, err := scanTransaction(s.queryRow(ctx, queryGetTransactionByProviderId, providerTransactionId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", store.ErrNotFound, providerTransactionId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	return record, nil
}

// UpdateTransactionStatus moves a record to a new status. Records already in
// Done or Failed are left untouched and store.ErrTerminalStatus is returned.
func (s *Service) UpdateTransactionStatus(ctx context.Context, update store.StatusUpdate) error {
	result, err := s.exec(ctx, queryUpdateTransactionStatus,
		string(update.Status), update.Fee.String(), nowUTC(), update.Id)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		zap.L().Info("Transaction status updated",
			zap.String("id", update.Id),
			zap.String("status", string(update.Status)))
		return nil
	}

	var current string
	err = s.queryRow(ctx, queryGetTransactionStatus, update.Id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: transaction %s", store.ErrNotFound, update.Id)
	}
	if err != nil {
		return fmt.Errorf("failed to read transaction status: %w", err)
	}
	return fmt.Errorf("%w: %s is %s", store.ErrTerminalStatus, update.Id, current)
}

// RecentTransactions returns the newest records for a user and asset.
func (s *Service) RecentTransactions(ctx context.Context, userId, assetCode string, limit int) ([]models.TransactionRecord, error) {
	zap.L().Debug("Getting recent transactions",
		zap.String("user_id", userId),
		zap.String("asset", assetCode),
		zap.Int("limit", limit))

	return s.listTransactions(ctx, queryGetRecentTransactions, userId, assetCode, limit)
}

// ProcessingTransactions returns withdrawals still awaiting settlement that
// were created before olderThan, oldest first.
func (s *Service) ProcessingTransactions(ctx context.Context, olderThan time.Time, limit int) ([]models.TransactionRecord, error) {
	return s.listTransactions(ctx, queryGetProcessingTransactions, olderThan.UTC(), limit)
}

func (s *Service) listTransactions(ctx context.Context, query string, args ...interface{}) ([]models.TransactionRecord, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer closeRows(rows)

	var records []models.TransactionRecord
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		records = append(records, *record)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during transaction row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return records, nil
}

func scanTransaction(row rowScanner) (*models.TransactionRecord, error) {
	var r models.TransactionRecord
	var direction, status, amountStr, feeStr string

	err := row.Scan(&r.Id, &r.ProviderTransactionId, &r.Provider, &direction, &r.AssetCode, &r.Network,
		&amountStr, &feeStr, &status, &r.SourceAddress, &r.DestinationAddress,
		&r.WalletId, &r.UserId, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r.Direction = models.Direction(direction)
	r.Status = models.TransactionStatus(status)

	r.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	r.Fee, err = decimal.NewFromString(feeStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fee '%s': %w", feeStr, err)
	}

	return &r, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

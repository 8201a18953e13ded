package api

import (
	"context"

	"custody-wallet-go/internal/models"
	"custody-wallet-go/internal/withdrawal"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InitiateWithdrawal routes the withdrawal to the provider that owns the
// user's wallet on network. The returned record is Processing; settlement
// arrives later through a webhook or the settlement poller.
func (s *WalletService) InitiateWithdrawal(ctx context.Context, userId, asset, network string, amount decimal.Decimal, destination string) (*models.WithdrawalResult, error) {
	return s.InitiateWithdrawalWithMemo(ctx, userId, asset, network, amount, destination, "")
}

// InitiateWithdrawalWithMemo is InitiateWithdrawal for networks that need a
// destination tag or memo.
func (s *WalletService) InitiateWithdrawalWithMemo(ctx context.Context, userId, asset, network string, amount decimal.Decimal, destination, memo string) (*models.WithdrawalResult, error) {
	zap.L().Info("Processing withdrawal request",
		zap.String("user_id", userId),
		zap.String("asset", asset),
		zap.String("network", network),
		zap.String("amount", amount.String()),
		zap.String("destination", destination))

	record, err := s.router.Initiate(ctx, withdrawal.Request{
		UserId:      userId,
		AssetCode:   asset,
		Network:     network,
		Amount:      amount,
		Destination: destination,
		Memo:        memo,
	})
	if err != nil {
		zap.L().Warn("Withdrawal rejected",
			zap.String("user_id", userId),
			zap.String("asset", asset),
			zap.String("network", network),
			zap.Error(err))
		return nil, err
	}

	return &models.WithdrawalResult{
		TransactionId: record.ProviderTransactionId,
		Status:        record.Status,
		Provider:      record.Provider,
	}, nil
}

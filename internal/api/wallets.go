package api

import (
	"context"
	"fmt"

	"custody-wallet-go/internal/models"

	"go.uber.org/zap"
)

// ProvisionWallet creates the user's wallets of walletType at a provider.
func (s *WalletService) ProvisionWallet(ctx context.Context, userId, providerName, walletType string) ([]models.Wallet, error) {
	if userId == "" || providerName == "" || walletType == "" {
		return nil, fmt.Errorf("user_id, provider and wallet_type are required")
	}
	return s.directory.ProvisionWallet(ctx, userId, providerName, walletType)
}

// DepositAddress returns where the user should send asset on network.
func (s *WalletService) DepositAddress(ctx context.Context, userId, asset, network string) (string, error) {
	if userId == "" || asset == "" || network == "" {
		return "", fmt.Errorf("user_id, asset and network are required")
	}

	address, err := s.directory.ResolveAddress(ctx, userId, asset, network)
	if err != nil {
		zap.L().Warn("Deposit address unavailable",
			zap.String("user_id", userId),
			zap.String("asset", asset),
			zap.String("network", network),
			zap.Error(err))
		return "", err
	}
	return address, nil
}

func (s *WalletService) Notifications(ctx context.Context, userId string, includeConsumed bool) ([]models.NotificationRecord, error) {
	if userId == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	return s.store.ListNotifications(ctx, userId, includeConsumed)
}

func (s *WalletService) MarkNotificationConsumed(ctx context.Context, id string) error {
	return s.store.MarkNotificationConsumed(ctx, id)
}

package api

import (
	"context"
	"fmt"

	"custody-wallet-go/internal/models"

	"go.uber.org/zap"
)

// GetBalanceSummary aggregates the user's holdings across every provider.
// Provider failures degrade the summary instead of failing the call.
func (s *WalletService) GetBalanceSummary(ctx context.Context, userId string) (*models.BalanceSummary, error) {
	if userId == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	if _, err := s.store.GetUserById(ctx, userId); err != nil {
		return nil, err
	}

	summary, err := s.aggregator.Summary(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to aggregate balances", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve balances: %w", err)
	}

	if summary.Partial || len(summary.Failures) > 0 {
		zap.L().Warn("Balance summary is incomplete",
			zap.String("user_id", userId),
			zap.Bool("partial", summary.Partial),
			zap.Int("failures", len(summary.Failures)))
	}

	return summary, nil
}

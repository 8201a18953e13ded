package common

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ProvisionResult summarizes wallet provisioning for one user.
type ProvisionResult struct {
	Provisioned []string
	Failed      []string
}

// ProvisionAll provisions the user's walletType wallets at every provider
// the capability matrix lists for it and that has credentials configured.
func ProvisionAll(ctx context.Context, services *Services, userId, walletType string) ProvisionResult {
	var result ProvisionResult

	for _, name := range services.Matrix.Providers() {
		if len(services.Matrix.ProviderEntries(walletType, name)) == 0 {
			continue
		}
		if _, err := services.Adapters.Get(name); err != nil {
			zap.L().Debug("Skipping provider without credentials", zap.String("provider", name))
			continue
		}

		wallets, err := services.Api.ProvisionWallet(ctx, userId, name, walletType)
		if err != nil {
			zap.L().Error("Failed to provision wallet",
				zap.String("user_id", userId),
				zap.String("provider", name),
				zap.String("wallet_type", walletType),
				zap.Error(err))
			fmt.Printf("✗ %s: %s\n", name, err)
			result.Failed = append(result.Failed, name)
			continue
		}

		for _, w := range wallets {
			fmt.Printf("✓ %s: wallet %s (%d networks)\n", name, w.ProviderWalletId, len(w.Networks))
		}
		result.Provisioned = append(result.Provisioned, name)
	}

	return result
}

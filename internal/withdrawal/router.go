// Package withdrawal routes a withdrawal to the provider that owns the
// requested network and records it as Processing until it settles.
package withdrawal

import (
	"context"
	"errors"
	"fmt"

	"custody-wallet-go/internal/capability"
	"custody-wallet-go/internal/directory"
	"custody-wallet-go/internal/metrics"
	"custody-wallet-go/internal/models"
	"custody-wallet-go/internal/provider"
	"custody-wallet-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrDestinationRequired    = errors.New("destination address is required")
	ErrUnsupportedCombination = errors.New("asset not supported on network")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrNoWalletForNetwork     = directory.ErrNoWalletForNetwork
)

type Request struct {
	UserId      string
	AssetCode   string
	Network     string
	Amount      decimal.Decimal
	Destination string
	Memo        string
}

type Router struct {
	store     store.WalletStore
	directory *directory.Directory
	matrix    *capability.Matrix
	adapters  *provider.Registry
}

func NewRouter(st store.WalletStore, dir *directory.Directory, matrix *capability.Matrix, adapters *provider.Registry) *Router {
	return &Router{store: st, directory: dir, matrix: matrix, adapters: adapters}
}

// Initiate validates the request against the matrix and the cached balance,
// then hands it to the owning provider. Only a withdrawal the provider
// accepted is recorded.
func (r *Router) Initiate(ctx context.Context, req Request) (*models.TransactionRecord, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.Destination == "" {
		return nil, ErrDestinationRequired
	}

	assetCode := capability.NormalizeAsset(req.AssetCode)
	network := capability.NormalizeNetwork(req.Network)

	if !r.matrix.Supports(assetCode, network) {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedCombination, assetCode, network)
	}

	wallet, entry, err := r.directory.WalletFor(ctx, req.UserId, assetCode, network)
	if err != nil {
		return nil, err
	}

	// Advisory only: concurrent requests can both pass; the provider has the final say.
	cached := decimal.Zero
	if token, ok := wallet.Token(assetCode, network); ok {
		cached = token.Balance
	}
	if cached.LessThan(req.Amount) {
		zap.L().Info("Withdrawal rejected by pre-flight balance check",
			zap.String("user_id", req.UserId),
			zap.String("asset", assetCode),
			zap.String("network", network),
			zap.String("amount", req.Amount.String()),
			zap.String("cached_balance", cached.String()))
		metrics.Withdrawals.WithLabelValues(wallet.Provider, "rejected").Inc()
		return nil, fmt.Errorf("%w: requested %s, available %s", ErrInsufficientBalance, req.Amount, cached)
	}

	adapter, err := r.adapters.Get(wallet.Provider)
	if err != nil {
		return nil, err
	}

	token, _ := entry.Token(assetCode)
	idempotencyKey := uuid.New().String()

	zap.L().Info("Routing withdrawal",
		zap.String("user_id", req.UserId),
		zap.String("provider", wallet.Provider),
		zap.String("wallet_id", wallet.Id),
		zap.String("asset", assetCode),
		zap.String("network", network),
		zap.String("amount", req.Amount.String()),
		zap.String("destination", req.Destination),
		zap.String("idempotency_key", idempotencyKey))

	ref, err := adapter.InitiateWithdrawal(ctx, provider.WithdrawalRequest{
		Wallet:            provider.WalletRef{WalletId: wallet.Id, ProviderWalletId: wallet.ProviderWalletId},
		AssetCode:         assetCode,
		Network:           network,
		ProviderNetworkId: entry.ProviderNetwork(),
		ProviderTokenId:   token.ProviderTokenId,
		Amount:            req.Amount,
		Destination:       req.Destination,
		Memo:              req.Memo,
		IdempotencyKey:    idempotencyKey,
	})
	if err != nil {
		metrics.Withdrawals.WithLabelValues(wallet.Provider, "failed").Inc()
		zap.L().Error("Provider rejected withdrawal",
			zap.String("provider", wallet.Provider),
			zap.String("user_id", req.UserId),
			zap.String("asset", assetCode),
			zap.String("network", network),
			zap.Error(err))
		return nil, fmt.Errorf("withdrawal via %s: %w", wallet.Provider, err)
	}

	sourceAddress, _ := wallet.DepositAddress(assetCode, network)
	record := &models.TransactionRecord{
		ProviderTransactionId: string(ref),
		Provider:              wallet.Provider,
		Direction:             models.DirectionOutbound,
		AssetCode:             assetCode,
		Network:               network,
		Amount:                req.Amount,
		Fee:                   decimal.Zero,
		Status:                models.StatusProcessing,
		SourceAddress:         sourceAddress,
		DestinationAddress:    req.Destination,
		WalletId:              wallet.Id,
		UserId:                req.UserId,
	}
	if err := r.store.CreateTransaction(ctx, record); err != nil {
		zap.L().Error("Withdrawal accepted by provider but not recorded",
			zap.String("provider", wallet.Provider),
			zap.String("provider_transaction_id", string(ref)),
			zap.Error(err))
		return nil, fmt.Errorf("withdrawal %s accepted by %s but not recorded: %w", ref, wallet.Provider, err)
	}

	metrics.Withdrawals.WithLabelValues(wallet.Provider, "accepted").Inc()
	zap.L().Info("Withdrawal initiated",
		zap.String("transaction_id", record.Id),
		zap.String("provider_transaction_id", record.ProviderTransactionId),
		zap.String("provider", wallet.Provider))

	return record, nil
}

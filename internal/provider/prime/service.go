package prime

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coinbase-samples/prime-sdk-go/balances"
	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type primeWallet struct {
	Id     string
	Name   string
	Symbol string
	Type   string
}

type withdrawalParams struct {
	PortfolioId        string
	WalletId           string
	Symbol             string
	Amount             string
	DestinationAddress string
	NetworkId          string
	NetworkType        string
	IdempotencyKey     string
}

// primeAPI is the slice of the Prime SDK the adapter depends on.
type primeAPI interface {
	ListWallets(ctx context.Context, portfolioId, walletType string, symbols []string) ([]primeWallet, error)
	CreateWallet(ctx context.Context, portfolioId, name, symbol, walletType string) (string, error)
	CreateWalletAddress(ctx context.Context, portfolioId, walletId, networkId string) (string, error)
	WalletBalance(ctx context.Context, portfolioId, walletId string) (string, error)
	CreateWithdrawal(ctx context.Context, params withdrawalParams) (string, error)
}

type sdkService struct {
	walletsSvc      wallets.WalletsService
	balancesSvc     balances.BalancesService
	transactionsSvc transactions.TransactionsService
}

func newSDKService(creds *credentials.Credentials, httpClient *http.Client) *sdkService {
	restClient := client.NewRestClient(creds, *httpClient)

	return &sdkService{
		walletsSvc:      wallets.NewWalletsService(restClient),
		balancesSvc:     balances.NewBalancesService(restClient),
		transactionsSvc: transactions.NewTransactionsService(restClient),
	}
}

func (s *sdkService) ListWallets(ctx context.Context, portfolioId, walletType string, symbols []string) ([]primeWallet, error) {
	request := &wallets.ListWalletsRequest{
		PortfolioId: portfolioId,
		Type:        walletType,
		Symbols:     symbols,
	}

	response, err := s.walletsSvc.ListWallets(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("unable to list wallets: %w", err)
	}

	walletList := make([]primeWallet, len(response.Wallets))
	for i, w := range response.Wallets {
		walletList[i] = primeWallet{
			Id:     w.Id,
			Name:   w.Name,
			Symbol: w.Symbol,
			Type:   w.Type,
		}
	}

	return walletList, nil
}

func (s *sdkService) CreateWallet(ctx context.Context, portfolioId, name, symbol, walletType string) (string, error) {
	request := &wallets.CreateWalletRequest{
		PortfolioId:    portfolioId,
		Name:           name,
		Symbol:         symbol,
		Type:           walletType,
		IdempotencyKey: uuid.NewSHA1(uuid.NameSpaceOID, []byte(portfolioId+"/"+name)).String(),
	}

	response, err := s.walletsSvc.CreateWallet(ctx, request)
	if err != nil {
		return "", fmt.Errorf("unable to create wallet: %w", err)
	}

	return response.ActivityId, nil
}

func (s *sdkService) CreateWalletAddress(ctx context.Context, portfolioId, walletId, networkId string) (string, error) {
	request := &wallets.CreateWalletAddressRequest{
		PortfolioId: portfolioId,
		WalletId:    walletId,
		NetworkId:   networkId,
	}

	response, err := s.walletsSvc.CreateWalletAddress(ctx, request)
	if err != nil {
		return "", fmt.Errorf("unable to create wallet address: %w", err)
	}

	return response.Address, nil
}

func (s *sdkService) WalletBalance(ctx context.Context, portfolioId, walletId string) (string, error) {
	request := &balances.GetWalletBalanceRequest{
		PortfolioId: portfolioId,
		Id:          walletId,
	}

	response, err := s.balancesSvc.GetWalletBalance(ctx, request)
	if err != nil {
		return "", fmt.Errorf("unable to get wallet balance: %w", err)
	}
	if response.Balance == nil {
		return "", nil
	}

	return response.Balance.Amount, nil
}

func (s *sdkService) CreateWithdrawal(ctx context.Context, params withdrawalParams) (string, error) {
	blockchainAddr := &model.BlockchainAddress{
		Address: params.DestinationAddress,
	}

	if params.NetworkId != "" {
		blockchainAddr.Network = &model.NetworkDetails{
			Id:   params.NetworkId,
			Type: params.NetworkType,
		}
	}

	request := &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:       params.PortfolioId,
		SourceWalletId:    params.WalletId,
		Amount:            params.Amount,
		IdempotencyKey:    params.IdempotencyKey,
		Symbol:            params.Symbol,
		DestinationType:   "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: blockchainAddr,
	}

	zap.L().Debug("Withdrawal request details",
		zap.String("portfolio_id", request.PortfolioId),
		zap.String("wallet_id", request.SourceWalletId),
		zap.String("amount", request.Amount),
		zap.String("idempotency_key", request.IdempotencyKey),
		zap.Any("blockchain_address", request.BlockchainAddress))

	response, err := s.transactionsSvc.CreateWalletWithdrawal(ctx, request)
	if err != nil {
		return "", fmt.Errorf("unable to create withdrawal: %w", err)
	}

	return response.ActivityId, nil
}

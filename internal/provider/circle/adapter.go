// Package circle adapts Circle developer-controlled wallets. Circle wallets
// are single-network, so one custody wallet is created per blockchain.
package circle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"custody-wallet-go/internal/provider"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const Name = "circle"

type Config struct {
	ApiKey                 string
	BaseUrl                string
	WalletSetId            string
	EntitySecretCiphertext string
}

type Adapter struct {
	client      *client
	walletSetId string
	ciphertext  string
}

var (
	_ provider.Adapter       = (*Adapter)(nil)
	_ provider.StatusChecker = (*Adapter)(nil)
)

func New(cfg Config, httpClient *http.Client) (*Adapter, error) {
	if cfg.ApiKey == "" {
		return nil, fmt.Errorf("circle config requires an API key")
	}
	if cfg.BaseUrl == "" {
		cfg.BaseUrl = "https://api.circle.com"
	}

	return &Adapter{
		client: &client{
			apiKey:     cfg.ApiKey,
			baseURL:    strings.TrimRight(cfg.BaseUrl, "/"),
			httpClient: httpClient,
		},
		walletSetId: cfg.WalletSetId,
		ciphertext:  cfg.EntitySecretCiphertext,
	}, nil
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) GetBalance(ctx context.Context, q provider.BalanceQuery) (decimal.Decimal, error) {
	var result struct {
		Data struct {
			TokenBalances []tokenBalance `json:"tokenBalances"`
		} `json:"data"`
	}

	path := fmt.Sprintf("/v1/w3s/wallets/%s/balances?includeAll=true", url.PathEscape(q.Wallet.ProviderWalletId))
	if err := a.client.get(ctx, path, &result); err != nil {
		return decimal.Zero, err
	}

	for _, tb := range result.Data.TokenBalances {
		if !matchesToken(tb.Token, q) {
			continue
		}
		amount, err := decimal.NewFromString(tb.Amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid balance %q for %s: %w", tb.Amount, q.AssetCode, err)
		}
		return amount, nil
	}

	return decimal.Zero, fmt.Errorf("%w: %s on wallet %s", provider.ErrUnsupportedAsset, q.AssetCode, q.Wallet.ProviderWalletId)
}

func matchesToken(t token, q provider.BalanceQuery) bool {
	if q.ProviderTokenId != "" {
		return t.Id == q.ProviderTokenId
	}
	return strings.EqualFold(t.Symbol, q.AssetCode)
}

func (a *Adapter) InitiateWithdrawal(ctx context.Context, req provider.WithdrawalRequest) (provider.TxRef, error) {
	if req.ProviderTokenId == "" {
		return "", fmt.Errorf("%w: no circle token id for %s on %s", provider.ErrUnsupportedAsset, req.AssetCode, req.Network)
	}

	idempotencyKey := req.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	payload := map[string]interface{}{
		"idempotencyKey":         idempotencyKey,
		"walletId":               req.Wallet.ProviderWalletId,
		"destinationAddress":     req.Destination,
		"amounts":                []string{req.Amount.String()},
		"tokenId":                req.ProviderTokenId,
		"entitySecretCiphertext": a.ciphertext,
		"feeLevel":               "MEDIUM",
	}

	var result struct {
		Data transfer `json:"data"`
	}

	if err := a.client.post(ctx, "/v1/w3s/developer/transactions/transfer", payload, &result); err != nil {
		return "", classifyTransferError(err)
	}

	zap.L().Info("Circle transfer created",
		zap.String("transfer_id", result.Data.Id),
		zap.String("state", result.Data.State),
		zap.String("wallet_id", req.Wallet.ProviderWalletId))

	return provider.TxRef(result.Data.Id), nil
}

func classifyTransferError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case strings.Contains(msg, "insufficient"):
		return fmt.Errorf("%w: %w", provider.ErrInsufficientProviderBalance, err)
	case strings.Contains(msg, "address"):
		return fmt.Errorf("%w: %w", provider.ErrDestinationInvalid, err)
	}
	return err
}

func (a *Adapter) LookupAddress(ctx context.Context, q provider.AddressQuery) (string, error) {
	var result struct {
		Data struct {
			Wallet wallet `json:"wallet"`
		} `json:"data"`
	}

	path := fmt.Sprintf("/v1/w3s/wallets/%s", url.PathEscape(q.Wallet.ProviderWalletId))
	if err := a.client.get(ctx, path, &result); err != nil {
		return "", err
	}

	return result.Data.Wallet.Address, nil
}

func (a *Adapter) CreateWallet(ctx context.Context, req provider.CreateWalletRequest) ([]provider.ProviderWallet, error) {
	if a.walletSetId == "" {
		return nil, fmt.Errorf("circle wallet set id is not configured")
	}

	blockchains := make([]string, 0, len(req.Networks))
	networkFor := make(map[string]string, len(req.Networks))
	for _, n := range req.Networks {
		blockchains = append(blockchains, n.ProviderNetworkId)
		networkFor[n.ProviderNetworkId] = n.Network
	}

	payload := map[string]interface{}{
		"idempotencyKey":         uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.Reference)).String(),
		"walletSetId":            a.walletSetId,
		"blockchains":            blockchains,
		"count":                  1,
		"entitySecretCiphertext": a.ciphertext,
		"metadata": []map[string]string{
			{"name": req.WalletType, "refId": req.Reference},
		},
	}

	var result struct {
		Data struct {
			Wallets []wallet `json:"wallets"`
		} `json:"data"`
	}

	if err := a.client.post(ctx, "/v1/w3s/developer/wallets", payload, &result); err != nil {
		return nil, err
	}

	out := make([]provider.ProviderWallet, 0, len(result.Data.Wallets))
	for _, w := range result.Data.Wallets {
		network, ok := networkFor[w.Blockchain]
		if !ok {
			zap.L().Warn("Circle returned wallet for unrequested blockchain",
				zap.String("wallet_id", w.Id),
				zap.String("blockchain", w.Blockchain))
			continue
		}
		out = append(out, provider.ProviderWallet{
			ProviderWalletId: w.Id,
			DefaultNetwork:   network,
			Addresses:        map[string]provider.Address{network: {Address: w.Address}},
		})
	}

	return out, nil
}

func (a *Adapter) TransferStatus(ctx context.Context, _ provider.WalletRef, ref provider.TxRef) (provider.TransferStatus, error) {
	var result struct {
		Data struct {
			Transaction transaction `json:"transaction"`
		} `json:"data"`
	}

	path := fmt.Sprintf("/v1/w3s/transactions/%s", url.PathEscape(string(ref)))
	if err := a.client.get(ctx, path, &result); err != nil {
		return provider.TransferStatus{}, err
	}

	tx := result.Data.Transaction
	status := provider.TransferStatus{
		State:  transferState(tx.State),
		TxHash: tx.TxHash,
		Reason: tx.ErrorReason,
	}
	if fee, err := decimal.NewFromString(tx.NetworkFee); err == nil {
		status.Fee = fee
	}

	return status, nil
}

func transferState(state string) provider.TransferState {
	switch strings.ToUpper(state) {
	case "COMPLETE":
		return provider.TransferCompleted
	case "FAILED", "CANCELLED", "DENIED":
		return provider.TransferFailed
	default:
		return provider.TransferPending
	}
}

// Package fireblocks adapts Fireblocks vault accounts. One vault account
// spans every network of a wallet; each (token, network) is a Fireblocks asset id.
package fireblocks

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"custody-wallet-go/internal/provider"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const Name = "fireblocks"

type Config struct {
	ApiKey         string
	BaseUrl        string
	PrivateKey     *rsa.PrivateKey
	VaultNamespace string
}

type Adapter struct {
	client    *client
	namespace string
}

var (
	_ provider.Adapter       = (*Adapter)(nil)
	_ provider.StatusChecker = (*Adapter)(nil)
)

func New(cfg Config, httpClient *http.Client) (*Adapter, error) {
	if cfg.ApiKey == "" || cfg.PrivateKey == nil {
		return nil, fmt.Errorf("fireblocks config requires an API key and a private key")
	}
	if cfg.BaseUrl == "" {
		cfg.BaseUrl = "https://api.fireblocks.io"
	}

	return &Adapter{
		client: &client{
			baseURL:    strings.TrimRight(cfg.BaseUrl, "/"),
			apiKey:     cfg.ApiKey,
			privateKey: cfg.PrivateKey,
			httpClient: httpClient,
		},
		namespace: cfg.VaultNamespace,
	}, nil
}

func (a *Adapter) Name() string { return Name }

func assetId(assetCode, providerTokenId string) string {
	if providerTokenId != "" {
		return providerTokenId
	}
	return assetCode
}

func (a *Adapter) GetBalance(ctx context.Context, q provider.BalanceQuery) (decimal.Decimal, error) {
	var asset vaultAssetResponse
	path := fmt.Sprintf("/v1/vault/accounts/%s/%s",
		url.PathEscape(q.Wallet.ProviderWalletId), url.PathEscape(assetId(q.AssetCode, q.ProviderTokenId)))

	if err := a.client.do(ctx, http.MethodGet, path, nil, "", &asset); err != nil {
		return decimal.Zero, err
	}

	raw := asset.Available
	if raw == "" {
		raw = asset.Total
	}
	if raw == "" {
		return decimal.Zero, nil
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance %q for %s: %w", raw, q.AssetCode, err)
	}
	return balance, nil
}

func (a *Adapter) InitiateWithdrawal(ctx context.Context, req provider.WithdrawalRequest) (provider.TxRef, error) {
	body := createTransactionRequest{
		AssetId: assetId(req.AssetCode, req.ProviderTokenId),
		Amount:  req.Amount.String(),
		Source: transferPeer{
			Type: "VAULT_ACCOUNT",
			Id:   req.Wallet.ProviderWalletId,
		},
		Destination: transferPeer{
			Type:           "ONE_TIME_ADDRESS",
			OneTimeAddress: &depositAddress{Address: req.Destination, Tag: req.Memo},
		},
		ExternalTxId: req.IdempotencyKey,
		Note:         fmt.Sprintf("withdrawal %s %s on %s", req.Amount.String(), req.AssetCode, req.Network),
	}

	var resp createTransactionResponse
	if err := a.client.do(ctx, http.MethodPost, "/v1/transactions", body, req.IdempotencyKey, &resp); err != nil {
		return "", classifyTransferError(err)
	}

	zap.L().Info("Fireblocks transaction created",
		zap.String("transaction_id", resp.Id),
		zap.String("status", resp.Status),
		zap.String("vault_account_id", req.Wallet.ProviderWalletId))

	return provider.TxRef(resp.Id), nil
}

func classifyTransferError(err error) error {
	var fbErr ErrorResponse
	if !errors.As(err, &fbErr) {
		return err
	}
	msg := strings.ToLower(fbErr.Message)
	switch {
	case strings.Contains(msg, "insufficient"):
		return fmt.Errorf("%w: %w", provider.ErrInsufficientProviderBalance, err)
	case strings.Contains(msg, "address"), strings.Contains(msg, "destination"):
		return fmt.Errorf("%w: %w", provider.ErrDestinationInvalid, err)
	}
	return err
}

func (a *Adapter) LookupAddress(ctx context.Context, q provider.AddressQuery) (string, error) {
	var resp addressesResponse
	path := fmt.Sprintf("/v1/vault/accounts/%s/%s/addresses_paginated",
		url.PathEscape(q.Wallet.ProviderWalletId), url.PathEscape(assetId(q.AssetCode, q.ProviderTokenId)))

	if err := a.client.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return "", err
	}
	for _, addr := range resp.Addresses {
		if addr.Address != "" {
			return addr.Address, nil
		}
	}
	return "", nil
}

// CreateWallet creates one vault account and activates every requested asset on it.
// An asset whose activation fails leaves its network address as a placeholder.
func (a *Adapter) CreateWallet(ctx context.Context, req provider.CreateWalletRequest) ([]provider.ProviderWallet, error) {
	name := req.Reference
	if a.namespace != "" {
		name = a.namespace + "-" + req.Reference
	}

	var vault createVaultAccountResponse
	err := a.client.do(ctx, http.MethodPost, "/v1/vault/accounts",
		createVaultAccountRequest{Name: name, CustomerRefId: req.UserId, HiddenOnUI: true}, req.Reference, &vault)
	if err != nil {
		return nil, fmt.Errorf("unable to create vault account: %w", err)
	}

	wallet := provider.ProviderWallet{
		ProviderWalletId: vault.Id,
		Addresses:        make(map[string]provider.Address, len(req.Networks)),
	}

	for _, n := range req.Networks {
		if wallet.DefaultNetwork == "" {
			wallet.DefaultNetwork = n.Network
		}
		wallet.Addresses[n.Network] = provider.Address{}

		for _, tok := range n.Tokens {
			var asset vaultAssetResponse
			path := fmt.Sprintf("/v1/vault/accounts/%s/%s",
				url.PathEscape(vault.Id), url.PathEscape(assetId(tok.AssetCode, tok.ProviderTokenId)))
			if err := a.client.do(ctx, http.MethodPost, path, nil, "", &asset); err != nil {
				zap.L().Warn("Failed to activate vault asset",
					zap.String("vault_account_id", vault.Id),
					zap.String("asset_id", assetId(tok.AssetCode, tok.ProviderTokenId)),
					zap.Error(err))
				continue
			}
			if current := wallet.Addresses[n.Network]; current.Address == "" && asset.Address != "" {
				wallet.Addresses[n.Network] = provider.Address{Address: asset.Address, Memo: asset.Tag}
			}
		}
	}

	zap.L().Info("Fireblocks vault account created",
		zap.String("vault_account_id", vault.Id),
		zap.String("name", name),
		zap.Int("networks", len(wallet.Addresses)))

	return []provider.ProviderWallet{wallet}, nil
}

func (a *Adapter) TransferStatus(ctx context.Context, _ provider.WalletRef, ref provider.TxRef) (provider.TransferStatus, error) {
	var tx transactionResponse
	path := fmt.Sprintf("/v1/transactions/%s", url.PathEscape(string(ref)))
	if err := a.client.do(ctx, http.MethodGet, path, nil, "", &tx); err != nil {
		return provider.TransferStatus{}, err
	}

	status := provider.TransferStatus{
		State:  transferState(tx.Status),
		TxHash: tx.TxHash,
		Reason: tx.SubStatus,
	}
	if fee, err := decimal.NewFromString(tx.NetworkFee.String()); err == nil {
		status.Fee = fee
	}
	return status, nil
}

func transferState(status string) provider.TransferState {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return provider.TransferCompleted
	case "FAILED", "CANCELLED", "REJECTED", "BLOCKED":
		return provider.TransferFailed
	default:
		return provider.TransferPending
	}
}

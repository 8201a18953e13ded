/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package provider defines the uniform contract every custody provider
// integration implements. Adapters never retry; callers own retry policy.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

var (
	ErrProviderUnavailable         = errors.New("provider unavailable")
	ErrUnsupportedAsset            = errors.New("unsupported asset")
	ErrInsufficientProviderBalance = errors.New("insufficient provider balance")
	ErrDestinationInvalid          = errors.New("destination invalid")
	ErrProviderNotRegistered       = errors.New("provider not registered")
	ErrStatusUnsupported           = errors.New("transfer status lookup not supported")
)

// WalletRef identifies a wallet both internally and at the provider.
type WalletRef struct {
	WalletId         string
	ProviderWalletId string
}

type BalanceQuery struct {
	Wallet            WalletRef
	AssetCode         string
	Network           string
	ProviderNetworkId string
	ProviderTokenId   string
}

type WithdrawalRequest struct {
	Wallet            WalletRef
	AssetCode         string
	Network           string
	ProviderNetworkId string
	ProviderTokenId   string
	Amount            decimal.Decimal
	Destination       string
	Memo              string
	IdempotencyKey    string
}

// TxRef is the provider's reference for a transfer it accepted.
type TxRef string

type AddressQuery struct {
	Wallet            WalletRef
	AssetCode         string
	Network           string
	ProviderNetworkId string
	ProviderTokenId   string
}

type TokenSpec struct {
	AssetCode       string
	ProviderTokenId string
}

type NetworkSpec struct {
	Network           string
	ProviderNetworkId string
	Tokens            []TokenSpec
}

type CreateWalletRequest struct {
	UserId     string
	Reference  string
	WalletType string
	Networks   []NetworkSpec
}

// Address is a per-network address. An empty Address is a placeholder the
// provider will fill in later.
type Address struct {
	Address string
	Memo    string
}

// ProviderWallet is one wallet the provider created. Single-network providers
// return one ProviderWallet per network.
type ProviderWallet struct {
	ProviderWalletId string
	DefaultNetwork   string
	Addresses        map[string]Address
}

type TransferState string

const (
	TransferPending   TransferState = "pending"
	TransferCompleted TransferState = "completed"
	TransferFailed    TransferState = "failed"
)

type TransferStatus struct {
	State  TransferState
	TxHash string
	Fee    decimal.Decimal
	Reason string
}

// Adapter is the uniform interface over a custody provider's wallet APIs.
type Adapter interface {
	Name() string
	GetBalance(ctx context.Context, q BalanceQuery) (decimal.Decimal, error)
	InitiateWithdrawal(ctx context.Context, req WithdrawalRequest) (TxRef, error)
	LookupAddress(ctx context.Context, q AddressQuery) (string, error)
	CreateWallet(ctx context.Context, req CreateWalletRequest) ([]ProviderWallet, error)
}

// StatusChecker is implemented by adapters that can look up a transfer they accepted.
type StatusChecker interface {
	TransferStatus(ctx context.Context, wallet WalletRef, ref TxRef) (TransferStatus, error)
}

// TokenAddresser is implemented by adapters whose deposit addresses are
// derived per token rather than per network.
type TokenAddresser interface {
	AddressPerToken() bool
}

// AddressPerToken reports whether the adapter derives one address per token.
func AddressPerToken(a Adapter) bool {
	ta, ok := a.(TokenAddresser)
	return ok && ta.AddressPerToken()
}

// Unavailable wraps a transport failure as ErrProviderUnavailable.
func Unavailable(provider string, err error) error {
	return fmt.Errorf("%s: %w: %w", provider, ErrProviderUnavailable, err)
}

// ClassifyStatus maps an HTTP status to the provider error taxonomy. It
// returns nil for statuses it leaves to the adapter.
func ClassifyStatus(provider string, status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return fmt.Errorf("%s: %w: status %d: %s", provider, ErrProviderUnavailable, status, body)
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w: status %d: %s", provider, ErrUnsupportedAsset, status, body)
	}
	return nil
}

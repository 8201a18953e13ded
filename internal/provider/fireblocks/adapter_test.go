package fireblocks

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"custody-wallet-go/internal/provider"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey *rsa.PrivateKey

func init() {
	var err error
	testKey, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a, err := New(Config{ApiKey: "test-api-key", BaseUrl: server.URL, PrivateKey: testKey, VaultNamespace: "cw"}, server.Client())
	require.NoError(t, err)
	return a
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{ApiKey: "k"}, http.DefaultClient)
	assert.Error(t, err)
}

func TestRequestSigning(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-api-key", r.Header.Get("X-API-KEY"))

		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
			return &testKey.PublicKey, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "/v1/vault/accounts/7/USDT_BSC", claims["uri"])
		assert.Equal(t, "test-api-key", claims["sub"])

		w.Write([]byte(`{"id":"USDT_BSC","available":"1"}`))
	})

	_, err := a.GetBalance(context.Background(), provider.BalanceQuery{
		Wallet:          provider.WalletRef{ProviderWalletId: "7"},
		AssetCode:       "USDT",
		ProviderTokenId: "USDT_BSC",
	})
	require.NoError(t, err)
}

func TestGetBalance(t *testing.T) {
	query := provider.BalanceQuery{
		Wallet:          provider.WalletRef{ProviderWalletId: "7"},
		AssetCode:       "USDT",
		Network:         "bsc",
		ProviderTokenId: "USDT_BSC",
	}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		assert  func(t *testing.T, balance decimal.Decimal, err error)
	}{
		{
			name: "available",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				w.Write([]byte(`{"id":"USDT_BSC","total":"12","available":"10.25"}`))
			},
			assert: func(t *testing.T, balance decimal.Decimal, err error) {
				require.NoError(t, err)
				assert.True(t, balance.Equal(decimal.RequireFromString("10.25")))
			},
		},
		{
			name: "total_fallback",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"id":"USDT_BSC","total":"4"}`))
			},
			assert: func(t *testing.T, balance decimal.Decimal, err error) {
				require.NoError(t, err)
				assert.True(t, balance.Equal(decimal.NewFromInt(4)))
			},
		},
		{
			name: "asset_not_found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			assert: func(t *testing.T, balance decimal.Decimal, err error) {
				assert.True(t, errors.Is(err, provider.ErrUnsupportedAsset))
			},
		},
		{
			name: "rate_limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			assert: func(t *testing.T, balance decimal.Decimal, err error) {
				assert.True(t, errors.Is(err, provider.ErrProviderUnavailable))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, tt.handler)
			balance, err := a.GetBalance(context.Background(), query)
			tt.assert(t, balance, err)
		})
	}
}

func TestInitiateWithdrawal(t *testing.T) {
	req := provider.WithdrawalRequest{
		Wallet:          provider.WalletRef{ProviderWalletId: "7"},
		AssetCode:       "USDT",
		Network:         "bsc",
		ProviderTokenId: "USDT_BSC",
		Amount:          decimal.RequireFromString("2.5"),
		Destination:     "0xdest",
		IdempotencyKey:  "idem-1",
	}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		assert  func(t *testing.T, ref provider.TxRef, err error)
	}{
		{
			name: "success",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/transactions", r.URL.Path)
				assert.Equal(t, "idem-1", r.Header.Get("Idempotency-Key"))

				var body createTransactionRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "USDT_BSC", body.AssetId)
				assert.Equal(t, "2.5", body.Amount)
				assert.Equal(t, "VAULT_ACCOUNT", body.Source.Type)
				assert.Equal(t, "7", body.Source.Id)
				assert.Equal(t, "ONE_TIME_ADDRESS", body.Destination.Type)
				require.NotNil(t, body.Destination.OneTimeAddress)
				assert.Equal(t, "0xdest", body.Destination.OneTimeAddress.Address)

				w.Write([]byte(`{"id":"fb-tx-1","status":"SUBMITTED"}`))
			},
			assert: func(t *testing.T, ref provider.TxRef, err error) {
				require.NoError(t, err)
				assert.Equal(t, provider.TxRef("fb-tx-1"), ref)
			},
		},
		{
			name: "insufficient_funds",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"message":"Insufficient funds","code":1427}`))
			},
			assert: func(t *testing.T, ref provider.TxRef, err error) {
				assert.True(t, errors.Is(err, provider.ErrInsufficientProviderBalance))
				var fbErr ErrorResponse
				require.True(t, errors.As(err, &fbErr))
				assert.Equal(t, 1427, fbErr.Code)
				assert.Equal(t, http.StatusBadRequest, fbErr.StatusCode)
			},
		},
		{
			name: "bad_destination",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"message":"Invalid destination address","code":1002}`))
			},
			assert: func(t *testing.T, ref provider.TxRef, err error) {
				assert.True(t, errors.Is(err, provider.ErrDestinationInvalid))
			},
		},
		{
			name: "unexpected_body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`nope`))
			},
			assert: func(t *testing.T, ref provider.TxRef, err error) {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unexpected API response")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, tt.handler)
			ref, err := a.InitiateWithdrawal(context.Background(), req)
			tt.assert(t, ref, err)
		})
	}
}

func TestLookupAddress(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/vault/accounts/7/TRX_USDT_S2UZ/addresses_paginated", r.URL.Path)
		w.Write([]byte(`{"addresses":[{"address":""},{"address":"TXYZ"}]}`))
	})

	addr, err := a.LookupAddress(context.Background(), provider.AddressQuery{
		Wallet:          provider.WalletRef{ProviderWalletId: "7"},
		AssetCode:       "USDT",
		ProviderTokenId: "TRX_USDT_S2UZ",
	})
	require.NoError(t, err)
	assert.Equal(t, "TXYZ", addr)
}

func TestCreateWallet(t *testing.T) {
	var activated []string
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/vault/accounts":
			var body createVaultAccountRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "cw-user-1-bep20", body.Name)
			assert.Equal(t, "user-1", body.CustomerRefId)
			w.Write([]byte(`{"id":"42","name":"cw-user-1-bep20"}`))
		case "/v1/vault/accounts/42/USDT_BSC":
			activated = append(activated, "USDT_BSC")
			w.Write([]byte(`{"id":"USDT_BSC","address":"0xbsc"}`))
		case "/v1/vault/accounts/42/USDC_BSC":
			activated = append(activated, "USDC_BSC")
			w.Write([]byte(`{"id":"USDC_BSC","address":"0xother"}`))
		case "/v1/vault/accounts/42/TRX_USDT_S2UZ":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"asset activation pending","code":11}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	wallets, err := a.CreateWallet(context.Background(), provider.CreateWalletRequest{
		UserId:     "user-1",
		Reference:  "user-1-bep20",
		WalletType: "bep20",
		Networks: []provider.NetworkSpec{
			{Network: "bsc", ProviderNetworkId: "BSC", Tokens: []provider.TokenSpec{
				{AssetCode: "USDT", ProviderTokenId: "USDT_BSC"},
				{AssetCode: "USDC", ProviderTokenId: "USDC_BSC"},
			}},
			{Network: "tron", ProviderNetworkId: "TRX", Tokens: []provider.TokenSpec{
				{AssetCode: "USDT", ProviderTokenId: "TRX_USDT_S2UZ"},
			}},
		},
	})
	require.NoError(t, err)
	require.Len(t, wallets, 1)

	w := wallets[0]
	assert.Equal(t, "42", w.ProviderWalletId)
	assert.Equal(t, "bsc", w.DefaultNetwork)
	assert.Equal(t, "0xbsc", w.Addresses["bsc"].Address)
	assert.Contains(t, w.Addresses, "tron")
	assert.Equal(t, "", w.Addresses["tron"].Address)
	assert.Equal(t, []string{"USDT_BSC", "USDC_BSC"}, activated)
}

func TestTransferStatus(t *testing.T) {
	tests := []struct {
		status string
		want   provider.TransferState
	}{
		{"COMPLETED", provider.TransferCompleted},
		{"FAILED", provider.TransferFailed},
		{"REJECTED", provider.TransferFailed},
		{"BLOCKED", provider.TransferFailed},
		{"BROADCASTING", provider.TransferPending},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/transactions/fb-1", r.URL.Path)
				w.Write([]byte(`{"id":"fb-1","status":"` + tt.status + `","txHash":"0xh","networkFee":0.002}`))
			})

			status, err := a.TransferStatus(context.Background(), provider.WalletRef{}, "fb-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status.State)
			assert.Equal(t, "0xh", status.TxHash)
			assert.True(t, status.Fee.Equal(decimal.RequireFromString("0.002")))
		})
	}
}

package circle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"custody-wallet-go/internal/provider"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a, err := New(Config{ApiKey: "test-key", BaseUrl: server.URL, WalletSetId: "set-1"}, server.Client())
	require.NoError(t, err)
	return a
}

func TestGetBalance(t *testing.T) {
	query := provider.BalanceQuery{
		Wallet:          provider.WalletRef{ProviderWalletId: "w-1"},
		AssetCode:       "USDT",
		Network:         "matic",
		ProviderTokenId: "tok-usdt",
	}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		assert  func(t *testing.T, balance decimal.Decimal, err error)
	}{
		{
			name: "success",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/w3s/wallets/w-1/balances", r.URL.Path)
				assert.Equal(t, "true", r.URL.Query().Get("includeAll"))
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
				w.Write([]byte(`{"data":{"tokenBalances":[
					{"token":{"id":"tok-usdc","symbol":"USDC"},"amount":"3"},
					{"token":{"id":"tok-usdt","symbol":"USDT"},"amount":"10.5"}]}}`))
			},
			assert: func(t *testing.T, balance decimal.Decimal, err error) {
				require.NoError(t, err)
				assert.True(t, balance.Equal(decimal.RequireFromString("10.5")))
			},
		},
		{
			name: "token_missing",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"data":{"tokenBalances":[{"token":{"id":"tok-usdc","symbol":"USDC"},"amount":"3"}]}}`))
			},
			assert: func(t *testing.T, balance decimal.Decimal, err error) {
				assert.True(t, errors.Is(err, provider.ErrUnsupportedAsset))
			},
		},
		{
			name: "server_error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
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

func TestGetBalance_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	a, err := New(Config{ApiKey: "k", BaseUrl: server.URL}, http.DefaultClient)
	require.NoError(t, err)

	_, err = a.GetBalance(context.Background(), provider.BalanceQuery{Wallet: provider.WalletRef{ProviderWalletId: "w"}})
	assert.True(t, errors.Is(err, provider.ErrProviderUnavailable))
}

func TestInitiateWithdrawal(t *testing.T) {
	req := provider.WithdrawalRequest{
		Wallet:          provider.WalletRef{ProviderWalletId: "w-1"},
		AssetCode:       "USDT",
		Network:         "matic",
		ProviderTokenId: "tok-usdt",
		Amount:          decimal.NewFromInt(5),
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
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/w3s/developer/transactions/transfer", r.URL.Path)

				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "idem-1", body["idempotencyKey"])
				assert.Equal(t, "w-1", body["walletId"])
				assert.Equal(t, "0xdest", body["destinationAddress"])
				assert.Equal(t, []interface{}{"5"}, body["amounts"])
				assert.Equal(t, "tok-usdt", body["tokenId"])

				w.Write([]byte(`{"data":{"id":"tx-9","state":"INITIATED"}}`))
			},
			assert: func(t *testing.T, ref provider.TxRef, err error) {
				require.NoError(t, err)
				assert.Equal(t, provider.TxRef("tx-9"), ref)
			},
		},
		{
			name: "insufficient_funds",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"code":155201,"message":"Insufficient funds in wallet"}`))
			},
			assert: func(t *testing.T, ref provider.TxRef, err error) {
				assert.True(t, errors.Is(err, provider.ErrInsufficientProviderBalance))
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, 155201, apiErr.Code)
			},
		},
		{
			name: "invalid_destination",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"code":155202,"message":"Invalid destination address"}`))
			},
			assert: func(t *testing.T, ref provider.TxRef, err error) {
				assert.True(t, errors.Is(err, provider.ErrDestinationInvalid))
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

func TestInitiateWithdrawal_RequiresTokenId(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("provider must not be called")
	})
	_, err := a.InitiateWithdrawal(context.Background(), provider.WithdrawalRequest{AssetCode: "USDT"})
	assert.True(t, errors.Is(err, provider.ErrUnsupportedAsset))
}

func TestCreateWallet(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/w3s/developer/wallets", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "set-1", body["walletSetId"])
		assert.Equal(t, []interface{}{"MATIC", "SOL"}, body["blockchains"])

		w.Write([]byte(`{"data":{"wallets":[
			{"id":"cw-1","blockchain":"MATIC","address":"0xaaa"},
			{"id":"cw-2","blockchain":"SOL","address":""}]}}`))
	})

	wallets, err := a.CreateWallet(context.Background(), provider.CreateWalletRequest{
		UserId:     "user-1",
		Reference:  "user-1-standard",
		WalletType: "standard",
		Networks: []provider.NetworkSpec{
			{Network: "matic", ProviderNetworkId: "MATIC"},
			{Network: "sol", ProviderNetworkId: "SOL"},
		},
	})
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, "cw-1", wallets[0].ProviderWalletId)
	assert.Equal(t, "matic", wallets[0].DefaultNetwork)
	assert.Equal(t, "0xaaa", wallets[0].Addresses["matic"].Address)
	assert.Equal(t, "", wallets[1].Addresses["sol"].Address)
}

func TestTransferStatus(t *testing.T) {
	tests := []struct {
		state string
		want  provider.TransferState
	}{
		{"COMPLETE", provider.TransferCompleted},
		{"FAILED", provider.TransferFailed},
		{"DENIED", provider.TransferFailed},
		{"SENT", provider.TransferPending},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/w3s/transactions/tx-1", r.URL.Path)
				w.Write([]byte(`{"data":{"transaction":{"id":"tx-1","state":"` + tt.state + `","txHash":"0xhash","networkFee":"0.01"}}}`))
			})

			status, err := a.TransferStatus(context.Background(), provider.WalletRef{}, "tx-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status.State)
			assert.Equal(t, "0xhash", status.TxHash)
			assert.True(t, status.Fee.Equal(decimal.RequireFromString("0.01")))
		})
	}
}

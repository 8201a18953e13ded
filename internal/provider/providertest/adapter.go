// Package providertest provides an in-memory provider.Adapter for tests.
package providertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"custody-wallet-go/internal/provider"

	"github.com/shopspring/decimal"
)

// Adapter is a scriptable provider. Balances and errors are keyed by
// Key(providerWalletId, assetCode); addresses by Key(providerWalletId, network).
type Adapter struct {
	name string

	mu             sync.Mutex
	balances       map[string]decimal.Decimal
	balanceErrs    map[string]error
	addresses      map[string]string
	statuses       map[provider.TxRef]provider.TransferStatus
	perToken       bool
	delay          time.Duration
	withdrawErr    error
	nextRef        int
	balanceCalls   int
	withdrawals    []provider.WithdrawalRequest
	createRequests []provider.CreateWalletRequest
	createFn       func(provider.CreateWalletRequest) ([]provider.ProviderWallet, error)
}

var (
	_ provider.Adapter        = (*Adapter)(nil)
	_ provider.StatusChecker  = (*Adapter)(nil)
	_ provider.TokenAddresser = (*Adapter)(nil)
)

func New(name string) *Adapter {
	return &Adapter{
		name:        name,
		balances:    make(map[string]decimal.Decimal),
		balanceErrs: make(map[string]error),
		addresses:   make(map[string]string),
		statuses:    make(map[provider.TxRef]provider.TransferStatus),
	}
}

func Key(a, b string) string { return a + "/" + b }

func (a *Adapter) SetBalance(providerWalletId, assetCode string, balance decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[Key(providerWalletId, assetCode)] = balance
}

func (a *Adapter) FailBalance(providerWalletId, assetCode string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balanceErrs[Key(providerWalletId, assetCode)] = err
}

func (a *Adapter) SetAddress(providerWalletId, network, address string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addresses[Key(providerWalletId, network)] = address
}

func (a *Adapter) SetStatus(ref provider.TxRef, status provider.TransferStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statuses[ref] = status
}

// SetAddressPerToken switches LookupAddress to addresses keyed by token, as
// set with SetTokenAddress.
func (a *Adapter) SetAddressPerToken(perToken bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.perToken = perToken
}

func (a *Adapter) SetTokenAddress(providerWalletId, assetCode, network, address string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addresses[tokenKey(providerWalletId, assetCode, network)] = address
}

func tokenKey(providerWalletId, assetCode, network string) string {
	return Key(providerWalletId, network+"@"+assetCode)
}

// SetDelay makes every balance read wait d or until the context ends.
func (a *Adapter) SetDelay(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delay = d
}

func (a *Adapter) FailWithdrawals(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.withdrawErr = err
}

// OnCreateWallet overrides the default single-wallet response.
func (a *Adapter) OnCreateWallet(fn func(provider.CreateWalletRequest) ([]provider.ProviderWallet, error)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.createFn = fn
}

func (a *Adapter) BalanceCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balanceCalls
}

func (a *Adapter) Withdrawals() []provider.WithdrawalRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]provider.WithdrawalRequest(nil), a.withdrawals...)
}

func (a *Adapter) CreateRequests() []provider.CreateWalletRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]provider.CreateWalletRequest(nil), a.createRequests...)
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) AddressPerToken() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.perToken
}

func (a *Adapter) GetBalance(ctx context.Context, q provider.BalanceQuery) (decimal.Decimal, error) {
	a.mu.Lock()
	a.balanceCalls++
	delay := a.delay
	key := Key(q.Wallet.ProviderWalletId, q.AssetCode)
	balance, ok := a.balances[key]
	err := a.balanceErrs[key]
	a.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return decimal.Zero, provider.Unavailable(a.name, ctx.Err())
		}
	}

	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", provider.ErrUnsupportedAsset, key)
	}
	return balance, nil
}

func (a *Adapter) InitiateWithdrawal(_ context.Context, req provider.WithdrawalRequest) (provider.TxRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.withdrawals = append(a.withdrawals, req)
	if a.withdrawErr != nil {
		return "", a.withdrawErr
	}
	a.nextRef++
	return provider.TxRef(fmt.Sprintf("%s-tx-%d", a.name, a.nextRef)), nil
}

func (a *Adapter) LookupAddress(_ context.Context, q provider.AddressQuery) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.perToken {
		return a.addresses[tokenKey(q.Wallet.ProviderWalletId, q.AssetCode, q.Network)], nil
	}
	return a.addresses[Key(q.Wallet.ProviderWalletId, q.Network)], nil
}

// CreateWallet returns one wallet spanning every requested network, named
// after the request reference, unless OnCreateWallet overrides it.
func (a *Adapter) CreateWallet(_ context.Context, req provider.CreateWalletRequest) ([]provider.ProviderWallet, error) {
	a.mu.Lock()
	a.createRequests = append(a.createRequests, req)
	fn := a.createFn
	a.mu.Unlock()

	if fn != nil {
		return fn(req)
	}

	wallet := provider.ProviderWallet{
		ProviderWalletId: req.Reference,
		Addresses:        make(map[string]provider.Address),
	}
	for _, n := range req.Networks {
		if wallet.DefaultNetwork == "" {
			wallet.DefaultNetwork = n.Network
		}
		wallet.Addresses[n.Network] = provider.Address{}
	}
	return []provider.ProviderWallet{wallet}, nil
}

func (a *Adapter) TransferStatus(_ context.Context, _ provider.WalletRef, ref provider.TxRef) (provider.TransferStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if status, ok := a.statuses[ref]; ok {
		return status, nil
	}
	return provider.TransferStatus{State: provider.TransferPending}, nil
}

package provider

import (
	"context"
	"time"

	"custody-wallet-go/internal/metrics"

	"github.com/shopspring/decimal"
)

type instrumented struct {
	inner Adapter
}

// Instrument records call counts and latency for every adapter operation.
func Instrument(a Adapter) Adapter {
	if _, ok := a.(*instrumented); ok {
		return a
	}
	return &instrumented{inner: a}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	name := i.inner.Name()
	metrics.ProviderCallDuration.WithLabelValues(name, op).Observe(time.Since(start).Seconds())
	metrics.ProviderCalls.WithLabelValues(name, op, metrics.Outcome(err)).Inc()
}

func (i *instrumented) Name() string { return i.inner.Name() }

func (i *instrumented) GetBalance(ctx context.Context, q BalanceQuery) (balance decimal.Decimal, err error) {
	defer func(start time.Time) { i.observe("get_balance", start, err) }(time.Now())
	return i.inner.GetBalance(ctx, q)
}

func (i *instrumented) InitiateWithdrawal(ctx context.Context, req WithdrawalRequest) (ref TxRef, err error) {
	defer func(start time.Time) { i.observe("initiate_withdrawal", start, err) }(time.Now())
	return i.inner.InitiateWithdrawal(ctx, req)
}

func (i *instrumented) LookupAddress(ctx context.Context, q AddressQuery) (address string, err error) {
	defer func(start time.Time) { i.observe("lookup_address", start, err) }(time.Now())
	return i.inner.LookupAddress(ctx, q)
}

func (i *instrumented) CreateWallet(ctx context.Context, req CreateWalletRequest) (wallets []ProviderWallet, err error) {
	defer func(start time.Time) { i.observe("create_wallet", start, err) }(time.Now())
	return i.inner.CreateWallet(ctx, req)
}

// TransferStatus forwards to the wrapped adapter when it supports status lookups.
func (i *instrumented) TransferStatus(ctx context.Context, wallet WalletRef, ref TxRef) (status TransferStatus, err error) {
	checker, ok := i.inner.(StatusChecker)
	if !ok {
		return TransferStatus{}, ErrStatusUnsupported
	}
	defer func(start time.Time) { i.observe("transfer_status", start, err) }(time.Now())
	return checker.TransferStatus(ctx, wallet, ref)
}

func (i *instrumented) AddressPerToken() bool { return AddressPerToken(i.inner) }

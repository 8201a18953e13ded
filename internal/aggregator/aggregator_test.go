package aggregator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"custody-wallet-go/internal/capability"
	"custody-wallet-go/internal/database"
	"custody-wallet-go/internal/database/databasetest"
	"custody-wallet-go/internal/models"
	"custody-wallet-go/internal/provider"
	"custody-wallet-go/internal/provider/providertest"
	"custody-wallet-go/internal/rates"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMatrix = `
capabilities:
  - wallet_type: standard
    provider: fireblocks
    network: bep20
    provider_network_id: BSC
    tokens:
      - symbol: USDT
        provider_token_id: USDT_BSC
  - wallet_type: standard
    provider: circle
    network: matic
    provider_network_id: MATIC
    tokens:
      - symbol: USDT
        provider_token_id: circle-usdt
      - symbol: USDC
        provider_token_id: circle-usdc
  - wallet_type: standard
    provider: prime
    network: erc20
    provider_network_id: ethereum-mainnet
    tokens:
      - symbol: USDT
        provider_token_id: USDT
      - symbol: USDC
        provider_token_id: USDC
`

type fixture struct {
	db         *database.Service
	matrix     *capability.Matrix
	fireblocks *providertest.Adapter
	circle     *providertest.Adapter
	prime      *providertest.Adapter
	registry   *provider.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	matrix, err := capability.Parse([]byte(testMatrix))
	require.NoError(t, err)

	db := databasetest.New(t)
	databasetest.NewUser(t, db, "user-1")

	f := &fixture{
		db:         db,
		matrix:     matrix,
		fireblocks: providertest.New("fireblocks"),
		circle:     providertest.New("circle"),
		prime:      providertest.New("prime"),
	}
	f.prime.SetAddressPerToken(true)
	f.registry = provider.NewRegistry(f.fireblocks, f.circle, f.prime)
	return f
}

func (f *fixture) saveWallet(t *testing.T, providerName, providerWalletId, network, address string) *models.Wallet {
	t.Helper()
	ctx := context.Background()

	profile, err := f.db.EnsureProfile(ctx, "user-1", providerName)
	require.NoError(t, err)

	w := &models.Wallet{
		ProfileId:        profile.Id,
		UserId:           "user-1",
		Provider:         providerName,
		WalletType:       "standard",
		ProviderWalletId: providerWalletId,
		DefaultNetwork:   network,
		Networks: map[string]models.NetworkMetadata{
			network: {Network: network, Address: address},
		},
		Tokens: []models.Token{{AssetCode: "USDT", Network: network, Balance: decimal.Zero}},
	}
	require.NoError(t, f.db.SaveWallet(ctx, w))
	return w
}

func (f *fixture) aggregator(cfg models.AggregatorConfig) *Aggregator {
	return New(f.db, f.matrix, f.registry, rates.Static{"USDT": decimal.NewFromInt(1600), "USDC": decimal.NewFromInt(1500)}, cfg, "NGN")
}

func TestSummary_SumsAcrossProviders(t *testing.T) {
	f := newFixture(t)
	f.saveWallet(t, "fireblocks", "vault-1", "bep20", "0xBsc")
	f.saveWallet(t, "circle", "cw-1", "matic", "0xMatic")

	f.fireblocks.SetBalance("vault-1", "USDT", decimal.NewFromInt(40))
	f.circle.SetBalance("cw-1", "USDT", decimal.NewFromInt(10))
	f.circle.SetBalance("cw-1", "USDC", decimal.NewFromInt(2))

	summary, err := f.aggregator(models.AggregatorConfig{Concurrency: 3, Timeout: time.Second, RecentTransactions: 5}).
		Summary(context.Background(), "user-1")
	require.NoError(t, err)

	assert.False(t, summary.Partial)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, "NGN", summary.LocalCurrency)

	usdt := summary.PerAsset["USDT"]
	assert.True(t, usdt.Balance.Equal(decimal.NewFromInt(50)), "got %s", usdt.Balance)
	assert.Equal(t, []string{"bep20", "matic"}, usdt.ContributingNetworks)
	// wallets are walked by provider, so circle's address is seen first
	assert.Equal(t, "0xMatic", usdt.Address)
	assert.True(t, usdt.Valuation.Equal(decimal.NewFromInt(80000)))
	assert.NotNil(t, usdt.RecentTransactions)

	usdc := summary.PerAsset["USDC"]
	assert.True(t, usdc.Balance.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, "0xMatic", usdc.Address)

	assert.True(t, summary.TotalInLocalCurrency.Equal(decimal.NewFromInt(83000)))
}

func TestSummary_PerTokenAddresses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profile, err := f.db.EnsureProfile(ctx, "user-1", "prime")
	require.NoError(t, err)
	require.NoError(t, f.db.SaveWallet(ctx, &models.Wallet{
		ProfileId:        profile.Id,
		UserId:           "user-1",
		Provider:         "prime",
		WalletType:       "standard",
		ProviderWalletId: "user-1-standard",
		DefaultNetwork:   "erc20",
		Networks:         map[string]models.NetworkMetadata{"erc20": {Network: "erc20"}},
		Tokens: []models.Token{
			{AssetCode: "USDT", Network: "erc20", Balance: decimal.Zero, Address: "0xPrimeUsdt"},
			{AssetCode: "USDC", Network: "erc20", Balance: decimal.Zero, Address: "0xPrimeUsdc"},
		},
	}))
	f.prime.SetBalance("user-1-standard", "USDT", decimal.NewFromInt(3))
	f.prime.SetBalance("user-1-standard", "USDC", decimal.NewFromInt(4))

	summary, err := f.aggregator(models.AggregatorConfig{Concurrency: 2, Timeout: time.Second}).Summary(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, "0xPrimeUsdt", summary.PerAsset["USDT"].Address)
	assert.Equal(t, "0xPrimeUsdc", summary.PerAsset["USDC"].Address)
}

func TestSummary_PartialFailureKeepsHealthyProvider(t *testing.T) {
	f := newFixture(t)
	f.saveWallet(t, "fireblocks", "vault-1", "bep20", "0xBsc")
	f.saveWallet(t, "circle", "cw-1", "matic", "0xMatic")

	f.fireblocks.SetBalance("vault-1", "USDT", decimal.NewFromInt(40))
	f.circle.FailBalance("cw-1", "USDT", provider.Unavailable("circle", errors.New("connection refused")))
	f.circle.FailBalance("cw-1", "USDC", provider.Unavailable("circle", errors.New("connection refused")))

	summary, err := f.aggregator(models.AggregatorConfig{Concurrency: 2, Timeout: time.Second}).
		Summary(context.Background(), "user-1")
	require.NoError(t, err)

	assert.False(t, summary.Partial)
	require.Len(t, summary.Failures, 2)
	for _, failure := range summary.Failures {
		assert.Equal(t, "circle", failure.Provider)
		assert.Equal(t, "matic", failure.Network)
	}

	usdt := summary.PerAsset["USDT"]
	assert.True(t, usdt.Balance.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, []string{"bep20"}, usdt.ContributingNetworks)

	usdc := summary.PerAsset["USDC"]
	assert.True(t, usdc.Balance.IsZero())
	assert.Empty(t, usdc.ContributingNetworks)
}

func TestSummary_RefreshesCachedTokens(t *testing.T) {
	f := newFixture(t)
	w := f.saveWallet(t, "fireblocks", "vault-1", "bep20", "0xBsc")
	f.fireblocks.SetBalance("vault-1", "USDT", decimal.RequireFromString("12.5"))

	_, err := f.aggregator(models.AggregatorConfig{Timeout: time.Second}).Summary(context.Background(), "user-1")
	require.NoError(t, err)

	stored, err := f.db.GetWallet(context.Background(), w.Id)
	require.NoError(t, err)
	token, ok := stored.Token("USDT", "bep20")
	require.True(t, ok)
	assert.Equal(t, "12.5", token.Balance.String())
}

func TestSummary_TimeoutReturnsPartial(t *testing.T) {
	f := newFixture(t)
	f.saveWallet(t, "fireblocks", "vault-1", "bep20", "0xBsc")
	f.saveWallet(t, "circle", "cw-1", "matic", "0xMatic")

	f.fireblocks.SetBalance("vault-1", "USDT", decimal.NewFromInt(40))
	f.circle.SetBalance("cw-1", "USDT", decimal.NewFromInt(10))
	f.circle.SetBalance("cw-1", "USDC", decimal.NewFromInt(10))
	f.circle.SetDelay(5 * time.Second)

	start := time.Now()
	summary, err := f.aggregator(models.AggregatorConfig{Concurrency: 4, Timeout: 100 * time.Millisecond}).
		Summary(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, summary.Partial)
	assert.True(t, summary.PerAsset["USDT"].Balance.Equal(decimal.NewFromInt(40)))
	assert.True(t, summary.PerAsset["USDC"].Balance.IsZero())
}

func TestSummary_NoWallets(t *testing.T) {
	f := newFixture(t)

	summary, err := f.aggregator(models.AggregatorConfig{}).Summary(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, summary.PerAsset)
	assert.True(t, summary.TotalInLocalCurrency.IsZero())
	assert.Equal(t, 0, f.fireblocks.BalanceCalls()+f.circle.BalanceCalls())
}

func TestSummary_MissingRateValuesAtZero(t *testing.T) {
	f := newFixture(t)
	f.saveWallet(t, "fireblocks", "vault-1", "bep20", "0xBsc")
	f.fireblocks.SetBalance("vault-1", "USDT", decimal.NewFromInt(40))

	agg := New(f.db, f.matrix, f.registry, rates.Static{}, models.AggregatorConfig{Timeout: time.Second}, "NGN")
	summary, err := agg.Summary(context.Background(), "user-1")
	require.NoError(t, err)

	assert.True(t, summary.PerAsset["USDT"].Balance.Equal(decimal.NewFromInt(40)))
	assert.True(t, summary.PerAsset["USDT"].Valuation.IsZero())
	assert.True(t, summary.TotalInLocalCurrency.IsZero())
}

// gate counts in-flight balance reads.
type gate struct {
	*providertest.Adapter
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (g *gate) GetBalance(ctx context.Context, q provider.BalanceQuery) (decimal.Decimal, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return g.Adapter.GetBalance(ctx, q)
}

func TestSummary_BoundedConcurrency(t *testing.T) {
	f := newFixture(t)
	g := &gate{Adapter: providertest.New("fireblocks")}
	f.registry = provider.NewRegistry(g, f.circle)

	for _, id := range []string{"v1", "v2", "v3", "v4", "v5", "v6"} {
		f.saveWallet(t, "fireblocks", id, "bep20", "0x"+id)
		g.SetBalance(id, "USDT", decimal.NewFromInt(1))
	}

	summary, err := f.aggregator(models.AggregatorConfig{Concurrency: 2, Timeout: 5 * time.Second}).
		Summary(context.Background(), "user-1")
	require.NoError(t, err)

	assert.True(t, summary.PerAsset["USDT"].Balance.Equal(decimal.NewFromInt(6)))
	assert.LessOrEqual(t, g.peak.Load(), int32(2))
	assert.Equal(t, 6, g.BalanceCalls())
}

package capability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMatrix = `
capabilities:
  - wallet_type: standard
    provider: prime
    network: bep20
    provider_network_id: bnb-mainnet
    tokens:
      - symbol: USDT
        provider_token_id: USDT
  - wallet_type: standard
    provider: circle
    network: matic
    provider_network_id: MATIC
    tokens:
      - symbol: usdt
        provider_token_id: token-usdt-matic
      - symbol: USDC
        provider_token_id: token-usdc-matic
  - wallet_type: standard
    provider: circle
    network: matic
    tokens:
      - symbol: USDC
        provider_token_id: token-usdc-matic
      - symbol: USDT
        provider_token_id: token-usdt-matic
`

func TestParse_Valid(t *testing.T) {
	m, err := Parse([]byte(sampleMatrix))
	require.NoError(t, err)

	entries := m.EntriesFor("standard")
	require.Len(t, entries, 2, "identical duplicate should collapse")
	assert.Equal(t, "prime", entries[0].Provider)
	assert.Equal(t, "bep20", entries[0].Network)
	assert.Equal(t, "circle", entries[1].Provider)

	tok, ok := entries[1].Token("USDT")
	require.True(t, ok)
	assert.Equal(t, "token-usdt-matic", tok.ProviderTokenId)

	assert.Empty(t, m.EntriesFor("unknown"))
	assert.Equal(t, []string{"circle", "prime"}, m.Providers())
	assert.Equal(t, []string{"standard"}, m.WalletTypes())
}

func TestMatrix_Lookups(t *testing.T) {
	m, err := Parse([]byte(sampleMatrix))
	require.NoError(t, err)

	assert.True(t, m.Supports("USDT", "matic"))
	assert.True(t, m.Supports("USDT", "bep20"))
	assert.False(t, m.Supports("USDC", "bep20"))
	assert.False(t, m.Supports("USDT", "trc20"))

	routes := m.Routes("USDT", "matic")
	require.Len(t, routes, 1)
	assert.Equal(t, "circle", routes[0].Provider)

	e, ok := m.Lookup("standard", "prime", "bep20")
	require.True(t, ok)
	assert.Equal(t, "bnb-mainnet", e.ProviderNetwork())

	_, ok = m.Lookup("standard", "prime", "matic")
	assert.False(t, ok)

	assert.Len(t, m.ProviderEntries("standard", "circle"), 1)
}

func TestParse_ConflictingTokens(t *testing.T) {
	data := `
capabilities:
  - wallet_type: standard
    provider: circle
    network: matic
    tokens:
      - symbol: USDT
  - wallet_type: standard
    provider: circle
    network: matic
    tokens:
      - symbol: USDC
`
	_, err := Parse([]byte(data))
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, 1, cfgErr.Entry)
	assert.Contains(t, err.Error(), "conflicting token lists")
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		reason  string
	}{
		{
			name:    "missing provider",
			entries: []Entry{{WalletType: "standard", Network: "matic", Tokens: []Token{{Symbol: "USDT"}}}},
			reason:  "required",
		},
		{
			name:    "no tokens",
			entries: []Entry{{WalletType: "standard", Provider: "circle", Network: "matic"}},
			reason:  "at least one token",
		},
		{
			name: "duplicate symbol",
			entries: []Entry{{WalletType: "standard", Provider: "circle", Network: "matic",
				Tokens: []Token{{Symbol: "USDT"}, {Symbol: "usdt"}}}},
			reason: "duplicate token USDT",
		},
		{
			name: "network owned twice",
			entries: []Entry{
				{WalletType: "standard", Provider: "circle", Network: "matic", Tokens: []Token{{Symbol: "USDT"}}},
				{WalletType: "standard", Provider: "fireblocks", Network: "matic", Tokens: []Token{{Symbol: "USDT"}}},
			},
			reason: "claimed by both circle and fireblocks",
		},
		{
			name:    "empty",
			entries: nil,
			reason:  "no capabilities configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.entries)
			require.Error(t, err)
			var cfgErr *ConfigurationError
			assert.True(t, errors.As(err, &cfgErr))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestNew_SameNetworkDifferentWalletTypes(t *testing.T) {
	m, err := New([]Entry{
		{WalletType: "standard", Provider: "circle", Network: "matic", Tokens: []Token{{Symbol: "USDT"}}},
		{WalletType: "savings", Provider: "fireblocks", Network: "matic", Tokens: []Token{{Symbol: "USDT"}}},
	})
	require.NoError(t, err)
	assert.Len(t, m.Routes("USDT", "matic"), 2)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("capabilities: [this is: not valid"))
	require.Error(t, err)
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

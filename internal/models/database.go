package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// User represents a user in the system
type User struct {
	Id        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// WalletProfile groups a user's wallets at one provider
type WalletProfile struct {
	Id        string    `db:"id"`
	UserId    string    `db:"user_id"`
	Provider  string    `db:"provider"`
	CreatedAt time.Time `db:"created_at"`
}

// Wallet represents a provider-issued wallet owned by a WalletProfile.
// It may span several networks, one address per network.
type Wallet struct {
	Id               string                     `db:"id"`
	ProfileId        string                     `db:"profile_id"`
	UserId           string                     `db:"user_id"`
	Provider         string                     `db:"provider"`
	WalletType       string                     `db:"wallet_type"`
	ProviderWalletId string                     `db:"provider_wallet_id"`
	DefaultNetwork   string                     `db:"default_network"`
	Networks         map[string]NetworkMetadata `db:"-"`
	Tokens           []Token                    `db:"-"`
	CreatedAt        time.Time                  `db:"created_at"`
}

// NetworkMetadata is the per-network address data of a wallet
type NetworkMetadata struct {
	Network         string `db:"network"`
	Address         string `db:"address"`
	ProviderTokenId string `db:"provider_token_id"`
	Memo            string `db:"memo"`
}

// HasPlaceholder reports whether the address has not been derived yet
func (n NetworkMetadata) HasPlaceholder() bool {
	return IsPlaceholderAddress(n.Address)
}

// Token is the cached mirror of a provider-side balance. Address is set only
// for providers that derive a separate address per token.
type Token struct {
	Id        string          `db:"id"`
	WalletId  string          `db:"wallet_id"`
	AssetCode string          `db:"asset_code"`
	Network   string          `db:"network"`
	Balance   decimal.Decimal `db:"balance"`
	Address   string          `db:"address"`
	Memo      string          `db:"memo"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// AddressPlaceholder marks a network address the provider has not derived yet.
const AddressPlaceholder = ""

func IsPlaceholderAddress(address string) bool {
	return address == AddressPlaceholder
}

// SameAddress compares two addresses. Hex addresses compare without case;
// any other encoding (base58, bech32) is compared exactly.
func SameAddress(a, b string) bool {
	if IsPlaceholderAddress(a) || IsPlaceholderAddress(b) {
		return false
	}
	if isHexAddress(a) && isHexAddress(b) {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func isHexAddress(address string) bool {
	return len(address) > 2 && (address[:2] == "0x" || address[:2] == "0X")
}

// HasNetwork reports whether the wallet carries metadata for the network
func (w *Wallet) HasNetwork(network string) bool {
	_, ok := w.Networks[network]
	return ok
}

// DepositAddress returns the address that receives an asset on a network:
// the token's own address when the provider derives one per token, otherwise
// the network address.
func (w *Wallet) DepositAddress(assetCode, network string) (address, memo string) {
	if t, ok := w.Token(assetCode, network); ok && !IsPlaceholderAddress(t.Address) {
		return t.Address, t.Memo
	}
	meta := w.Networks[network]
	return meta.Address, meta.Memo
}

// Token returns the cached token for an asset on a network
func (w *Wallet) Token(assetCode, network string) (Token, bool) {
	for _, t := range w.Tokens {
		if t.AssetCode == assetCode && t.Network == network {
			return t, true
		}
	}
	return Token{}, false
}

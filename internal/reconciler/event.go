package reconciler

import (
	"github.com/shopspring/decimal"
)

const (
	EventDepositSettled    = "deposit.settled"
	EventWithdrawalSettled = "withdrawal.settled"
	EventWithdrawalFailed  = "withdrawal.failed"
	EventAddressGenerated  = "address.generated"
)

// Event is a provider event decoded at the boundary. The set of variants is closed.
type Event interface {
	Name() string
	event()
}

// DepositSettled reports funds that arrived at one of our deposit addresses.
type DepositSettled struct {
	ProviderTransactionId string
	AssetCode             string
	Network               string
	Amount                decimal.Decimal
	Fee                   decimal.Decimal
	SourceAddress         string
	DepositAddress        string
	TxHash                string
}

// WithdrawalSettled reports that a withdrawal we initiated completed.
type WithdrawalSettled struct {
	ProviderTransactionId string
	Fee                   decimal.Decimal
	TxHash                string
}

// WithdrawalFailed reports that a withdrawal we initiated will not complete.
type WithdrawalFailed struct {
	ProviderTransactionId string
	Reason                string
}

// AddressGenerated reports an address the provider derived after wallet
// creation. AssetCode is required by providers that derive one per token.
type AddressGenerated struct {
	ProviderWalletId string
	AssetCode        string
	Network          string
	Address          string
	Memo             string
}

// Unknown carries an event name nothing handles.
type Unknown struct {
	EventName string
}

func (DepositSettled) Name() string    { return EventDepositSettled }
func (WithdrawalSettled) Name() string { return EventWithdrawalSettled }
func (WithdrawalFailed) Name() string  { return EventWithdrawalFailed }
func (AddressGenerated) Name() string  { return EventAddressGenerated }
func (u Unknown) Name() string         { return u.EventName }

func (DepositSettled) event()    {}
func (WithdrawalSettled) event() {}
func (WithdrawalFailed) event()  {}
func (AddressGenerated) event()  {}
func (Unknown) event()           {}

type Outcome string

const (
	Applied        Outcome = "applied"
	Duplicate      Outcome = "duplicate"
	Unattributable Outcome = "unattributable"
	Ignored        Outcome = "ignored"
	Failed         Outcome = "failed"
)

// Package webhook decodes provider event envelopes and serves the HTTP surface.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"

	"custody-wallet-go/internal/reconciler"

	"github.com/shopspring/decimal"
)

var ErrMalformedPayload = errors.New("malformed webhook payload")

// Envelope is the discriminated payload every provider delivery is normalized to.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type depositData struct {
	TransactionId  string          `json:"transaction_id"`
	Asset          string          `json:"asset"`
	Network        string          `json:"network"`
	Amount         decimal.Decimal `json:"amount"`
	Fee            decimal.Decimal `json:"fee"`
	SourceAddress  string          `json:"source_address"`
	DepositAddress string          `json:"deposit_address"`
	TxHash         string          `json:"tx_hash"`
}

type withdrawalData struct {
	TransactionId string          `json:"transaction_id"`
	Fee           decimal.Decimal `json:"fee"`
	TxHash        string          `json:"tx_hash"`
	Reason        string          `json:"reason"`
}

type addressData struct {
	WalletId string `json:"wallet_id"`
	Asset    string `json:"asset"`
	Network  string `json:"network"`
	Address  string `json:"address"`
	Memo     string `json:"memo"`
}

// Decode turns a raw delivery into a typed event. Event names nothing
// handles decode to reconciler.Unknown rather than an error.
func Decode(payload []byte) (reconciler.Event, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedPayload)
	}

	switch env.Event {
	case reconciler.EventDepositSettled:
		var d depositData
		if err := decodeData(env, &d); err != nil {
			return nil, err
		}
		return reconciler.DepositSettled{
			ProviderTransactionId: d.TransactionId,
			AssetCode:             d.Asset,
			Network:               d.Network,
			Amount:                d.Amount,
			Fee:                   d.Fee,
			SourceAddress:         d.SourceAddress,
			DepositAddress:        d.DepositAddress,
			TxHash:                d.TxHash,
		}, nil

	case reconciler.EventWithdrawalSettled:
		var d withdrawalData
		if err := decodeData(env, &d); err != nil {
			return nil, err
		}
		return reconciler.WithdrawalSettled{ProviderTransactionId: d.TransactionId, Fee: d.Fee, TxHash: d.TxHash}, nil

	case reconciler.EventWithdrawalFailed:
		var d withdrawalData
		if err := decodeData(env, &d); err != nil {
			return nil, err
		}
		return reconciler.WithdrawalFailed{ProviderTransactionId: d.TransactionId, Reason: d.Reason}, nil

	case reconciler.EventAddressGenerated:
		var d addressData
		if err := decodeData(env, &d); err != nil {
			return nil, err
		}
		return reconciler.AddressGenerated{
			ProviderWalletId: d.WalletId,
			AssetCode:        d.Asset,
			Network:          d.Network,
			Address:          d.Address,
			Memo:             d.Memo,
		}, nil
	}

	return reconciler.Unknown{EventName: env.Event}, nil
}

func decodeData(env Envelope, target interface{}) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: %s has no data", ErrMalformedPayload, env.Event)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrMalformedPayload, env.Event, err)
	}
	return nil
}

// TxHash returns the on-chain hash an event carries, if any.
func TxHash(ev reconciler.Event) string {
	switch e := ev.(type) {
	case reconciler.DepositSettled:
		return e.TxHash
	case reconciler.WithdrawalSettled:
		return e.TxHash
	}
	return ""
}

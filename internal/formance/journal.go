package formance

import (
	"context"
	"fmt"

	"custody-wallet-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// Deposits move funds from the provider's network account to the user.
const numscriptDeposit = `vars {
  asset $asset
  number $amount
  account $user_id
  account $provider
  account $network
  string $provider_tx_id
  string $asset_symbol
  string $amount_human
  string $fee_human
  string $wallet_id
  string $source
}

send [$asset $amount] (
  source = @providers:$provider:$network allowing unbounded overdraft
  destination = @users:$user_id
)

set_tx_meta("event_type", "deposit_settled")
set_tx_meta("provider_tx_id", $provider_tx_id)
set_tx_meta("asset_symbol", $asset_symbol)
set_tx_meta("amount_human", $amount_human)
set_tx_meta("fee_human", $fee_human)
set_tx_meta("wallet_id", $wallet_id)
set_tx_meta("source", $source)
`

// Withdrawals move funds from the user back to the provider's network account.
const numscriptWithdrawal = `vars {
  asset $asset
  number $amount
  account $user_id
  account $provider
  account $network
  string $provider_tx_id
  string $asset_symbol
  string $amount_human
  string $fee_human
  string $wallet_id
  string $source
}

send [$asset $amount] (
  source = @users:$user_id allowing unbounded overdraft
  destination = @providers:$provider:$network
)

set_tx_meta("event_type", "withdrawal_settled")
set_tx_meta("provider_tx_id", $provider_tx_id)
set_tx_meta("asset_symbol", $asset_symbol)
set_tx_meta("amount_human", $amount_human)
set_tx_meta("fee_human", $fee_human)
set_tx_meta("wallet_id", $wallet_id)
set_tx_meta("source", $source)
`

// reference makes a replayed settlement conflict with the first one.
func reference(record models.TransactionRecord) string {
	return record.ProviderTransactionId + "-" + string(record.Status)
}

func postTransaction(ctx context.Context, record models.TransactionRecord) shared.V2PostTransaction {
	script := numscriptDeposit
	if record.Direction == models.DirectionOutbound {
		script = numscriptWithdrawal
	}

	source := "webhook"
	sc := models.GetSettlementContext(ctx)
	if sc != nil && sc.Source != "" {
		source = sc.Source
	}

	postTx := shared.V2PostTransaction{
		Reference: strPtr(reference(record)),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars: map[string]string{
				"asset":          formanceAsset(record.AssetCode),
				"amount":         record.Amount.Shift(int32(precisionFor(record.AssetCode))).BigInt().String(),
				"user_id":        record.UserId,
				"provider":       record.Provider,
				"network":        record.Network,
				"provider_tx_id": record.ProviderTransactionId,
				"asset_symbol":   record.AssetCode,
				"amount_human":   record.Amount.String(),
				"fee_human":      record.Fee.String(),
				"wallet_id":      record.WalletId,
				"source":         source,
			},
		},
	}
	if sc != nil && !sc.ReceivedAt.IsZero() {
		ts := sc.ReceivedAt
		postTx.Timestamp = &ts
	}
	return postTx
}

// Record journals a settled record. Records that are not Done are skipped,
// and a conflicting reference means the record was already journaled.
func (j *Journal) Record(ctx context.Context, record models.TransactionRecord) error {
	if record.Status != models.StatusDone {
		return nil
	}

	_, err := j.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            j.ledger,
		V2PostTransaction: postTransaction(ctx, record),
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Transaction already journaled", zap.String("reference", reference(record)))
			return nil
		}
		return fmt.Errorf("error journaling transaction %s: %w", record.ProviderTransactionId, err)
	}

	zap.L().Info("Transaction journaled in Formance",
		zap.String("reference", reference(record)),
		zap.String("user_id", record.UserId),
		zap.String("direction", string(record.Direction)),
		zap.String("asset", record.AssetCode),
		zap.String("amount", record.Amount.String()))
	return nil
}

func strPtr(s string) *string { return &s }

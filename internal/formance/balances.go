package formance

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MirroredBalance returns the journaled balance of a user's account for an
// asset. It is compared against provider balances for audit only.
func (j *Journal) MirroredBalance(ctx context.Context, userId, asset string) (decimal.Decimal, error) {
	zap.L().Debug("Getting mirrored balance from Formance",
		zap.String("user_id", userId), zap.String("asset", asset))

	vols, err := j.getAccountVolumes(ctx, "users:"+userId)
	if err != nil {
		return decimal.Zero, err
	}
	if bal := volumeBalance(vols, formanceAsset(asset)); bal != nil {
		return bigIntToDecimal(bal, asset), nil
	}
	return decimal.Zero, nil
}

// MirroredBalances returns every journaled asset balance of a user, keyed by symbol.
func (j *Journal) MirroredBalances(ctx context.Context, userId string) (map[string]decimal.Decimal, error) {
	vols, err := j.getAccountVolumes(ctx, "users:"+userId)
	if err != nil {
		return nil, err
	}
	return balancesFromVolumes(vols), nil
}

func balancesFromVolumes(vols map[string]shared.V2Volume) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(vols))
	for fAsset := range vols {
		symbol := assetSymbol(fAsset)
		out[symbol] = bigIntToDecimal(volumeBalance(vols, fAsset), symbol)
	}
	return out
}

// ---------- helpers ----------

// getAccountVolumes fetches volumes for a single account via GetAccount.
func (j *Journal) getAccountVolumes(ctx context.Context, address string) (map[string]shared.V2Volume, error) {
	resp, err := j.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  j.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account volumes for %s: %w", address, err)
	}
	return resp.V2AccountResponse.Data.Volumes, nil
}

// isNotFoundError checks whether a Formance SDK error is NOT_FOUND.
func isNotFoundError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumNotFound
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a *big.Int in smallest-unit to a human-readable decimal.
func bigIntToDecimal(raw *big.Int, symbol string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(symbol)))
}

// assetSymbol extracts the symbol from a Formance asset like "USDC/6".
func assetSymbol(fAsset string) string {
	for i, c := range fAsset {
		if c == '/' {
			return fAsset[:i]
		}
	}
	return fAsset
}

// Package rates supplies the local-currency exchange rate of each asset.
package rates

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Source is read-only to its consumers; refreshing happens elsewhere.
type Source interface {
	Rate(ctx context.Context, assetCode string) (decimal.Decimal, bool)
}

// Static is a fixed rate table keyed by upper-case asset code.
type Static map[string]decimal.Decimal

func (s Static) Rate(_ context.Context, assetCode string) (decimal.Decimal, bool) {
	rate, ok := s[strings.ToUpper(assetCode)]
	return rate, ok
}

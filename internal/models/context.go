package models

import (
	"context"
	"time"
)

type settlementContextKey struct{}

// SettlementContext carries delivery details of a settlement through context
// so the journal can store them as transaction metadata without widening
// the reconciler's interfaces.
type SettlementContext struct {
	Provider   string    // provider that reported the settlement
	Source     string    // "webhook" or "poller"
	EventType  string    // raw event name (e.g. "deposit.settled")
	TxHash     string    // on-chain hash when the provider reports one
	ReceivedAt time.Time // when this process observed the event
}

// WithSettlementContext attaches settlement delivery data to a context.
func WithSettlementContext(ctx context.Context, sc *SettlementContext) context.Context {
	return context.WithValue(ctx, settlementContextKey{}, sc)
}

// GetSettlementContext retrieves settlement delivery data from context, or nil if absent.
func GetSettlementContext(ctx context.Context) *SettlementContext {
	sc, _ := ctx.Value(settlementContextKey{}).(*SettlementContext)
	return sc
}

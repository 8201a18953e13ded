// Package notify delivers user-facing notifications. Delivery is best effort:
// failures are logged and never reach the caller that triggered them.
package notify

import (
	"context"
	"time"

	"custody-wallet-go/internal/models"
)

type Notification struct {
	UserId   string            `json:"user_id"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Emitter interface {
	Emit(ctx context.Context, n Notification) error
}

// notificationStore is the slice of store.WalletStore the emitters need.
type notificationStore interface {
	CreateNotification(ctx context.Context, n *models.NotificationRecord) error
	DeleteExpiredNotifications(ctx context.Context, now time.Time) (int64, error)
}

// StoreEmitter persists notifications into the user's inbox.
type StoreEmitter struct {
	store notificationStore
	ttl   time.Duration
	now   func() time.Time
}

func NewStoreEmitter(st notificationStore, ttl time.Duration) *StoreEmitter {
	return &StoreEmitter{store: st, ttl: ttl, now: time.Now}
}

func (e *StoreEmitter) Emit(ctx context.Context, n Notification) error {
	now := e.now().UTC()
	return e.store.CreateNotification(ctx, &models.NotificationRecord{
		UserId:    n.UserId,
		Title:     n.Title,
		Message:   n.Message,
		Metadata:  n.Metadata,
		ExpiresAt: now.Add(e.ttl),
		CreatedAt: now,
	})
}

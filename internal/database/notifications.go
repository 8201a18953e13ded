package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"custody-wallet-go/internal/models"
	"custody-wallet-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Service) CreateNotification(ctx context.Context, n *models.NotificationRecord) error {
	if n.Id == "" {
		n.Id = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = nowUTC()
	}

	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal notification metadata: %w", err)
	}

	_, err = s.exec(ctx, queryInsertNotification,
		n.Id, n.UserId, n.Title, n.Message, string(metadata), n.Consumed, n.ExpiresAt.UTC(), n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's unexpired notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, userId string, includeConsumed bool) ([]models.NotificationRecord, error) {
	q := queryListUnconsumedNotifications
	if includeConsumed {
		q = queryListNotifications
	}

	rows, err := s.query(ctx, q, userId, nowUTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer closeRows(rows)

	var out []models.NotificationRecord
	for rows.Next() {
		var n models.NotificationRecord
		var metadata string
		if err := rows.Scan(&n.Id, &n.UserId, &n.Title, &n.Message, &metadata, &n.Consumed, &n.ExpiresAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if metadata != "" && metadata != "null" {
			if err := json.Unmarshal([]byte(metadata), &n.Metadata); err != nil {
				return nil, fmt.Errorf("failed to parse notification metadata: %w", err)
			}
		}
		out = append(out, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}
	return out, nil
}

func (s *Service) MarkNotificationConsumed(ctx context.Context, id string) error {
	result, err := s.exec(ctx, queryMarkNotificationConsumed, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification consumed: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: notification %s", store.ErrNotFound, id)
	}
	return nil
}

func (s *Service) DeleteExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.exec(ctx, queryDeleteExpiredNotifications, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if deleted > 0 {
		zap.L().Info("Expired notifications deleted", zap.Int64("count", deleted))
	}
	return deleted, nil
}

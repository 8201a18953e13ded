package common

import (
	"context"
	"fmt"
	"strings"

	"custody-wallet-go/internal/models"

	"go.uber.org/zap"
)

// UserLookup is the part of the store the commands select users from.
type UserLookup interface {
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// SelectUsers returns the active user registered under email, or every
// active user when email is blank.
func SelectUsers(ctx context.Context, users UserLookup, email string) ([]models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		all, err := users.GetUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get users: %w", err)
		}
		zap.L().Info("Selected all users", zap.Int("count", len(all)))
		return all, nil
	}

	user, err := users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", email, err)
	}
	zap.L().Info("Selected user by email", zap.String("email", email), zap.String("user_id", user.Id))
	return []models.User{*user}, nil
}

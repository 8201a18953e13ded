// Package databasetest opens throwaway in-memory stores for tests.
package databasetest

import (
	"context"
	"testing"
	"time"

	"custody-wallet-go/internal/database"
	"custody-wallet-go/internal/models"
)

// New returns an empty in-memory sqlite store closed at the end of the test.
func New(t testing.TB) *database.Service {
	t.Helper()

	svc, err := database.NewService(context.Background(), models.DatabaseConfig{
		Driver:       database.DriverSqlite,
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	t.Cleanup(svc.Close)
	return svc
}

// NewUser creates a user with a derived email.
func NewUser(t testing.TB, svc *database.Service, userId string) *models.User {
	t.Helper()

	user, err := svc.CreateUser(context.Background(), userId, "Test "+userId, userId+"@example.com")
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", userId, err)
	}
	return user
}

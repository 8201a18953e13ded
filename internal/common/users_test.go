package common

import (
	"context"
	"errors"
	"testing"

	"custody-wallet-go/internal/database/databasetest"
	"custody-wallet-go/internal/models"
	"custody-wallet-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectUsers(t *testing.T) {
	ctx := context.Background()
	db := databasetest.New(t)
	databasetest.NewUser(t, db, "user-1")
	databasetest.NewUser(t, db, "user-2")

	all, err := SelectUsers(ctx, db, "  ")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := SelectUsers(ctx, db, " user-2@example.com ")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "user-2", one[0].Id)

	_, err = SelectUsers(ctx, db, "nobody@example.com")
	assert.True(t, errors.Is(err, store.ErrUserNotFound))
}

func TestUserBox(t *testing.T) {
	box := userBox(models.User{Id: "u-1", Name: "Ada", Email: "ada@example.com"}, 10, "Total: 1.00 NGN")

	assert.Equal(t, "\n┌─ User: Ada (ada@example.com)\n│  ID: u-1\n│  Total: 1.00 NGN\n├────────\n", box)
}

func TestDisplayAddressAndFormatLocal(t *testing.T) {
	assert.Equal(t, "(pending)", DisplayAddress(""))
	assert.Equal(t, "0xabc", DisplayAddress("0xabc"))
	assert.Equal(t, "40000.50 NGN", FormatLocal(decimal.RequireFromString("40000.5"), "NGN"))
}

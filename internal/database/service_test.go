package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"custody-wallet-go/internal/models"
	"custody-wallet-go/internal/store"

	"github.com/shopspring/decimal"
)

func setupTestDb(t *testing.T) *Service {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// each connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	service := newService(db, DriverSqlite)
	if err := service.initSchema(context.Background(), false); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return service
}

func seedWallet(t *testing.T, s *Service, userId string) *models.Wallet {
	t.Helper()
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, userId, "Test User", userId+"@example.com"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	profile, err := s.EnsureProfile(ctx, userId, "fireblocks")
	if err != nil {
		t.Fatalf("EnsureProfile failed: %v", err)
	}

	wallet := &models.Wallet{
		ProfileId:        profile.Id,
		UserId:           userId,
		Provider:         "fireblocks",
		WalletType:       "bep20",
		ProviderWalletId: "vault-" + userId,
		DefaultNetwork:   "bsc",
		Networks: map[string]models.NetworkMetadata{
			"bsc":  {Network: "bsc", Address: "0xAbC" + userId},
			"tron": {Network: "tron"},
		},
		Tokens: []models.Token{
			{AssetCode: "USDT", Network: "bsc", Balance: decimal.Zero},
			{AssetCode: "USDT", Network: "tron", Balance: decimal.Zero},
		},
	}
	if err := s.SaveWallet(ctx, wallet); err != nil {
		t.Fatalf("SaveWallet failed: %v", err)
	}
	return wallet
}

func TestRebind(t *testing.T) {
	pg := newService(nil, DriverPostgres)
	got := pg.rebind("SELECT a FROM t WHERE b = ? AND c = ? LIMIT ?")
	if got != "SELECT a FROM t WHERE b = $1 AND c = $2 LIMIT $3" {
		t.Errorf("unexpected rebind: %s", got)
	}

	lite := newService(nil, DriverSqlite)
	if lite.rebind("x = ?") != "x = ?" {
		t.Errorf("sqlite query must not be rewritten")
	}
}

func TestEnsureProfile_Idempotent(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "user1", "Test User", "test@example.com"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	first, err := s.EnsureProfile(ctx, "user1", "circle")
	if err != nil {
		t.Fatalf("EnsureProfile failed: %v", err)
	}
	second, err := s.EnsureProfile(ctx, "user1", "circle")
	if err != nil {
		t.Fatalf("EnsureProfile failed: %v", err)
	}
	if first.Id != second.Id {
		t.Errorf("Expected same profile, got %s and %s", first.Id, second.Id)
	}

	profiles, err := s.GetProfiles(ctx, "user1")
	if err != nil {
		t.Fatalf("GetProfiles failed: %v", err)
	}
	if len(profiles) != 1 {
		t.Errorf("Expected 1 profile, got %d", len(profiles))
	}
}

func TestGetUserById_NotFound(t *testing.T) {
	s := setupTestDb(t)

	_, err := s.GetUserById(context.Background(), "missing")
	if !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestSaveWallet_RoundTrip(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()
	saved := seedWallet(t, s, "user1")

	wallets, err := s.GetWallets(ctx, "user1")
	if err != nil {
		t.Fatalf("GetWallets failed: %v", err)
	}
	if len(wallets) != 1 {
		t.Fatalf("Expected 1 wallet, got %d", len(wallets))
	}

	w := wallets[0]
	if w.Id != saved.Id || w.ProviderWalletId != "vault-user1" {
		t.Errorf("Unexpected wallet: %+v", w)
	}
	if len(w.Networks) != 2 {
		t.Errorf("Expected 2 networks, got %d", len(w.Networks))
	}
	if !w.Networks["tron"].HasPlaceholder() {
		t.Errorf("Expected tron address to be a placeholder")
	}
	if len(w.Tokens) != 2 {
		t.Errorf("Expected 2 tokens, got %d", len(w.Tokens))
	}

	byProvider, err := s.FindWalletByProviderId(ctx, "fireblocks", "vault-user1")
	if err != nil {
		t.Fatalf("FindWalletByProviderId failed: %v", err)
	}
	if byProvider.Id != saved.Id {
		t.Errorf("Expected wallet %s, got %s", saved.Id, byProvider.Id)
	}
}

func TestFindWalletByAddress(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()
	saved := seedWallet(t, s, "user1")

	w, err := s.FindWalletByAddress(ctx, "0xabcUSER1")
	if err != nil {
		t.Fatalf("FindWalletByAddress failed: %v", err)
	}
	if w.Id != saved.Id {
		t.Errorf("Expected wallet %s, got %s", saved.Id, w.Id)
	}

	if _, err := s.FindWalletByAddress(ctx, "0xunknown"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindWalletByAddress(ctx, ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for placeholder, got %v", err)
	}
}

func TestSetNetworkAddress_OnlyPlaceholder(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()
	saved := seedWallet(t, s, "user1")

	updated, err := s.SetNetworkAddress(ctx, saved.Id, "tron", "TXYZ", "", true)
	if err != nil || !updated {
		t.Fatalf("Expected placeholder to be filled, updated=%v err=%v", updated, err)
	}

	updated, err = s.SetNetworkAddress(ctx, saved.Id, "tron", "TOTHER", "", true)
	if err != nil {
		t.Fatalf("SetNetworkAddress failed: %v", err)
	}
	if updated {
		t.Errorf("Expected populated address to be left alone")
	}

	w, err := s.GetWallet(ctx, saved.Id)
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if w.Networks["tron"].Address != "TXYZ" {
		t.Errorf("Expected TXYZ, got %s", w.Networks["tron"].Address)
	}
}

func TestFindWalletByAddress_Base58ExactMatch(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()
	saved := seedWallet(t, s, "user1")

	if _, err := s.SetNetworkAddress(ctx, saved.Id, "tron", "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE", "", true); err != nil {
		t.Fatalf("SetNetworkAddress failed: %v", err)
	}

	w, err := s.FindWalletByAddress(ctx, "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE")
	if err != nil {
		t.Fatalf("FindWalletByAddress failed: %v", err)
	}
	if w.Id != saved.Id {
		t.Errorf("Expected wallet %s, got %s", saved.Id, w.Id)
	}

	if _, err := s.FindWalletByAddress(ctx, "TQN9Y2KHESLJW1CHVWFMSMERDOW5KCBLSE"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected base58 look-alike to be rejected, got %v", err)
	}
}

func TestSetTokenAddress(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()
	saved := seedWallet(t, s, "user1")

	updated, err := s.SetTokenAddress(ctx, saved.Id, "USDT", "tron", "TToken", "m-1", true)
	if err != nil || !updated {
		t.Fatalf("Expected token address to be set, updated=%v err=%v", updated, err)
	}

	updated, err = s.SetTokenAddress(ctx, saved.Id, "USDT", "tron", "TOther", "", true)
	if err != nil {
		t.Fatalf("SetTokenAddress failed: %v", err)
	}
	if updated {
		t.Errorf("Expected populated token address to be left alone")
	}

	w, err := s.GetWallet(ctx, saved.Id)
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !w.Networks["tron"].HasPlaceholder() {
		t.Errorf("Expected network address to stay a placeholder")
	}
	address, memo := w.DepositAddress("USDT", "tron")
	if address != "TToken" || memo != "m-1" {
		t.Errorf("Expected TToken/m-1, got %s/%s", address, memo)
	}

	found, err := s.FindWalletByAddress(ctx, "TToken")
	if err != nil {
		t.Fatalf("FindWalletByAddress failed for token address: %v", err)
	}
	if found.Id != saved.Id {
		t.Errorf("Expected wallet %s, got %s", saved.Id, found.Id)
	}
}

func TestUpdateTokenBalance(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()
	saved := seedWallet(t, s, "user1")

	if err := s.UpdateTokenBalance(ctx, saved.Id, "USDT", "bsc", decimal.RequireFromString("12.5")); err != nil {
		t.Fatalf("UpdateTokenBalance failed: %v", err)
	}
	// creates a missing token
	if err := s.UpdateTokenBalance(ctx, saved.Id, "USDC", "bsc", decimal.NewFromInt(3)); err != nil {
		t.Fatalf("UpdateTokenBalance failed: %v", err)
	}

	w, err := s.GetWallet(ctx, saved.Id)
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	usdt, ok := w.Token("USDT", "bsc")
	if !ok || !usdt.Balance.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("Expected USDT balance 12.5, got %v (found=%v)", usdt.Balance, ok)
	}
	if _, ok := w.Token("USDC", "bsc"); !ok {
		t.Errorf("Expected USDC token to be created")
	}
	if len(w.Tokens) != 3 {
		t.Errorf("Expected 3 tokens, got %d", len(w.Tokens))
	}
}

func newRecord(providerTxId string, status models.TransactionStatus) *models.TransactionRecord {
	return &models.TransactionRecord{
		ProviderTransactionId: providerTxId,
		Provider:              "fireblocks",
		Direction:             models.DirectionOutbound,
		AssetCode:             "USDT",
		Network:               "bsc",
		Amount:                decimal.RequireFromString("1.5"),
		Status:                status,
		DestinationAddress:    "0xdest",
		WalletId:              "wallet1",
		UserId:                "user1",
	}
}

func TestCreateTransaction_Duplicate(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()

	if err := s.CreateTransaction(ctx, newRecord("tx1", models.StatusProcessing)); err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	err := s.CreateTransaction(ctx, newRecord("tx1", models.StatusDone))
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Fatalf("Expected ErrDuplicateTransaction, got %v", err)
	}

	record, err := s.FindTransactionByProviderId(ctx, "tx1")
	if err != nil {
		t.Fatalf("FindTransactionByProviderId failed: %v", err)
	}
	if record.Status != models.StatusProcessing {
		t.Errorf("Expected first write to win, got status %s", record.Status)
	}
	if !record.Amount.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Expected amount 1.5, got %s", record.Amount)
	}

	if _, err := s.FindTransactionByProviderId(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpdateTransactionStatus_TerminalIsFinal(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()

	record := newRecord("tx1", models.StatusProcessing)
	if err := s.CreateTransaction(ctx, record); err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	err := s.UpdateTransactionStatus(ctx, store.StatusUpdate{Id: record.Id, Status: models.StatusDone, Fee: decimal.RequireFromString("0.01")})
	if err != nil {
		t.Fatalf("UpdateTransactionStatus failed: %v", err)
	}

	err = s.UpdateTransactionStatus(ctx, store.StatusUpdate{Id: record.Id, Status: models.StatusFailed})
	if !errors.Is(err, store.ErrTerminalStatus) {
		t.Fatalf("Expected ErrTerminalStatus, got %v", err)
	}

	got, err := s.FindTransactionByProviderId(ctx, "tx1")
	if err != nil {
		t.Fatalf("FindTransactionByProviderId failed: %v", err)
	}
	if got.Status != models.StatusDone {
		t.Errorf("Expected Done, got %s", got.Status)
	}
	if !got.Fee.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("Expected fee 0.01, got %s", got.Fee)
	}

	err = s.UpdateTransactionStatus(ctx, store.StatusUpdate{Id: "missing", Status: models.StatusDone})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRecentAndProcessingTransactions(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"tx1", "tx2", "tx3"} {
		record := newRecord(id, models.StatusProcessing)
		record.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.CreateTransaction(ctx, record); err != nil {
			t.Fatalf("CreateTransaction failed: %v", err)
		}
	}
	done := newRecord("tx4", models.StatusDone)
	if err := s.CreateTransaction(ctx, done); err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	recent, err := s.RecentTransactions(ctx, "user1", "USDT", 2)
	if err != nil {
		t.Fatalf("RecentTransactions failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ProviderTransactionId != "tx4" || recent[1].ProviderTransactionId != "tx3" {
		t.Errorf("Unexpected recent transactions: %+v", recent)
	}

	pending, err := s.ProcessingTransactions(ctx, base.Add(90*time.Second), 10)
	if err != nil {
		t.Fatalf("ProcessingTransactions failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ProviderTransactionId != "tx1" {
		t.Errorf("Unexpected processing transactions: %+v", pending)
	}
}

func TestNotifications(t *testing.T) {
	s := setupTestDb(t)
	ctx := context.Background()
	now := time.Now().UTC()

	live := &models.NotificationRecord{
		UserId:    "user1",
		Title:     "Deposit received",
		Message:   "1.5 USDT",
		Metadata:  map[string]string{"tx": "tx1"},
		ExpiresAt: now.Add(time.Hour),
	}
	expired := &models.NotificationRecord{UserId: "user1", Title: "Old", Message: "old", ExpiresAt: now.Add(-time.Minute)}
	for _, n := range []*models.NotificationRecord{live, expired} {
		if err := s.CreateNotification(ctx, n); err != nil {
			t.Fatalf("CreateNotification failed: %v", err)
		}
	}

	list, err := s.ListNotifications(ctx, "user1", false)
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(list) != 1 || list[0].Metadata["tx"] != "tx1" {
		t.Fatalf("Unexpected notifications: %+v", list)
	}

	if err := s.MarkNotificationConsumed(ctx, live.Id); err != nil {
		t.Fatalf("MarkNotificationConsumed failed: %v", err)
	}
	list, _ = s.ListNotifications(ctx, "user1", false)
	if len(list) != 0 {
		t.Errorf("Expected consumed notification to be hidden, got %d", len(list))
	}
	list, _ = s.ListNotifications(ctx, "user1", true)
	if len(list) != 1 || !list[0].Consumed {
		t.Errorf("Expected consumed notification when included, got %+v", list)
	}

	if err := s.MarkNotificationConsumed(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	deleted, err := s.DeleteExpiredNotifications(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredNotifications failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted notification, got %d", deleted)
	}
}

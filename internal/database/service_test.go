package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"bubble-ledger-go/internal/ledger"
	"bubble-ledger-go/internal/models"
	"bubble-ledger-go/internal/store"

	"github.com/jonboulle/clockwork"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func setupTestService(t *testing.T) (*Service, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	cfg := models.DatabaseConfig{
		Driver:       DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
		LockTimeout:  2 * time.Second,
	}
	service, err := NewService(context.Background(), cfg, WithClock(clock))
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	t.Cleanup(service.Close)
	return service, clock
}

func createAccount(t *testing.T, s *Service, name string) *models.Account {
	t.Helper()
	account, err := s.CreateAccount(context.Background(), store.CreateAccountParams{
		Name:  name,
		Email: fmt.Sprintf("%s@example.com", name),
	})
	if err != nil {
		t.Fatalf("CreateAccount(%s) failed: %v", name, err)
	}
	return account
}

func fundAccount(t *testing.T, s *Service, accountId, amount int64) {
	t.Helper()
	if _, err := s.Deposit(context.Background(), accountId, amount, "test-funding"); err != nil {
		t.Fatalf("Deposit(%d, %d) failed: %v", accountId, amount, err)
	}
}

func mustAccount(t *testing.T, s *Service, accountId int64) *models.Account {
	t.Helper()
	account, err := s.GetAccount(context.Background(), accountId)
	if err != nil {
		t.Fatalf("GetAccount(%d) failed: %v", accountId, err)
	}
	return account
}

func setQueueState(t *testing.T, s *Service, accountId, position, slots int64, progress string) {
	t.Helper()
	_, err := s.db.Exec("UPDATE accounts SET queue_position = ?, queue_slot_count = ?, slot_progress = ? WHERE id = ?",
		position, slots, progress, accountId)
	if err != nil {
		t.Fatalf("Failed to set queue state: %v", err)
	}
}

func assertBalanced(t *testing.T, s *Service) *models.ReconcileReport {
	t.Helper()
	report, err := s.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !report.Balanced() {
		t.Errorf("Ledger not balanced: held %d + retained %d != deposits %d",
			report.Held(), report.GiveawayRetained, report.ExternalDeposits)
	}
	return report
}

func TestNewService_Validation(t *testing.T) {
	ctx := context.Background()
	base := models.DatabaseConfig{
		Driver:       DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "v.db"),
		MaxOpenConns: 1,
		PingTimeout:  time.Second,
		LockTimeout:  time.Second,
	}

	cases := map[string]func(c *models.DatabaseConfig){
		"empty path":      func(c *models.DatabaseConfig) { c.Path = "" },
		"no connections":  func(c *models.DatabaseConfig) { c.MaxOpenConns = 0 },
		"negative idle":   func(c *models.DatabaseConfig) { c.MaxIdleConns = -1 },
		"no ping timeout": func(c *models.DatabaseConfig) { c.PingTimeout = 0 },
		"no lock timeout": func(c *models.DatabaseConfig) { c.LockTimeout = 0 },
		"unknown driver":  func(c *models.DatabaseConfig) { c.Driver = "mysql" },
		"postgres no url": func(c *models.DatabaseConfig) { c.Driver = DriverPostgres; c.Url = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			if _, err := NewService(ctx, cfg); err == nil {
				t.Fatal("Expected configuration error")
			}
		})
	}
}

func TestNewService_DemoAccountsIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := models.DatabaseConfig{
		Driver:             DriverSQLite,
		Path:               filepath.Join(t.TempDir(), "demo.db"),
		MaxOpenConns:       2,
		PingTimeout:        time.Second,
		LockTimeout:        time.Second,
		CreateDemoAccounts: true,
	}
	for i := 0; i < 2; i++ {
		s, err := NewService(ctx, cfg)
		if err != nil {
			t.Fatalf("NewService failed: %v", err)
		}
		accounts, err := s.ListAccounts(ctx)
		s.Close()
		if err != nil {
			t.Fatalf("ListAccounts failed: %v", err)
		}
		if len(accounts) != 3 {
			t.Fatalf("Expected 3 demo accounts after run %d, got %d", i+1, len(accounts))
		}
	}
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	s, _ := setupTestService(t)
	createAccount(t, s, "alice")
	_, err := s.CreateAccount(context.Background(), store.CreateAccountParams{Name: "Other", Email: "alice@example.com"})
	if err == nil {
		t.Fatal("Expected duplicate email to be rejected")
	}
}

func TestGetAccount_NotFound(t *testing.T) {
	s, _ := setupTestService(t)
	_, err := s.GetAccount(context.Background(), 42)
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("Expected ErrAccountNotFound, got %v", err)
	}
}

func TestDeposit_AssignsInitialPositionOnce(t *testing.T) {
	s, _ := setupTestService(t)
	alice := createAccount(t, s, "alice")
	bob := createAccount(t, s, "bob")

	fundAccount(t, s, alice.Id, 100)
	fundAccount(t, s, bob.Id, 100)

	if got := mustAccount(t, s, alice.Id).QueuePosition; got != 1 {
		t.Errorf("Expected alice at position 1, got %d", got)
	}
	if got := mustAccount(t, s, bob.Id).QueuePosition; got != 0 {
		t.Errorf("Expected bob unqueued while position 1 is held, got %d", got)
	}

	fundAccount(t, s, alice.Id, 50)
	if got := mustAccount(t, s, alice.Id).BubbleBalance; got != 150 {
		t.Errorf("Expected balance 150, got %d", got)
	}

	if _, err := s.Deposit(context.Background(), alice.Id, 0, "zero"); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for zero deposit, got %v", err)
	}
}

func TestDeposit_InactiveHeadDoesNotHoldPositionOne(t *testing.T) {
	s, _ := setupTestService(t)
	alice := createAccount(t, s, "alice")
	bob := createAccount(t, s, "bob")

	fundAccount(t, s, alice.Id, 100)
	if err := s.SetAccountActive(context.Background(), alice.Id, false); err != nil {
		t.Fatalf("SetAccountActive failed: %v", err)
	}
	if got := mustAccount(t, s, alice.Id).QueuePosition; got != 1 {
		t.Fatalf("Expected alice to keep position 1 while inactive, got %d", got)
	}

	fundAccount(t, s, bob.Id, 100)
	if got := mustAccount(t, s, bob.Id).QueuePosition; got != 1 {
		t.Errorf("Expected bob at position 1 once the head is inactive, got %d", got)
	}
}

func TestGrantSlots_AppendsPastWatermark(t *testing.T) {
	s, _ := setupTestService(t)
	ctx := context.Background()
	alice := createAccount(t, s, "alice")
	bob := createAccount(t, s, "bob")

	a, err := s.GrantSlots(ctx, alice.Id, 2)
	if err != nil {
		t.Fatalf("GrantSlots failed: %v", err)
	}
	b, err := s.GrantSlots(ctx, bob.Id, 3)
	if err != nil {
		t.Fatalf("GrantSlots failed: %v", err)
	}

	if a.QueuePosition != 1 || a.QueueSlotCount != 2 {
		t.Errorf("Expected alice at 1 with 2 slots, got %d/%d", a.QueuePosition, a.QueueSlotCount)
	}
	if b.QueuePosition != 3 || b.QueueSlotCount != 3 {
		t.Errorf("Expected bob at 3 with 3 slots, got %d/%d", b.QueuePosition, b.QueueSlotCount)
	}

	tracker, err := s.GetQueueTracker(ctx)
	if err != nil {
		t.Fatalf("GetQueueTracker failed: %v", err)
	}
	if tracker.LastAssignedPosition != 5 {
		t.Errorf("Expected watermark 5, got %d", tracker.LastAssignedPosition)
	}
}

func TestSetAccountActive_ClearsTopFlag(t *testing.T) {
	s, _ := setupTestService(t)
	ctx := context.Background()
	alice := createAccount(t, s, "alice")
	if _, err := s.GrantSlots(ctx, alice.Id, 1); err != nil {
		t.Fatalf("GrantSlots failed: %v", err)
	}
	if top, err := s.RecomputeTopUser(ctx); err != nil || top != alice.Id {
		t.Fatalf("Expected alice on top, got %d (%v)", top, err)
	}

	if err := s.SetAccountActive(ctx, alice.Id, false); err != nil {
		t.Fatalf("SetAccountActive failed: %v", err)
	}
	got := mustAccount(t, s, alice.Id)
	if got.IsActive || got.IsTopOfQueue {
		t.Errorf("Expected inactive account without top flag, got active=%v top=%v", got.IsActive, got.IsTopOfQueue)
	}
}

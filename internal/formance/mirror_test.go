package formance

import (
	"context"
	"errors"
	"testing"
	"time"

	"bubble-ledger-go/internal/dispatcher"
	"bubble-ledger-go/internal/models"
)

func TestPostingAccounts(t *testing.T) {
	tests := []struct {
		name   string
		entry  models.LedgerEntry
		source string
		dest   string
	}{
		{"deposit", models.LedgerEntry{Kind: models.KindDeposit, FromAccountId: 3, ToAccountId: 3, Amount: 100}, "world", "accounts:3:balance"},
		{"support", models.LedgerEntry{Kind: models.KindSupport, FromAccountId: 1, ToAccountId: 2, Amount: 10}, "accounts:1:balance", "accounts:2:slots"},
		{"admin support", models.LedgerEntry{Kind: models.KindAdminSupport, FromAccountId: 1, ToAccountId: 2, Amount: 10}, "accounts:1:balance", "accounts:2:slots"},
		{"slot donation", models.LedgerEntry{Kind: models.KindDonation, FromAccountId: 1, ToAccountId: 2, Amount: 10}, "accounts:1:balance", "accounts:2:slots"},
		{"giveaway donation", models.LedgerEntry{Kind: models.KindDonation, FromAccountId: 4, ToAccountId: 4, Amount: 25, Reference: "ab-cd"}, "accounts:4:balance", "giveaways:abcd"},
		{"giveaway transfer", models.LedgerEntry{Kind: models.KindTransfer, FromAccountId: 4, ToAccountId: 5, Amount: 8, Reference: "giveaway:ab-cd"}, "giveaways:abcd", "accounts:5:balance"},
		{"payback", models.LedgerEntry{Kind: models.KindPayback, FromAccountId: 2, ToAccountId: 1, Amount: 10}, "accounts:2:balance", "accounts:1:balance"},
		{"slot payout", models.LedgerEntry{Kind: models.KindSlotPayout, FromAccountId: 2, ToAccountId: 2, Amount: 400}, "accounts:2:slots", "accounts:2:balance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, dest, err := postingAccounts(tt.entry)
			if err != nil {
				t.Fatalf("postingAccounts failed: %v", err)
			}
			if source != tt.source || dest != tt.dest {
				t.Errorf("got %s -> %s, want %s -> %s", source, dest, tt.source, tt.dest)
			}
		})
	}
}

func TestPostingAccounts_SlotCompletionNetsToBalance(t *testing.T) {
	// A supporter funds 1000 and fills the recipient's first slot with 400.
	entries := []models.LedgerEntry{
		{Kind: models.KindDeposit, FromAccountId: 1, ToAccountId: 1, Amount: 1000},
		{Kind: models.KindSupport, FromAccountId: 1, ToAccountId: 2, Amount: 400},
		{Kind: models.KindSlotPayout, FromAccountId: 2, ToAccountId: 2, Amount: 400},
	}
	volumes := map[string]int64{}
	for _, entry := range entries {
		source, dest, err := postingAccounts(entry)
		if err != nil {
			t.Fatalf("postingAccounts(%s) failed: %v", entry.Kind, err)
		}
		volumes[source] -= entry.Amount
		volumes[dest] += entry.Amount
	}

	want := map[string]int64{
		"world":              -1000,
		"accounts:1:balance": 600,
		"accounts:2:balance": 400,
		"accounts:2:slots":   0,
	}
	for account, amount := range want {
		if volumes[account] != amount {
			t.Errorf("%s = %d, want %d", account, volumes[account], amount)
		}
	}
}

func TestPostingAccounts_Rejects(t *testing.T) {
	for _, entry := range []models.LedgerEntry{
		{Kind: "mystery", Amount: 1},
		{Kind: models.KindSupport, Amount: 0},
	} {
		if _, _, err := postingAccounts(entry); !errors.Is(err, dispatcher.ErrPermanent) {
			t.Errorf("expected permanent error for %+v, got %v", entry, err)
		}
	}
}

func TestPostTransaction(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tx, err := postTransaction(models.LedgerEntry{
		TransactionId: "tx-1",
		Kind:          models.KindSupport,
		Status:        models.StatusPending,
		FromAccountId: 1,
		ToAccountId:   2,
		Amount:        150,
		CreatedAt:     created,
	})
	if err != nil {
		t.Fatalf("postTransaction failed: %v", err)
	}
	if tx.Reference == nil || *tx.Reference != "tx-1" {
		t.Errorf("expected reference tx-1, got %v", tx.Reference)
	}
	if tx.Timestamp == nil || !tx.Timestamp.Equal(created) {
		t.Errorf("expected timestamp %v, got %v", created, tx.Timestamp)
	}
	vars := tx.Script.Vars
	if vars["asset"] != bubbleAsset || vars["amount"] != "150" || vars["status"] != "pending" {
		t.Errorf("unexpected vars: %v", vars)
	}
}

func TestDeliver_BadPayloadIsPermanent(t *testing.T) {
	m := &Mirror{ledger: "test"}
	err := m.Deliver(context.Background(), models.OutboxEvent{Payload: []byte("nope")})
	if !errors.Is(err, dispatcher.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

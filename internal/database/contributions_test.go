package database

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"bubble-ledger-go/internal/ledger"
	"bubble-ledger-go/internal/models"
	"bubble-ledger-go/internal/store"
)

// setupPair returns a funded supporter and a recipient holding slots open slots.
func setupPair(t *testing.T, s *Service, funds, slots int64) (*models.Account, *models.Account) {
	t.Helper()
	supporter := createAccount(t, s, "supporter")
	recipient := createAccount(t, s, "recipient")
	fundAccount(t, s, supporter.Id, funds)
	if _, err := s.GrantSlots(context.Background(), recipient.Id, slots); err != nil {
		t.Fatalf("GrantSlots failed: %v", err)
	}
	return supporter, recipient
}

func support(t *testing.T, s *Service, from, to, amount int64, slot int) *models.ContributionResult {
	t.Helper()
	result, err := s.ApplyContribution(context.Background(), store.ContributionParams{
		FromAccountId: from,
		ToAccountId:   to,
		Amount:        amount,
		TargetSlot:    slot,
		Kind:          models.KindSupport,
	})
	if err != nil {
		t.Fatalf("ApplyContribution(%d -> %d, %d) failed: %v", from, to, amount, err)
	}
	return result
}

func TestApplyContribution_PartialProgress(t *testing.T) {
	s, _ := setupTestService(t)
	supporter, recipient := setupPair(t, s, 1000, 2)

	result := support(t, s, supporter.Id, recipient.Id, 150, 0)
	if result.TargetSlot != 1 || result.SlotCompleted || result.StoredProgress != 150 {
		t.Fatalf("Unexpected result: %+v", result)
	}

	got := mustAccount(t, s, recipient.Id)
	if got.SlotProgress != `{"1":150}` {
		t.Errorf("Expected stored progress {\"1\":150}, got %s", got.SlotProgress)
	}
	if got.BubbleBalance != 0 {
		t.Errorf("Expected recipient balance 0, got %d", got.BubbleBalance)
	}
	if bal := mustAccount(t, s, supporter.Id).BubbleBalance; bal != 850 {
		t.Errorf("Expected supporter balance 850, got %d", bal)
	}

	txn, err := s.GetTransaction(context.Background(), result.TransactionId)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if txn.Status != models.StatusPending || txn.TargetSlotNumber == nil || *txn.TargetSlotNumber != 1 {
		t.Errorf("Unexpected transaction: %+v", txn)
	}
	assertBalanced(t, s)
}

func TestApplyContribution_CompletionKeepsOverflow(t *testing.T) {
	s, _ := setupTestService(t)
	supporter, recipient := setupPair(t, s, 1000, 2)

	support(t, s, supporter.Id, recipient.Id, 350, 1)
	result := support(t, s, supporter.Id, recipient.Id, 100, 1)

	if !result.SlotCompleted || result.NewProgress != 450 || result.StoredProgress != 50 {
		t.Fatalf("Unexpected completion result: %+v", result)
	}
	if result.BubblesEarned != models.SlotCapacity || result.QueueAdvanced {
		t.Fatalf("Expected %d earned without queue advance, got %+v", models.SlotCapacity, result)
	}

	got := mustAccount(t, s, recipient.Id)
	if got.BubbleBalance != 400 || got.QueueSlotCount != 1 || got.SlotProgress != `{"1":50}` {
		t.Errorf("Unexpected recipient state: balance=%d slots=%d progress=%s",
			got.BubbleBalance, got.QueueSlotCount, got.SlotProgress)
	}
	assertBalanced(t, s)
}

func TestApplyContribution_LastSlotAdvancesQueue(t *testing.T) {
	s, _ := setupTestService(t)
	supporter, recipient := setupPair(t, s, 1000, 1)

	support(t, s, supporter.Id, recipient.Id, 300, 1)
	result := support(t, s, supporter.Id, recipient.Id, 150, 1)

	if !result.QueueAdvanced || !result.SlotCompleted {
		t.Fatalf("Expected queue advance, got %+v", result)
	}
	got := mustAccount(t, s, recipient.Id)
	if got.QueuePosition != 0 || got.QueueSlotCount != 0 || got.SlotProgress != "{}" {
		t.Errorf("Expected recipient out of the queue, got pos=%d slots=%d progress=%s",
			got.QueuePosition, got.QueueSlotCount, got.SlotProgress)
	}
	if got.BubbleBalance != 450 {
		t.Errorf("Expected completion plus overflow credited (450), got %d", got.BubbleBalance)
	}

	_, err := s.ApplyContribution(context.Background(), store.ContributionParams{
		FromAccountId: supporter.Id, ToAccountId: recipient.Id, Amount: 10, Kind: models.KindSupport,
	})
	if !errors.Is(err, ledger.ErrInvalidSlot) {
		t.Errorf("Expected ErrInvalidSlot once the queue is left, got %v", err)
	}
	assertBalanced(t, s)
}

// mirrorNets replays the outbox ledger entries into per-account balance and slot escrow nets.
func mirrorNets(t *testing.T, s *Service) (balances, slots map[int64]int64) {
	t.Helper()
	events, err := s.FetchDueEvents(context.Background(), 10000)
	if err != nil {
		t.Fatalf("FetchDueEvents failed: %v", err)
	}
	balances, slots = map[int64]int64{}, map[int64]int64{}
	for _, e := range events {
		if e.Topic != models.TopicLedgerTransaction {
			continue
		}
		var entry models.LedgerEntry
		if err := json.Unmarshal(e.Payload, &entry); err != nil {
			t.Fatalf("Bad ledger payload: %v", err)
		}
		from, to, amount := entry.FromAccountId, entry.ToAccountId, entry.Amount
		switch entry.Kind {
		case models.KindDeposit:
			balances[to] += amount
		case models.KindSupport, models.KindAdminSupport:
			balances[from] -= amount
			slots[to] += amount
		case models.KindDonation:
			balances[from] -= amount
			if from != to {
				slots[to] += amount
			}
		case models.KindTransfer:
			if !strings.HasPrefix(entry.Reference, "giveaway:") {
				balances[from] -= amount
			}
			balances[to] += amount
		case models.KindPayback:
			balances[from] -= amount
			balances[to] += amount
		case models.KindSlotPayout:
			slots[to] -= amount
			balances[to] += amount
		default:
			t.Fatalf("Unexpected ledger entry kind %q", entry.Kind)
		}
	}
	return balances, slots
}

func TestApplyContribution_SlotPayoutIsRecorded(t *testing.T) {
	s, _ := setupTestService(t)
	ctx := context.Background()
	supporter, recipient := setupPair(t, s, 1000, 2)

	completed := support(t, s, supporter.Id, recipient.Id, 400, 1)
	if !completed.SlotCompleted || completed.PayoutTransactionId == "" {
		t.Fatalf("Expected a recorded payout, got %+v", completed)
	}
	partial := support(t, s, supporter.Id, recipient.Id, 150, 1)
	if partial.PayoutTransactionId != "" {
		t.Errorf("Partial progress must not pay out, got %s", partial.PayoutTransactionId)
	}

	payout, err := s.GetTransaction(ctx, completed.PayoutTransactionId)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if payout.Kind != models.KindSlotPayout || payout.Status != models.StatusCompleted ||
		payout.FromAccountId != recipient.Id || payout.ToAccountId != recipient.Id ||
		payout.Amount != models.SlotCapacity || payout.Reference != completed.TransactionId ||
		payout.TargetSlotNumber == nil || *payout.TargetSlotNumber != 1 {
		t.Errorf("Unexpected payout record: %+v", payout)
	}

	history, err := s.GetTransactionHistory(ctx, recipient.Id, 10, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("Expected two contributions and one payout in history, got %d", len(history))
	}

	balances, slots := mirrorNets(t, s)
	for _, account := range []*models.Account{supporter, recipient} {
		got := mustAccount(t, s, account.Id)
		if balances[account.Id] != got.BubbleBalance {
			t.Errorf("Account %d: ledger entries net %d, balance %d", account.Id, balances[account.Id], got.BubbleBalance)
		}
	}
	if slots[recipient.Id] != 150 {
		t.Errorf("Expected 150 left in the recipient's slots, ledger entries net %d", slots[recipient.Id])
	}
	if got := mustAccount(t, s, recipient.Id).SlotProgress; got != `{"1":150}` {
		t.Errorf("Expected stored progress {\"1\":150}, got %s", got)
	}
	assertBalanced(t, s)
}

func TestApplyContribution_Rejections(t *testing.T) {
	s, _ := setupTestService(t)
	ctx := context.Background()
	supporter, recipient := setupPair(t, s, 100, 2)

	cases := []struct {
		name   string
		params store.ContributionParams
		want   error
	}{
		{"zero amount", store.ContributionParams{FromAccountId: supporter.Id, ToAccountId: recipient.Id, Amount: 0, Kind: models.KindSupport}, ledger.ErrInvalidAmount},
		{"above capacity", store.ContributionParams{FromAccountId: supporter.Id, ToAccountId: recipient.Id, Amount: 401, Kind: models.KindSupport}, ledger.ErrInvalidAmount},
		{"insufficient", store.ContributionParams{FromAccountId: supporter.Id, ToAccountId: recipient.Id, Amount: 101, Kind: models.KindSupport}, ledger.ErrInsufficientBalance},
		{"self", store.ContributionParams{FromAccountId: supporter.Id, ToAccountId: supporter.Id, Amount: 10, Kind: models.KindSupport}, ledger.ErrSelfContribution},
		{"slot out of range", store.ContributionParams{FromAccountId: supporter.Id, ToAccountId: recipient.Id, Amount: 10, TargetSlot: 3, Kind: models.KindSupport}, ledger.ErrInvalidSlot},
		{"unknown account", store.ContributionParams{FromAccountId: supporter.Id, ToAccountId: 999, Amount: 10, Kind: models.KindSupport}, ledger.ErrAccountNotFound},
		{"transfer kind", store.ContributionParams{FromAccountId: supporter.Id, ToAccountId: recipient.Id, Amount: 10, Kind: models.KindTransfer}, ledger.ErrInvalidKind},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.ApplyContribution(ctx, tc.params)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Expected %v, got %v", tc.want, err)
			}
		})
	}

	if bal := mustAccount(t, s, supporter.Id).BubbleBalance; bal != 100 {
		t.Errorf("Rejected contributions must not move bubbles, balance %d", bal)
	}
	history, err := s.GetTransactionHistory(ctx, recipient.Id, 10, 0)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Expected no transactions for recipient, got %d", len(history))
	}
}

func TestApplyContribution_InactiveTarget(t *testing.T) {
	s, _ := setupTestService(t)
	supporter, recipient := setupPair(t, s, 100, 1)
	if err := s.SetAccountActive(context.Background(), recipient.Id, false); err != nil {
		t.Fatalf("SetAccountActive failed: %v", err)
	}

	_, err := s.ApplyContribution(context.Background(), store.ContributionParams{
		FromAccountId: supporter.Id, ToAccountId: recipient.Id, Amount: 10, Kind: models.KindSupport,
	})
	if !errors.Is(err, ledger.ErrAccountInactive) {
		t.Fatalf("Expected ErrAccountInactive, got %v", err)
	}
}

func TestApplyContribution_RecoversCorruptedProgress(t *testing.T) {
	s, _ := setupTestService(t)
	supporter, recipient := setupPair(t, s, 500, 2)
	setQueueState(t, s, recipient.Id, 1, 2, `{"1":"x"}`)

	result := support(t, s, supporter.Id, recipient.Id, 40, 1)
	if !result.DataRecovered || result.StoredProgress != 40 {
		t.Fatalf("Expected recovery with fresh progress, got %+v", result)
	}
	if got := mustAccount(t, s, recipient.Id).SlotProgress; got != `{"1":40}` {
		t.Errorf("Expected re-encoded progress, got %s", got)
	}
}

func TestApplyContribution_UnwrapsLayeredEncoding(t *testing.T) {
	s, _ := setupTestService(t)
	supporter, recipient := setupPair(t, s, 500, 2)
	setQueueState(t, s, recipient.Id, 1, 2, `"{\"1\":120}"`)

	result := support(t, s, supporter.Id, recipient.Id, 30, 1)
	if result.DataRecovered || result.StoredProgress != 150 {
		t.Fatalf("Expected layered progress to be read, got %+v", result)
	}
	if got := mustAccount(t, s, recipient.Id).SlotProgress; got != `{"1":150}` {
		t.Errorf("Expected single-layer encoding, got %s", got)
	}
}

func TestMarkPaidback(t *testing.T) {
	s, _ := setupTestService(t)
	ctx := context.Background()
	supporter, recipient := setupPair(t, s, 1000, 1)
	fundAccount(t, s, recipient.Id, 100)

	result := support(t, s, supporter.Id, recipient.Id, 80, 1)
	payback, err := s.MarkPaidback(ctx, result.TransactionId)
	if err != nil {
		t.Fatalf("MarkPaidback failed: %v", err)
	}
	if payback.Kind != models.KindPayback || payback.Reference != result.TransactionId || payback.Amount != 80 {
		t.Errorf("Unexpected payback record: %+v", payback)
	}

	if bal := mustAccount(t, s, supporter.Id).BubbleBalance; bal != 1000 {
		t.Errorf("Expected supporter made whole (1000), got %d", bal)
	}
	if bal := mustAccount(t, s, recipient.Id).BubbleBalance; bal != 20 {
		t.Errorf("Expected recipient balance 20, got %d", bal)
	}
	original, err := s.GetTransaction(ctx, result.TransactionId)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if original.Status != models.StatusPaidback {
		t.Errorf("Expected paidback, got %s", original.Status)
	}

	if _, err := s.MarkPaidback(ctx, result.TransactionId); !errors.Is(err, ledger.ErrInvalidTransactionState) {
		t.Errorf("Expected ErrInvalidTransactionState on repeat, got %v", err)
	}
	if _, err := s.MarkDonated(ctx, result.TransactionId); !errors.Is(err, ledger.ErrInvalidTransactionState) {
		t.Errorf("Expected ErrInvalidTransactionState for donate after payback, got %v", err)
	}
	assertBalanced(t, s)
}

func TestMarkPaidback_InsufficientBalance(t *testing.T) {
	s, _ := setupTestService(t)
	supporter, recipient := setupPair(t, s, 1000, 1)
	result := support(t, s, supporter.Id, recipient.Id, 80, 1)

	_, err := s.MarkPaidback(context.Background(), result.TransactionId)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}
	txn, _ := s.GetTransaction(context.Background(), result.TransactionId)
	if txn.Status != models.StatusPending {
		t.Errorf("Expected transaction to stay pending, got %s", txn.Status)
	}
}

func TestMarkDonated(t *testing.T) {
	s, _ := setupTestService(t)
	ctx := context.Background()
	supporter, recipient := setupPair(t, s, 1000, 1)
	result := support(t, s, supporter.Id, recipient.Id, 80, 1)

	donated, err := s.MarkDonated(ctx, result.TransactionId)
	if err != nil {
		t.Fatalf("MarkDonated failed: %v", err)
	}
	if donated.Status != models.StatusDonated {
		t.Errorf("Expected donated, got %s", donated.Status)
	}
	if bal := mustAccount(t, s, supporter.Id).BubbleBalance; bal != 920 {
		t.Errorf("Donation must not move bubbles, supporter balance %d", bal)
	}
	if _, err := s.MarkPaidback(ctx, result.TransactionId); !errors.Is(err, ledger.ErrInvalidTransactionState) {
		t.Errorf("Expected ErrInvalidTransactionState, got %v", err)
	}
	if _, err := s.MarkDonated(ctx, "missing"); !errors.Is(err, ledger.ErrTransactionNotFound) {
		t.Errorf("Expected ErrTransactionNotFound, got %v", err)
	}
}

func TestSupporterTotals(t *testing.T) {
	s, _ := setupTestService(t)
	ctx := context.Background()
	supporter, recipient := setupPair(t, s, 1000, 2)
	other := createAccount(t, s, "other")
	fundAccount(t, s, other.Id, 100)

	first := support(t, s, supporter.Id, recipient.Id, 50, 1)
	support(t, s, supporter.Id, recipient.Id, 30, 1)
	support(t, s, other.Id, recipient.Id, 20, 2)
	if _, err := s.MarkDonated(ctx, first.TransactionId); err != nil {
		t.Fatalf("MarkDonated failed: %v", err)
	}

	totals, err := s.SupporterTotals(ctx, recipient.Id)
	if err != nil {
		t.Fatalf("SupporterTotals failed: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("Expected 2 supporters, got %d", len(totals))
	}
	want := models.SupporterTotal{SupporterAccountId: supporter.Id, TotalAmount: 80, PendingAmount: 30, TransactionCount: 2}
	if totals[0] != want {
		t.Errorf("Expected %+v, got %+v", want, totals[0])
	}
}

func TestGetTransactionHistory_Paging(t *testing.T) {
	s, clock := setupTestService(t)
	supporter, recipient := setupPair(t, s, 1000, 2)
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		support(t, s, supporter.Id, recipient.Id, 10, 1)
	}

	page, err := s.GetTransactionHistory(context.Background(), recipient.Id, 2, 1)
	if err != nil {
		t.Fatalf("GetTransactionHistory failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(page))
	}
	if !page[0].CreatedAt.After(page[1].CreatedAt) {
		t.Errorf("Expected newest first, got %v then %v", page[0].CreatedAt, page[1].CreatedAt)
	}
}

package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"bubble-ledger-go/internal/models"
)

func TestOutbox_EventsWrittenWithMutation(t *testing.T) {
	s, _ := setupTestService(t)
	ctx := context.Background()
	supporter, recipient := setupPair(t, s, 1000, 1)

	// Clear the events produced by funding.
	if _, err := s.db.Exec("DELETE FROM outbox_events"); err != nil {
		t.Fatalf("Failed to clear outbox: %v", err)
	}
	result := support(t, s, supporter.Id, recipient.Id, 400, 1)

	events, err := s.FetchDueEvents(ctx, 10)
	if err != nil {
		t.Fatalf("FetchDueEvents failed: %v", err)
	}

	var notes []models.Notification
	var entries []models.LedgerEntry
	for _, e := range events {
		switch e.Topic {
		case models.TopicNotification:
			var n models.Notification
			if err := json.Unmarshal(e.Payload, &n); err != nil {
				t.Fatalf("Bad notification payload: %v", err)
			}
			notes = append(notes, n)
		case models.TopicLedgerTransaction:
			var l models.LedgerEntry
			if err := json.Unmarshal(e.Payload, &l); err != nil {
				t.Fatalf("Bad ledger payload: %v", err)
			}
			entries = append(entries, l)
		}
	}

	if len(entries) != 2 {
		t.Fatalf("Expected mirror entries for the contribution and its payout, got %+v", entries)
	}
	byKind := map[models.Kind]models.LedgerEntry{}
	for _, e := range entries {
		byKind[e.Kind] = e
	}
	if got := byKind[models.KindSupport]; got.TransactionId != result.TransactionId || got.Amount != 400 {
		t.Errorf("Unexpected contribution entry %+v", got)
	}
	if got := byKind[models.KindSlotPayout]; got.TransactionId != result.PayoutTransactionId || got.Amount != 400 ||
		got.Reference != result.TransactionId || got.ToAccountId != recipient.Id {
		t.Errorf("Unexpected payout entry %+v", got)
	}
	types := map[string]bool{}
	for _, n := range notes {
		types[n.Type] = true
		if n.RecipientAccountId != recipient.Id {
			t.Errorf("Notification addressed to %d, expected %d", n.RecipientAccountId, recipient.Id)
		}
	}
	if len(notes) != 2 || !types[models.NotificationSupportReceived] || !types[models.NotificationQueueCompleted] {
		t.Errorf("Expected support and queue completion notifications, got %+v", notes)
	}
}

func TestOutbox_RetryThenFail(t *testing.T) {
	s, clock := setupTestService(t)
	ctx := context.Background()
	alice := createAccount(t, s, "alice")
	fundAccount(t, s, alice.Id, 10)

	events, err := s.FetchDueEvents(ctx, 10)
	if err != nil || len(events) == 0 {
		t.Fatalf("Expected due events, got %d (%v)", len(events), err)
	}
	id := events[0].Id

	if err := s.MarkEventFailed(ctx, id, "gateway unavailable", clock.Now().Add(time.Minute), 2); err != nil {
		t.Fatalf("MarkEventFailed failed: %v", err)
	}
	event, err := s.GetEvent(ctx, id)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if event.Status != models.OutboxPending || event.Attempts != 1 || event.LastError != "gateway unavailable" {
		t.Fatalf("Unexpected event after first failure: %+v", event)
	}

	due, _ := s.FetchDueEvents(ctx, 10)
	for _, e := range due {
		if e.Id == id {
			t.Fatal("Event must not be due before its retry time")
		}
	}

	clock.Advance(2 * time.Minute)
	if err := s.MarkEventFailed(ctx, id, "gateway unavailable", clock.Now().Add(time.Minute), 2); err != nil {
		t.Fatalf("MarkEventFailed failed: %v", err)
	}
	event, _ = s.GetEvent(ctx, id)
	if event.Status != models.OutboxFailed || event.Attempts != 2 {
		t.Errorf("Expected failed after max attempts, got %+v", event)
	}
}

func TestOutbox_AcknowledgeAndPurge(t *testing.T) {
	s, clock := setupTestService(t)
	ctx := context.Background()
	alice := createAccount(t, s, "alice")
	fundAccount(t, s, alice.Id, 10)

	events, err := s.FetchDueEvents(ctx, 10)
	if err != nil {
		t.Fatalf("FetchDueEvents failed: %v", err)
	}
	for _, e := range events {
		if err := s.MarkEventDelivered(ctx, e.Id); err != nil {
			t.Fatalf("MarkEventDelivered failed: %v", err)
		}
	}
	if err := s.AcknowledgeDelivery(ctx, events[0].Id, false, "device unregistered"); err != nil {
		t.Fatalf("AcknowledgeDelivery failed: %v", err)
	}
	acked, _ := s.GetEvent(ctx, events[0].Id)
	if acked.Status != models.OutboxFailed || acked.LastError != "device unregistered" {
		t.Errorf("Unexpected acknowledged event: %+v", acked)
	}

	if err := s.AcknowledgeDelivery(ctx, "missing", true, ""); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("Expected ErrEventNotFound, got %v", err)
	}

	clock.Advance(time.Hour)
	purged, err := s.PurgeEvents(ctx, clock.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("PurgeEvents failed: %v", err)
	}
	if purged != int64(len(events)-1) {
		t.Errorf("Expected %d purged (failed events are kept), got %d", len(events)-1, purged)
	}
}

/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bubble-ledger-go/internal/ledger"
	"bubble-ledger-go/internal/models"
	"bubble-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ApplyContribution moves amount bubbles from the source balance into one slot of the target.
// Balances, slot state and the ledger record commit together or not at all.
func (s *Service) ApplyContribution(ctx context.Context, params store.ContributionParams) (*models.ContributionResult, error) {
	if err := ledger.ValidateAmount(params.Amount); err != nil {
		return nil, err
	}
	switch params.Kind {
	case models.KindSupport, models.KindAdminSupport, models.KindDonation:
	default:
		return nil, fmt.Errorf("%w: %q cannot be applied to a slot", ledger.ErrInvalidKind, params.Kind)
	}
	if params.FromAccountId == params.ToAccountId {
		return nil, fmt.Errorf("%w: account %d", ledger.ErrSelfContribution, params.FromAccountId)
	}

	status := models.StatusCompleted
	if params.Kind == models.KindSupport {
		status = models.StatusPending
	}

	var result *models.ContributionResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		accounts, err := s.lockAccounts(ctx, tx, params.FromAccountId, params.ToAccountId)
		if err != nil {
			return err
		}
		source := accounts[params.FromAccountId]
		target := accounts[params.ToAccountId]
		if !source.IsActive {
			return fmt.Errorf("%w: %d", ledger.ErrAccountInactive, source.Id)
		}
		if !target.IsActive {
			return fmt.Errorf("%w: %d", ledger.ErrAccountInactive, target.Id)
		}

		decoded := ledger.DecodeSlotProgress(target.SlotProgress, int(target.QueueSlotCount))
		if decoded.Recovered {
			reportRecovery(target.Id, decoded.Reason)
		}

		if source.BubbleBalance < params.Amount {
			return fmt.Errorf("%w: account %d holds %d, needs %d",
				ledger.ErrInsufficientBalance, source.Id, source.BubbleBalance, params.Amount)
		}

		outcome, err := ledger.ApplyToSlot(ledger.SlotState{
			QueuePosition:  target.QueuePosition,
			QueueSlotCount: target.QueueSlotCount,
			Progress:       decoded.Progress,
		}, params.TargetSlot, params.Amount)
		if err != nil {
			return err
		}

		now := s.now()
		source.BubbleBalance -= params.Amount
		source.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(queryUpdateAccountBalance),
			source.BubbleBalance, now, source.Id); err != nil {
			return fmt.Errorf("failed to debit account %d: %w", source.Id, err)
		}

		target.BubbleBalance += outcome.BubblesEarned
		target.QueuePosition = outcome.State.QueuePosition
		target.QueueSlotCount = outcome.State.QueueSlotCount
		target.SlotProgress = ledger.EncodeSlotProgress(outcome.State.Progress)
		target.IsTopOfQueue = target.IsTopOfQueue && !outcome.QueueAdvanced
		target.UpdatedAt = now
		if err := s.writeAccountState(ctx, tx, target); err != nil {
			return err
		}

		slot := int64(outcome.TargetSlot)
		txn := &models.ContributionTransaction{
			Id:               uuid.New().String(),
			FromAccountId:    source.Id,
			ToAccountId:      target.Id,
			Amount:           params.Amount,
			TargetSlotNumber: &slot,
			Kind:             params.Kind,
			Status:           status,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.recordTransaction(ctx, tx, txn); err != nil {
			return err
		}

		var payoutId string
		if outcome.BubblesEarned > 0 {
			payout := &models.ContributionTransaction{
				Id:               uuid.New().String(),
				FromAccountId:    target.Id,
				ToAccountId:      target.Id,
				Amount:           outcome.BubblesEarned,
				TargetSlotNumber: &slot,
				Kind:             models.KindSlotPayout,
				Status:           models.StatusCompleted,
				Reference:        txn.Id,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := s.recordTransaction(ctx, tx, payout); err != nil {
				return err
			}
			payoutId = payout.Id
		}

		for _, n := range contributionNotifications(txn, outcome) {
			if err := s.enqueueNotification(ctx, tx, n); err != nil {
				return err
			}
		}

		result = &models.ContributionResult{
			TransactionId:  txn.Id,
			TargetSlot:     outcome.TargetSlot,
			SlotCompleted:  outcome.Completed,
			NewProgress:    outcome.NewProgress,
			StoredProgress: outcome.StoredProgress,
			BubblesEarned:  outcome.BubblesEarned,
			QueueAdvanced:  outcome.QueueAdvanced,
			DataRecovered:  decoded.Recovered,

			PayoutTransactionId: payoutId,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Contribution applied",
		zap.String("transaction_id", result.TransactionId),
		zap.Int64("from", params.FromAccountId),
		zap.Int64("to", params.ToAccountId),
		zap.Int64("amount", params.Amount),
		zap.Int("slot", result.TargetSlot),
		zap.Bool("slot_completed", result.SlotCompleted),
		zap.Bool("queue_advanced", result.QueueAdvanced))
	return result, nil
}

func contributionNotifications(txn *models.ContributionTransaction, outcome ledger.SlotOutcome) []models.Notification {
	data := map[string]string{
		"transaction_id": txn.Id,
		"slot":           fmt.Sprint(outcome.TargetSlot),
	}
	notes := []models.Notification{{
		RecipientAccountId: txn.ToAccountId,
		Title:              "New support",
		Body:               fmt.Sprintf("You received %d bubbles on slot %d", txn.Amount, outcome.TargetSlot),
		Type:               models.NotificationSupportReceived,
		Data:               data,
	}}
	switch {
	case outcome.QueueAdvanced:
		notes = append(notes, models.Notification{
			RecipientAccountId: txn.ToAccountId,
			Title:              "Queue completed",
			Body:               fmt.Sprintf("Your last slot filled up and %d bubbles were added to your balance", outcome.BubblesEarned),
			Type:               models.NotificationQueueCompleted,
			Data:               data,
		})
	case outcome.Completed:
		notes = append(notes, models.Notification{
			RecipientAccountId: txn.ToAccountId,
			Title:              "Slot completed",
			Body:               fmt.Sprintf("Slot %d filled up and %d bubbles were added to your balance", outcome.TargetSlot, outcome.BubblesEarned),
			Type:               models.NotificationSlotCompleted,
			Data:               data,
		})
	}
	return notes
}

// MarkPaidback settles a pending support transaction: the supported account returns the amount to
// its supporter and the original record moves to paidback.
func (s *Service) MarkPaidback(ctx context.Context, transactionId string) (*models.ContributionTransaction, error) {
	var payback *models.ContributionTransaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		original, err := s.lockPendingSupport(ctx, tx, transactionId)
		if err != nil {
			return err
		}

		accounts, err := s.lockAccounts(ctx, tx, original.FromAccountId, original.ToAccountId)
		if err != nil {
			return err
		}
		payer := accounts[original.ToAccountId]
		supporter := accounts[original.FromAccountId]
		if !payer.IsActive {
			return fmt.Errorf("%w: %d", ledger.ErrAccountInactive, payer.Id)
		}
		if payer.BubbleBalance < original.Amount {
			return fmt.Errorf("%w: account %d holds %d, owes %d",
				ledger.ErrInsufficientBalance, payer.Id, payer.BubbleBalance, original.Amount)
		}

		now := s.now()
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(queryUpdateAccountBalance),
			payer.BubbleBalance-original.Amount, now, payer.Id); err != nil {
			return fmt.Errorf("failed to debit account %d: %w", payer.Id, err)
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(queryUpdateAccountBalance),
			supporter.BubbleBalance+original.Amount, now, supporter.Id); err != nil {
			return fmt.Errorf("failed to credit account %d: %w", supporter.Id, err)
		}

		if err := s.transitionTransaction(ctx, tx, original, models.StatusPaidback, now); err != nil {
			return err
		}

		payback = &models.ContributionTransaction{
			Id:            uuid.New().String(),
			FromAccountId: payer.Id,
			ToAccountId:   supporter.Id,
			Amount:        original.Amount,
			Kind:          models.KindPayback,
			Status:        models.StatusCompleted,
			Reference:     original.Id,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.recordTransaction(ctx, tx, payback); err != nil {
			return err
		}
		return s.enqueueNotification(ctx, tx, models.Notification{
			RecipientAccountId: supporter.Id,
			Title:              "Support paid back",
			Body:               fmt.Sprintf("%d bubbles you gave were paid back", original.Amount),
			Type:               models.NotificationPaidback,
			Data:               map[string]string{"transaction_id": original.Id, "payback_id": payback.Id},
		})
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Support paid back",
		zap.String("transaction_id", transactionId),
		zap.String("payback_id", payback.Id),
		zap.Int64("amount", payback.Amount))
	return payback, nil
}

// MarkDonated waives a pending support transaction. No bubbles move.
func (s *Service) MarkDonated(ctx context.Context, transactionId string) (*models.ContributionTransaction, error) {
	var original *models.ContributionTransaction
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		original, err = s.lockPendingSupport(ctx, tx, transactionId)
		if err != nil {
			return err
		}
		if err := s.transitionTransaction(ctx, tx, original, models.StatusDonated, s.now()); err != nil {
			return err
		}
		return s.enqueueNotification(ctx, tx, models.Notification{
			RecipientAccountId: original.ToAccountId,
			Title:              "Support gifted",
			Body:               fmt.Sprintf("%d bubbles you received no longer need to be paid back", original.Amount),
			Type:               models.NotificationDonated,
			Data:               map[string]string{"transaction_id": original.Id},
		})
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Support marked donated", zap.String("transaction_id", transactionId))
	return original, nil
}

func (s *Service) lockPendingSupport(ctx context.Context, tx *sql.Tx, transactionId string) (*models.ContributionTransaction, error) {
	txn, err := scanTransaction(tx.QueryRowContext(ctx, s.dialect.locking(queryGetTransaction), transactionId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, transactionId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", transactionId, err)
	}
	if txn.Kind != models.KindSupport || txn.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: %s is %s %s", ledger.ErrInvalidTransactionState, txn.Id, txn.Kind, txn.Status)
	}
	return txn, nil
}

func (s *Service) transitionTransaction(ctx context.Context, tx *sql.Tx, txn *models.ContributionTransaction, status models.Status, now time.Time) error {
	res, err := tx.ExecContext(ctx, s.dialect.rebind(queryUpdateTransactionStatus), status, now, txn.Id, txn.Status)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", txn.Id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return fmt.Errorf("%w: %s changed concurrently", ledger.ErrInvalidTransactionState, txn.Id)
	}
	txn.Status = status
	txn.UpdatedAt = now
	return nil
}

// recordTransaction appends txn to the log and queues its mirror event for the external ledger.
func (s *Service) recordTransaction(ctx context.Context, tx *sql.Tx, txn *models.ContributionTransaction) error {
	var slot sql.NullInt64
	if txn.TargetSlotNumber != nil {
		slot = sql.NullInt64{Int64: *txn.TargetSlotNumber, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(queryInsertTransaction),
		txn.Id, txn.FromAccountId, txn.ToAccountId, txn.Amount, slot, string(txn.Kind), string(txn.Status),
		txn.Reference, txn.CreatedAt, txn.UpdatedAt); err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}

	return s.enqueue(ctx, tx, models.TopicLedgerTransaction, txn.ToAccountId, models.LedgerEntry{
		TransactionId: txn.Id,
		FromAccountId: txn.FromAccountId,
		ToAccountId:   txn.ToAccountId,
		Amount:        txn.Amount,
		Kind:          txn.Kind,
		Status:        txn.Status,
		Reference:     txn.Reference,
		CreatedAt:     txn.CreatedAt,
	})
}

func scanTransaction(row rowScanner) (*models.ContributionTransaction, error) {
	var (
		t    models.ContributionTransaction
		slot sql.NullInt64
		kind string
		st   string
	)
	if err := row.Scan(&t.Id, &t.FromAccountId, &t.ToAccountId, &t.Amount, &slot, &kind, &st, &t.Reference,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if slot.Valid {
		t.TargetSlotNumber = &slot.Int64
	}
	t.Kind = models.Kind(kind)
	t.Status = models.Status(st)
	return &t, nil
}

func (s *Service) GetTransaction(ctx context.Context, transactionId string) (*models.ContributionTransaction, error) {
	txn, err := scanTransaction(s.db.QueryRowContext(ctx, s.dialect.rebind(queryGetTransaction), transactionId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, transactionId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	return txn, nil
}

func (s *Service) GetTransactionHistory(ctx context.Context, accountId int64, limit, offset int) ([]models.ContributionTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(queryTransactionHistory), accountId, accountId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction history: %w", err)
	}
	defer rows.Close()

	var history []models.ContributionTransaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		history = append(history, *txn)
	}
	return history, rows.Err()
}

func (s *Service) SupporterTotals(ctx context.Context, accountId int64) ([]models.SupporterTotal, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(querySupporterTotals), accountId)
	if err != nil {
		return nil, fmt.Errorf("failed to query supporter totals: %w", err)
	}
	defer rows.Close()

	var totals []models.SupporterTotal
	for rows.Next() {
		var t models.SupporterTotal
		if err := rows.Scan(&t.SupporterAccountId, &t.TotalAmount, &t.PendingAmount, &t.TransactionCount); err != nil {
			return nil, fmt.Errorf("failed to scan supporter total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// enqueueNotification queues n for the push dispatcher inside the caller's transaction.
func (s *Service) enqueueNotification(ctx context.Context, tx *sql.Tx, n models.Notification) error {
	return s.enqueue(ctx, tx, models.TopicNotification, n.RecipientAccountId, n)
}

func (s *Service) enqueue(ctx context.Context, tx *sql.Tx, topic string, recipient int64, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", topic, err)
	}
	now := s.now()
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(queryInsertOutboxEvent),
		uuid.New().String(), topic, recipient, string(body), now, now, now); err != nil {
		return fmt.Errorf("failed to enqueue %s event: %w", topic, err)
	}
	return nil
}

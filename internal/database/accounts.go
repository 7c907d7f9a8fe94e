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
	"errors"
	"fmt"
	"sort"
	"strings"

	"bubble-ledger-go/internal/ledger"
	"bubble-ledger-go/internal/models"
	"bubble-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.Id, &a.Name, &a.Email, &a.BubbleBalance, &a.QueuePosition, &a.QueueSlotCount,
		&a.SlotProgress, &a.IsTopOfQueue, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) CreateAccount(ctx context.Context, params store.CreateAccountParams) (*models.Account, error) {
	name := strings.TrimSpace(params.Name)
	email := strings.TrimSpace(params.Email)
	if name == "" || email == "" {
		return nil, fmt.Errorf("account name and email are required")
	}

	var account *models.Account
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		var id int64
		if err := tx.QueryRowContext(ctx, s.dialect.rebind(queryInsertAccount), name, email, now, now).Scan(&id); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("account with email %s already exists", email)
			}
			return fmt.Errorf("failed to insert account: %w", err)
		}
		var err error
		account, err = scanAccount(tx.QueryRowContext(ctx, s.dialect.rebind(queryGetAccountById), id))
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Account created", zap.Int64("id", account.Id), zap.String("email", account.Email))
	return account, nil
}

func (s *Service) GetAccount(ctx context.Context, accountId int64) (*models.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, s.dialect.rebind(queryGetAccountById), accountId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ledger.ErrAccountNotFound, accountId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account %d: %w", accountId, err)
	}
	return account, nil
}

func (s *Service) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, s.dialect.rebind(queryGetAccountByEmail), email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account by email: %w", err)
	}
	return account, nil
}

func (s *Service) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return s.queryAccounts(ctx, queryListAccounts)
}

func (s *Service) ListQueuedAccounts(ctx context.Context) ([]models.Account, error) {
	return s.queryAccounts(ctx, queryListQueuedAccounts)
}

func (s *Service) queryAccounts(ctx context.Context, query string) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query))
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

func (s *Service) SetAccountActive(ctx context.Context, accountId int64, active bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.lockAccounts(ctx, tx, accountId); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(querySetAccountActive), active, active, s.now(), accountId); err != nil {
			return fmt.Errorf("failed to update account %d: %w", accountId, err)
		}
		zap.L().Info("Account activity changed", zap.Int64("id", accountId), zap.Bool("active", active))
		return nil
	})
}

// lockAccounts loads and locks the given accounts in ascending id order.
func (s *Service) lockAccounts(ctx context.Context, tx *sql.Tx, ids ...int64) (map[int64]*models.Account, error) {
	ordered := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	accounts := make(map[int64]*models.Account, len(ordered))
	for _, id := range ordered {
		account, err := scanAccount(tx.QueryRowContext(ctx, s.dialect.locking(queryGetAccountById), id))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ledger.ErrAccountNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to lock account %d: %w", id, err)
		}
		accounts[id] = account
	}
	return accounts, nil
}

// Deposit credits bubbles that enter the system from outside, e.g. a purchase. An unqueued account
// receiving its first bubbles takes position 1 when nobody holds it.
func (s *Service) Deposit(ctx context.Context, accountId, amount int64, reference string) (*models.Account, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: deposit must be positive, got %d", ledger.ErrInvalidAmount, amount)
	}

	var account *models.Account
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		locked, err := s.lockAccounts(ctx, tx, accountId)
		if err != nil {
			return err
		}
		account = locked[accountId]
		if !account.IsActive {
			return fmt.Errorf("%w: %d", ledger.ErrAccountInactive, accountId)
		}

		var holders int64
		if err := tx.QueryRowContext(ctx, s.dialect.rebind(queryCountPositionOne)).Scan(&holders); err != nil {
			return fmt.Errorf("failed to check queue head: %w", err)
		}

		now := s.now()
		initial := ledger.ShouldAssignInitialPosition(account.BubbleBalance, account.QueuePosition, holders > 0)
		account.BubbleBalance += amount
		account.UpdatedAt = now
		if initial {
			account.QueuePosition = 1
			if _, err := tx.ExecContext(ctx, s.dialect.rebind(queryRaiseQueueTracker), 1, 1); err != nil {
				return fmt.Errorf("failed to update queue tracker: %w", err)
			}
		}
		if err := s.writeAccountState(ctx, tx, account); err != nil {
			return err
		}

		txn := &models.ContributionTransaction{
			Id:            uuid.New().String(),
			FromAccountId: accountId,
			ToAccountId:   accountId,
			Amount:        amount,
			Kind:          models.KindDeposit,
			Status:        models.StatusCompleted,
			Reference:     reference,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.recordTransaction(ctx, tx, txn); err != nil {
			return err
		}
		return s.enqueueNotification(ctx, tx, models.Notification{
			RecipientAccountId: accountId,
			Title:              "Bubbles added",
			Body:               fmt.Sprintf("%d bubbles were added to your balance", amount),
			Type:               models.NotificationDepositReceived,
			Data:               map[string]string{"transaction_id": txn.Id},
		})
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Deposit applied",
		zap.Int64("account_id", accountId),
		zap.Int64("amount", amount),
		zap.Int64("balance", account.BubbleBalance),
		zap.Int64("queue_position", account.QueuePosition))
	return account, nil
}

// GrantSlots opens more slots for an account. Accounts entering the queue are appended past the
// tracker watermark.
func (s *Service) GrantSlots(ctx context.Context, accountId, slots int64) (*models.Account, error) {
	if slots <= 0 {
		return nil, fmt.Errorf("%w: slot grant must be positive, got %d", ledger.ErrInvalidAmount, slots)
	}

	var account *models.Account
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		locked, err := s.lockAccounts(ctx, tx, accountId)
		if err != nil {
			return err
		}
		account = locked[accountId]
		if !account.IsActive {
			return fmt.Errorf("%w: %d", ledger.ErrAccountInactive, accountId)
		}

		watermark, err := s.lockTracker(ctx, tx)
		if err != nil {
			return err
		}

		account.QueueSlotCount += slots
		if account.QueuePosition == 0 {
			account.QueuePosition, watermark = ledger.AppendPosition(watermark, account.QueueSlotCount)
		} else {
			// Growing an account in the middle of the queue overlaps its successor until the next rebalance.
			watermark = max(watermark, account.QueuePosition+account.QueueSlotCount-1)
		}
		account.UpdatedAt = s.now()

		if err := s.writeAccountState(ctx, tx, account); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(querySetQueueTracker), watermark); err != nil {
			return fmt.Errorf("failed to update queue tracker: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Slots granted",
		zap.Int64("account_id", accountId),
		zap.Int64("slots", slots),
		zap.Int64("queue_position", account.QueuePosition),
		zap.Int64("slot_count", account.QueueSlotCount))
	return account, nil
}

// writeAccountState persists balance and queue state. slot_progress always passes through the codec.
func (s *Service) writeAccountState(ctx context.Context, tx *sql.Tx, account *models.Account) error {
	decoded := ledger.DecodeSlotProgress(account.SlotProgress, int(account.QueueSlotCount))
	if decoded.Recovered {
		reportRecovery(account.Id, decoded.Reason)
	}
	account.SlotProgress = ledger.EncodeSlotProgress(decoded.Progress)

	_, err := tx.ExecContext(ctx, s.dialect.rebind(queryUpdateAccountQueueState),
		account.BubbleBalance, account.QueuePosition, account.QueueSlotCount, account.SlotProgress,
		account.IsTopOfQueue, account.UpdatedAt, account.Id)
	if err != nil {
		return fmt.Errorf("failed to update account %d: %w", account.Id, err)
	}
	return nil
}

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
	"slices"

	"bubble-ledger-go/internal/ledger"
	"bubble-ledger-go/internal/models"
	"bubble-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanPool(row rowScanner) (*models.GiveawayPool, error) {
	var (
		p           models.GiveawayPool
		category    string
		distributed sql.NullTime
	)
	if err := row.Scan(&p.Id, &category, &p.AmountPerAccount, &p.TotalAmountDistributed, &p.RetainedAmount,
		&p.IsDistributed, &p.IsActive, &p.CreatedAt, &distributed); err != nil {
		return nil, err
	}
	p.Category = models.Category(category)
	if distributed.Valid {
		p.DistributedAt = &distributed.Time
	}
	return &p, nil
}

func (s *Service) CreatePool(ctx context.Context, category models.Category, amountPerAccount int64) (*models.GiveawayPool, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", ledger.ErrInvalidCategory, category)
	}
	if amountPerAccount <= 0 {
		return nil, fmt.Errorf("%w: amount per account must be positive, got %d", ledger.ErrInvalidAmount, amountPerAccount)
	}

	var pool *models.GiveawayPool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := scanPool(tx.QueryRowContext(ctx, s.dialect.locking(queryGetOpenPoolByCategory), string(category)))
		if err == nil {
			return fmt.Errorf("%w: %s", ledger.ErrPoolExists, category)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check open pool: %w", err)
		}

		id := uuid.New().String()
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(queryInsertPool), id, string(category), amountPerAccount, s.now()); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ledger.ErrPoolExists, category)
			}
			return fmt.Errorf("failed to insert pool: %w", err)
		}
		pool, err = scanPool(tx.QueryRowContext(ctx, s.dialect.rebind(queryGetPool), id))
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Giveaway pool created",
		zap.String("pool_id", pool.Id),
		zap.String("category", string(pool.Category)),
		zap.Int64("amount_per_account", pool.AmountPerAccount))
	return pool, nil
}

func (s *Service) GetPool(ctx context.Context, poolId string) (*models.GiveawayPool, error) {
	pool, err := scanPool(s.db.QueryRowContext(ctx, s.dialect.rebind(queryGetPool), poolId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrPoolNotFound, poolId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pool: %w", err)
	}
	return pool, nil
}

// GetActivePool returns the pool a donation to category would be distributed through.
func (s *Service) GetActivePool(ctx context.Context, category models.Category) (*models.GiveawayPool, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", ledger.ErrInvalidCategory, category)
	}
	pool, err := scanPool(s.db.QueryRowContext(ctx, s.dialect.rebind(queryGetOpenPoolByCategory), string(category)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no open pool for %s", ledger.ErrPoolNotFound, category)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pool: %w", err)
	}
	if !pool.IsActive {
		return nil, fmt.Errorf("%w: pool %s is inactive", ledger.ErrPoolInactiveOrExhausted, pool.Id)
	}
	return pool, nil
}

func (s *Service) ListPools(ctx context.Context) ([]models.GiveawayPool, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(queryListPools))
	if err != nil {
		return nil, fmt.Errorf("failed to query pools: %w", err)
	}
	defer rows.Close()

	var pools []models.GiveawayPool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pool: %w", err)
		}
		pools = append(pools, *pool)
	}
	return pools, rows.Err()
}

func (s *Service) SetPoolActive(ctx context.Context, poolId string, active bool) error {
	return s.updateOpenPool(ctx, poolId, querySetPoolActive, active)
}

func (s *Service) UpdatePoolAmount(ctx context.Context, poolId string, amountPerAccount int64) error {
	if amountPerAccount <= 0 {
		return fmt.Errorf("%w: amount per account must be positive, got %d", ledger.ErrInvalidAmount, amountPerAccount)
	}
	return s.updateOpenPool(ctx, poolId, queryUpdatePoolAmount, amountPerAccount)
}

// ResetPool removes a pool that has not been distributed so the category can be set up again.
func (s *Service) ResetPool(ctx context.Context, poolId string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireOpenPool(ctx, tx, poolId); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(queryDeletePool), poolId); err != nil {
			return fmt.Errorf("failed to delete pool %s: %w", poolId, err)
		}
		zap.L().Info("Giveaway pool reset", zap.String("pool_id", poolId))
		return nil
	})
}

func (s *Service) updateOpenPool(ctx context.Context, poolId, query string, value any) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.requireOpenPool(ctx, tx, poolId); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(query), value, poolId); err != nil {
			return fmt.Errorf("failed to update pool %s: %w", poolId, err)
		}
		return nil
	})
}

func (s *Service) requireOpenPool(ctx context.Context, tx *sql.Tx, poolId string) error {
	pool, err := scanPool(tx.QueryRowContext(ctx, s.dialect.locking(queryGetPool), poolId))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ledger.ErrPoolNotFound, poolId)
	}
	if err != nil {
		return fmt.Errorf("failed to load pool %s: %w", poolId, err)
	}
	if pool.IsDistributed {
		return fmt.Errorf("%w: %s already distributed", ledger.ErrPoolInactiveOrExhausted, poolId)
	}
	return nil
}

// DistributeGiveaway debits the donor and splits the donation evenly across every eligible account
// through the category's open pool. Nothing is written unless every step succeeds.
func (s *Service) DistributeGiveaway(ctx context.Context, params store.GiveawayParams) (*models.GiveawayResult, error) {
	if params.Amount <= 0 {
		return nil, fmt.Errorf("%w: donation must be positive, got %d", ledger.ErrInvalidAmount, params.Amount)
	}
	if !params.Category.Valid() {
		return nil, fmt.Errorf("%w: %q", ledger.ErrInvalidCategory, params.Category)
	}

	var result *models.GiveawayResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		pool, err := s.lockOpenPool(ctx, tx, params.Category)
		if err != nil {
			return err
		}

		// Donor first, then recipients in ascending id order.
		locked, err := s.lockAccounts(ctx, tx, params.DonorAccountId)
		if err != nil {
			return err
		}
		donor := locked[params.DonorAccountId]
		if !donor.IsActive {
			return fmt.Errorf("%w: %d", ledger.ErrAccountInactive, donor.Id)
		}
		if donor.BubbleBalance < params.Amount {
			return fmt.Errorf("%w: account %d holds %d, needs %d",
				ledger.ErrInsufficientBalance, donor.Id, donor.BubbleBalance, params.Amount)
		}

		recipients, err := s.eligibleRecipients(ctx, tx, donor.Id)
		if err != nil {
			return err
		}
		share, err := ledger.ComputeGiveawayShare(params.Amount, pool.AmountPerAccount, len(recipients))
		if err != nil {
			return err
		}

		now := s.now()
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(queryUpdateAccountBalance),
			donor.BubbleBalance-params.Amount, now, donor.Id); err != nil {
			return fmt.Errorf("failed to debit donor %d: %w", donor.Id, err)
		}
		if err := s.recordTransaction(ctx, tx, &models.ContributionTransaction{
			Id:            uuid.New().String(),
			FromAccountId: donor.Id,
			ToAccountId:   donor.Id,
			Amount:        params.Amount,
			Kind:          models.KindDonation,
			Status:        models.StatusCompleted,
			Reference:     pool.Id,
			CreatedAt:     now,
			UpdatedAt:     now,
		}); err != nil {
			return err
		}

		if err := s.creditRecipients(ctx, tx, recipients, share.PerRecipient); err != nil {
			return err
		}
		reference := "giveaway:" + pool.Id
		for _, id := range recipients {
			if err := s.recordTransaction(ctx, tx, &models.ContributionTransaction{
				Id:            uuid.New().String(),
				FromAccountId: donor.Id,
				ToAccountId:   id,
				Amount:        share.PerRecipient,
				Kind:          models.KindTransfer,
				Status:        models.StatusCompleted,
				Reference:     reference,
				CreatedAt:     now,
				UpdatedAt:     now,
			}); err != nil {
				return err
			}
			if err := s.enqueueNotification(ctx, tx, models.Notification{
				RecipientAccountId: id,
				Title:              "Giveaway received",
				Body:               fmt.Sprintf("You received %d bubbles from the %s giveaway", share.PerRecipient, params.Category),
				Type:               models.NotificationGiveawayReceived,
				Data:               map[string]string{"pool_id": pool.Id, "category": string(params.Category)},
			}); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, s.dialect.rebind(queryMarkPoolDistributed), share.Distributable, share.Retained, now, pool.Id)
		if err != nil {
			return fmt.Errorf("failed to close pool %s: %w", pool.Id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n != 1 {
			return fmt.Errorf("%w: %s distributed concurrently", ledger.ErrPoolInactiveOrExhausted, pool.Id)
		}

		if err := s.enqueueNotification(ctx, tx, models.Notification{
			RecipientAccountId: donor.Id,
			Title:              "Giveaway sent",
			Body:               fmt.Sprintf("Your %d bubbles reached %d people", share.Moved, len(recipients)),
			Type:               models.NotificationGiveawayDonated,
			Data:               map[string]string{"pool_id": pool.Id, "category": string(params.Category)},
		}); err != nil {
			return err
		}

		result = &models.GiveawayResult{
			PoolId:             pool.Id,
			RecipientCount:     len(recipients),
			AmountPerRecipient: share.PerRecipient,
			TotalDistributed:   share.Distributable,
			AmountMoved:        share.Moved,
			Retained:           share.Retained,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Giveaway distributed",
		zap.String("pool_id", result.PoolId),
		zap.Int64("donor", params.DonorAccountId),
		zap.Int("recipients", result.RecipientCount),
		zap.Int64("per_recipient", result.AmountPerRecipient),
		zap.Int64("retained", result.Retained))
	return result, nil
}

func (s *Service) lockOpenPool(ctx context.Context, tx *sql.Tx, category models.Category) (*models.GiveawayPool, error) {
	pool, err := scanPool(tx.QueryRowContext(ctx, s.dialect.locking(queryGetOpenPoolByCategory), string(category)))
	if errors.Is(err, sql.ErrNoRows) {
		var distributed int64
		if err := tx.QueryRowContext(ctx, s.dialect.rebind(queryCountDistributedPools), string(category)).Scan(&distributed); err != nil {
			return nil, fmt.Errorf("failed to count pools: %w", err)
		}
		if distributed > 0 {
			return nil, fmt.Errorf("%w: %s pool already distributed", ledger.ErrPoolInactiveOrExhausted, category)
		}
		return nil, fmt.Errorf("%w: %s", ledger.ErrPoolNotFound, category)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pool: %w", err)
	}
	if !pool.IsActive {
		return nil, fmt.Errorf("%w: %s pool is inactive", ledger.ErrPoolInactiveOrExhausted, category)
	}
	return pool, nil
}

// eligibleRecipients lists active accounts other than the donor that have completed a payback.
func (s *Service) eligibleRecipients(ctx context.Context, tx *sql.Tx, donorId int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, s.dialect.rebind(queryEligibleRecipients), donorId)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible recipients: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// creditBatchSize bounds the number of ids bound into one IN (...) clause.
var creditBatchSize = 500

// creditRecipients locks ids in ascending order and adds amount to each balance, in batches of
// creditBatchSize within tx.
func (s *Service) creditRecipients(ctx context.Context, tx *sql.Tx, ids []int64, amount int64) error {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	now := s.now()

	for start := 0; start < len(sorted); start += creditBatchSize {
		batch := sorted[start:min(start+creditBatchSize, len(sorted))]
		args := make([]any, 0, len(batch)+2)
		args = append(args, amount, now)
		for _, id := range batch {
			args = append(args, id)
		}
		in := placeholders(len(batch))

		if s.dialect.forUpdate != "" {
			rows, err := tx.QueryContext(ctx, s.dialect.locking("SELECT id FROM accounts WHERE id IN ("+in+") ORDER BY id"), args[2:]...)
			if err != nil {
				return fmt.Errorf("failed to lock recipients: %w", err)
			}
			rows.Close()
		}

		update := "UPDATE accounts SET bubble_balance = bubble_balance + ?, updated_at = ? WHERE id IN (" + in + ")"
		res, err := tx.ExecContext(ctx, s.dialect.rebind(update), args...)
		if err != nil {
			return fmt.Errorf("failed to credit recipients: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n != int64(len(batch)) {
			return fmt.Errorf("%w: credited %d of %d recipients", ledger.ErrAccountNotFound, n, len(batch))
		}
	}
	return nil
}

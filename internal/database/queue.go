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

	"bubble-ledger-go/internal/ledger"
	"bubble-ledger-go/internal/models"

	"go.uber.org/zap"
)

// RebalanceQueue compacts every active queued account into a dense ordering and raises the tracker
// watermark past the end of the queue.
func (s *Service) RebalanceQueue(ctx context.Context) (*models.RebalanceResult, error) {
	result := &models.RebalanceResult{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, s.dialect.locking(queryQueueEntries))
		if err != nil {
			return fmt.Errorf("failed to query queue: %w", err)
		}
		var entries []ledger.QueueEntry
		for rows.Next() {
			var e ledger.QueueEntry
			if err := rows.Scan(&e.AccountId, &e.QueuePosition, &e.QueueSlotCount); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan queue entry: %w", err)
			}
			entries = append(entries, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		changes, next := ledger.PlanRebalance(entries)
		now := s.now()
		for _, c := range changes {
			if _, err := tx.ExecContext(ctx, s.dialect.rebind(queryUpdateQueuePosition), c.NewPosition, now, c.AccountId); err != nil {
				return fmt.Errorf("failed to move account %d: %w", c.AccountId, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(queryRaiseQueueTracker), next-1, next-1); err != nil {
			return fmt.Errorf("failed to update queue tracker: %w", err)
		}

		result.QueuedAccounts = len(entries)
		result.Changes = changes
		result.NextPosition = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Queue rebalanced",
		zap.Int("queued_accounts", result.QueuedAccounts),
		zap.Int("moved", len(result.Changes)),
		zap.Int64("next_position", result.NextPosition))
	return result, nil
}

// RecomputeTopUser flags the account whose lowest incomplete slot sits earliest in the queue and
// clears the flag everywhere else. It returns 0 when no account qualifies.
func (s *Service) RecomputeTopUser(ctx context.Context) (int64, error) {
	var winner int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, s.dialect.rebind(queryTopCandidates))
		if err != nil {
			return fmt.Errorf("failed to query top candidates: %w", err)
		}
		var candidates []ledger.Candidate
		for rows.Next() {
			var (
				c   ledger.Candidate
				raw string
			)
			if err := rows.Scan(&c.AccountId, &c.QueuePosition, &c.QueueSlotCount, &raw); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan top candidate: %w", err)
			}
			decoded := ledger.DecodeSlotProgress(raw, int(c.QueueSlotCount))
			if decoded.Recovered {
				reportRecovery(c.AccountId, decoded.Reason)
			}
			c.Progress = decoded.Progress
			candidates = append(candidates, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		winner = ledger.SelectTop(candidates)
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(queryClearTopOfQueue)); err != nil {
			return fmt.Errorf("failed to clear top of queue: %w", err)
		}
		if winner == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(querySetTopOfQueue), winner); err != nil {
			return fmt.Errorf("failed to flag top of queue: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	zap.L().Debug("Top of queue recomputed", zap.Int64("account_id", winner))
	return winner, nil
}

func (s *Service) GetQueueTracker(ctx context.Context) (*models.QueueTracker, error) {
	var tracker models.QueueTracker
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(queryGetQueueTracker)).Scan(&tracker.LastAssignedPosition)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue tracker: %w", err)
	}
	return &tracker, nil
}

// lockTracker reads the watermark and holds the tracker row until tx ends.
func (s *Service) lockTracker(ctx context.Context, tx *sql.Tx) (int64, error) {
	var watermark int64
	err := tx.QueryRowContext(ctx, s.dialect.locking(queryGetQueueTracker)).Scan(&watermark)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read queue tracker: %w", err)
	}
	return watermark, nil
}

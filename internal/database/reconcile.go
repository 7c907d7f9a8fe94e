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
	"fmt"

	"bubble-ledger-go/internal/ledger"
	"bubble-ledger-go/internal/models"

	"go.uber.org/zap"
)

// Reconcile totals what accounts hold against what entered the system. Balances plus slot escrow
// plus pool retention must equal the sum of external deposits.
func (s *Service) Reconcile(ctx context.Context) (*models.ReconcileReport, error) {
	report := &models.ReconcileReport{}

	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(queryTotalBalances)).Scan(&report.TotalBalances); err != nil {
		return nil, fmt.Errorf("failed to sum balances: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(queryExternalDeposits)).Scan(&report.ExternalDeposits); err != nil {
		return nil, fmt.Errorf("failed to sum deposits: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(queryGiveawayRetained)).Scan(&report.GiveawayRetained); err != nil {
		return nil, fmt.Errorf("failed to sum pool retention: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(querySlotProgressColumns))
	if err != nil {
		return nil, fmt.Errorf("failed to query slot progress: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, slots int64
			raw       string
		)
		if err := rows.Scan(&id, &slots, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan slot progress: %w", err)
		}
		decoded := ledger.DecodeSlotProgress(raw, int(slots))
		if decoded.Recovered {
			report.RecoveredSlots++
			continue
		}
		report.TotalSlotEscrow += decoded.Progress.Total()
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	level := zap.InfoLevel
	if !report.Balanced() {
		level = zap.WarnLevel
	}
	zap.L().Log(level, "Ledger reconciled",
		zap.Int64("balances", report.TotalBalances),
		zap.Int64("slot_escrow", report.TotalSlotEscrow),
		zap.Int64("deposits", report.ExternalDeposits),
		zap.Int64("retained", report.GiveawayRetained),
		zap.Int("recovered_slots", report.RecoveredSlots),
		zap.Bool("balanced", report.Balanced()))
	return report, nil
}

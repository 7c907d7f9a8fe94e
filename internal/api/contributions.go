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

package api

import (
	"context"

	"bubble-ledger-go/internal/metrics"
	"bubble-ledger-go/internal/models"
	"bubble-ledger-go/internal/store"

	"go.uber.org/zap"
)

// ApplyContribution moves bubbles from one account into a slot of another. A completed last slot
// takes the target out of the queue, so the queue is compacted before the top flag is recomputed.
func (s *LedgerService) ApplyContribution(ctx context.Context, params store.ContributionParams) (*models.ContributionResult, error) {
	zap.L().Info("Processing contribution",
		zap.Int64("from", params.FromAccountId),
		zap.Int64("to", params.ToAccountId),
		zap.Int64("amount", params.Amount),
		zap.Int("target_slot", params.TargetSlot),
		zap.String("kind", string(params.Kind)))

	var result *models.ContributionResult
	err := s.run(ctx, "contribution", func() error {
		var err error
		result, err = s.store.ApplyContribution(ctx, params)
		return err
	})
	if err != nil {
		zap.L().Warn("Contribution rejected",
			zap.Int64("from", params.FromAccountId),
			zap.Int64("to", params.ToAccountId),
			zap.Int64("amount", params.Amount),
			zap.Error(err))
		return nil, err
	}

	if result.SlotCompleted {
		metrics.SlotsCompleted.Inc()
	}
	if result.QueueAdvanced {
		metrics.QueueAdvances.Inc()
	}
	s.afterQueueChange(ctx, result.QueueAdvanced)
	return result, nil
}

func (s *LedgerService) MarkPaidback(ctx context.Context, transactionId string) (*models.ContributionTransaction, error) {
	var payback *models.ContributionTransaction
	err := s.run(ctx, "paidback", func() error {
		var err error
		payback, err = s.store.MarkPaidback(ctx, transactionId)
		return err
	})
	return payback, err
}

func (s *LedgerService) MarkDonated(ctx context.Context, transactionId string) (*models.ContributionTransaction, error) {
	var txn *models.ContributionTransaction
	err := s.run(ctx, "donated", func() error {
		var err error
		txn, err = s.store.MarkDonated(ctx, transactionId)
		return err
	})
	return txn, err
}

func (s *LedgerService) GetTransaction(ctx context.Context, transactionId string) (*models.ContributionTransaction, error) {
	return s.store.GetTransaction(ctx, transactionId)
}

func (s *LedgerService) GetTransactionHistory(ctx context.Context, accountId int64, limit, offset int) ([]models.ContributionTransaction, error) {
	return s.store.GetTransactionHistory(ctx, accountId, limit, offset)
}

func (s *LedgerService) SupporterTotals(ctx context.Context, accountId int64) ([]models.SupporterTotal, error) {
	return s.store.SupporterTotals(ctx, accountId)
}

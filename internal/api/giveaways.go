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

// DistributeGiveaway splits a donation across every eligible account through the category pool.
func (s *LedgerService) DistributeGiveaway(ctx context.Context, params store.GiveawayParams) (*models.GiveawayResult, error) {
	zap.L().Info("Processing giveaway",
		zap.Int64("donor", params.DonorAccountId),
		zap.String("category", string(params.Category)),
		zap.Int64("amount", params.Amount))

	var result *models.GiveawayResult
	err := s.run(ctx, "giveaway", func() error {
		var err error
		result, err = s.store.DistributeGiveaway(ctx, params)
		return err
	})
	if err != nil {
		zap.L().Warn("Giveaway rejected",
			zap.Int64("donor", params.DonorAccountId),
			zap.String("category", string(params.Category)),
			zap.Error(err))
		return nil, err
	}

	category := string(params.Category)
	metrics.GiveawayBubbles.WithLabelValues(category, "moved").Add(float64(result.AmountMoved))
	metrics.GiveawayBubbles.WithLabelValues(category, "retained").Add(float64(result.Retained))
	return result, nil
}

func (s *LedgerService) CreatePool(ctx context.Context, category models.Category, amountPerAccount int64) (*models.GiveawayPool, error) {
	var pool *models.GiveawayPool
	err := s.run(ctx, "create_pool", func() error {
		var err error
		pool, err = s.store.CreatePool(ctx, category, amountPerAccount)
		return err
	})
	return pool, err
}

func (s *LedgerService) GetPool(ctx context.Context, poolId string) (*models.GiveawayPool, error) {
	return s.store.GetPool(ctx, poolId)
}

func (s *LedgerService) GetActivePool(ctx context.Context, category models.Category) (*models.GiveawayPool, error) {
	return s.store.GetActivePool(ctx, category)
}

func (s *LedgerService) ListPools(ctx context.Context) ([]models.GiveawayPool, error) {
	return s.store.ListPools(ctx)
}

func (s *LedgerService) SetPoolActive(ctx context.Context, poolId string, active bool) error {
	return s.run(ctx, "set_pool_active", func() error {
		return s.store.SetPoolActive(ctx, poolId, active)
	})
}

func (s *LedgerService) UpdatePoolAmount(ctx context.Context, poolId string, amountPerAccount int64) error {
	return s.run(ctx, "update_pool_amount", func() error {
		return s.store.UpdatePoolAmount(ctx, poolId, amountPerAccount)
	})
}

func (s *LedgerService) ResetPool(ctx context.Context, poolId string) error {
	return s.run(ctx, "reset_pool", func() error {
		return s.store.ResetPool(ctx, poolId)
	})
}

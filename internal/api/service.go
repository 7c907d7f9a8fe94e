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
	"errors"
	"fmt"
	"time"

	"bubble-ledger-go/internal/ledger"
	"bubble-ledger-go/internal/metrics"
	"bubble-ledger-go/internal/models"
	"bubble-ledger-go/internal/store"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// LedgerService is the entry point used by commands and the daemon. It retries lock contention and
// runs queue upkeep after the ledger transaction commits.
type LedgerService struct {
	store store.LedgerStore
	cfg   models.LedgerConfig
	clock clockwork.Clock
}

func NewLedgerService(s store.LedgerStore, cfg models.LedgerConfig, clock clockwork.Clock) *LedgerService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LedgerService{
		store: s,
		cfg:   cfg,
		clock: clock,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// run executes fn, retrying while the store reports lock contention. Every other error is returned
// as is on the first attempt.
func (s *LedgerService) run(ctx context.Context, operation string, fn func() error) error {
	start := s.clock.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues(operation).Observe(s.clock.Since(start).Seconds())
	}()

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ledger.ErrContentionTimeout) || attempt >= s.cfg.ContentionRetries {
			break
		}

		metrics.ContentionRetries.WithLabelValues(operation).Inc()
		backoff := s.cfg.ContentionBackoff * time.Duration(attempt+1)
		zap.L().Warn("Ledger contention, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if backoff <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(backoff):
		}
	}

	metrics.OperationsTotal.WithLabelValues(operation, outcome(err)).Inc()
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ledger.ErrContentionTimeout):
		return "contention"
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidSlot),
		errors.Is(err, ledger.ErrInvalidKind),
		errors.Is(err, ledger.ErrInvalidCategory),
		errors.Is(err, ledger.ErrSelfContribution),
		errors.Is(err, ledger.ErrAccountInactive),
		errors.Is(err, ledger.ErrInvalidTransactionState),
		errors.Is(err, ledger.ErrNoEligibleRecipients),
		errors.Is(err, ledger.ErrPoolInactiveOrExhausted),
		errors.Is(err, ledger.ErrPoolExists):
		return "rejected"
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrTransactionNotFound),
		errors.Is(err, ledger.ErrPoolNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// MaintainQueue compacts the queue and recomputes the top-of-queue flag.
func (s *LedgerService) MaintainQueue(ctx context.Context) (*models.RebalanceResult, int64, error) {
	result, err := s.RebalanceQueue(ctx)
	if err != nil {
		return nil, 0, err
	}

	top, err := s.RecomputeTopUser(ctx)
	if err != nil {
		return result, 0, err
	}
	return result, top, nil
}

// RebalanceQueue compacts queue positions, retrying on lock contention.
func (s *LedgerService) RebalanceQueue(ctx context.Context) (*models.RebalanceResult, error) {
	var result *models.RebalanceResult
	err := s.run(ctx, "rebalance", func() error {
		var err error
		result, err = s.store.RebalanceQueue(ctx)
		return err
	})
	return result, err
}

func (s *LedgerService) RecomputeTopUser(ctx context.Context) (int64, error) {
	var top int64
	err := s.run(ctx, "recompute_top", func() error {
		var err error
		top, err = s.store.RecomputeTopUser(ctx)
		return err
	})
	return top, err
}

func (s *LedgerService) ListQueue(ctx context.Context) ([]models.Account, error) {
	return s.store.ListQueuedAccounts(ctx)
}

func (s *LedgerService) GetQueueTracker(ctx context.Context) (*models.QueueTracker, error) {
	return s.store.GetQueueTracker(ctx)
}

func (s *LedgerService) Reconcile(ctx context.Context) (*models.ReconcileReport, error) {
	return s.store.Reconcile(ctx)
}

// afterQueueChange runs queue upkeep once a committed mutation changed who is queued. Failures are
// logged; the periodic maintainer repairs whatever is left.
func (s *LedgerService) afterQueueChange(ctx context.Context, rebalance bool) {
	if rebalance {
		if _, err := s.store.RebalanceQueue(ctx); err != nil {
			zap.L().Warn("Post-commit rebalance failed", zap.Error(err))
		}
	}
	if _, err := s.store.RecomputeTopUser(ctx); err != nil {
		zap.L().Warn("Post-commit top of queue recompute failed", zap.Error(err))
	}
}

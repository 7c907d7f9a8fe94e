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

package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bubble-ledger-go/internal/metrics"
	"bubble-ledger-go/internal/models"
	"bubble-ledger-go/internal/store"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrPermanent marks a delivery failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent delivery failure")

const maxBackoffShift = 6

// Sink delivers outbox events of one topic.
type Sink interface {
	Deliver(ctx context.Context, event models.OutboxEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event models.OutboxEvent) error

func (f SinkFunc) Deliver(ctx context.Context, event models.OutboxEvent) error {
	return f(ctx, event)
}

// OutboxDispatcherConfig contains configuration for OutboxDispatcher
type OutboxDispatcherConfig struct {
	Store  store.LedgerStore
	Sinks  map[string]Sink
	Clock  clockwork.Clock
	Config models.DispatcherConfig
}

// OutboxDispatcher polls the outbox and hands due events to the sink registered for their topic.
type OutboxDispatcher struct {
	store store.LedgerStore
	sinks map[string]Sink
	clock clockwork.Clock
	cfg   models.DispatcherConfig

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewOutboxDispatcher(cfg OutboxDispatcherConfig) *OutboxDispatcher {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	settings := cfg.Config
	if settings.BatchSize <= 0 {
		settings.BatchSize = 50
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 1
	}
	return &OutboxDispatcher{
		store:    cfg.Store,
		sinks:    cfg.Sinks,
		clock:    clock,
		cfg:      settings,
		stopChan: make(chan struct{}),
	}
}

// Start launches the polling and cleanup loops.
func (d *OutboxDispatcher) Start(ctx context.Context) error {
	if d.cfg.PollingInterval <= 0 {
		return fmt.Errorf("polling interval must be positive, got %v", d.cfg.PollingInterval)
	}
	zap.L().Info("Starting outbox dispatcher",
		zap.Duration("polling_interval", d.cfg.PollingInterval),
		zap.Int("batch_size", d.cfg.BatchSize),
		zap.Int("concurrency", d.cfg.Concurrency))

	d.wg.Add(1)
	go d.pollLoop(ctx)
	if d.cfg.CleanupInterval > 0 && d.cfg.Retention > 0 {
		d.wg.Add(1)
		go d.cleanupLoop(ctx)
	}
	return nil
}

// Stop gracefully stops the dispatcher
func (d *OutboxDispatcher) Stop() {
	zap.L().Info("Stopping outbox dispatcher")
	d.stopOnce.Do(func() { close(d.stopChan) })
	d.wg.Wait()
	zap.L().Info("Outbox dispatcher stopped")
}

func (d *OutboxDispatcher) pollLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := d.clock.NewTicker(d.cfg.PollingInterval)
	defer ticker.Stop()

	d.dispatchLogged(ctx)
	for {
		select {
		case <-ticker.Chan():
			d.dispatchLogged(ctx)
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *OutboxDispatcher) dispatchLogged(ctx context.Context) {
	delivered, failed, err := d.DispatchOnce(ctx)
	if err != nil {
		zap.L().Error("Outbox dispatch failed", zap.Error(err))
		return
	}
	if delivered+failed > 0 {
		zap.L().Debug("Outbox batch dispatched", zap.Int("delivered", delivered), zap.Int("failed", failed))
	}
}

// DispatchOnce delivers one batch of due events and records each outcome.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (delivered, failed int, err error) {
	events, err := d.store.FetchDueEvents(ctx, d.cfg.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch due events: %w", err)
	}
	if len(events) == 0 {
		return 0, 0, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for _, event := range events {
		g.Go(func() error {
			ok, err := d.deliver(gctx, event)
			if err != nil {
				return err
			}
			mu.Lock()
			if ok {
				delivered++
			} else {
				failed++
			}
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	return delivered, failed, err
}

// deliver hands event to its sink. Sink failures are recorded on the event; only store errors are
// returned.
func (d *OutboxDispatcher) deliver(ctx context.Context, event models.OutboxEvent) (bool, error) {
	sink, ok := d.sinks[event.Topic]
	if !ok {
		zap.L().Debug("No sink for outbox topic, settling event",
			zap.String("event_id", event.Id),
			zap.String("topic", event.Topic))
		metrics.OutboxDeliveries.WithLabelValues(event.Topic, "skipped").Inc()
		return true, d.store.MarkEventDelivered(ctx, event.Id)
	}

	deliverErr := sink.Deliver(ctx, event)
	if deliverErr == nil {
		metrics.OutboxDeliveries.WithLabelValues(event.Topic, "delivered").Inc()
		return true, d.store.MarkEventDelivered(ctx, event.Id)
	}

	maxAttempts := d.cfg.MaxAttempts
	status := "retry"
	if errors.Is(deliverErr, ErrPermanent) {
		maxAttempts = event.Attempts + 1
		status = "failed"
	} else if event.Attempts+1 >= maxAttempts {
		status = "failed"
	}
	metrics.OutboxDeliveries.WithLabelValues(event.Topic, status).Inc()

	retryAt := d.clock.Now().Add(d.backoff(event.Attempts))
	zap.L().Warn("Outbox delivery failed",
		zap.String("event_id", event.Id),
		zap.String("topic", event.Topic),
		zap.Int("attempt", event.Attempts+1),
		zap.String("status", status),
		zap.Time("retry_at", retryAt),
		zap.Error(deliverErr))
	return false, d.store.MarkEventFailed(ctx, event.Id, deliverErr.Error(), retryAt, maxAttempts)
}

// backoff doubles the retry delay with every failed attempt.
func (d *OutboxDispatcher) backoff(attempts int) time.Duration {
	shift := min(attempts, maxBackoffShift)
	return d.cfg.RetryBackoff << shift
}

func (d *OutboxDispatcher) cleanupLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := d.clock.NewTicker(d.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			d.Cleanup(ctx)
		case <-d.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Cleanup removes settled events older than the retention window.
func (d *OutboxDispatcher) Cleanup(ctx context.Context) int64 {
	cutoff := d.clock.Now().Add(-d.cfg.Retention)
	purged, err := d.store.PurgeEvents(ctx, cutoff)
	if err != nil {
		zap.L().Error("Failed to purge outbox events", zap.Error(err))
		return 0
	}
	if purged > 0 {
		metrics.OutboxPurged.Add(float64(purged))
		zap.L().Debug("Purged settled outbox events", zap.Int64("purged", purged), zap.Time("cutoff", cutoff))
	}
	return purged
}

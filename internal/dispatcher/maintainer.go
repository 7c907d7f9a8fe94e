package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bubble-ledger-go/internal/metrics"
	"bubble-ledger-go/internal/models"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// QueueMaintenance compacts the queue and recomputes the top-of-queue flag.
type QueueMaintenance interface {
	MaintainQueue(ctx context.Context) (*models.RebalanceResult, int64, error)
}

// QueueMaintainer runs queue maintenance on a fixed interval so drift left by failed post-commit
// upkeep is repaired.
type QueueMaintainer struct {
	ledger   QueueMaintenance
	clock    clockwork.Clock
	interval time.Duration

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewQueueMaintainer(ledger QueueMaintenance, clock clockwork.Clock, interval time.Duration) *QueueMaintainer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &QueueMaintainer{
		ledger:   ledger,
		clock:    clock,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

func (m *QueueMaintainer) Start(ctx context.Context) error {
	if m.interval <= 0 {
		return fmt.Errorf("maintenance interval must be positive, got %v", m.interval)
	}
	zap.L().Info("Starting queue maintainer", zap.Duration("interval", m.interval))
	go m.loop(ctx)
	return nil
}

func (m *QueueMaintainer) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	<-m.doneChan
	zap.L().Info("Queue maintainer stopped")
}

func (m *QueueMaintainer) loop(ctx context.Context) {
	defer close(m.doneChan)

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			m.RunOnce(ctx)
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs a single maintenance pass.
func (m *QueueMaintainer) RunOnce(ctx context.Context) {
	result, top, err := m.ledger.MaintainQueue(ctx)
	if err != nil {
		metrics.QueueMaintenanceTotal.WithLabelValues("error").Inc()
		zap.L().Error("Queue maintenance failed", zap.Error(err))
		return
	}
	metrics.QueueMaintenanceTotal.WithLabelValues("success").Inc()
	if len(result.Changes) > 0 {
		zap.L().Info("Queue maintenance moved accounts",
			zap.Int("moved", len(result.Changes)),
			zap.Int64("top_account", top))
	}
}

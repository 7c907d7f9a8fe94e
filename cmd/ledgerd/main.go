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

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"bubble-ledger-go/internal/common"
	"bubble-ledger-go/internal/config"
	"bubble-ledger-go/internal/dispatcher"
	"bubble-ledger-go/internal/metrics"
	"bubble-ledger-go/internal/ops"

	"go.uber.org/zap"
)

var version = "dev"

type stopper interface {
	Stop()
}

func main() {
	opsAddrFlag := flag.String("ops-addr", "", "Ops server listen address (default: OPS_LISTEN_ADDR)")
	noMaintenanceFlag := flag.Bool("no-maintenance", false, "Disable the periodic queue maintainer")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}
	if *opsAddrFlag != "" {
		cfg.OpsAddr = *opsAddrFlag
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting bubble ledger daemon", zap.String("version", version))
	metrics.BuildInfo.WithLabelValues(version).Set(1)

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	sinks, err := common.InitializeSinks(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize outbox sinks", zap.Error(err))
	}

	outbox := dispatcher.NewOutboxDispatcher(dispatcher.OutboxDispatcherConfig{
		Store:  services.DbService,
		Sinks:  sinks,
		Config: cfg.Dispatcher,
	})
	if err := outbox.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start outbox dispatcher", zap.Error(err))
	}
	workers := []stopper{outbox}

	if !*noMaintenanceFlag && cfg.Dispatcher.MaintenanceInterval > 0 {
		maintainer := dispatcher.NewQueueMaintainer(services.Ledger, nil, cfg.Dispatcher.MaintenanceInterval)
		if err := maintainer.Start(ctx); err != nil {
			zap.L().Fatal("Failed to start queue maintainer", zap.Error(err))
		}
		workers = append(workers, maintainer)
	}

	opsServer := ops.NewServer(cfg.OpsAddr, services.Ledger)
	go func() {
		if err := opsServer.Start(); err != nil {
			zap.L().Error("Ops server stopped", zap.Error(err))
			cancel()
		}
	}()

	zap.L().Info("Daemon running", zap.Int("workers", len(workers)))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, stopping workers...")
	case <-ctx.Done():
		zap.L().Warn("Ops server failed, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Ops server shutdown error", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, w := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Stop()
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("All workers stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}

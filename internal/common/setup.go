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

package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"bubble-ledger-go/internal/api"
	"bubble-ledger-go/internal/database"
	"bubble-ledger-go/internal/dispatcher"
	"bubble-ledger-go/internal/formance"
	"bubble-ledger-go/internal/models"
	"bubble-ledger-go/internal/notify"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// init loads environment variables from .env file if it exists
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService *database.Service
	Ledger    *api.LedgerService
}

// InitializeLogger installs the global zap logger. When cfg.File is set, entries are also written to
// a rotating file.
func InitializeLogger(cfg models.LogConfig) (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	var rotator *lumberjack.Logger
	if cfg.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			zap.InfoLevel,
		)
		logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
		if rotator != nil {
			if err := rotator.Close(); err != nil {
				log.Printf("Failed to close log file: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	return &Services{
		DbService: dbService,
		Ledger:    api.NewLedgerService(dbService, cfg.Ledger, nil),
	}, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

// InitializeSinks builds the outbox sinks keyed by topic. Notifications go to the push gateway when
// one is configured and to the log otherwise; the Formance mirror is only attached when configured.
func InitializeSinks(ctx context.Context, cfg *models.Config) (map[string]dispatcher.Sink, error) {
	sinks := make(map[string]dispatcher.Sink, 2)

	if cfg.Notify.GatewayUrl != "" {
		gateway, err := notify.NewGatewaySink(cfg.Notify)
		if err != nil {
			return nil, fmt.Errorf("failed to create push gateway sink: %w", err)
		}
		sinks[models.TopicNotification] = gateway
		zap.L().Info("Notifications routed to push gateway", zap.String("url", cfg.Notify.GatewayUrl))
	} else {
		sinks[models.TopicNotification] = notify.LogSink{}
		zap.L().Info("No push gateway configured, notifications will be logged")
	}

	if cfg.Formance.StackURL != "" {
		mirror, err := formance.NewMirror(ctx, cfg.Formance)
		if err != nil {
			return nil, fmt.Errorf("failed to create formance mirror: %w", err)
		}
		sinks[models.TopicLedgerTransaction] = mirror
	}

	return sinks, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}

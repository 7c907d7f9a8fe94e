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
	"time"

	"bubble-ledger-go/internal/ledger"
	"bubble-ledger-go/internal/metrics"
	"bubble-ledger-go/internal/models"
	"bubble-ledger-go/internal/store"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

// Sentinel errors for outbox operations
var (
	ErrEventNotFound = errors.New("outbox event not found")
)

type Service struct {
	db          *sql.DB
	dialect     dialect
	clock       clockwork.Clock
	lockTimeout time.Duration
}

type Option func(*Service)

// WithClock replaces the wall clock used to stamp rows and schedule outbox retries.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func NewService(ctx context.Context, cfg models.DatabaseConfig, opts ...Option) (*Service, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	// Validate configuration
	if d.name == DriverSQLite && cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if d.name == DriverPostgres && cfg.Url == "" {
		return nil, fmt.Errorf("database url cannot be empty for driver %s", d.name)
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}
	if cfg.LockTimeout <= 0 {
		return nil, fmt.Errorf("lock timeout must be positive, got %v", cfg.LockTimeout)
	}

	if d.name == DriverSQLite {
		zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	} else {
		zap.L().Info("Opening PostgreSQL database")
	}
	db, err := sql.Open(d.name, d.dsn(cfg.Path, cfg.Url, cfg.LockTimeout))
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after ping failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{
		db:          db,
		dialect:     d,
		clock:       clockwork.NewRealClock(),
		lockTimeout: cfg.LockTimeout,
	}
	for _, opt := range opts {
		opt(service)
	}

	if err := service.initSchema(ctx, cfg.CreateDemoAccounts); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close database after schema failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully", zap.String("driver", d.name))
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) initSchema(ctx context.Context, createDemoAccounts bool) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return err
	}

	if !createDemoAccounts {
		zap.L().Info("Skipping demo account creation (CREATE_DEMO_ACCOUNTS=false)")
		return nil
	}

	demo := []models.Account{
		{Name: "Alice Johnson", Email: "alice.johnson@example.com"},
		{Name: "Bob Smith", Email: "bob.smith@example.com"},
		{Name: "Carol Williams", Email: "carol.williams@example.com"},
	}
	for _, account := range demo {
		if existing, err := s.GetAccountByEmail(ctx, account.Email); err == nil {
			zap.L().Debug("Demo account already present", zap.Int64("id", existing.Id))
			continue
		}
		created, err := s.CreateAccount(ctx, store.CreateAccountParams{Name: account.Name, Email: account.Email})
		if err != nil {
			zap.L().Error("Failed to insert demo account", zap.String("name", account.Name), zap.Error(err))
			continue
		}
		zap.L().Info("Demo account created", zap.Int64("id", created.Id), zap.String("name", created.Name))
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// withTx runs fn inside one database transaction. Driver lock timeouts surface as
// ledger.ErrContentionTimeout; any error rolls the whole unit back.
func (s *Service) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.txOptions)
	if err != nil {
		return translate(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := s.dialect.prepareTx(ctx, tx, s.lockTimeout); err != nil {
		return translate(fmt.Errorf("failed to prepare transaction: %w", err))
	}
	if err := fn(tx); err != nil {
		return translate(err)
	}
	if err := tx.Commit(); err != nil {
		return translate(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func translate(err error) error {
	if err == nil || errors.Is(err, ledger.ErrContentionTimeout) {
		return err
	}
	if isContention(err) {
		return fmt.Errorf("%w: %v", ledger.ErrContentionTimeout, err)
	}
	return err
}

// reportRecovery records that a stored slot_progress value was unreadable and has been reset.
func reportRecovery(accountId int64, reason string) {
	metrics.SlotProgressRecoveries.Inc()
	zap.L().Warn("Slot progress recovered from corrupted value",
		zap.Int64("account_id", accountId),
		zap.String("reason", reason),
		zap.Error(ledger.ErrDataIntegrityRecovered))
}

type rowScanner interface {
	Scan(dest ...any) error
}

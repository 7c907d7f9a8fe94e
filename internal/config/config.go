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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"bubble-ledger-go/internal/models"
)

func Load() (*models.Config, error) {
	durations := map[string]struct {
		key string
		def time.Duration
	}{
		"connMaxLifetime":     {"DB_CONN_MAX_LIFETIME", 5 * time.Minute},
		"connMaxIdleTime":     {"DB_CONN_MAX_IDLE_TIME", 30 * time.Second},
		"pingTimeout":         {"DB_PING_TIMEOUT", 5 * time.Second},
		"lockTimeout":         {"DB_LOCK_TIMEOUT", 5 * time.Second},
		"contentionBackoff":   {"LEDGER_CONTENTION_BACKOFF", 50 * time.Millisecond},
		"pollingInterval":     {"DISPATCHER_POLLING_INTERVAL", 5 * time.Second},
		"retryBackoff":        {"DISPATCHER_RETRY_BACKOFF", 30 * time.Second},
		"retention":           {"DISPATCHER_RETENTION", 7 * 24 * time.Hour},
		"cleanupInterval":     {"DISPATCHER_CLEANUP_INTERVAL", time.Hour},
		"maintenanceInterval": {"QUEUE_MAINTENANCE_INTERVAL", time.Minute},
	}
	parsed := make(map[string]time.Duration, len(durations))
	for name, d := range durations {
		value, err := getEnvDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		parsed[name] = value
	}

	rate, err := getEnvFloat("NOTIFY_RATE_PER_SECOND", 20)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Driver:             getEnvString("DATABASE_DRIVER", "sqlite3"),
			Path:               getEnvString("DATABASE_PATH", "bubbles.db"),
			Url:                getEnvString("DATABASE_URL", ""),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:    parsed["connMaxLifetime"],
			ConnMaxIdleTime:    parsed["connMaxIdleTime"],
			PingTimeout:        parsed["pingTimeout"],
			LockTimeout:        parsed["lockTimeout"],
			CreateDemoAccounts: getEnvBool("CREATE_DEMO_ACCOUNTS", false),
		},
		Ledger: models.LedgerConfig{
			ContentionRetries: getEnvInt("LEDGER_CONTENTION_RETRIES", 3),
			ContentionBackoff: parsed["contentionBackoff"],
		},
		Dispatcher: models.DispatcherConfig{
			PollingInterval:     parsed["pollingInterval"],
			BatchSize:           getEnvInt("DISPATCHER_BATCH_SIZE", 50),
			MaxAttempts:         getEnvInt("DISPATCHER_MAX_ATTEMPTS", 8),
			RetryBackoff:        parsed["retryBackoff"],
			Retention:           parsed["retention"],
			CleanupInterval:     parsed["cleanupInterval"],
			Concurrency:         getEnvInt("DISPATCHER_CONCURRENCY", 4),
			MaintenanceInterval: parsed["maintenanceInterval"],
		},
		Notify: models.NotifyConfig{
			GatewayUrl:    getEnvString("NOTIFY_GATEWAY_URL", ""),
			GatewayToken:  getEnvString("NOTIFY_GATEWAY_TOKEN", ""),
			RatePerSecond: rate,
			Burst:         getEnvInt("NOTIFY_BURST", 5),
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "bubble-ledger"),
		},
		Log: models.LogConfig{
			File:       getEnvString("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
		},
		OpsAddr:      getEnvString("OPS_LISTEN_ADDR", ":9090"),
		CategoryFile: getEnvString("CATEGORIES_FILE", "categories.yaml"),
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %q (%w)", key, value, err)
		}
		return f, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

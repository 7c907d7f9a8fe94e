package models

import "time"

// Config represents the application configuration
type Config struct {
	Database     DatabaseConfig
	Ledger       LedgerConfig
	Dispatcher   DispatcherConfig
	Notify       NotifyConfig
	Formance     FormanceConfig
	Log          LogConfig
	OpsAddr      string
	CategoryFile string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver             string
	Path               string
	Url                string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	PingTimeout        time.Duration
	LockTimeout        time.Duration
	CreateDemoAccounts bool
}

// LedgerConfig holds caller-side retry settings for contended operations
type LedgerConfig struct {
	ContentionRetries int
	ContentionBackoff time.Duration
}

// DispatcherConfig holds outbox dispatcher and queue maintenance settings
type DispatcherConfig struct {
	PollingInterval     time.Duration
	BatchSize           int
	MaxAttempts         int
	RetryBackoff        time.Duration
	Retention           time.Duration
	CleanupInterval     time.Duration
	Concurrency         int
	MaintenanceInterval time.Duration
}

// NotifyConfig holds push gateway settings. An empty GatewayUrl selects the log sink.
type NotifyConfig struct {
	GatewayUrl    string
	GatewayToken  string
	RatePerSecond float64
	Burst         int
}

// FormanceConfig holds the optional ledger mirror settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// LogConfig holds optional rotating file output settings
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

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

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		bubble_balance INTEGER NOT NULL DEFAULT 0 CHECK (bubble_balance >= 0),
		queue_position INTEGER NOT NULL DEFAULT 0 CHECK (queue_position >= 0),
		queue_slot_count INTEGER NOT NULL DEFAULT 0 CHECK (queue_slot_count >= 0),
		slot_progress TEXT NOT NULL DEFAULT '{}',
		is_top_of_queue BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_queue ON accounts(queue_position, id);
	CREATE INDEX IF NOT EXISTS idx_accounts_top ON accounts(is_top_of_queue);

	CREATE TABLE IF NOT EXISTS contribution_transactions (
		id TEXT PRIMARY KEY,
		from_account_id INTEGER NOT NULL REFERENCES accounts(id),
		to_account_id INTEGER NOT NULL REFERENCES accounts(id),
		amount INTEGER NOT NULL CHECK (amount > 0),
		target_slot_number INTEGER,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contributions_from ON contribution_transactions(from_account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_contributions_to ON contribution_transactions(to_account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_contributions_kind_status ON contribution_transactions(kind, status);

	CREATE TABLE IF NOT EXISTS giveaway_pools (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		amount_per_account INTEGER NOT NULL CHECK (amount_per_account > 0),
		total_amount_distributed INTEGER NOT NULL DEFAULT 0,
		retained_amount INTEGER NOT NULL DEFAULT 0,
		is_distributed BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		distributed_at TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_giveaway_pools_open_category ON giveaway_pools(category) WHERE is_distributed = FALSE;

	CREATE TABLE IF NOT EXISTS queue_tracker (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_assigned_position INTEGER NOT NULL DEFAULT 0
	);

	INSERT INTO queue_tracker (id, last_assigned_position) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;

	CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		recipient_account_id INTEGER NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		next_attempt_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_due ON outbox_events(status, next_attempt_at);
	`

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		bubble_balance BIGINT NOT NULL DEFAULT 0 CHECK (bubble_balance >= 0),
		queue_position BIGINT NOT NULL DEFAULT 0 CHECK (queue_position >= 0),
		queue_slot_count BIGINT NOT NULL DEFAULT 0 CHECK (queue_slot_count >= 0),
		slot_progress TEXT NOT NULL DEFAULT '{}',
		is_top_of_queue BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_queue ON accounts(queue_position, id);
	CREATE INDEX IF NOT EXISTS idx_accounts_top ON accounts(is_top_of_queue);

	CREATE TABLE IF NOT EXISTS contribution_transactions (
		id TEXT PRIMARY KEY,
		from_account_id BIGINT NOT NULL REFERENCES accounts(id),
		to_account_id BIGINT NOT NULL REFERENCES accounts(id),
		amount BIGINT NOT NULL CHECK (amount > 0),
		target_slot_number BIGINT,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contributions_from ON contribution_transactions(from_account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_contributions_to ON contribution_transactions(to_account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_contributions_kind_status ON contribution_transactions(kind, status);

	CREATE TABLE IF NOT EXISTS giveaway_pools (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		amount_per_account BIGINT NOT NULL CHECK (amount_per_account > 0),
		total_amount_distributed BIGINT NOT NULL DEFAULT 0,
		retained_amount BIGINT NOT NULL DEFAULT 0,
		is_distributed BOOLEAN NOT NULL DEFAULT FALSE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		distributed_at TIMESTAMPTZ
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_giveaway_pools_open_category ON giveaway_pools(category) WHERE is_distributed = FALSE;

	CREATE TABLE IF NOT EXISTS queue_tracker (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_assigned_position BIGINT NOT NULL DEFAULT 0
	);

	INSERT INTO queue_tracker (id, last_assigned_position) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;

	CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		recipient_account_id BIGINT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		next_attempt_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_due ON outbox_events(status, next_attempt_at);
	`

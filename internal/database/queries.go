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

const (
	accountColumns = `id, name, email, bubble_balance, queue_position, queue_slot_count, slot_progress,
		is_top_of_queue, is_active, created_at, updated_at`

	transactionColumns = `id, from_account_id, to_account_id, amount, target_slot_number, kind, status, reference,
		created_at, updated_at`

	poolColumns = `id, category, amount_per_account, total_amount_distributed, retained_amount, is_distributed,
		is_active, created_at, distributed_at`

	outboxColumns = `id, topic, recipient_account_id, payload, status, attempts, last_error, next_attempt_at,
		created_at, updated_at`

	// Account queries
	queryInsertAccount = `
		INSERT INTO accounts (name, email, bubble_balance, queue_position, queue_slot_count, slot_progress,
			is_top_of_queue, is_active, created_at, updated_at)
		VALUES (?, ?, 0, 0, 0, '{}', FALSE, TRUE, ?, ?)
		RETURNING id`

	queryGetAccountById = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = ?`

	queryGetAccountByEmail = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE LOWER(email) = LOWER(?)`

	queryListAccounts = `
		SELECT ` + accountColumns + `
		FROM accounts
		ORDER BY id`

	queryListQueuedAccounts = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE queue_position > 0 AND is_active = TRUE
		ORDER BY queue_position, id`

	querySetAccountActive = `
		UPDATE accounts SET is_active = ?, is_top_of_queue = CASE WHEN ? THEN is_top_of_queue ELSE FALSE END,
			updated_at = ?
		WHERE id = ?`

	queryUpdateAccountBalance = `
		UPDATE accounts SET bubble_balance = ?, updated_at = ?
		WHERE id = ?`

	queryUpdateAccountQueueState = `
		UPDATE accounts SET bubble_balance = ?, queue_position = ?, queue_slot_count = ?, slot_progress = ?,
			is_top_of_queue = ?, updated_at = ?
		WHERE id = ?`

	queryCountPositionOne = `
		SELECT COUNT(*) FROM accounts WHERE queue_position = 1 AND is_active = TRUE`

	// Queue queries
	queryQueueEntries = `
		SELECT id, queue_position, queue_slot_count
		FROM accounts
		WHERE queue_position > 0 AND is_active = TRUE
		ORDER BY id`

	queryUpdateQueuePosition = `
		UPDATE accounts SET queue_position = ?, updated_at = ?
		WHERE id = ?`

	queryTopCandidates = `
		SELECT id, queue_position, queue_slot_count, slot_progress
		FROM accounts
		WHERE queue_position > 0 AND queue_slot_count > 0 AND is_active = TRUE
		ORDER BY id`

	queryClearTopOfQueue = `
		UPDATE accounts SET is_top_of_queue = FALSE
		WHERE is_top_of_queue = TRUE`

	querySetTopOfQueue = `
		UPDATE accounts SET is_top_of_queue = TRUE
		WHERE id = ?`

	queryGetQueueTracker = `
		SELECT last_assigned_position FROM queue_tracker WHERE id = 1`

	querySetQueueTracker = `
		UPDATE queue_tracker SET last_assigned_position = ?
		WHERE id = 1`

	queryRaiseQueueTracker = `
		UPDATE queue_tracker SET last_assigned_position = ?
		WHERE id = 1 AND last_assigned_position < ?`

	// Transaction queries
	queryInsertTransaction = `
		INSERT INTO contribution_transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTransaction = `
		SELECT ` + transactionColumns + `
		FROM contribution_transactions
		WHERE id = ?`

	queryUpdateTransactionStatus = `
		UPDATE contribution_transactions SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	queryTransactionHistory = `
		SELECT ` + transactionColumns + `
		FROM contribution_transactions
		WHERE from_account_id = ? OR to_account_id = ?
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`

	querySupporterTotals = `
		SELECT from_account_id,
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN amount ELSE 0 END), 0),
			COUNT(*)
		FROM contribution_transactions
		WHERE to_account_id = ? AND from_account_id != to_account_id
			AND kind IN ('support', 'admin-support') AND status != 'cancelled'
		GROUP BY from_account_id
		ORDER BY from_account_id`

	// Reconciliation queries
	queryTotalBalances = `
		SELECT COALESCE(SUM(bubble_balance), 0) FROM accounts`

	querySlotProgressColumns = `
		SELECT id, queue_slot_count, slot_progress FROM accounts WHERE slot_progress != '{}'`

	queryExternalDeposits = `
		SELECT COALESCE(SUM(amount), 0) FROM contribution_transactions
		WHERE kind = 'deposit' AND status = 'completed'`

	queryGiveawayRetained = `
		SELECT COALESCE(SUM(retained_amount), 0) FROM giveaway_pools`

	// Giveaway queries
	queryInsertPool = `
		INSERT INTO giveaway_pools (` + poolColumns + `)
		VALUES (?, ?, ?, 0, 0, FALSE, TRUE, ?, NULL)`

	queryGetPool = `
		SELECT ` + poolColumns + `
		FROM giveaway_pools
		WHERE id = ?`

	queryGetOpenPoolByCategory = `
		SELECT ` + poolColumns + `
		FROM giveaway_pools
		WHERE category = ? AND is_distributed = FALSE`

	queryCountDistributedPools = `
		SELECT COUNT(*) FROM giveaway_pools WHERE category = ? AND is_distributed = TRUE`

	queryListPools = `
		SELECT ` + poolColumns + `
		FROM giveaway_pools
		ORDER BY created_at DESC, id`

	querySetPoolActive = `
		UPDATE giveaway_pools SET is_active = ?
		WHERE id = ? AND is_distributed = FALSE`

	queryUpdatePoolAmount = `
		UPDATE giveaway_pools SET amount_per_account = ?
		WHERE id = ? AND is_distributed = FALSE`

	queryDeletePool = `
		DELETE FROM giveaway_pools
		WHERE id = ? AND is_distributed = FALSE`

	queryMarkPoolDistributed = `
		UPDATE giveaway_pools SET is_distributed = TRUE, is_active = FALSE,
			total_amount_distributed = total_amount_distributed + ?, retained_amount = retained_amount + ?,
			distributed_at = ?
		WHERE id = ? AND is_distributed = FALSE`

	queryEligibleRecipients = `
		SELECT DISTINCT a.id
		FROM accounts a
		JOIN contribution_transactions t ON t.from_account_id = a.id
		WHERE a.is_active = TRUE AND a.id != ?
			AND t.kind = 'payback' AND t.status = 'completed' AND t.to_account_id != t.from_account_id
		ORDER BY a.id`

	// Outbox queries
	queryInsertOutboxEvent = `
		INSERT INTO outbox_events (` + outboxColumns + `)
		VALUES (?, ?, ?, ?, 'pending', 0, '', ?, ?, ?)`

	queryFetchDueEvents = `
		SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE status = 'pending' AND next_attempt_at <= ?
		ORDER BY created_at, id
		LIMIT ?`

	queryGetOutboxEvent = `
		SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE id = ?`

	queryMarkEventDelivered = `
		UPDATE outbox_events SET status = 'delivered', attempts = attempts + 1, last_error = '', updated_at = ?
		WHERE id = ?`

	queryMarkEventFailed = `
		UPDATE outbox_events SET attempts = attempts + 1, last_error = ?, next_attempt_at = ?,
			status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'pending' END,
			updated_at = ?
		WHERE id = ?`

	queryAcknowledgeEvent = `
		UPDATE outbox_events SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ?`

	queryPurgeEvents = `
		DELETE FROM outbox_events
		WHERE status IN ('delivered', 'acknowledged') AND updated_at < ?`
)

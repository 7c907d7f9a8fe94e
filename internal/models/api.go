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

package models

// ContributionResult is returned by ApplyContribution
type ContributionResult struct {
	TransactionId string `json:"transaction_id"`
	TargetSlot    int    `json:"target_slot"`
	SlotCompleted bool   `json:"slot_completed"`
	// NewProgress is the slot's progress before completion wrap-around (may reach or exceed capacity).
	NewProgress    int64 `json:"new_progress"`
	StoredProgress int64 `json:"stored_progress"`
	BubblesEarned  int64 `json:"bubbles_earned"`
	QueueAdvanced  bool  `json:"queue_advanced"`
	DataRecovered  bool  `json:"data_recovered,omitempty"`
	// PayoutTransactionId is set when a completed slot credited the recipient's balance.
	PayoutTransactionId string `json:"payout_transaction_id,omitempty"`
}

// GiveawayResult is returned by DistributeGiveaway
type GiveawayResult struct {
	PoolId             string `json:"pool_id"`
	RecipientCount     int    `json:"recipient_count"`
	AmountPerRecipient int64  `json:"amount_per_recipient"`
	TotalDistributed   int64  `json:"total_distributed"`
	AmountMoved        int64  `json:"amount_moved"`
	Retained           int64  `json:"retained"`
}

// PositionChange records one account moved by a rebalance
type PositionChange struct {
	AccountId   int64 `json:"account_id"`
	OldPosition int64 `json:"old_position"`
	NewPosition int64 `json:"new_position"`
}

// RebalanceResult is returned by RebalanceQueue
type RebalanceResult struct {
	QueuedAccounts int              `json:"queued_accounts"`
	Changes        []PositionChange `json:"changes"`
	NextPosition   int64            `json:"next_position"`
}

// SupporterTotal is the cumulative support one account gave another, derived from the log.
// PendingAmount is the part still awaiting payback or donation.
type SupporterTotal struct {
	SupporterAccountId int64 `json:"supporter_account_id"`
	TotalAmount        int64 `json:"total_amount"`
	PendingAmount      int64 `json:"pending_amount"`
	TransactionCount   int   `json:"transaction_count"`
}

// ReconcileReport summarises the conservation check
type ReconcileReport struct {
	TotalBalances    int64 `json:"total_balances"`
	TotalSlotEscrow  int64 `json:"total_slot_escrow"`
	ExternalDeposits int64 `json:"external_deposits"`
	GiveawayRetained int64 `json:"giveaway_retained"`
	RecoveredSlots   int   `json:"recovered_slots"`
}

// Held is everything still owned by accounts: balances plus bubbles parked in slots.
func (r ReconcileReport) Held() int64 {
	return r.TotalBalances + r.TotalSlotEscrow
}

// Balanced reports whether every bubble that entered the system is still held or retained by a pool.
func (r ReconcileReport) Balanced() bool {
	return r.Held()+r.GiveawayRetained == r.ExternalDeposits
}

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

import "time"

// SlotCapacity is the number of bubbles required to complete one queue slot.
const SlotCapacity int64 = 400

// Kind classifies a contribution transaction
type Kind string

const (
	KindSupport      Kind = "support"
	KindDonation     Kind = "donation"
	KindTransfer     Kind = "transfer"
	KindPayback      Kind = "payback"
	KindAdminSupport Kind = "admin-support"
	KindDeposit      Kind = "deposit"
	// KindSlotPayout moves a completed slot's bubbles from the recipient's escrow to its balance.
	KindSlotPayout Kind = "slot-payout"
)

// Valid reports whether k is a known transaction kind
func (k Kind) Valid() bool {
	switch k {
	case KindSupport, KindDonation, KindTransfer, KindPayback, KindAdminSupport, KindDeposit, KindSlotPayout:
		return true
	}
	return false
}

// Status is the lifecycle state of a contribution transaction
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusPaidback  Status = "paidback"
	StatusDonated   Status = "donated"
)

// Category scopes a giveaway pool
type Category string

const (
	CategoryFood      Category = "food"
	CategoryHealth    Category = "health"
	CategoryEducation Category = "education"
	CategoryHousing   Category = "housing"
	CategoryTransport Category = "transport"
	CategoryOther     Category = "other"
)

// Categories lists every giveaway category in display order.
var Categories = []Category{
	CategoryFood,
	CategoryHealth,
	CategoryEducation,
	CategoryHousing,
	CategoryTransport,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Account is a credit-bearing user. SlotProgress holds the raw stored column and must only be
// read through the ledger codec.
type Account struct {
	Id             int64     `db:"id"`
	Name           string    `db:"name"`
	Email          string    `db:"email"`
	BubbleBalance  int64     `db:"bubble_balance"`
	QueuePosition  int64     `db:"queue_position"`
	QueueSlotCount int64     `db:"queue_slot_count"`
	SlotProgress   string    `db:"slot_progress"`
	IsTopOfQueue   bool      `db:"is_top_of_queue"`
	IsActive       bool      `db:"is_active"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Queued reports whether the account currently holds a queue position
func (a Account) Queued() bool {
	return a.QueuePosition > 0
}

// ContributionTransaction is an append-only ledger record. Only Status ever changes.
type ContributionTransaction struct {
	Id               string    `db:"id"`
	FromAccountId    int64     `db:"from_account_id"`
	ToAccountId      int64     `db:"to_account_id"`
	Amount           int64     `db:"amount"`
	TargetSlotNumber *int64    `db:"target_slot_number"`
	Kind             Kind      `db:"kind"`
	Status           Status    `db:"status"`
	Reference        string    `db:"reference"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// GiveawayPool is an admin-configured, category-scoped fund distributed at most once
type GiveawayPool struct {
	Id                     string     `db:"id"`
	Category               Category   `db:"category"`
	AmountPerAccount       int64      `db:"amount_per_account"`
	TotalAmountDistributed int64      `db:"total_amount_distributed"`
	RetainedAmount         int64      `db:"retained_amount"`
	IsDistributed          bool       `db:"is_distributed"`
	IsActive               bool       `db:"is_active"`
	CreatedAt              time.Time  `db:"created_at"`
	DistributedAt          *time.Time `db:"distributed_at"`
}

// QueueTracker is the singleton watermark for appended queue positions
type QueueTracker struct {
	LastAssignedPosition int64 `db:"last_assigned_position"`
}

package models

import (
	"encoding/json"
	"time"
)

// Outbox topics
const (
	TopicNotification      = "notification"
	TopicLedgerTransaction = "ledger.transaction"
)

// Outbox delivery states
const (
	OutboxPending      = "pending"
	OutboxDelivered    = "delivered"
	OutboxAcknowledged = "acknowledged"
	OutboxFailed       = "failed"
)

// Notification types
const (
	NotificationSupportReceived  = "support_received"
	NotificationSlotCompleted    = "slot_completed"
	NotificationQueueCompleted   = "queue_completed"
	NotificationPaidback         = "paidback"
	NotificationDonated          = "donated"
	NotificationGiveawayReceived = "giveaway_received"
	NotificationGiveawayDonated  = "giveaway_donated"
	NotificationDepositReceived  = "deposit_received"
)

// Notification is the payload handed to the notification collaborator
type Notification struct {
	RecipientAccountId int64             `json:"recipient_account_id"`
	Title              string            `json:"title"`
	Body               string            `json:"body"`
	Type               string            `json:"type"`
	Data               map[string]string `json:"data,omitempty"`
}

// LedgerEntry is the payload mirrored to an external ledger for every committed transaction
type LedgerEntry struct {
	TransactionId string    `json:"transaction_id"`
	FromAccountId int64     `json:"from_account_id"`
	ToAccountId   int64     `json:"to_account_id"`
	Amount        int64     `json:"amount"`
	Kind          Kind      `json:"kind"`
	Status        Status    `json:"status"`
	Reference     string    `json:"reference,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// OutboxEvent is a durable side-effect written in the same database transaction as the ledger
// mutation that caused it.
type OutboxEvent struct {
	Id                 string          `db:"id"`
	Topic              string          `db:"topic"`
	RecipientAccountId int64           `db:"recipient_account_id"`
	Payload            json.RawMessage `db:"payload"`
	Status             string          `db:"status"`
	Attempts           int             `db:"attempts"`
	LastError          string          `db:"last_error"`
	NextAttemptAt      time.Time       `db:"next_attempt_at"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

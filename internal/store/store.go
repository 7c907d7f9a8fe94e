package store

import (
	"context"
	"time"

	"bubble-ledger-go/internal/models"
)

// ContributionParams describes one contribution applied to a target account's slot.
type ContributionParams struct {
	FromAccountId int64
	ToAccountId   int64
	Amount        int64
	TargetSlot    int // 0 selects the lowest incomplete slot
	Kind          models.Kind
}

// GiveawayParams describes a donation distributed through a category pool.
type GiveawayParams struct {
	DonorAccountId int64
	Category       models.Category
	Amount         int64
}

// CreateAccountParams contains the parameters for creating an account.
type CreateAccountParams struct {
	Name  string
	Email string
}

// LedgerStore defines the contract every ledger backend must satisfy.
type LedgerStore interface {
	// --- Accounts ---
	CreateAccount(ctx context.Context, params CreateAccountParams) (*models.Account, error)
	GetAccount(ctx context.Context, accountId int64) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	ListQueuedAccounts(ctx context.Context) ([]models.Account, error)
	SetAccountActive(ctx context.Context, accountId int64, active bool) error
	Deposit(ctx context.Context, accountId, amount int64, reference string) (*models.Account, error)
	GrantSlots(ctx context.Context, accountId, slots int64) (*models.Account, error)

	// --- Contribution ledger ---
	ApplyContribution(ctx context.Context, params ContributionParams) (*models.ContributionResult, error)
	MarkPaidback(ctx context.Context, transactionId string) (*models.ContributionTransaction, error)
	MarkDonated(ctx context.Context, transactionId string) (*models.ContributionTransaction, error)
	GetTransaction(ctx context.Context, transactionId string) (*models.ContributionTransaction, error)
	GetTransactionHistory(ctx context.Context, accountId int64, limit, offset int) ([]models.ContributionTransaction, error)
	SupporterTotals(ctx context.Context, accountId int64) ([]models.SupporterTotal, error)
	Reconcile(ctx context.Context) (*models.ReconcileReport, error)

	// --- Queue ---
	RebalanceQueue(ctx context.Context) (*models.RebalanceResult, error)
	RecomputeTopUser(ctx context.Context) (int64, error)
	GetQueueTracker(ctx context.Context) (*models.QueueTracker, error)

	// --- Giveaways ---
	CreatePool(ctx context.Context, category models.Category, amountPerAccount int64) (*models.GiveawayPool, error)
	GetPool(ctx context.Context, poolId string) (*models.GiveawayPool, error)
	GetActivePool(ctx context.Context, category models.Category) (*models.GiveawayPool, error)
	ListPools(ctx context.Context) ([]models.GiveawayPool, error)
	SetPoolActive(ctx context.Context, poolId string, active bool) error
	UpdatePoolAmount(ctx context.Context, poolId string, amountPerAccount int64) error
	ResetPool(ctx context.Context, poolId string) error
	DistributeGiveaway(ctx context.Context, params GiveawayParams) (*models.GiveawayResult, error)

	// --- Outbox ---
	FetchDueEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkEventDelivered(ctx context.Context, eventId string) error
	MarkEventFailed(ctx context.Context, eventId string, cause string, retryAt time.Time, maxAttempts int) error
	AcknowledgeDelivery(ctx context.Context, eventId string, delivered bool, detail string) error
	PurgeEvents(ctx context.Context, olderThan time.Time) (int64, error)

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}

package api

import (
	"context"

	"bubble-ledger-go/internal/models"
	"bubble-ledger-go/internal/store"
)

func (s *LedgerService) CreateAccount(ctx context.Context, name, email string) (*models.Account, error) {
	var account *models.Account
	err := s.run(ctx, "create_account", func() error {
		var err error
		account, err = s.store.CreateAccount(ctx, store.CreateAccountParams{Name: name, Email: email})
		return err
	})
	return account, err
}

func (s *LedgerService) GetAccount(ctx context.Context, accountId int64) (*models.Account, error) {
	return s.store.GetAccount(ctx, accountId)
}

func (s *LedgerService) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.store.GetAccountByEmail(ctx, email)
}

func (s *LedgerService) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return s.store.ListAccounts(ctx)
}

// SetAccountActive toggles an account. Inactive accounts leave the top-of-queue computation.
func (s *LedgerService) SetAccountActive(ctx context.Context, accountId int64, active bool) error {
	if err := s.run(ctx, "set_account_active", func() error {
		return s.store.SetAccountActive(ctx, accountId, active)
	}); err != nil {
		return err
	}
	s.afterQueueChange(ctx, true)
	return nil
}

// Deposit credits bubbles bought or granted from outside the ledger.
func (s *LedgerService) Deposit(ctx context.Context, accountId, amount int64, reference string) (*models.Account, error) {
	var account *models.Account
	err := s.run(ctx, "deposit", func() error {
		var err error
		account, err = s.store.Deposit(ctx, accountId, amount, reference)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterQueueChange(ctx, false)
	return account, nil
}

// GrantSlots opens slots for an account. Growing an account already in the queue can overlap its
// successor, so the queue is compacted afterwards.
func (s *LedgerService) GrantSlots(ctx context.Context, accountId, slots int64) (*models.Account, error) {
	var (
		account *models.Account
		queued  bool
	)
	err := s.run(ctx, "grant_slots", func() error {
		before, err := s.store.GetAccount(ctx, accountId)
		if err != nil {
			return err
		}
		queued = before.Queued()
		account, err = s.store.GrantSlots(ctx, accountId, slots)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterQueueChange(ctx, queued)
	if queued {
		// Rebalance may have moved the account.
		if refreshed, err := s.store.GetAccount(ctx, accountId); err == nil {
			account = refreshed
		}
	}
	return account, nil
}

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

package main

import (
	"context"
	"flag"
	"fmt"

	"bubble-ledger-go/internal/api"
	"bubble-ledger-go/internal/common"
	"bubble-ledger-go/internal/config"
	"bubble-ledger-go/internal/models"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalAccounts int
	active        int
	queued        int
	totalBalance  int64
}

func loadAccounts(ctx context.Context, ledgerService *api.LedgerService, emailFilter string) ([]models.Account, error) {
	if emailFilter != "" {
		zap.L().Info("Looking up account by email", zap.String("email", emailFilter))
		account, err := ledgerService.GetAccountByEmail(ctx, emailFilter)
		if err != nil {
			return nil, fmt.Errorf("account not found: %w", err)
		}
		return []models.Account{*account}, nil
	}

	accounts, err := ledgerService.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func printAccount(account models.Account) {
	status := "active"
	if !account.IsActive {
		status = "inactive"
	}
	top := ""
	if account.IsTopOfQueue {
		top = " ★ top of queue"
	}

	fmt.Printf("\n┌─ Account %d: %s (%s) [%s]%s\n", account.Id, account.Name, account.Email, status, top)
	fmt.Printf("%sBalance:  %d bubbles\n", common.BoxPrefix(false), account.BubbleBalance)
	fmt.Printf("%sPosition: %d\n", common.BoxPrefix(false), account.QueuePosition)
	fmt.Printf("%sSlots:    %s\n", common.BoxPrefix(true), common.SlotSummary(account))
}

func printSupporters(ctx context.Context, ledgerService *api.LedgerService, account models.Account) {
	totals, err := ledgerService.SupporterTotals(ctx, account.Id)
	if err != nil {
		zap.L().Error("Failed to load supporter totals", zap.Int64("account_id", account.Id), zap.Error(err))
		return
	}
	for i, total := range totals {
		fmt.Printf("   %s supporter %d: %d bubbles (%d pending, %d transactions)\n",
			common.BoxPrefix(i == len(totals)-1),
			total.SupporterAccountId,
			total.TotalAmount,
			total.PendingAmount,
			total.TransactionCount)
	}
}

func main() {
	ctx := context.Background()

	emailFlag := flag.String("email", "", "Filter by specific account email (optional)")
	supportersFlag := flag.Bool("supporters", false, "Include per-supporter totals")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	logger.Info("Starting balance query")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	accounts, err := loadAccounts(ctx, services.Ledger, *emailFlag)
	if err != nil {
		logger.Fatal("Failed to load accounts", zap.Error(err))
	}

	common.PrintHeader("ACCOUNT BALANCE REPORT", common.DefaultWidth)

	stats := balanceStats{}
	for _, account := range accounts {
		stats.totalAccounts++
		stats.totalBalance += account.BubbleBalance
		if account.IsActive {
			stats.active++
		}
		if account.Queued() {
			stats.queued++
		}
		printAccount(account)
		if *supportersFlag {
			printSupporters(ctx, services.Ledger, account)
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d accounts (%d active, %d queued), %d bubbles in balances",
		stats.totalAccounts, stats.active, stats.queued, stats.totalBalance)
	if *emailFlag == "" {
		report, err := services.Ledger.Reconcile(ctx)
		if err != nil {
			logger.Error("Failed to reconcile", zap.Error(err))
		} else {
			summary += fmt.Sprintf("\nESCROW: %d in open slots, %d retained by giveaways, %d deposited externally (balanced: %t)",
				report.TotalSlotEscrow, report.GiveawayRetained, report.ExternalDeposits, report.Balanced())
		}
	}
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("accounts", stats.totalAccounts),
		zap.Int("queued", stats.queued),
		zap.Int64("total_balance", stats.totalBalance))
}

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
	"bubble-ledger-go/internal/store"

	"go.uber.org/zap"
)

func printTransaction(tx models.ContributionTransaction) {
	slot := "-"
	if tx.TargetSlotNumber != nil {
		slot = fmt.Sprintf("%d", *tx.TargetSlotNumber)
	}
	fmt.Printf("%s  %-13s %-9s %5d -> %-5d amount %-6d slot %-3s %s\n",
		tx.CreatedAt.Format("2006-01-02 15:04:05"),
		tx.Kind,
		tx.Status,
		tx.FromAccountId,
		tx.ToAccountId,
		tx.Amount,
		slot,
		tx.Id)
}

func contribute(ctx context.Context, ledgerService *api.LedgerService, params store.ContributionParams) {
	result, err := ledgerService.ApplyContribution(ctx, params)
	if err != nil {
		zap.L().Fatal("Contribution rejected",
			zap.Int64("from_account_id", params.FromAccountId),
			zap.Int64("to_account_id", params.ToAccountId),
			zap.Int64("amount", params.Amount),
			zap.Error(err))
	}

	common.PrintHeader("CONTRIBUTION APPLIED", common.DefaultWidth)
	fmt.Printf("Transaction:     %s\n", result.TransactionId)
	fmt.Printf("Slot:            %d\n", result.TargetSlot)
	fmt.Printf("Progress:        %d/%d (%s)\n",
		result.StoredProgress, models.SlotCapacity, common.Percent(result.StoredProgress, models.SlotCapacity))
	fmt.Printf("Slot completed:  %t\n", result.SlotCompleted)
	fmt.Printf("Bubbles earned:  %d\n", result.BubblesEarned)
	fmt.Printf("Queue advanced:  %t\n", result.QueueAdvanced)
	if result.DataRecovered {
		fmt.Println("Warning:         stored slot progress was unreadable and has been reset")
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func main() {
	ctx := context.Background()

	fromFlag := flag.Int64("from", 0, "Contributing account id")
	toFlag := flag.Int64("to", 0, "Target account id")
	amountFlag := flag.Int64("amount", 0, "Bubbles to contribute")
	slotFlag := flag.Int("slot", 0, "Target slot (0 = lowest incomplete slot)")
	kindFlag := flag.String("kind", string(models.KindSupport), "support, admin-support or donation")
	paidbackFlag := flag.String("paidback", "", "Mark a pending support transaction as paid back")
	donatedFlag := flag.String("donated", "", "Mark a pending support transaction as donated")
	historyFlag := flag.Int64("history", 0, "Print transaction history for an account id")
	limitFlag := flag.Int("limit", 20, "History page size")
	offsetFlag := flag.Int("offset", 0, "History offset")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	switch {
	case *paidbackFlag != "":
		payback, err := services.Ledger.MarkPaidback(ctx, *paidbackFlag)
		if err != nil {
			zap.L().Fatal("Failed to mark transaction paid back", zap.String("transaction_id", *paidbackFlag), zap.Error(err))
		}
		fmt.Println("Paid back, payback transaction:")
		printTransaction(*payback)

	case *donatedFlag != "":
		tx, err := services.Ledger.MarkDonated(ctx, *donatedFlag)
		if err != nil {
			zap.L().Fatal("Failed to mark transaction donated", zap.String("transaction_id", *donatedFlag), zap.Error(err))
		}
		fmt.Println("Marked donated:")
		printTransaction(*tx)

	case *historyFlag != 0:
		history, err := services.Ledger.GetTransactionHistory(ctx, *historyFlag, *limitFlag, *offsetFlag)
		if err != nil {
			zap.L().Fatal("Failed to load history", zap.Int64("account_id", *historyFlag), zap.Error(err))
		}
		common.PrintHeader(fmt.Sprintf("TRANSACTION HISTORY: account %d", *historyFlag), common.WideWidth)
		for _, tx := range history {
			printTransaction(tx)
		}
		common.PrintFooter(fmt.Sprintf("%d transactions", len(history)), common.WideWidth)

	default:
		if *fromFlag == 0 || *toFlag == 0 || *amountFlag == 0 {
			zap.L().Fatal("--from, --to and --amount are required")
		}
		contribute(ctx, services.Ledger, store.ContributionParams{
			FromAccountId: *fromFlag,
			ToAccountId:   *toFlag,
			Amount:        *amountFlag,
			TargetSlot:    *slotFlag,
			Kind:          models.Kind(*kindFlag),
		})
	}
}

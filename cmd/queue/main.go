package main

import (
	"context"
	"flag"
	"fmt"

	"bubble-ledger-go/internal/common"
	"bubble-ledger-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	rebalanceFlag := flag.Bool("rebalance", false, "Compact queue positions before printing")
	recomputeFlag := flag.Bool("recompute", false, "Recompute the top-of-queue account before printing")
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

	if *rebalanceFlag {
		result, top, err := services.Ledger.MaintainQueue(ctx)
		if err != nil {
			zap.L().Fatal("Queue maintenance failed", zap.Error(err))
		}
		fmt.Printf("Rebalanced %d queued accounts, %d positions moved, next position %d, top account %d\n",
			result.QueuedAccounts, len(result.Changes), result.NextPosition, top)
		for _, change := range result.Changes {
			fmt.Printf("  account %d: %d -> %d\n", change.AccountId, change.OldPosition, change.NewPosition)
		}
	} else if *recomputeFlag {
		top, err := services.Ledger.RecomputeTopUser(ctx)
		if err != nil {
			zap.L().Fatal("Top of queue recompute failed", zap.Error(err))
		}
		fmt.Printf("Top of queue: account %d\n", top)
	}

	queue, err := services.Ledger.ListQueue(ctx)
	if err != nil {
		zap.L().Fatal("Failed to list queue", zap.Error(err))
	}
	tracker, err := services.Ledger.GetQueueTracker(ctx)
	if err != nil {
		zap.L().Fatal("Failed to read queue tracker", zap.Error(err))
	}

	common.PrintHeader("QUEUE", common.WideWidth)
	for i, account := range queue {
		marker := " "
		if account.IsTopOfQueue {
			marker = "★"
		}
		fmt.Printf("%s%s pos %-4d account %-5d %-20s %s\n",
			common.BoxPrefix(i == len(queue)-1),
			marker,
			account.QueuePosition,
			account.Id,
			account.Name,
			common.SlotSummary(account))
	}
	common.PrintFooter(fmt.Sprintf("%d queued accounts, last assigned position %d",
		len(queue), tracker.LastAssignedPosition), common.WideWidth)
}

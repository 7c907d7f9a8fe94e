package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"bubble-ledger-go/internal/common"
	"bubble-ledger-go/internal/config"
	"bubble-ledger-go/internal/models"
	"bubble-ledger-go/internal/store"

	"go.uber.org/zap"
)

func printPools(pools []models.GiveawayPool) {
	common.PrintHeader("GIVEAWAY POOLS", common.WideWidth)
	for i, pool := range pools {
		state := "open"
		switch {
		case pool.IsDistributed:
			state = "distributed " + pool.DistributedAt.Format(time.RFC3339)
		case !pool.IsActive:
			state = "inactive"
		}
		fmt.Printf("%s%-10s %s  per account %-5d distributed %-6d retained %-4d %s\n",
			common.BoxPrefix(i == len(pools)-1),
			pool.Category,
			pool.Id,
			pool.AmountPerAccount,
			pool.TotalAmountDistributed,
			pool.RetainedAmount,
			state)
	}
	common.PrintFooter(fmt.Sprintf("%d pools", len(pools)), common.WideWidth)
}

func main() {
	ctx := context.Background()

	actionFlag := flag.String("action", "list", "list, show, create, activate, deactivate, amount, reset or distribute")
	categoryFlag := flag.String("category", "", "Pool category (show, create, distribute)")
	amountFlag := flag.Int64("amount", 0, "Per-account amount (create, amount) or donation (distribute)")
	poolFlag := flag.String("pool", "", "Pool id (activate, deactivate, amount, reset)")
	donorFlag := flag.Int64("donor", 0, "Donor account id (distribute)")
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

	ledgerService := services.Ledger
	category := models.Category(*categoryFlag)

	switch *actionFlag {
	case "list":
	case "show":
		pool, err := ledgerService.GetActivePool(ctx, category)
		if err != nil {
			zap.L().Fatal("No active pool", zap.String("category", *categoryFlag), zap.Error(err))
		}
		printPools([]models.GiveawayPool{*pool})
		return
	case "create":
		pool, err := ledgerService.CreatePool(ctx, category, *amountFlag)
		if err != nil {
			zap.L().Fatal("Failed to create pool", zap.String("category", *categoryFlag), zap.Error(err))
		}
		fmt.Printf("Created pool %s\n", pool.Id)
	case "activate", "deactivate":
		if err := ledgerService.SetPoolActive(ctx, *poolFlag, *actionFlag == "activate"); err != nil {
			zap.L().Fatal("Failed to update pool", zap.String("pool_id", *poolFlag), zap.Error(err))
		}
	case "amount":
		if err := ledgerService.UpdatePoolAmount(ctx, *poolFlag, *amountFlag); err != nil {
			zap.L().Fatal("Failed to update pool amount", zap.String("pool_id", *poolFlag), zap.Error(err))
		}
	case "reset":
		if err := ledgerService.ResetPool(ctx, *poolFlag); err != nil {
			zap.L().Fatal("Failed to reset pool", zap.String("pool_id", *poolFlag), zap.Error(err))
		}
	case "distribute":
		result, err := ledgerService.DistributeGiveaway(ctx, store.GiveawayParams{
			DonorAccountId: *donorFlag,
			Category:       category,
			Amount:         *amountFlag,
		})
		if err != nil {
			zap.L().Fatal("Giveaway rejected",
				zap.Int64("donor_account_id", *donorFlag),
				zap.String("category", *categoryFlag),
				zap.Error(err))
		}
		fmt.Printf("Pool %s: %s\n", result.PoolId, common.GiveawaySummary(*amountFlag, *result))
	default:
		zap.L().Fatal("Unknown action", zap.String("action", *actionFlag))
	}

	pools, err := ledgerService.ListPools(ctx)
	if err != nil {
		zap.L().Fatal("Failed to list pools", zap.Error(err))
	}
	printPools(pools)
}

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
	"errors"
	"flag"
	"fmt"

	"bubble-ledger-go/internal/common"
	"bubble-ledger-go/internal/config"
	"bubble-ledger-go/internal/ledger"

	"go.uber.org/zap"
)

type setupStats struct {
	created  int
	existing int
	inactive int
	failed   []string
}

func seedPools(ctx context.Context, services *common.Services, categories []common.CategoryConfig) setupStats {
	stats := setupStats{}

	for _, category := range categories {
		pool, err := services.Ledger.CreatePool(ctx, category.Category, category.AmountPerAccount)
		if err != nil {
			if errors.Is(err, ledger.ErrPoolExists) {
				zap.L().Info("Open pool already exists for category", zap.String("category", string(category.Category)))
				stats.existing++
				continue
			}
			zap.L().Error("Failed to create pool",
				zap.String("category", string(category.Category)),
				zap.Error(err))
			stats.failed = append(stats.failed, string(category.Category))
			continue
		}
		stats.created++

		if !category.Active {
			if err := services.Ledger.SetPoolActive(ctx, pool.Id, false); err != nil {
				zap.L().Error("Failed to deactivate pool",
					zap.String("pool_id", pool.Id),
					zap.Error(err))
				stats.failed = append(stats.failed, string(category.Category))
				continue
			}
			stats.inactive++
		}

		fmt.Printf("✓ %-10s pool %s (%d per account)\n", category.Category, pool.Id, pool.AmountPerAccount)
	}

	return stats
}

func main() {
	ctx := context.Background()

	demoFlag := flag.Bool("demo", false, "Seed demo accounts")
	categoriesFlag := flag.String("categories", "", "Path to categories.yaml (default: CATEGORIES_FILE)")
	skipPoolsFlag := flag.Bool("skip-pools", false, "Only create the schema")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	if *demoFlag {
		cfg.Database.CreateDemoAccounts = true
	}

	zap.L().Info("Initializing database",
		zap.String("driver", cfg.Database.Driver),
		zap.Bool("demo_accounts", cfg.Database.CreateDemoAccounts))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *skipPoolsFlag {
		zap.L().Info("Schema ready, skipping giveaway pools")
		return
	}

	categoriesFile := cfg.CategoryFile
	if *categoriesFlag != "" {
		categoriesFile = *categoriesFlag
	}

	categories, err := common.LoadCategoryConfig(categoriesFile)
	if err != nil {
		zap.L().Fatal("Failed to load category config", zap.Error(err))
	}
	zap.L().Info("Category configuration loaded", zap.Int("count", len(categories)))

	common.PrintHeader("GIVEAWAY POOLS", common.DefaultWidth)
	stats := seedPools(ctx, services, categories)

	summary := fmt.Sprintf("SETUP: %d pools created (%d inactive), %d already open, %d failed",
		stats.created, stats.inactive, stats.existing, len(stats.failed))
	common.PrintFooter(summary, common.DefaultWidth)

	if len(stats.failed) > 0 {
		zap.L().Warn("Setup completed with some failures", zap.Strings("failed_categories", stats.failed))
		return
	}
	zap.L().Info("Setup completed successfully")
}

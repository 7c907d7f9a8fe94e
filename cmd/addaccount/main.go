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
	"regexp"

	"bubble-ledger-go/internal/common"
	"bubble-ledger-go/internal/config"
	"bubble-ledger-go/internal/ledger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

func main() {
	ctx := context.Background()

	nameFlag := flag.String("name", "", "Account holder's name (required)")
	emailFlag := flag.String("email", "", "Account holder's email address (required)")
	depositFlag := flag.Int64("deposit", 0, "Bubbles to deposit after creation (optional)")
	slotsFlag := flag.Int64("slots", 0, "Queue slots to grant after creation (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Log)
	defer loggerCleanup()

	if *nameFlag == "" || *emailFlag == "" {
		zap.L().Fatal("Both flags are required: --name and --email")
	}
	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}
	if *depositFlag < 0 || *slotsFlag < 0 {
		zap.L().Fatal("--deposit and --slots cannot be negative")
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	account, err := services.Ledger.CreateAccount(ctx, *nameFlag, *emailFlag)
	if err != nil {
		zap.L().Fatal("Failed to create account", zap.String("email", *emailFlag), zap.Error(err))
	}

	if *depositFlag > 0 {
		reference := "cli:" + uuid.New().String()
		funded, err := services.Ledger.Deposit(ctx, account.Id, *depositFlag, reference)
		if err != nil {
			zap.L().Fatal("Failed to deposit bubbles", zap.Int64("account_id", account.Id), zap.Error(err))
		}
		account = funded
	}

	if *slotsFlag > 0 {
		granted, err := services.Ledger.GrantSlots(ctx, account.Id, *slotsFlag)
		if err != nil {
			if errors.Is(err, ledger.ErrAccountInactive) {
				zap.L().Fatal("Cannot grant slots to an inactive account", zap.Int64("account_id", account.Id))
			}
			zap.L().Fatal("Failed to grant slots", zap.Int64("account_id", account.Id), zap.Error(err))
		}
		account = granted
	}

	common.PrintHeader("ACCOUNT CREATED", common.DefaultWidth)
	fmt.Printf("ID:        %d\n", account.Id)
	fmt.Printf("Name:      %s\n", account.Name)
	fmt.Printf("Email:     %s\n", account.Email)
	fmt.Printf("Balance:   %d\n", account.BubbleBalance)
	fmt.Printf("Position:  %d\n", account.QueuePosition)
	fmt.Printf("Slots:     %s\n", common.SlotSummary(*account))
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}

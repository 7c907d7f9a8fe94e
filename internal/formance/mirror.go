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

package formance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bubble-ledger-go/internal/dispatcher"
	"bubble-ledger-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// bubbleAsset is the Formance UMN notation for bubbles; they have no fractional part.
const bubbleAsset = "BUBBLE/0"

const numscriptMirror = `vars {
  asset $asset
  number $amount
  account $source
  account $destination
  string $transaction_id
  string $kind
  string $status
  string $reference
}

send [$asset $amount] (
  source = $source allowing unbounded overdraft
  destination = $destination
)

set_tx_meta("transaction_id", $transaction_id)
set_tx_meta("kind", $kind)
set_tx_meta("status", $status)
set_tx_meta("reference", $reference)
`

// Mirror replays committed ledger transactions into a Formance Stack ledger.
type Mirror struct {
	client *v3.Formance
	ledger string
}

// NewMirror connects to the stack and creates the ledger if it doesn't already exist.
func NewMirror(ctx context.Context, cfg models.FormanceConfig) (*Mirror, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = "bubble-ledger"
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	m := &Mirror{client: client, ledger: cfg.LedgerName}
	if err := m.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance mirror initialized", zap.String("ledger", cfg.LedgerName))
	return m, nil
}

func (m *Mirror) ensureLedger(ctx context.Context) error {
	_, err := m.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: m.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "bubble-ledger",
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", m.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", m.ledger))
	return nil
}

// Deliver posts one ledger.transaction outbox event. The transaction id is the Formance reference,
// so a replayed event is a no-op.
func (m *Mirror) Deliver(ctx context.Context, event models.OutboxEvent) error {
	var entry models.LedgerEntry
	if err := json.Unmarshal(event.Payload, &entry); err != nil {
		return fmt.Errorf("%w: undecodable ledger payload: %v", dispatcher.ErrPermanent, err)
	}
	postTx, err := postTransaction(entry)
	if err != nil {
		return err
	}

	_, err = m.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            m.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			return nil // idempotent
		}
		return fmt.Errorf("error mirroring transaction %s: %w", entry.TransactionId, err)
	}

	zap.L().Debug("Transaction mirrored to Formance",
		zap.String("transaction_id", entry.TransactionId),
		zap.String("kind", string(entry.Kind)),
		zap.Int64("amount", entry.Amount))
	return nil
}

func postTransaction(entry models.LedgerEntry) (shared.V2PostTransaction, error) {
	source, destination, err := postingAccounts(entry)
	if err != nil {
		return shared.V2PostTransaction{}, err
	}
	timestamp := entry.CreatedAt
	return shared.V2PostTransaction{
		Reference: strPtr(entry.TransactionId),
		Timestamp: &timestamp,
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptMirror,
			Vars: map[string]string{
				"asset":          bubbleAsset,
				"amount":         strconv.FormatInt(entry.Amount, 10),
				"source":         source,
				"destination":    destination,
				"transaction_id": entry.TransactionId,
				"kind":           string(entry.Kind),
				"status":         string(entry.Status),
				"reference":      entry.Reference,
			},
		},
	}, nil
}

// postingAccounts maps a ledger entry onto Formance account addresses. Slot contributions land in
// the recipient's slots account; giveaway donations pass through a per-pool account.
func postingAccounts(entry models.LedgerEntry) (source, destination string, err error) {
	if entry.Amount <= 0 {
		return "", "", fmt.Errorf("%w: non-positive amount %d", dispatcher.ErrPermanent, entry.Amount)
	}
	switch entry.Kind {
	case models.KindDeposit:
		return "world", balanceAccount(entry.ToAccountId), nil
	case models.KindSupport, models.KindAdminSupport:
		return balanceAccount(entry.FromAccountId), slotsAccount(entry.ToAccountId), nil
	case models.KindDonation:
		if entry.FromAccountId == entry.ToAccountId {
			return balanceAccount(entry.FromAccountId), poolAccount(entry.Reference), nil
		}
		return balanceAccount(entry.FromAccountId), slotsAccount(entry.ToAccountId), nil
	case models.KindTransfer:
		if pool, ok := strings.CutPrefix(entry.Reference, "giveaway:"); ok {
			return poolAccount(pool), balanceAccount(entry.ToAccountId), nil
		}
		return balanceAccount(entry.FromAccountId), balanceAccount(entry.ToAccountId), nil
	case models.KindPayback:
		return balanceAccount(entry.FromAccountId), balanceAccount(entry.ToAccountId), nil
	case models.KindSlotPayout:
		return slotsAccount(entry.ToAccountId), balanceAccount(entry.ToAccountId), nil
	default:
		return "", "", fmt.Errorf("%w: unknown kind %q", dispatcher.ErrPermanent, entry.Kind)
	}
}

func balanceAccount(id int64) string { return fmt.Sprintf("accounts:%d:balance", id) }
func slotsAccount(id int64) string   { return fmt.Sprintf("accounts:%d:slots", id) }
func poolAccount(id string) string   { return "giveaways:" + strings.ReplaceAll(id, "-", "") }

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

func strPtr(s string) *string { return &s }

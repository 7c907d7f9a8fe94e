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

package ledger

import "errors"

// Sentinel errors shared by every ledger backend. All of them except ErrDataIntegrityRecovered
// abort the enclosing transaction.
var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrAccountNotFound         = errors.New("account not found")
	ErrAccountInactive         = errors.New("account inactive")
	ErrPoolNotFound            = errors.New("giveaway pool not found")
	ErrPoolExists              = errors.New("undistributed giveaway pool already exists for category")
	ErrPoolInactiveOrExhausted = errors.New("giveaway pool inactive or already distributed")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrInvalidTransactionState = errors.New("invalid transaction state")
	ErrNoEligibleRecipients    = errors.New("no eligible recipients")
	ErrInvalidSlot             = errors.New("invalid target slot")
	ErrInvalidCategory         = errors.New("invalid giveaway category")
	ErrInvalidKind             = errors.New("invalid contribution kind")
	ErrSelfContribution        = errors.New("source and target account must differ")
	ErrContentionTimeout       = errors.New("lock acquisition timed out")

	// ErrDataIntegrityRecovered is never returned to callers; it tags warning logs emitted when
	// stored slot progress was discarded.
	ErrDataIntegrityRecovered = errors.New("corrupted slot progress reset")
)

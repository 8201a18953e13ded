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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "Pending"
	StatusProcessing TransactionStatus = "Processing"
	StatusDone       TransactionStatus = "Done"
	StatusFailed     TransactionStatus = "Failed"
)

// IsTerminal reports whether no further transition is allowed
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// TransactionRecord represents one provider transfer, keyed by the provider transaction id
type TransactionRecord struct {
	Id                    string            `db:"id" json:"id"`
	ProviderTransactionId string            `db:"provider_transaction_id" json:"provider_transaction_id"`
	Provider              string            `db:"provider" json:"provider"`
	Direction             Direction         `db:"direction" json:"direction"`
	AssetCode             string            `db:"asset_code" json:"asset_code"`
	Network               string            `db:"network" json:"network"`
	Amount                decimal.Decimal   `db:"amount" json:"amount"`
	Fee                   decimal.Decimal   `db:"fee" json:"fee"`
	Status                TransactionStatus `db:"status" json:"status"`
	SourceAddress         string            `db:"source_address" json:"source_address,omitempty"`
	DestinationAddress    string            `db:"destination_address" json:"destination_address,omitempty"`
	WalletId              string            `db:"wallet_id" json:"wallet_id"`
	UserId                string            `db:"user_id" json:"user_id"`
	CreatedAt             time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time         `db:"updated_at" json:"updated_at"`
}

// NotificationRecord is a user-facing notification with its own lifecycle
type NotificationRecord struct {
	Id        string            `db:"id" json:"id"`
	UserId    string            `db:"user_id" json:"user_id"`
	Title     string            `db:"title" json:"title"`
	Message   string            `db:"message" json:"message"`
	Metadata  map[string]string `db:"metadata" json:"metadata,omitempty"`
	Consumed  bool              `db:"consumed" json:"consumed"`
	ExpiresAt time.Time         `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}

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
	"github.com/shopspring/decimal"
)

// BalanceSummary is the aggregated view of a user's holdings across providers
type BalanceSummary struct {
	UserId               string                  `json:"user_id"`
	LocalCurrency        string                  `json:"local_currency"`
	TotalInLocalCurrency decimal.Decimal         `json:"total_in_local_currency"`
	PerAsset             map[string]AssetBalance `json:"per_asset"`
	Failures             []TaskFailure           `json:"failures,omitempty"`
	Partial              bool                    `json:"partial"`
}

// AssetBalance is one asset's contribution to a BalanceSummary
type AssetBalance struct {
	AssetCode            string              `json:"asset_code"`
	Balance              decimal.Decimal     `json:"balance"`
	Valuation            decimal.Decimal     `json:"valuation"`
	Address              string              `json:"address,omitempty"`
	ContributingNetworks []string            `json:"contributing_networks"`
	RecentTransactions   []TransactionRecord `json:"recent_transactions"`
}

// TaskFailure records a balance read that contributed nothing
type TaskFailure struct {
	Provider  string `json:"provider"`
	Network   string `json:"network"`
	AssetCode string `json:"asset_code"`
	WalletId  string `json:"wallet_id"`
	Error     string `json:"error"`
}

// WithdrawalResult represents the synchronous result of a withdrawal request
type WithdrawalResult struct {
	TransactionId string            `json:"transaction_id"`
	Status        TransactionStatus `json:"status"`
	Provider      string            `json:"provider"`
}

// WebhookAck is returned for every webhook delivery
type WebhookAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"-"`
}

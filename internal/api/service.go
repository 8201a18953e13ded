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

package api

import (
	"context"
	"fmt"

	"custody-wallet-go/internal/aggregator"
	"custody-wallet-go/internal/directory"
	"custody-wallet-go/internal/reconciler"
	"custody-wallet-go/internal/store"
	"custody-wallet-go/internal/withdrawal"
)

// WalletService is the facade the HTTP surface and the commands call into.
type WalletService struct {
	store      store.WalletStore
	directory  *directory.Directory
	aggregator *aggregator.Aggregator
	router     *withdrawal.Router
	reconciler *reconciler.Reconciler
}

type WalletServiceConfig struct {
	Store      store.WalletStore
	Directory  *directory.Directory
	Aggregator *aggregator.Aggregator
	Router     *withdrawal.Router
	Reconciler *reconciler.Reconciler
}

func NewWalletService(cfg WalletServiceConfig) *WalletService {
	return &WalletService{
		store:      cfg.Store,
		directory:  cfg.Directory,
		aggregator: cfg.Aggregator,
		router:     cfg.Router,
		reconciler: cfg.Reconciler,
	}
}

func (s *WalletService) HealthCheck(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

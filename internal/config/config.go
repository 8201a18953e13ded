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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"custody-wallet-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	var (
		connMaxLifetime, connMaxIdleTime, pingTimeout    time.Duration
		providerTimeout, aggregatorTimeout               time.Duration
		ratesRefresh, ratesTtl, cacheTtl, dedupTtl       time.Duration
		notificationTtl, sweepInterval                   time.Duration
		settlementInterval, settlementGrace              time.Duration
		httpReadTimeout, httpWriteTimeout, shutdownAfter time.Duration
	)
	defaults := []struct {
		key    string
		target *time.Duration
		value  time.Duration
	}{
		{"DB_CONN_MAX_LIFETIME", &connMaxLifetime, 5 * time.Minute},
		{"DB_CONN_MAX_IDLE_TIME", &connMaxIdleTime, 30 * time.Second},
		{"DB_PING_TIMEOUT", &pingTimeout, 5 * time.Second},
		{"PROVIDER_TIMEOUT", &providerTimeout, 15 * time.Second},
		{"AGGREGATOR_TIMEOUT", &aggregatorTimeout, 10 * time.Second},
		{"RATES_REFRESH_INTERVAL", &ratesRefresh, 5 * time.Minute},
		{"RATES_TTL", &ratesTtl, 15 * time.Minute},
		{"CACHE_DEFAULT_TTL", &cacheTtl, time.Hour},
		{"DEDUP_TTL", &dedupTtl, 10 * time.Minute},
		{"NOTIFICATION_TTL", &notificationTtl, 72 * time.Hour},
		{"NOTIFICATION_SWEEP_INTERVAL", &sweepInterval, 15 * time.Minute},
		{"SETTLEMENT_POLL_INTERVAL", &settlementInterval, time.Minute},
		{"SETTLEMENT_GRACE", &settlementGrace, 2 * time.Minute},
		{"HTTP_READ_TIMEOUT", &httpReadTimeout, 15 * time.Second},
		{"HTTP_WRITE_TIMEOUT", &httpWriteTimeout, 30 * time.Second},
		{"HTTP_SHUTDOWN_TIMEOUT", &shutdownAfter, 30 * time.Second},
	}
	for _, d := range defaults {
		value, err := getEnvDuration(d.key, d.value)
		if err != nil {
			return nil, err
		}
		*d.target = value
	}

	staticRates, err := getEnvRates("RATES_STATIC", "USDT=1600,USDC=1600")
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Driver:           getEnvString("DATABASE_DRIVER", "sqlite"),
			Path:             getEnvString("DATABASE_PATH", "wallets.db"),
			Url:              getEnvString("DATABASE_URL", ""),
			MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  connMaxLifetime,
			ConnMaxIdleTime:  connMaxIdleTime,
			PingTimeout:      pingTimeout,
			CreateDummyUsers: getEnvBool("CREATE_DUMMY_USERS", false),
		},
		Capabilities: models.CapabilityConfig{
			File: getEnvString("CAPABILITY_FILE", "capabilities.yaml"),
		},
		Providers: models.ProvidersConfig{
			Timeout: providerTimeout,
			Prime: models.PrimeConfig{
				AccessKey:   getEnvString("PRIME_ACCESS_KEY", ""),
				Passphrase:  getEnvString("PRIME_PASSPHRASE", ""),
				SigningKey:  getEnvString("PRIME_SIGNING_KEY", ""),
				PortfolioId: getEnvString("PRIME_PORTFOLIO_ID", ""),
				WalletType:  getEnvString("PRIME_WALLET_TYPE", "TRADING"),
			},
			Circle: models.CircleConfig{
				ApiKey:                 getEnvString("CIRCLE_API_KEY", ""),
				BaseUrl:                getEnvString("CIRCLE_BASE_URL", "https://api.circle.com"),
				WalletSetId:            getEnvString("CIRCLE_WALLET_SET_ID", ""),
				EntitySecretCiphertext: getEnvString("CIRCLE_ENTITY_SECRET_CIPHERTEXT", ""),
			},
			Fireblocks: models.FireblocksConfig{
				ApiKey:         getEnvString("FIREBLOCKS_API_KEY", ""),
				BaseUrl:        getEnvString("FIREBLOCKS_BASE_URL", "https://api.fireblocks.io"),
				SecretKeyPath:  getEnvString("FIREBLOCKS_SECRET_KEY_PATH", ""),
				VaultNamespace: getEnvString("FIREBLOCKS_VAULT_NAMESPACE", "custody"),
			},
		},
		Aggregator: models.AggregatorConfig{
			Concurrency:        getEnvInt("AGGREGATOR_CONCURRENCY", 4),
			Timeout:            aggregatorTimeout,
			RecentTransactions: getEnvInt("RECENT_TRANSACTIONS_LIMIT", 5),
		},
		Rates: models.RatesConfig{
			LocalCurrency:   getEnvString("LOCAL_CURRENCY", "NGN"),
			Static:          staticRates,
			FeedUrl:         getEnvString("RATES_FEED_URL", ""),
			RefreshInterval: ratesRefresh,
			Ttl:             ratesTtl,
		},
		Cache: models.CacheConfig{
			Backend:       getEnvString("CACHE_BACKEND", "memory"),
			Size:          getEnvInt("CACHE_SIZE", 10000),
			DefaultTtl:    cacheTtl,
			DedupTtl:      dedupTtl,
			RedisAddr:     getEnvString("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnvString("REDIS_PASSWORD", ""),
			RedisDb:       getEnvInt("REDIS_DB", 0),
			Namespace:     getEnvString("CACHE_NAMESPACE", "custody"),
		},
		Notify: models.NotifyConfig{
			AmqpUrl:       getEnvString("AMQP_URL", ""),
			AmqpExchange:  getEnvString("AMQP_EXCHANGE", "wallet.notifications"),
			QueueSize:     getEnvInt("NOTIFY_QUEUE_SIZE", 256),
			Workers:       getEnvInt("NOTIFY_WORKERS", 2),
			Ttl:           notificationTtl,
			SweepInterval: sweepInterval,
		},
		Settlement: models.SettlementConfig{
			Enabled:         getEnvBool("SETTLEMENT_POLLER_ENABLED", true),
			PollingInterval: settlementInterval,
			Grace:           settlementGrace,
			BatchSize:       getEnvInt("SETTLEMENT_BATCH_SIZE", 100),
		},
		Formance: models.FormanceConfig{
			Enabled:      getEnvBool("FORMANCE_ENABLED", false),
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "custody-wallets"),
		},
		Http: models.HttpConfig{
			Addr:            getEnvString("HTTP_ADDR", ":8080"),
			ReadTimeout:     httpReadTimeout,
			WriteTimeout:    httpWriteTimeout,
			ShutdownTimeout: shutdownAfter,
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvRates parses "USDT=1600,USDC=1600" into a rate table.
func getEnvRates(key, defaultValue string) (map[string]decimal.Decimal, error) {
	raw := getEnvString(key, defaultValue)
	rates := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		asset, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid rate for %s: %q", key, pair)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %q (%w)", key, pair, err)
		}
		rates[strings.ToUpper(strings.TrimSpace(asset))] = rate
	}
	return rates, nil
}

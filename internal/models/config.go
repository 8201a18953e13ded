package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database     DatabaseConfig
	Capabilities CapabilityConfig
	Providers    ProvidersConfig
	Aggregator   AggregatorConfig
	Rates        RatesConfig
	Cache        CacheConfig
	Notify       NotifyConfig
	Settlement   SettlementConfig
	Formance     FormanceConfig
	Http         HttpConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver           string // sqlite or postgres
	Path             string
	Url              string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	CreateDummyUsers bool
}

// CapabilityConfig points at the static capability matrix
type CapabilityConfig struct {
	File string
}

// ProvidersConfig holds credentials and endpoints for every custody provider.
// A provider with empty credentials is not registered.
type ProvidersConfig struct {
	Timeout    time.Duration
	Prime      PrimeConfig
	Circle     CircleConfig
	Fireblocks FireblocksConfig
}

type PrimeConfig struct {
	AccessKey   string
	Passphrase  string
	SigningKey  string
	PortfolioId string
	WalletType  string
}

type CircleConfig struct {
	ApiKey                 string
	BaseUrl                string
	WalletSetId            string
	EntitySecretCiphertext string
}

type FireblocksConfig struct {
	ApiKey         string
	BaseUrl        string
	SecretKeyPath  string
	VaultNamespace string
}

// AggregatorConfig bounds the balance fan-out
type AggregatorConfig struct {
	Concurrency        int
	Timeout            time.Duration
	RecentTransactions int
}

// RatesConfig describes the local-currency exchange rate source
type RatesConfig struct {
	LocalCurrency   string
	Static          map[string]decimal.Decimal
	FeedUrl         string
	RefreshInterval time.Duration
	Ttl             time.Duration
}

// CacheConfig selects the injected cache backend
type CacheConfig struct {
	Backend       string // memory or redis
	Size          int
	DefaultTtl    time.Duration
	DedupTtl      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDb       int
	Namespace     string
}

// NotifyConfig holds notification fan-out settings
type NotifyConfig struct {
	AmqpUrl       string
	AmqpExchange  string
	QueueSize     int
	Workers       int
	Ttl           time.Duration
	SweepInterval time.Duration
}

// SettlementConfig holds settlement poller settings
type SettlementConfig struct {
	Enabled         bool
	PollingInterval time.Duration
	Grace           time.Duration
	BatchSize       int
}

// FormanceConfig holds settings for the Formance journal mirror
type FormanceConfig struct {
	Enabled      bool
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// HttpConfig holds HTTP server settings
type HttpConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

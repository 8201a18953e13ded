package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"custody-wallet-go/internal/aggregator"
	"custody-wallet-go/internal/api"
	"custody-wallet-go/internal/cache"
	"custody-wallet-go/internal/capability"
	"custody-wallet-go/internal/database"
	"custody-wallet-go/internal/directory"
	"custody-wallet-go/internal/formance"
	"custody-wallet-go/internal/listener"
	"custody-wallet-go/internal/models"
	"custody-wallet-go/internal/notify"
	"custody-wallet-go/internal/provider"
	"custody-wallet-go/internal/provider/circle"
	"custody-wallet-go/internal/provider/fireblocks"
	"custody-wallet-go/internal/provider/prime"
	"custody-wallet-go/internal/rates"
	"custody-wallet-go/internal/reconciler"
	"custody-wallet-go/internal/withdrawal"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services holds every wired component. Background workers are created but
// only run after Start.
type Services struct {
	DbService  *database.Service
	Cache      cache.Cache
	Matrix     *capability.Matrix
	Adapters   *provider.Registry
	Directory  *directory.Directory
	Api        *api.WalletService
	Journal    reconciler.Journal
	Dispatcher *notify.Dispatcher
	Sweeper    *notify.Sweeper
	RateFeed   *rates.Feed
	Listener   *listener.SettlementListener

	amqp *notify.AMQPPublisher
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	matrix, err := capability.Load(cfg.Capabilities.File)
	if err != nil {
		return nil, err
	}
	zap.L().Info("Capability matrix loaded",
		zap.Strings("providers", matrix.Providers()),
		zap.Strings("wallet_types", matrix.WalletTypes()))

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	s := &Services{DbService: dbService, Matrix: matrix}

	cacheCfg := cache.CoverTtls(cfg.Cache, cfg.Cache.DedupTtl, cfg.Rates.Ttl, cfg.Settlement.PollingInterval)
	s.Cache, err = cache.New(ctx, cacheCfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Adapters, err = initializeAdapters(cfg.Providers)
	if err != nil {
		s.Close()
		return nil, err
	}
	for _, name := range matrix.Providers() {
		if _, err := s.Adapters.Get(name); err != nil {
			zap.L().Warn("Capability matrix lists a provider with no credentials", zap.String("provider", name))
		}
	}

	var rateSource rates.Source = rates.Static(cfg.Rates.Static)
	if cfg.Rates.FeedUrl != "" {
		httpClient, err := provider.NewHTTPClient(cfg.Providers.Timeout)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.RateFeed = rates.NewFeed(cfg.Rates.FeedUrl, httpClient, s.Cache, rates.Static(cfg.Rates.Static),
			cfg.Rates.RefreshInterval, cfg.Rates.Ttl)
		rateSource = s.RateFeed
	}

	if cfg.Formance.Enabled {
		journal, err := formance.NewJournal(ctx, cfg.Formance)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Journal = journal
	} else {
		s.Journal = formance.Noop{}
	}

	targets := []notify.Target{{Name: "store", Emitter: notify.NewStoreEmitter(dbService, cfg.Notify.Ttl)}}
	if cfg.Notify.AmqpUrl != "" {
		s.amqp, err = notify.DialAMQP(cfg.Notify.AmqpUrl, cfg.Notify.AmqpExchange)
		if err != nil {
			s.Close()
			return nil, err
		}
		targets = append(targets, notify.Target{Name: "amqp", Emitter: s.amqp})
	}
	s.Dispatcher = notify.NewDispatcher(cfg.Notify.QueueSize, cfg.Notify.Workers, targets...)
	s.Sweeper = notify.NewSweeper(dbService, cfg.Notify.SweepInterval)

	s.Directory = directory.New(dbService, matrix, s.Adapters)
	rec := reconciler.New(dbService, s.Directory, matrix, s.Adapters, s.Dispatcher, s.Journal, s.Cache, cfg.Cache.DedupTtl)

	s.Api = api.NewWalletService(api.WalletServiceConfig{
		Store:      dbService,
		Directory:  s.Directory,
		Aggregator: aggregator.New(dbService, matrix, s.Adapters, rateSource, cfg.Aggregator, cfg.Rates.LocalCurrency),
		Router:     withdrawal.NewRouter(dbService, s.Directory, matrix, s.Adapters),
		Reconciler: rec,
	})

	if cfg.Settlement.Enabled {
		s.Listener, err = listener.NewSettlementListener(listener.SettlementListenerConfig{
			Store:           dbService,
			Handler:         rec,
			Adapters:        s.Adapters,
			Cache:           s.Cache,
			PollingInterval: cfg.Settlement.PollingInterval,
			Grace:           cfg.Settlement.Grace,
			BatchSize:       cfg.Settlement.BatchSize,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

func initializeAdapters(cfg models.ProvidersConfig) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	httpClient, err := provider.NewHTTPClient(cfg.Timeout)
	if err != nil {
		return nil, err
	}

	if cfg.Prime.AccessKey != "" {
		zap.L().Info("Loading Prime API credentials")
		adapter, err := prime.New(prime.Config{
			AccessKey:   cfg.Prime.AccessKey,
			Passphrase:  cfg.Prime.Passphrase,
			SigningKey:  cfg.Prime.SigningKey,
			PortfolioId: cfg.Prime.PortfolioId,
			WalletType:  cfg.Prime.WalletType,
		}, httpClient)
		if err != nil {
			return nil, err
		}
		registry.Register(adapter)
	}

	if cfg.Circle.ApiKey != "" {
		adapter, err := circle.New(circle.Config{
			ApiKey:                 cfg.Circle.ApiKey,
			BaseUrl:                cfg.Circle.BaseUrl,
			WalletSetId:            cfg.Circle.WalletSetId,
			EntitySecretCiphertext: cfg.Circle.EntitySecretCiphertext,
		}, httpClient)
		if err != nil {
			return nil, err
		}
		registry.Register(adapter)
	}

	if cfg.Fireblocks.ApiKey != "" {
		key, err := fireblocks.LoadPrivateKey(cfg.Fireblocks.SecretKeyPath)
		if err != nil {
			return nil, err
		}
		adapter, err := fireblocks.New(fireblocks.Config{
			ApiKey:         cfg.Fireblocks.ApiKey,
			BaseUrl:        cfg.Fireblocks.BaseUrl,
			PrivateKey:     key,
			VaultNamespace: cfg.Fireblocks.VaultNamespace,
		}, httpClient)
		if err != nil {
			return nil, err
		}
		registry.Register(adapter)
	}

	if len(registry.Names()) == 0 {
		return nil, fmt.Errorf("no provider credentials configured")
	}
	zap.L().Info("Provider adapters ready", zap.Strings("providers", registry.Names()))
	return registry, nil
}

// Start runs the background workers: notification delivery, expiry sweeps,
// the rate feed and settlement polling when configured.
func (s *Services) Start(ctx context.Context) {
	s.Dispatcher.Start()
	s.Sweeper.Start(ctx)
	if s.RateFeed != nil {
		s.RateFeed.Start(ctx)
	}
	if s.Listener != nil {
		s.Listener.Start(ctx)
	}
}

// Stop halts the background workers started by Start.
func (s *Services) Stop() {
	if s.Listener != nil {
		s.Listener.Stop()
	}
	if s.RateFeed != nil {
		s.RateFeed.Stop()
	}
	s.Sweeper.Stop()
	s.Dispatcher.Stop()
}

func (s *Services) Close() {
	if s.amqp != nil {
		if err := s.amqp.Close(); err != nil {
			zap.L().Debug("Failed to close AMQP publisher", zap.Error(err))
		}
	}
	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			zap.L().Debug("Failed to close cache", zap.Error(err))
		}
	}
	if s.DbService != nil {
		s.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}

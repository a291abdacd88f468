package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/settlement-engine/internal/circuitbreaker"
	"github.com/mselser95/settlement-engine/internal/feerouter"
	"github.com/mselser95/settlement-engine/internal/ledger"
	"github.com/mselser95/settlement-engine/internal/protocol"
	"github.com/mselser95/settlement-engine/internal/storage"
	"github.com/mselser95/settlement-engine/pkg/cache"
	"github.com/mselser95/settlement-engine/pkg/config"
	"github.com/mselser95/settlement-engine/pkg/healthprobe"
	"github.com/mselser95/settlement-engine/pkg/httpserver"
	"github.com/mselser95/settlement-engine/pkg/websocket"
	"go.uber.org/zap"
)

// New creates a new application instance and deploys the protocol.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := healthprobe.New()
	chain := ledger.New(ledger.Config{StartTime: cfg.ChainStartTime, Logger: logger.Named("ledger")})

	// Sinks go in before deployment so the deploy events are streamed and stored too.
	hub := setupHub(cfg, logger, chain)
	chain.AddSink(hub)

	store, err := setupStorage(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}
	var writer *storage.Writer
	if store != nil {
		breaker, err := circuitbreaker.New(&circuitbreaker.Config{
			Name:              "storage",
			FailureThreshold:  cfg.StorageFailureThreshold,
			RecoveryThreshold: cfg.StorageRecoveryThreshold,
			Logger:            logger.Named("storage"),
		})
		if err != nil {
			cancel()
			closeStore(store, logger)
			return nil, fmt.Errorf("setup storage breaker: %w", err)
		}
		healthChecker.AddCheck("storage", breaker.Check)

		writer = storage.NewWriter(store, storage.WriterConfig{
			QueueSize:    cfg.StorageQueueSize,
			WriteTimeout: cfg.StorageTimeout,
			Breaker:      breaker,
			Logger:       logger.Named("storage"),
		})
		chain.AddSink(writer)
	}

	fundGenesis(cfg, chain)

	p, err := setupProtocol(cfg, logger, chain)
	if err != nil {
		cancel()
		closeStore(store, logger)
		return nil, fmt.Errorf("setup protocol: %w", err)
	}

	snapshots, err := setupCache(cfg, logger)
	if err != nil {
		cancel()
		closeStore(store, logger)
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	healthChecker.SetInfo(func() map[string]any {
		var info map[string]any
		chain.ReadAt(func(now, height uint64) {
			info = map[string]any{
				"height":     height,
				"block_time": now,
				"markets":    p.Registry.Len(),
			}
		})
		info["stream_clients"] = hub.Clients()
		info["cache_hit_ratio"] = snapshots.HitRatio()
		return info
	})

	var httpServer *httpserver.Server
	if !opts.DisableHTTP {
		httpServer = httpserver.New(&httpserver.Config{
			Port:          cfg.HTTPPort,
			Logger:        logger.Named("http"),
			HealthChecker: healthChecker,
			Protocol:      p,
			Cache:         snapshots,
			CacheTTL:      cfg.CacheTTL,
			Events:        hub,
		})
	}

	return &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		chain:         chain,
		protocol:      p,
		hub:           hub,
		cache:         snapshots,
		store:         store,
		writer:        writer,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func setupHub(cfg *config.Config, logger *zap.Logger, chain *ledger.Chain) *websocket.Hub {
	return websocket.NewHub(websocket.HubConfig{
		History:      chain.Logs,
		SendBuffer:   cfg.WSSendBuffer,
		PingInterval: cfg.WSPingInterval,
		PongTimeout:  cfg.WSPongTimeout,
		Logger:       logger.Named("events"),
	})
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.StorageMode {
	case config.StoragePostgres:
		pgStorage, err := storage.NewPostgresStorage(ctx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	case config.StorageNone:
		return nil, nil
	default:
		return storage.NewConsoleStorage(logger), nil
	}
}

// fundGenesis credits native currency to the operator accounts so they can
// post bonds and seed markets.
func fundGenesis(cfg *config.Config, chain *ledger.Chain) {
	if cfg.GenesisFund == nil || cfg.GenesisFund.IsZero() {
		return
	}
	accounts := append([]common.Address{cfg.Admin()}, cfg.ReporterAddresses()...)
	accounts = append(accounts, cfg.CuratorAddresses()...)
	for _, a := range accounts {
		chain.Fund(a, cfg.GenesisFund)
	}
}

func setupProtocol(cfg *config.Config, logger *zap.Logger, chain *ledger.Chain) (*protocol.Protocol, error) {
	return protocol.Deploy(chain, protocol.Config{
		Admin: cfg.Admin(),
		Split: feerouter.Split{
			ProtocolBps: cfg.FeeProtocolBps,
			CreatorBps:  cfg.FeeCreatorBps,
			LPBps:       cfg.FeeLPBps,
		},
		Liveness:         cfg.OracleLiveness,
		ReporterBond:     cfg.OracleReporterBond,
		DisputerBond:     cfg.OracleDisputerBond,
		WinnerShareBps:   cfg.OracleWinnerShareBps,
		MinLiquidity:     cfg.MinLiquidity,
		CurationRequired: cfg.CurationRequired,
		Reporters:        cfg.ReporterAddresses(),
		Curators:         cfg.CuratorAddresses(),
		Logger:           logger,
	})
}

func setupCache(cfg *config.Config, logger *zap.Logger) (*cache.RistrettoCache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: cfg.CacheMaxItems * 10,
		MaxCost:     cfg.CacheMaxItems,
		BufferItems: 64,
		Logger:      logger.Named("cache"),
	})
}

func closeStore(store storage.Storage, logger *zap.Logger) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logger.Error("storage-close-error", zap.Error(err))
	}
}

// Command resolver runs the resolution engine as a standalone process: it
// wires the cache adapter, chain adapter, job scheduler, peer HTTP clients,
// resolution orchestrator and chain indexer together, starts the scheduler
// and indexer background loops, serves Prometheus metrics, and shuts down
// cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/R3E-Network/resolution-engine/domain/resolution"
	"github.com/R3E-Network/resolution-engine/infrastructure/cache"
	"github.com/R3E-Network/resolution-engine/infrastructure/chain"
	"github.com/R3E-Network/resolution-engine/infrastructure/config"
	"github.com/R3E-Network/resolution-engine/infrastructure/indexer"
	"github.com/R3E-Network/resolution-engine/infrastructure/logging"
	"github.com/R3E-Network/resolution-engine/infrastructure/queue"
	"github.com/R3E-Network/resolution-engine/metrics"
	"github.com/R3E-Network/resolution-engine/orchestrator"
	"github.com/R3E-Network/resolution-engine/peers"
)

const (
	peerHTTPTimeout       = 10 * time.Second
	livenessConcurrency   = 8
	settlementConcurrency = 8
	shutdownTimeout       = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New("resolution-engine", cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		logger.WithContext(ctx).WithError(err).Fatal("open postgres")
	}
	defer db.Close()

	jobStore := queue.NewStore(db)
	if err := jobStore.EnsureSchema(ctx); err != nil {
		logger.WithContext(ctx).WithError(err).Fatal("ensure jobs schema")
	}
	cursorStore := indexer.NewCursorStore(db)
	if err := cursorStore.EnsureSchema(ctx); err != nil {
		logger.WithContext(ctx).WithError(err).Fatal("ensure indexer cursor schema")
	}

	m := metrics.New()

	engineCache := buildCache(cfg)

	chainAdapter, err := chain.NewEVMAdapter(ctx, chain.Config{
		RPCURL:                 cfg.BNBRPCURL,
		PrivateKeyHex:          cfg.PrivateKey,
		OracleRegistryAddress:  cfg.OracleRegistryAddress,
		ProposalManagerAddress: cfg.ProposalManagerAddress,
		StakingManagerAddress:  cfg.StakingManagerAddress,
		DefaultLivenessWindow:  cfg.DefaultLivenessWindow,
	}, logger, m)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Fatal("initialize chain adapter")
	}

	eventManager := peers.NewEventManagerClient(cfg.EventManagerURL, peerHTTPTimeout, logger)
	proposalClient := peers.NewProposalClient(cfg.ProposalServiceURL, peerHTTPTimeout, logger)
	disputeClient := peers.NewDisputeClient(cfg.DisputeServiceURL, peerHTTPTimeout, logger)
	rewardClient := peers.NewRewardClient(cfg.RewardServiceURL, peerHTTPTimeout, logger)
	notificationClient := peers.NewNotificationClient(cfg.NotificationServiceURL, peerHTTPTimeout, logger)

	scheduler := queue.NewScheduler(jobStore, logger, time.Second, m)

	orch := orchestrator.New(orchestrator.Config{
		Cache:     engineCache,
		Chain:     chainAdapter,
		Table:     resolution.NewTable(),
		Scheduler: scheduler,
		Events:    eventManager,
		Proposals: proposalClient,
		Disputes:  disputeClient,
		Rewards:   rewardClient,
		Notifier:  notificationClient,
		Log:       logger,
		Metrics:   m,
	})
	orch.RegisterHandlers(scheduler, livenessConcurrency, settlementConcurrency)

	idx, err := indexer.New(indexer.Config{
		Network:                cfg.NodeEnv,
		ChainReader:            chainAdapter.Client(),
		OracleRegistryAddress:  cfg.OracleRegistryAddress,
		ProposalManagerAddress: cfg.ProposalManagerAddress,
		Poster:                 eventManager,
		Cursor:                 cursorStore,
		PollInterval:           cfg.IndexerPollInterval,
		ReplayBlocks:           cfg.IndexerSeedLookback,
		Log:                    logger,
		Metrics:                m,
	})
	if err != nil {
		logger.WithContext(ctx).WithError(err).Fatal("initialize chain indexer")
	}

	if err := scheduler.Start(ctx); err != nil {
		logger.WithContext(ctx).WithError(err).Fatal("start job scheduler")
	}
	if err := idx.Start(ctx); err != nil {
		logger.WithContext(ctx).WithError(err).Fatal("start chain indexer")
	}

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithContext(ctx).WithError(err).Error("metrics server stopped unexpectedly")
		}
	}()
	logger.WithContext(ctx).Infof("resolution engine started, metrics on %s", cfg.MetricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.WithContext(ctx).Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := idx.Stop(shutdownCtx); err != nil {
		logger.WithContext(shutdownCtx).WithError(err).Warn("stop chain indexer")
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.WithContext(shutdownCtx).WithError(err).Warn("stop job scheduler")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithContext(shutdownCtx).WithError(err).Warn("stop metrics server")
	}
}

func buildCache(cfg *config.Config) cache.Cache {
	if cfg.CacheBackend == "memory" {
		return cache.NewMemoryCache(5*time.Minute, time.Minute)
	}
	return cache.NewRedisCache(cache.RedisConfig{
		Addr:       cfg.RedisHost + ":" + strconv.Itoa(cfg.RedisPort),
		Password:   cfg.RedisPassword,
		DefaultTTL: 5 * time.Minute,
	})
}

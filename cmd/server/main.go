// Package main provides the API server entry point for the Trivia Pay organizer.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/crypto"

	"github.com/trivia-pay/internal/adapter"
	"github.com/trivia-pay/internal/api"
	"github.com/trivia-pay/internal/circuitbreaker"
	"github.com/trivia-pay/internal/config"
	"github.com/trivia-pay/internal/logging"
	"github.com/trivia-pay/internal/metrics"
	"github.com/trivia-pay/internal/paymenturi"
	"github.com/trivia-pay/internal/ratelimit"
	"github.com/trivia-pay/internal/reconcile"
	"github.com/trivia-pay/internal/service"
	"github.com/trivia-pay/internal/storage"
	"github.com/trivia-pay/internal/store"
	"github.com/trivia-pay/internal/worker"
)

func main() {
	fmt.Println("Trivia Pay API Server")
	log.Println("Server starting...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":   cfg.Logging.Level,
		"format":  cfg.Logging.Format,
		"network": cfg.Ledger.Network,
	}).Info("Structured logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Key-value store for settings and seen notification ids
	kv, closeKV, err := openKeyValueStore(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open key-value store")
	}
	defer closeKV()

	// Optional transaction archive
	var (
		archiver reconcile.Archiver
		history  service.VolumeSource
	)
	if cfg.Storage.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Storage.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouse.Close()

		archive := storage.NewTransactionArchive(clickhouse)
		archiver, history = archive, archive
		logger.Info("Transaction archive enabled")
	}

	seen := storage.NewSeenStore(kv, cfg.Refresh.SeenCapacity)
	if err := seen.Load(ctx); err != nil {
		logger.WithError(err).Warn("Failed to load seen notifications; starting empty")
	}

	// Ledger
	algorand, err := adapter.NewAlgorandLedger(&cfg.Ledger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Algorand client")
	}
	if rkv, ok := kv.(*storage.RedisKV); ok && cfg.Ledger.SharedBudget > 0 {
		budget, err := ratelimit.NewRequestBudget(&ratelimit.RequestBudgetConfig{
			Redis:          rkv.Client(),
			Prefix:         cfg.Storage.Redis.KeyPrefix,
			TotalBudget:    cfg.Ledger.SharedBudget,
			ReservedBudget: cfg.Ledger.ReservedBudget,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create shared ledger budget")
		}
		algorand.SetBudget(budget)
		logger.WithField("requests_per_second", cfg.Ledger.SharedBudget).Info("Shared ledger budget enabled")
	}
	ledger := adapter.NewGuardedLedger(algorand, circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig))

	wallet, err := openWallet(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open wallet")
	}

	m := metrics.New()
	st := store.NewController(store.Initial(cfg.Ledger.Network, cfg.Contract.AppID, cfg.Contract.EscrowAddress))
	engine := reconcile.NewEngine(ledger, st, seen, reconcile.Options{
		HistoryLimit: cfg.Refresh.HistoryLimit,
		Archiver:     archiver,
		Metrics:      m,
	})

	refreshWorker, err := worker.NewRefreshWorker(&worker.RefreshWorkerConfig{
		Refresher: engine,
		Interval:  cfg.Refresh.Interval,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create refresh worker")
	}

	// Services
	logger.Info("Initializing services...")
	session, err := service.NewSessionService(&service.SessionServiceConfig{
		Wallet:    wallet,
		Store:     st,
		Settings:  storage.NewSettings(kv),
		Engine:    engine,
		Scheduler: refreshWorker,
		Defaults:  cfg.Contract,
		BaseCtx:   ctx,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create session service")
	}
	if err := session.LoadSettings(ctx); err != nil {
		logger.WithError(err).Warn("Using configured contract settings")
	}
	if address, _ := session.Restore(ctx); address != "" {
		logger.WithField("address", address).Info("Wallet session restored")
	}

	services := &api.Services{
		Session:       session,
		Bills:         service.NewBillService(ledger, wallet, st, m),
		Goals:         service.NewGoalService(st),
		Payments:      service.NewPaymentService(ledger, wallet, st, session.TriggerRefresh, m, cfg.Ledger.ExplorerBase),
		Notifications: service.NewNotificationService(st),
		Analytics:     service.NewAnalyticsService(st, history),
		Store:         st,
	}
	logger.Info("Services initialized")

	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Ledger.Timeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		QRSize:            paymenturi.DefaultQRSize,
	}
	server := api.NewServer(serverConfig, services, m)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	refreshWorker.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// openKeyValueStore connects the configured settings backend
func openKeyValueStore(cfg *config.Config) (storage.KeyValueStore, func(), error) {
	logger := logging.GetGlobalLogger().WithField("backend", cfg.Storage.Backend)

	switch cfg.Storage.Backend {
	case "redis":
		kv, err := storage.NewRedisKV(&cfg.Storage.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to Redis: %w", err)
		}
		logger.Info("Key-value store connected")
		return kv, func() { _ = kv.Close() }, nil
	case "postgres":
		db, err := storage.NewPostgresDB(&cfg.Storage.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to Postgres: %w", err)
		}
		logger.Info("Key-value store connected")
		return storage.NewPostgresKV(db), db.Close, nil
	default:
		logger.Warn("Using in-memory key-value store; settings are lost on restart")
		return storage.NewMemoryKV(), func() {}, nil
	}
}

// openWallet creates the signing wallet from the configured mnemonic, or an
// ephemeral account when none is set
func openWallet(cfg *config.Config) (*adapter.KeyWallet, error) {
	if cfg.Wallet.Mnemonic != "" {
		return adapter.NewKeyWallet(cfg.Wallet.Mnemonic)
	}

	account := crypto.GenerateAccount()
	logging.GetGlobalLogger().WithField("address", account.Address.String()).
		Warn("WALLET_MNEMONIC not set; using an ephemeral account")
	return adapter.NewKeyWalletFromKey(account.PrivateKey)
}

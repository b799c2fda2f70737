package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dispatch-ledger/internal/api_gateway"
	"github.com/dispatch-ledger/internal/api_gateway/handler"
	"github.com/dispatch-ledger/internal/claim"
	"github.com/dispatch-ledger/internal/config"
	"github.com/dispatch-ledger/internal/data"
	"github.com/dispatch-ledger/internal/data/memory"
	"github.com/dispatch-ledger/internal/data/mongo"
	"github.com/dispatch-ledger/internal/data/postgres"
	"github.com/dispatch-ledger/internal/dispatch"
	"github.com/dispatch-ledger/internal/domain/points"
	"github.com/dispatch-ledger/internal/logger"
	"github.com/dispatch-ledger/internal/platform/lock"
	"github.com/dispatch-ledger/internal/platform/messaging/consumers"
	"github.com/dispatch-ledger/internal/platform/persistence"
	"github.com/dispatch-ledger/internal/settlement_engine"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)
	log.Info("Starting API Gateway",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
		"store_driver", cfg.Dispatch.StoreDriver,
	)

	var closers []func(ctx context.Context)
	var stores data.Stores
	var journal points.JournalRepository
	var board *dispatch.Board
	var wg sync.WaitGroup

	if cfg.Dispatch.StoreDriver == config.StoreDriverMemory {
		// Single process development mode: no journal and no live board
		log.Warn("Using in-memory store; data is lost on exit")
		stores = memory.NewStore(log, cfg.Postgres.RequestTimeout).Stores()
	} else {
		postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
		if err != nil {
			log.Error("Failed to initialize PostgreSQL", "error", err)
			os.Exit(1)
		}
		closers = append(closers, func(context.Context) { postgresDB.Close() })
		stores = postgres.NewStores(log, postgresDB)

		mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
		if err != nil {
			log.Error("Failed to initialize MongoDB", "error", err)
			os.Exit(1)
		}
		closers = append(closers, func(ctx context.Context) {
			if err := mongoDB.Close(ctx); err != nil {
				log.Error("Error closing MongoDB connection", "error", err)
			}
		})
		journal = mongo.NewPointsJournalRepository(log, mongoDB.Database())

		board, err = startBoard(appCtx, log, cfg, &wg)
		if err != nil {
			log.Error("Failed to initialize dispatch board", "error", err)
			os.Exit(1)
		}
	}

	locker, closeLocker := newLocker(appCtx, log, cfg)
	closers = append(closers, func(context.Context) { closeLocker() })

	engine := settlement_engine.NewEngine(log, stores, locker, cfg.Dispatch)
	if journal != nil {
		engine.WithJournal(journal)
	}
	coordinator, err := claim.NewCoordinator(log, stores, engine, locker, cfg.Dispatch)
	if err != nil {
		log.Error("Failed to initialize claim coordinator", "error", err)
		os.Exit(1)
	}
	dispatchService := dispatch.NewService(log, stores, engine, cfg.Dispatch)

	var boardView handler.BoardView
	if board != nil {
		boardView = board
	}
	server := api_gateway.NewServer(log, cfg, api_gateway.Handlers{
		Calls:       handler.NewCallHandler(log, dispatchService, boardView),
		SharedCalls: handler.NewSharedCallHandler(log, coordinator),
		Settlement:  handler.NewSettlementHandler(log, engine),
		Points:      handler.NewPointsHandler(log, engine),
	})

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
		serverErr = err
	}
	wg.Wait()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i](shutdownCtx)
	}

	if serverErr != nil {
		log.Error("API Gateway shutdown completed with errors", "error", serverErr)
		os.Exit(1)
	}
	log.Info("API Gateway shutdown completed successfully")
}

// startBoard feeds the live board from the events topic. The consumer has no
// group so every gateway replica sees every event from the tail of the log.
func startBoard(ctx context.Context, log *slog.Logger, cfg *config.Config, wg *sync.WaitGroup) (*dispatch.Board, error) {
	consumer, err := consumers.NewKafkaConsumer(log, &cfg.Kafka, cfg.Kafka.EventsTopic, "")
	if err != nil {
		return nil, err
	}
	subscription := consumers.NewSubscription(log, consumer, 256)
	board := dispatch.NewBoard(log)

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer consumer.Close()
		if err := subscription.Run(ctx); err != nil {
			log.Error("Board subscription stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		board.Run(ctx, subscription.Events())
	}()
	return board, nil
}

// newLocker returns the Redis locker when enabled and reachable. Redis only
// narrows contention, so an unreachable server degrades to no locking.
func newLocker(ctx context.Context, log *slog.Logger, cfg *config.Config) (lock.Locker, func()) {
	if !cfg.Redis.Enabled {
		return lock.NoopLocker{}, func() {}
	}
	client, err := lock.OpenRedis(ctx, log, &cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, continuing without distributed locks", "error", err)
		return lock.NoopLocker{}, func() {}
	}
	return lock.NewRedisLocker(client, cfg.Redis.LockTTL), func() {
		if err := client.Close(); err != nil {
			log.Error("Error closing Redis client", "error", err)
		}
	}
}

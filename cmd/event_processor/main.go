package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dispatch-ledger/internal/claim"
	"github.com/dispatch-ledger/internal/config"
	"github.com/dispatch-ledger/internal/data/mongo"
	"github.com/dispatch-ledger/internal/data/postgres"
	"github.com/dispatch-ledger/internal/event_processor/consumer"
	"github.com/dispatch-ledger/internal/event_processor/outbox_poller"
	"github.com/dispatch-ledger/internal/event_processor/service"
	"github.com/dispatch-ledger/internal/logger"
	"github.com/dispatch-ledger/internal/platform/lock"
	"github.com/dispatch-ledger/internal/platform/messaging/consumers"
	"github.com/dispatch-ledger/internal/platform/messaging/producers"
	"github.com/dispatch-ledger/internal/platform/persistence"
	"github.com/dispatch-ledger/internal/settlement_engine"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("event_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)
	log.Info("Starting Event Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	if cfg.Dispatch.StoreDriver != config.StoreDriverPostgres {
		log.Error("Event Processor relays the Postgres outbox and needs STORE_DRIVER=postgres")
		os.Exit(1)
	}

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	stores := postgres.NewStores(log, postgresDB)
	journal := mongo.NewPointsJournalRepository(log, mongoDB.Database())
	if err := journal.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to create points journal indexes", "error", err)
		os.Exit(1)
	}

	eventProducer, err := producers.NewEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize event producer", "error", err)
		os.Exit(1)
	}

	// dlqProducer is nil when no DLQ topic is configured; the handler drops instead
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ producer", "error", err)
		os.Exit(1)
	}

	notificationConsumer, err := consumers.NewKafkaConsumer(log, &cfg.Kafka, cfg.Kafka.NotificationTopic, cfg.Kafka.ConsumerGroup)
	if err != nil {
		log.Error("Failed to initialize notification consumer", "error", err)
		os.Exit(1)
	}

	engine := settlement_engine.NewEngine(log, stores, lock.NoopLocker{}, cfg.Dispatch).WithJournal(journal)
	coordinator, err := claim.NewCoordinator(log, stores, engine, lock.NoopLocker{}, cfg.Dispatch)
	if err != nil {
		log.Error("Failed to initialize claim coordinator", "error", err)
		os.Exit(1)
	}

	processingService, err := service.NewWorkerPoolProcessingService(
		service.NewProcessingService(coordinator, log),
		service.WorkerPoolConfig{Size: cfg.WorkerPool.Size},
		log,
	)
	if err != nil {
		log.Error("Failed to initialize worker pool", "error", err)
		os.Exit(1)
	}

	notificationHandler := consumer.NewNotificationHandler(log, processingService, dlqProducer)

	relay := outbox_poller.NewEventRelay(stores.Outbox, eventProducer, journal, log)
	poller := outbox_poller.NewPoller(&cfg.Outbox, stores.Outbox, relay, log)

	errChan := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting notification consumer",
			"topic", cfg.Kafka.NotificationTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := notificationConsumer.Subscribe(appCtx, notificationHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting outbox poller",
			"interval", cfg.Outbox.PollingInterval.String(),
			"batch_size", cfg.Outbox.BatchSize,
		)
		poller.Start(appCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	log.Info("Shutting down worker pool", "running_workers", processingService.Running())
	processingService.Shutdown()

	if err := notificationConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}
	if err := eventProducer.Close(); err != nil {
		log.Error("Error closing event producer", "error", err)
	}
	if err := dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ producer", "error", err)
	}

	postgresDB.Close()

	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serviceErr != nil {
		log.Error("Event Processor shutdown completed with errors", "error", serviceErr)
		os.Exit(1)
	}
	log.Info("Event Processor shutdown completed successfully")
}

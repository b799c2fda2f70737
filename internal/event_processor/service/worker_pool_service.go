package service

import (
	"context"
	"log/slog"

	"github.com/panjf2000/ants/v2"
)

// WorkerPoolProcessingService bounds how many notifications are applied at once
type WorkerPoolProcessingService struct {
	baseService ProcessingService
	pool        *ants.Pool
	logger      *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolProcessingService(
	baseService ProcessingService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolProcessingService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolProcessingService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
	}, nil
}

// ProcessNotification runs the base service on a pool worker and waits for its result
func (s *WorkerPoolProcessingService) ProcessNotification(ctx context.Context, notification *Notification) error {
	resultChan := make(chan error, 1)
	copied := *notification

	err := s.pool.Submit(func() {
		resultChan <- s.baseService.ProcessNotification(ctx, &copied)
	})
	if err != nil {
		s.logger.Error("Failed to submit notification to worker pool",
			"shared_call_id", notification.SharedCallID.String(),
			"error", err,
		)
		return err
	}

	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolProcessingService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolProcessingService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolProcessingService) Capacity() int {
	return s.pool.Cap()
}

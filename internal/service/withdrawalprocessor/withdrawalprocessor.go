// Package withdrawalprocessor drives pending withdrawals to completion in background.
package withdrawalprocessor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/models"
)

const (
	defaultCountWorkers    = 4                // Number of workers to process withdrawals
	defaultProduceInterval = 10 * time.Second // Interval for fetching pending withdrawals
	defaultBatchSize       = 100
)

type withdrawalService interface {
	Process(ctx context.Context, id uuid.UUID) (models.Withdrawal, error)
	ListPending(ctx context.Context, limit int) ([]models.Withdrawal, error)
}

type Config struct {
	Workers   int
	Interval  time.Duration
	BatchSize int
}

type Processor struct {
	consumer *Consumer
	producer *Producer
	logger   logger.Logger
}

func New(cfg Config, withdrawals withdrawalService, logger logger.Logger) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultCountWorkers
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultProduceInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	return &Processor{
		consumer: &Consumer{
			countWorkers: cfg.Workers,
			withdrawals:  withdrawals,
			logger:       logger,
		},
		producer: &Producer{
			interval:    cfg.Interval,
			batchSize:   cfg.BatchSize,
			withdrawals: withdrawals,
			logger:      logger,
		},
		logger: logger,
	}
}

// Run until ctx is done. Returned channel is closed when producer and all workers stopped
func (wp *Processor) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	withdrawalChan := make(chan models.Withdrawal)

	producerStopped := wp.producer.Produce(ctx, withdrawalChan)
	consumerStopped := wp.consumer.Consume(ctx, withdrawalChan)

	go func() {
		defer close(idleStopped)
		<-producerStopped
		close(withdrawalChan)
		<-consumerStopped
		wp.logger.Debug("Withdrawal processor stopped")
	}()

	return idleStopped
}

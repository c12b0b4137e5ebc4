package withdrawalprocessor

import (
	"context"
	"time"

	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/models"
)

type Producer struct {
	interval    time.Duration
	batchSize   int
	withdrawals withdrawalService
	logger      logger.Logger
}

func (p *Producer) Produce(ctx context.Context, out chan<- models.Withdrawal) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting producer", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context")
				return

			case <-ticker.C:
				withdrawals, err := p.withdrawals.ListPending(ctx, p.batchSize)
				if err != nil {
					p.logger.Error("Failed to list pending withdrawals", "error", err)
					continue
				}
				p.logger.Debug("Producer tick", "pending", len(withdrawals))

				for _, w := range withdrawals {
					select {
					case <-ctx.Done():
						p.logger.Debug("Producer stopped by context while sending withdrawals")
						return
					case out <- w:
					}
				}
			}
		}
	}()

	return idleStopped
}

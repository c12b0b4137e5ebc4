package withdrawalprocessor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/settlement/internal/apperrors"
	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/models"
	"github.com/nkiryanov/settlement/internal/service/transfer"
)

type Consumer struct {
	countWorkers int

	// Payout provider may throttle us with Retry-After
	// Then every worker waits until the time is up
	waitUntil atomic.Int64

	// Ids being processed right now. Producer may hand out the same pending withdrawal again
	inFlight sync.Map

	withdrawals withdrawalService
	logger      logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan models.Withdrawal) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range c.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, in)
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan models.Withdrawal) {
	for {
		select {
		case <-ctx.Done():
			return

		case w, ok := <-in:
			if !ok {
				c.logger.Debug("Consumer worker stopped, input channel closed")
				return
			}
			if !c.wait(ctx) {
				return
			}
			c.process(ctx, w)
		}
	}
}

// Block until throttling is over. False if context is done first
func (c *Consumer) wait(ctx context.Context) bool {
	for {
		waitUntil := time.UnixMilli(c.waitUntil.Load())
		if !waitUntil.After(time.Now()) {
			return true
		}
		c.logger.Debug("Worker is waiting for provider throttling to pass", "wait_until", waitUntil)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Until(waitUntil)):
		}
	}
}

func (c *Consumer) process(ctx context.Context, w models.Withdrawal) {
	if _, busy := c.inFlight.LoadOrStore(w.ID, struct{}{}); busy {
		return
	}
	defer c.inFlight.Delete(w.ID)

	l := c.logger.With("withdrawal_id", w.ID)

	got, err := c.withdrawals.Process(ctx, w.ID)
	var trErr *transfer.Error

	switch {
	case err == nil:
		l.Debug("Withdrawal processed", "status", got.Status)

	case errors.Is(err, apperrors.ErrWithdrawalAlreadyProcessed):
		l.Debug("Withdrawal already processed", "status", got.Status)

	case errors.As(err, &trErr) && trErr.RetryAfter > 0:
		l.Info("Payout provider throttled, waiting", "retry_after", trErr.RetryAfter)
		c.throttle(time.Now().Add(trErr.RetryAfter))

	case errors.Is(err, apperrors.ErrExternalUnavailable):
		l.Info("Payout provider unavailable, withdrawal stays pending", "error", err)

	case ctx.Err() != nil:
		return

	default:
		l.Error("Failed to process withdrawal", "error", err)
	}
}

// Move waitUntil forward only
func (c *Consumer) throttle(until time.Time) {
	next := until.UnixMilli()
	for {
		cur := c.waitUntil.Load()
		if cur >= next || c.waitUntil.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Package withdrawal moves seller withdrawals from request to a finished payout.
//
// A withdrawal is created 'pending' and reserves its amount in the seller's pending balance.
// Processing calls the payout provider with an idempotency key derived from the withdrawal id
// and then moves the row to 'completed' or 'failed' with a compare-and-set, so a withdrawal
// is paid and debited at most once however many times it is processed.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/nkiryanov/settlement/internal/apperrors"
	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/metrics"
	"github.com/nkiryanov/settlement/internal/models"
	"github.com/nkiryanov/settlement/internal/money"
	"github.com/nkiryanov/settlement/internal/repository"
	"github.com/nkiryanov/settlement/internal/service/transfer"
)

const (
	defaultMinAmount       = money.Cents(1000)
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
	defaultMaxRetries      = 3
	defaultRecordTimeout   = 10 * time.Second
	defaultNotes           = "Withdrawal request"
)

type Transferrer interface {
	Transfer(ctx context.Context, r transfer.Request) (transfer.Result, error)
}

type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Retries after the first attempt
	MaxRetries uint64
}

type Config struct {
	// Smallest amount seller may withdraw. 10.00 if zero
	MinAmount money.Cents

	// Retry of provider calls that failed with ErrExternalUnavailable
	Retry RetryConfig

	// Sent with every transfer, followed by the withdrawal id
	Notes string

	// Bound for recording the provider's answer. 10s if zero
	RecordTimeout time.Duration
}

type Service struct {
	minAmount     money.Cents
	retry         RetryConfig
	notes         string
	recordTimeout time.Duration

	storage   repository.Storage
	transfers Transferrer
	logger    logger.Logger
}

func NewService(cfg Config, storage repository.Storage, transfers Transferrer, logger logger.Logger) *Service {
	if cfg.MinAmount == 0 {
		cfg.MinAmount = defaultMinAmount
	}
	if cfg.Retry.InitialInterval == 0 {
		cfg.Retry.InitialInterval = defaultInitialInterval
	}
	if cfg.Retry.MaxInterval == 0 {
		cfg.Retry.MaxInterval = defaultMaxInterval
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = defaultMaxRetries
	}
	if cfg.Notes == "" {
		cfg.Notes = defaultNotes
	}
	if cfg.RecordTimeout == 0 {
		cfg.RecordTimeout = defaultRecordTimeout
	}

	return &Service{
		minAmount:     cfg.MinAmount,
		retry:         cfg.Retry,
		notes:         cfg.Notes,
		recordTimeout: cfg.RecordTimeout,
		storage:       storage,
		transfers:     transfers,
		logger:        logger,
	}
}

func (s *Service) MinAmount() money.Cents {
	return s.minAmount
}

// Request creates pending withdrawal and reserves the amount
// Checks in order: minimum amount, linked payout account, funds, no other pending withdrawal
func (s *Service) Request(ctx context.Context, sellerID uuid.UUID, amount money.Cents) (models.Withdrawal, error) {
	var w models.Withdrawal
	l := s.logger.With("seller_id", sellerID, "amount", amount)

	if amount < s.minAmount {
		l.Info("Withdrawal below minimum", "min_amount", s.minAmount)
		return w, fmt.Errorf("%w: minimum is %s", apperrors.ErrBelowMinimum, s.minAmount)
	}

	var balance models.Balance
	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		_, err := storage.PayoutAccount().GetAccount(ctx, sellerID)
		if err != nil {
			return err
		}

		balance, err = storage.Balance().GetBalance(ctx, sellerID, true)
		if err != nil {
			return err
		}
		if amount > balance.Available-balance.Pending {
			return apperrors.ErrInsufficientFunds
		}

		w, err = storage.Withdrawal().CreateWithdrawal(ctx, models.Withdrawal{
			SellerID: sellerID,
			Amount:   amount,
			Status:   models.WithdrawalPending,
		})
		if err != nil {
			return err
		}

		balance, err = storage.Balance().ApplyChange(ctx, models.BalanceChange{SellerID: sellerID, Pending: amount})
		return err
	})
	if err != nil {
		l.Info("Withdrawal request refused", "error", err, "available", balance.Available, "pending", balance.Pending)
		return models.Withdrawal{}, err
	}

	metrics.Withdrawal("requested")
	l.Info("Withdrawal requested", "withdrawal_id", w.ID, "status", w.Status, "pending", balance.Pending)
	return w, nil
}

// Process sends pending withdrawal to the payout provider and records the result
//
// Returns apperrors.ErrWithdrawalAlreadyProcessed with the stored row if withdrawal is not pending.
// Returns error wrapping apperrors.ErrExternalUnavailable (and *transfer.Error if provider answered)
// when provider stayed unavailable after retries: withdrawal stays pending and may be processed again.
//
// Once the transfer is issued, cancelling ctx no longer stops processing: the answer is always recorded.
func (s *Service) Process(ctx context.Context, id uuid.UUID) (models.Withdrawal, error) {
	w, err := s.storage.Withdrawal().GetWithdrawal(ctx, id)
	if err != nil {
		return w, err
	}
	l := s.logger.With("withdrawal_id", w.ID, "seller_id", w.SellerID, "amount", w.Amount)

	if w.Status.IsTerminal() {
		l.Info("Withdrawal already processed", "status", w.Status)
		return w, apperrors.ErrWithdrawalAlreadyProcessed
	}

	account, err := s.storage.PayoutAccount().GetAccount(ctx, w.SellerID)
	switch {
	case errors.Is(err, apperrors.ErrPayoutAccountNotLinked):
		return s.fail(ctx, l, w, "payout account not linked")
	case err != nil:
		return w, err
	}

	balance, err := s.storage.Balance().GetBalance(ctx, w.SellerID, false)
	if err != nil {
		return w, err
	}
	if balance.Available < w.Amount {
		l.Warn("Withdrawal exceeds available balance", "available", balance.Available)
		return s.fail(ctx, l, w, apperrors.ErrInsufficientFunds.Error())
	}

	// Each attempt is bounded by the transfer client timeout and the retry count
	ctx = context.WithoutCancel(ctx)
	res, err := s.transfer(ctx, l, w, account)

	ctx, cancel := context.WithTimeout(ctx, s.recordTimeout)
	defer cancel()

	var trErr *transfer.Error
	switch {
	case err == nil:
		return s.complete(ctx, l, w, res.TransferID)

	case errors.Is(err, apperrors.ErrExternalRejected):
		reason := "rejected by payout provider"
		if errors.As(err, &trErr) && trErr.Reason != "" {
			reason = trErr.Reason
		}
		return s.fail(ctx, l, w, reason)

	default:
		l.Warn("Withdrawal left pending, payout provider unavailable", "error", err)
		if !errors.Is(err, apperrors.ErrExternalUnavailable) {
			err = fmt.Errorf("%w: %w", apperrors.ErrExternalUnavailable, err)
		}
		return w, fmt.Errorf("withdrawal %s: %w", w.ID, err)
	}
}

func (s *Service) transfer(ctx context.Context, l logger.Logger, w models.Withdrawal, account models.LinkedPayoutAccount) (transfer.Result, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.InitialInterval
	b.MaxInterval = s.retry.MaxInterval
	b.MaxElapsedTime = 0

	operation := func() (transfer.Result, error) {
		res, err := s.transfers.Transfer(ctx, transfer.Request{
			DestinationID:  account.ExternalAccountID,
			Amount:         w.Amount,
			IdempotencyKey: w.IdempotencyKey(),
			Notes:          s.notes + " " + w.ID.String(),
		})

		var trErr *transfer.Error
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, apperrors.ErrExternalRejected):
			return res, backoff.Permanent(err)
		case errors.As(err, &trErr) && trErr.RetryAfter > 0:
			// Throttled: retrying now only makes it worse
			return res, backoff.Permanent(err)
		default:
			return res, err
		}
	}

	notify := func(err error, next time.Duration) {
		l.Info("Transfer attempt failed, retrying", "error", err, "next_attempt_in", next, "idempotency_key", w.IdempotencyKey())
	}

	return backoff.RetryNotifyWithData(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(b, s.retry.MaxRetries), ctx),
		notify,
	)
}

func (s *Service) complete(ctx context.Context, l logger.Logger, w models.Withdrawal, transferID string) (models.Withdrawal, error) {
	var balance models.Balance

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		var err error
		w, err = storage.Withdrawal().Finish(ctx, repository.FinishWithdrawalParams{
			ID:          w.ID,
			Status:      models.WithdrawalCompleted,
			ProcessedAt: time.Now(),
			TransferID:  &transferID,
		})
		if err != nil {
			return err
		}

		balance, err = storage.Balance().ApplyChange(ctx, models.BalanceChange{
			SellerID:  w.SellerID,
			Available: -w.Amount,
			Pending:   -w.Amount,
		})
		return err
	})

	switch {
	case err == nil:
		metrics.Withdrawal(string(models.WithdrawalCompleted))
		l.Info("Withdrawal completed", "transfer_id", transferID, "status", w.Status, "available", balance.Available, "pending", balance.Pending)
		return w, nil
	case errors.Is(err, apperrors.ErrWithdrawalAlreadyProcessed):
		l.Info("Withdrawal finished concurrently", "status", w.Status)
		return w, err
	default:
		// Money has moved but is not recorded yet. Next processing gets the same transfer back
		l.Error("Transfer done but withdrawal not recorded", "transfer_id", transferID, "error", err)
		return w, fmt.Errorf("record completed withdrawal %s: %w", w.ID, err)
	}
}

func (s *Service) fail(ctx context.Context, l logger.Logger, w models.Withdrawal, reason string) (models.Withdrawal, error) {
	var balance models.Balance

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		var err error
		w, err = storage.Withdrawal().Finish(ctx, repository.FinishWithdrawalParams{
			ID:            w.ID,
			Status:        models.WithdrawalFailed,
			ProcessedAt:   time.Now(),
			FailureReason: &reason,
		})
		if err != nil {
			return err
		}

		balance, err = storage.Balance().ApplyChange(ctx, models.BalanceChange{
			SellerID: w.SellerID,
			Pending:  -w.Amount,
		})
		return err
	})

	switch {
	case err == nil:
		metrics.Withdrawal(string(models.WithdrawalFailed))
		l.Info("Withdrawal failed", "reason", reason, "status", w.Status, "available", balance.Available, "pending", balance.Pending)
		return w, nil
	case errors.Is(err, apperrors.ErrWithdrawalAlreadyProcessed):
		l.Info("Withdrawal finished concurrently", "status", w.Status)
		return w, err
	default:
		l.Error("Failed to record failed withdrawal", "reason", reason, "error", err)
		return w, fmt.Errorf("record failed withdrawal %s: %w", w.ID, err)
	}
}

// Newest first
func (s *Service) List(ctx context.Context, sellerID uuid.UUID) ([]models.Withdrawal, error) {
	return s.storage.Withdrawal().ListWithdrawals(ctx, sellerID)
}

// Withdrawal of another seller is reported as not found
func (s *Service) Get(ctx context.Context, sellerID uuid.UUID, id uuid.UUID) (models.Withdrawal, error) {
	w, err := s.storage.Withdrawal().GetWithdrawal(ctx, id)
	if err != nil {
		return w, err
	}
	if w.SellerID != sellerID {
		return models.Withdrawal{}, apperrors.ErrWithdrawalNotFound
	}
	return w, nil
}

// Oldest first
func (s *Service) ListPending(ctx context.Context, limit int) ([]models.Withdrawal, error) {
	return s.storage.Withdrawal().ListPending(ctx, limit)
}

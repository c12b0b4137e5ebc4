package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/settlement/internal/apperrors"
	"github.com/nkiryanov/settlement/internal/models"
	"github.com/nkiryanov/settlement/internal/repository"
)

type WithdrawalRepo struct {
	DB DBTX
}

const withdrawalColumns = `id, seller_id, amount_cents, status, requested_at, processed_at, transfer_id, failure_reason`

const createWithdrawal = `-- name: CreateWithdrawal
INSERT INTO withdrawals (id, seller_id, amount_cents, status, requested_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + withdrawalColumns

func (r *WithdrawalRepo) CreateWithdrawal(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.RequestedAt.IsZero() {
		w.RequestedAt = time.Now()
	}
	if w.Status == "" {
		w.Status = models.WithdrawalPending
	}

	rows, _ := r.DB.Query(ctx, createWithdrawal, w.ID, w.SellerID, w.Amount, w.Status, w.RequestedAt)
	created, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	switch code := pgErrorCode(err); {
	case err == nil:
		return created, nil
	case code == pgerrcode.UniqueViolation:
		return created, apperrors.ErrWithdrawalPending
	case code == pgerrcode.ForeignKeyViolation:
		return created, apperrors.ErrSellerNotFound
	default:
		return created, fmt.Errorf("db error: %w", err)
	}
}

const getWithdrawal = `-- name: GetWithdrawal
SELECT ` + withdrawalColumns + ` FROM withdrawals
WHERE id = $1
`

func (r *WithdrawalRepo) GetWithdrawal(ctx context.Context, id uuid.UUID) (models.Withdrawal, error) {
	rows, _ := r.DB.Query(ctx, getWithdrawal, id)
	w, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		return w, apperrors.ErrWithdrawalNotFound
	default:
		return w, fmt.Errorf("db error: %w", err)
	}
}

const listWithdrawals = `-- name: ListWithdrawals
SELECT ` + withdrawalColumns + ` FROM withdrawals
WHERE seller_id = $1
ORDER BY requested_at DESC, id
`

func (r *WithdrawalRepo) ListWithdrawals(ctx context.Context, sellerID uuid.UUID) ([]models.Withdrawal, error) {
	rows, _ := r.DB.Query(ctx, listWithdrawals, sellerID)
	ws, err := pgx.CollectRows(rows, rowToWithdrawal)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ws, nil
}

const listPendingWithdrawals = `-- name: ListPendingWithdrawals
SELECT ` + withdrawalColumns + ` FROM withdrawals
WHERE status = 'pending'
ORDER BY requested_at, id
LIMIT $1
`

func (r *WithdrawalRepo) ListPending(ctx context.Context, limit int) ([]models.Withdrawal, error) {
	rows, _ := r.DB.Query(ctx, listPendingWithdrawals, limit)
	ws, err := pgx.CollectRows(rows, rowToWithdrawal)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ws, nil
}

// Compare-and-set: only a row that is still pending moves to the final status
const finishWithdrawal = `-- name: FinishWithdrawal
UPDATE withdrawals
SET status = $2, processed_at = $3, transfer_id = $4, failure_reason = $5
WHERE id = $1 AND status = 'pending'
RETURNING ` + withdrawalColumns

func (r *WithdrawalRepo) Finish(ctx context.Context, arg repository.FinishWithdrawalParams) (models.Withdrawal, error) {
	if !arg.Status.IsTerminal() {
		return models.Withdrawal{}, fmt.Errorf("withdrawal can't be finished with status %q", arg.Status)
	}

	rows, _ := r.DB.Query(ctx, finishWithdrawal, arg.ID, arg.Status, arg.ProcessedAt, arg.TransferID, arg.FailureReason)
	w, err := pgx.CollectOneRow(rows, rowToWithdrawal)

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Either missing or already finished by somebody else
	default:
		return w, fmt.Errorf("db error: %w", err)
	}

	current, err := r.GetWithdrawal(ctx, arg.ID)
	if err != nil {
		return current, err
	}
	return current, apperrors.ErrWithdrawalAlreadyProcessed
}

func rowToWithdrawal(row pgx.CollectableRow) (models.Withdrawal, error) {
	var w models.Withdrawal
	err := row.Scan(
		&w.ID, &w.SellerID, &w.Amount, &w.Status, &w.RequestedAt,
		&w.ProcessedAt, &w.TransferID, &w.FailureReason,
	)
	return w, err
}

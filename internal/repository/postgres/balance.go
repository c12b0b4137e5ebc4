package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/settlement/internal/apperrors"
	"github.com/nkiryanov/settlement/internal/models"
)

type BalanceRepo struct {
	DB DBTX
}

const balanceColumns = `seller_id, available_cents, pending_cents, total_earned_cents, updated_at`

func (r *BalanceRepo) CreateBalance(ctx context.Context, sellerID uuid.UUID) error {
	const createBalance = `
	INSERT INTO seller_balances (seller_id)
	VALUES ($1)
	`

	_, err := r.DB.Exec(ctx, createBalance, sellerID)

	switch code := pgErrorCode(err); {
	case err == nil:
		return nil
	case code == pgerrcode.UniqueViolation:
		return fmt.Errorf("seller balance already exists: %w", err)
	case code == pgerrcode.ForeignKeyViolation:
		return apperrors.ErrSellerNotFound
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

func (r *BalanceRepo) GetBalance(ctx context.Context, sellerID uuid.UUID, forUpdate bool) (models.Balance, error) {
	query := `SELECT ` + balanceColumns + ` FROM seller_balances WHERE seller_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, _ := r.DB.Query(ctx, query, sellerID)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return models.Balance{SellerID: sellerID}, nil
	default:
		return balance, fmt.Errorf("db error: %w", err)
	}
}

const ensureBalance = `-- name: EnsureBalance
INSERT INTO seller_balances (seller_id)
VALUES ($1)
ON CONFLICT (seller_id) DO NOTHING
`

// Deltas are applied with plain UPDATE: an INSERT .. ON CONFLICT DO UPDATE would check the
// (possibly negative) proposed row against constraints before resolving the conflict
const applyBalanceChange = `-- name: ApplyBalanceChange
UPDATE seller_balances
SET available_cents    = available_cents + $2,
    pending_cents      = pending_cents + $3,
    total_earned_cents = total_earned_cents + $4,
    updated_at         = now()
WHERE seller_id = $1
RETURNING ` + balanceColumns

func (r *BalanceRepo) ApplyChange(ctx context.Context, change models.BalanceChange) (models.Balance, error) {
	var balance models.Balance

	_, err := r.DB.Exec(ctx, ensureBalance, change.SellerID)
	if err != nil {
		if pgErrorCode(err) == pgerrcode.ForeignKeyViolation {
			return balance, apperrors.ErrSellerNotFound
		}
		return balance, fmt.Errorf("db error: %w", err)
	}

	rows, _ := r.DB.Query(ctx, applyBalanceChange, change.SellerID, change.Available, change.Pending, change.TotalEarned)
	balance, err = pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case pgErrorCode(err) == pgerrcode.CheckViolation:
		return balance, apperrors.ErrInsufficientFunds
	default:
		return balance, fmt.Errorf("db error: %w", err)
	}
}

const listSellerIDs = `-- name: ListSellerIDs
SELECT seller_id FROM seller_balances
UNION
SELECT seller_id FROM orders
UNION
SELECT seller_id FROM withdrawals
ORDER BY seller_id
`

func (r *BalanceRepo) ListSellerIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, _ := r.DB.Query(ctx, listSellerIDs)
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return ids, nil
}

func rowToBalance(row pgx.CollectableRow) (models.Balance, error) {
	var b models.Balance
	err := row.Scan(&b.SellerID, &b.Available, &b.Pending, &b.TotalEarned, &b.UpdatedAt)
	return b, err
}

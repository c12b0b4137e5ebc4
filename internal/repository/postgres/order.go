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
)

type OrderRepo struct {
	DB DBTX
}

const orderColumns = `id, product_id, product_name, seller_id, gross_cents, platform_fee_cents, seller_amount_cents, external_payment_id, created_at`

// Insert order, skip silently if the payment id is taken
const createOrder = `-- name: CreateOrder
INSERT INTO orders (` + orderColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (external_payment_id) DO NOTHING
RETURNING ` + orderColumns

// Separate statement on purpose: under read committed it sees a row committed by a concurrent insert
// that the ON CONFLICT statement above waited for
const getOrderByPaymentID = `-- name: GetOrderByPaymentID
SELECT ` + orderColumns + ` FROM orders
WHERE external_payment_id = $1
`

func (r *OrderRepo) CreateOrder(ctx context.Context, o models.Order) (models.Order, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createOrder,
		o.ID, o.ProductID, o.ProductName, o.SellerID, o.Gross, o.PlatformFee, o.SellerAmount, o.ExternalPaymentID, o.CreatedAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		return created, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Conflict: someone already materialized the payment
	case pgErrorCode(err) == pgerrcode.ForeignKeyViolation:
		return created, fmt.Errorf("order references unknown product or seller: %w", apperrors.ErrProductNotFound)
	default:
		return created, fmt.Errorf("db error: %w", err)
	}

	rows, _ = r.DB.Query(ctx, getOrderByPaymentID, o.ExternalPaymentID)
	existing, err := pgx.CollectOneRow(rows, rowToOrder)
	if err != nil {
		return existing, fmt.Errorf("db error: %w", err)
	}

	return existing, apperrors.ErrPaymentAlreadyProcessed
}

const listOrders = `-- name: ListOrders
SELECT ` + orderColumns + ` FROM orders
WHERE seller_id = $1
ORDER BY created_at DESC, id
`

func (r *OrderRepo) ListOrders(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error) {
	rows, _ := r.DB.Query(ctx, listOrders, sellerID)
	orders, err := pgx.CollectRows(rows, rowToOrder)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return orders, nil
}

func rowToOrder(row pgx.CollectableRow) (models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.ProductID, &o.ProductName, &o.SellerID,
		&o.Gross, &o.PlatformFee, &o.SellerAmount,
		&o.ExternalPaymentID, &o.CreatedAt,
	)
	return o, err
}

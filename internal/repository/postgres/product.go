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

type ProductRepo struct {
	DB DBTX
}

const createProduct = `-- name: CreateProduct
INSERT INTO products (id, seller_id, name, price_cents, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, seller_id, name, price_cents, created_at
`

func (r *ProductRepo) CreateProduct(ctx context.Context, p models.Product) (models.Product, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createProduct, p.ID, p.SellerID, p.Name, p.Price, p.CreatedAt)
	product, err := pgx.CollectOneRow(rows, rowToProduct)

	switch {
	case err == nil:
		return product, nil
	case pgErrorCode(err) == pgerrcode.ForeignKeyViolation:
		return product, apperrors.ErrSellerNotFound
	default:
		return product, fmt.Errorf("db error: %w", err)
	}
}

const getProduct = `-- name: GetProduct
SELECT id, seller_id, name, price_cents, created_at FROM products
WHERE id = $1
`

func (r *ProductRepo) GetProduct(ctx context.Context, id uuid.UUID) (models.Product, error) {
	rows, _ := r.DB.Query(ctx, getProduct, id)
	product, err := pgx.CollectOneRow(rows, rowToProduct)

	switch {
	case err == nil:
		return product, nil
	case errors.Is(err, pgx.ErrNoRows):
		return product, apperrors.ErrProductNotFound
	default:
		return product, fmt.Errorf("db error: %w", err)
	}
}

func rowToProduct(row pgx.CollectableRow) (models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.Price, &p.CreatedAt)
	return p, err
}

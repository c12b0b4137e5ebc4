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

type SellerRepo struct {
	DB DBTX
}

const createSeller = `-- name: CreateSeller
INSERT INTO sellers (id, username, password_hash)
VALUES ($1, $2, $3)
RETURNING id, created_at, username, password_hash
`

func (r *SellerRepo) CreateSeller(ctx context.Context, username string, hashedPassword string) (models.Seller, error) {
	rows, _ := r.DB.Query(ctx, createSeller, uuid.New(), username, hashedPassword)
	seller, err := pgx.CollectOneRow(rows, rowToSeller)

	switch {
	case err == nil:
		return seller, nil
	case pgErrorCode(err) == pgerrcode.UniqueViolation:
		return seller, apperrors.ErrSellerAlreadyExists
	default:
		return seller, fmt.Errorf("db error: %w", err)
	}
}

const getSellerByID = `-- name: GetSellerByID
SELECT id, created_at, username, password_hash FROM sellers
WHERE id = $1
`

func (r *SellerRepo) GetSellerByID(ctx context.Context, id uuid.UUID) (models.Seller, error) {
	rows, _ := r.DB.Query(ctx, getSellerByID, id)
	return collectSeller(rows)
}

const getSellerByUsername = `-- name: GetSellerByUsername
SELECT id, created_at, username, password_hash FROM sellers
WHERE username = $1
`

func (r *SellerRepo) GetSellerByUsername(ctx context.Context, username string) (models.Seller, error) {
	rows, _ := r.DB.Query(ctx, getSellerByUsername, username)
	return collectSeller(rows)
}

func collectSeller(rows pgx.Rows) (models.Seller, error) {
	seller, err := pgx.CollectOneRow(rows, rowToSeller)

	switch {
	case err == nil:
		return seller, nil
	case errors.Is(err, pgx.ErrNoRows):
		return seller, apperrors.ErrSellerNotFound
	default:
		return seller, fmt.Errorf("db error: %w", err)
	}
}

func rowToSeller(row pgx.CollectableRow) (models.Seller, error) {
	var s models.Seller
	err := row.Scan(&s.ID, &s.CreatedAt, &s.Username, &s.HashedPassword)
	return s, err
}

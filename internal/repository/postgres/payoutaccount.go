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

type PayoutAccountRepo struct {
	DB DBTX
}

const payoutAccountColumns = `seller_id, external_account_id, access_token, refresh_token, token_expires_at, linked_at`

// Relinking replaces previous account and tokens
const upsertPayoutAccount = `-- name: UpsertPayoutAccount
INSERT INTO linked_payout_accounts (` + payoutAccountColumns + `)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (seller_id) DO UPDATE SET
    external_account_id = EXCLUDED.external_account_id,
    access_token        = EXCLUDED.access_token,
    refresh_token       = EXCLUDED.refresh_token,
    token_expires_at    = EXCLUDED.token_expires_at,
    linked_at           = EXCLUDED.linked_at
RETURNING ` + payoutAccountColumns

func (r *PayoutAccountRepo) UpsertAccount(ctx context.Context, acc models.LinkedPayoutAccount) (models.LinkedPayoutAccount, error) {
	if acc.LinkedAt.IsZero() {
		acc.LinkedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, upsertPayoutAccount,
		acc.SellerID, acc.ExternalAccountID, acc.AccessToken, acc.RefreshToken, acc.TokenExpiresAt, acc.LinkedAt,
	)
	saved, err := pgx.CollectOneRow(rows, rowToPayoutAccount)

	switch {
	case err == nil:
		return saved, nil
	case pgErrorCode(err) == pgerrcode.ForeignKeyViolation:
		return saved, apperrors.ErrSellerNotFound
	default:
		return saved, fmt.Errorf("db error: %w", err)
	}
}

const getPayoutAccount = `-- name: GetPayoutAccount
SELECT ` + payoutAccountColumns + ` FROM linked_payout_accounts
WHERE seller_id = $1
`

func (r *PayoutAccountRepo) GetAccount(ctx context.Context, sellerID uuid.UUID) (models.LinkedPayoutAccount, error) {
	rows, _ := r.DB.Query(ctx, getPayoutAccount, sellerID)
	acc, err := pgx.CollectOneRow(rows, rowToPayoutAccount)

	switch {
	case err == nil:
		return acc, nil
	case errors.Is(err, pgx.ErrNoRows):
		return acc, apperrors.ErrPayoutAccountNotLinked
	default:
		return acc, fmt.Errorf("db error: %w", err)
	}
}

func rowToPayoutAccount(row pgx.CollectableRow) (models.LinkedPayoutAccount, error) {
	var a models.LinkedPayoutAccount
	err := row.Scan(&a.SellerID, &a.ExternalAccountID, &a.AccessToken, &a.RefreshToken, &a.TokenExpiresAt, &a.LinkedAt)
	return a, err
}

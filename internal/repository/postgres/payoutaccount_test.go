package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/settlement/internal/apperrors"
	"github.com/nkiryanov/settlement/internal/models"
	"github.com/nkiryanov/settlement/internal/repository"
	"github.com/nkiryanov/settlement/internal/testutil"
)

func TestPayoutAccounts(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
		seller, err := storage.Seller().CreateSeller(t.Context(), "seller", "hash")
		require.NoError(t, err)

		t.Run("not linked", func(t *testing.T) {
			_, err := storage.PayoutAccount().GetAccount(t.Context(), seller.ID)

			require.ErrorIs(t, err, apperrors.ErrPayoutAccountNotLinked)
		})

		t.Run("link and relink", func(t *testing.T) {
			inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
				expires := testutil.MustParseTime(t, "2030-01-01T00:00:00Z")

				first, err := storage.PayoutAccount().UpsertAccount(t.Context(), models.LinkedPayoutAccount{
					SellerID:          seller.ID,
					ExternalAccountID: "user_1",
					AccessToken:       "access-1",
					RefreshToken:      "refresh-1",
					TokenExpiresAt:    &expires,
				})
				require.NoError(t, err)
				require.Equal(t, "user_1", first.ExternalAccountID)
				require.WithinDuration(t, time.Now(), first.LinkedAt, time.Second)

				_, err = storage.PayoutAccount().UpsertAccount(t.Context(), models.LinkedPayoutAccount{
					SellerID:          seller.ID,
					ExternalAccountID: "user_2",
					AccessToken:       "access-2",
				})
				require.NoError(t, err)

				got, err := storage.PayoutAccount().GetAccount(t.Context(), seller.ID)

				require.NoError(t, err)
				require.Equal(t, "user_2", got.ExternalAccountID)
				require.Equal(t, "access-2", got.AccessToken)
				require.Empty(t, got.RefreshToken)
				require.Nil(t, got.TokenExpiresAt)
			})
		})

		t.Run("unknown seller", func(t *testing.T) {
			inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
				_, err := storage.PayoutAccount().UpsertAccount(t.Context(), models.LinkedPayoutAccount{
					SellerID: uuid.New(), ExternalAccountID: "user_3", AccessToken: "x",
				})

				require.ErrorIs(t, err, apperrors.ErrSellerNotFound)
			})
		})
	})
}

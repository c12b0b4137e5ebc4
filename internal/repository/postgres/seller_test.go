package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/settlement/internal/apperrors"
	"github.com/nkiryanov/settlement/internal/models"
	"github.com/nkiryanov/settlement/internal/money"
	"github.com/nkiryanov/settlement/internal/repository"
	"github.com/nkiryanov/settlement/internal/testutil"
)

func TestSellers(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("CreateSeller", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			t.Run("create ok", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					seller, err := storage.Seller().CreateSeller(t.Context(), "alice", "hash")

					require.NoError(t, err)
					require.NotZero(t, seller.ID)
					require.Equal(t, "alice", seller.Username)
					require.Equal(t, "hash", seller.HashedPassword)
					require.WithinDuration(t, time.Now(), seller.CreatedAt, time.Second)
				})
			})

			t.Run("username taken", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Seller().CreateSeller(t.Context(), "alice", "hash")
					require.NoError(t, err)

					_, err = storage.Seller().CreateSeller(t.Context(), "alice", "another-hash")

					require.ErrorIs(t, err, apperrors.ErrSellerAlreadyExists)
				})
			})
		})
	})

	t.Run("GetSeller", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			seller, err := storage.Seller().CreateSeller(t.Context(), "bob", "hash")
			require.NoError(t, err)

			t.Run("by id", func(t *testing.T) {
				got, err := storage.Seller().GetSellerByID(t.Context(), seller.ID)

				require.NoError(t, err)
				require.Equal(t, seller, got)
			})

			t.Run("by username", func(t *testing.T) {
				got, err := storage.Seller().GetSellerByUsername(t.Context(), "bob")

				require.NoError(t, err)
				require.Equal(t, seller.ID, got.ID)
			})

			t.Run("not found", func(t *testing.T) {
				_, err := storage.Seller().GetSellerByID(t.Context(), uuid.New())
				require.ErrorIs(t, err, apperrors.ErrSellerNotFound)

				_, err = storage.Seller().GetSellerByUsername(t.Context(), "nobody")
				require.ErrorIs(t, err, apperrors.ErrSellerNotFound)
			})
		})
	})
}

func TestProducts(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
		seller, err := storage.Seller().CreateSeller(t.Context(), "carol", "hash")
		require.NoError(t, err)

		t.Run("create and get", func(t *testing.T) {
			inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
				created, err := storage.Product().CreateProduct(t.Context(), models.Product{
					SellerID: seller.ID,
					Name:     "Course",
					Price:    money.MustParse("49.99"),
				})
				require.NoError(t, err)
				require.NotZero(t, created.ID)

				got, err := storage.Product().GetProduct(t.Context(), created.ID)

				require.NoError(t, err)
				require.Equal(t, seller.ID, got.SellerID)
				require.Equal(t, "Course", got.Name)
				require.Equal(t, money.Cents(4999), got.Price)
			})
		})

		t.Run("unknown seller", func(t *testing.T) {
			inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
				_, err := storage.Product().CreateProduct(t.Context(), models.Product{
					SellerID: uuid.New(),
					Name:     "Orphan",
					Price:    100,
				})

				require.ErrorIs(t, err, apperrors.ErrSellerNotFound)
			})
		})

		t.Run("not found", func(t *testing.T) {
			_, err := storage.Product().GetProduct(t.Context(), uuid.New())

			require.ErrorIs(t, err, apperrors.ErrProductNotFound)
		})
	})
}

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

func TestOrders(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("CreateOrder", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			seller, product := createSellerWithProduct(t, storage, "seller", "100.00")

			newOrder := func(paymentID string) models.Order {
				return models.Order{
					ProductID:         product.ID,
					ProductName:       product.Name,
					SellerID:          seller.ID,
					Gross:             10000,
					PlatformFee:       1000,
					SellerAmount:      9000,
					ExternalPaymentID: paymentID,
				}
			}

			t.Run("create ok", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					order, err := storage.Order().CreateOrder(t.Context(), newOrder("pay_1"))

					require.NoError(t, err, "order has to be created ok")
					require.NotZero(t, order.ID)
					require.Equal(t, seller.ID, order.SellerID)
					require.Equal(t, "pay_1", order.ExternalPaymentID)
					require.EqualValues(t, 9000, order.SellerAmount)
					require.WithinDuration(t, time.Now(), order.CreatedAt, time.Second)
				})
			})

			t.Run("same payment twice", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					first, err := storage.Order().CreateOrder(t.Context(), newOrder("pay_1"))
					require.NoError(t, err)

					second, err := storage.Order().CreateOrder(t.Context(), newOrder("pay_1"))

					require.ErrorIs(t, err, apperrors.ErrPaymentAlreadyProcessed, "should return well known error")
					require.Equal(t, first.ID, second.ID, "stored order has to be returned")

					orders, err := storage.Order().ListOrders(t.Context(), seller.ID)
					require.NoError(t, err)
					require.Len(t, orders, 1)
				})
			})

			t.Run("split mismatch rejected", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					o := newOrder("pay_2")
					o.SellerAmount = 9001

					_, err := storage.Order().CreateOrder(t.Context(), o)

					require.Error(t, err, "fee and seller amount must add up to gross")
				})
			})

			t.Run("unknown product", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					o := newOrder("pay_3")
					o.ProductID = uuid.New()

					_, err := storage.Order().CreateOrder(t.Context(), o)

					require.ErrorIs(t, err, apperrors.ErrProductNotFound)
				})
			})
		})
	})

	t.Run("ListOrders", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			seller, product := createSellerWithProduct(t, storage, "seller", "10.00")
			other, otherProduct := createSellerWithProduct(t, storage, "other", "10.00")

			older, err := storage.Order().CreateOrder(t.Context(), models.Order{
				ProductID: product.ID, ProductName: product.Name, SellerID: seller.ID,
				Gross: 1000, PlatformFee: 100, SellerAmount: 900,
				ExternalPaymentID: "pay_old",
				CreatedAt:         time.Now().Add(-time.Hour),
			})
			require.NoError(t, err)
			newer, err := storage.Order().CreateOrder(t.Context(), models.Order{
				ProductID: product.ID, ProductName: product.Name, SellerID: seller.ID,
				Gross: 1000, PlatformFee: 100, SellerAmount: 900,
				ExternalPaymentID: "pay_new",
			})
			require.NoError(t, err)
			_, err = storage.Order().CreateOrder(t.Context(), models.Order{
				ProductID: otherProduct.ID, ProductName: otherProduct.Name, SellerID: other.ID,
				Gross: 1000, PlatformFee: 100, SellerAmount: 900,
				ExternalPaymentID: "pay_other",
			})
			require.NoError(t, err)

			t.Run("newest first and only own", func(t *testing.T) {
				orders, err := storage.Order().ListOrders(t.Context(), seller.ID)

				require.NoError(t, err)
				require.Len(t, orders, 2)
				require.Equal(t, newer.ID, orders[0].ID)
				require.Equal(t, older.ID, orders[1].ID)
			})

			t.Run("no orders", func(t *testing.T) {
				orders, err := storage.Order().ListOrders(t.Context(), uuid.New())

				require.NoError(t, err)
				require.Empty(t, orders)
			})
		})
	})
}

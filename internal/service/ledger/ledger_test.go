package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/models"
	"github.com/nkiryanov/settlement/internal/money"
	"github.com/nkiryanov/settlement/internal/repository"
	"github.com/nkiryanov/settlement/internal/repository/postgres"
	"github.com/nkiryanov/settlement/internal/testutil"
)

func TestLedger(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx := func(t *testing.T, fn func(s *Service, storage repository.Storage)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			fn(NewService(storage, logger.NewNoOpLogger()), storage)
		})
	}

	// Order and its credit, the way payment processing records them
	settle := func(t *testing.T, storage repository.Storage, product models.Product, paymentID string, gross, fee money.Cents) {
		t.Helper()

		_, err := storage.Order().CreateOrder(t.Context(), models.Order{
			ProductID: product.ID, ProductName: product.Name, SellerID: product.SellerID,
			Gross: gross, PlatformFee: fee, SellerAmount: gross - fee,
			ExternalPaymentID: paymentID,
		})
		require.NoError(t, err)
		_, err = storage.Balance().ApplyChange(t.Context(), models.BalanceChange{
			SellerID: product.SellerID, Available: gross - fee, TotalEarned: gross - fee,
		})
		require.NoError(t, err)
	}

	newProduct := func(t *testing.T, storage repository.Storage, username string) models.Product {
		t.Helper()

		seller, err := storage.Seller().CreateSeller(t.Context(), username, "hash")
		require.NoError(t, err)
		product, err := storage.Product().CreateProduct(t.Context(), models.Product{SellerID: seller.ID, Name: "Ebook", Price: 10000})
		require.NoError(t, err)
		return product
	}

	t.Run("GetBalance", func(t *testing.T) {
		inTx(t, func(s *Service, storage repository.Storage) {
			product := newProduct(t, storage, "seller")
			settle(t, storage, product, "pay_1", 10000, 1000)

			balance, err := s.GetBalance(t.Context(), product.SellerID)

			require.NoError(t, err)
			require.Equal(t, money.MustParse("90.00"), balance.Available)
			require.Equal(t, money.MustParse("90.00"), balance.TotalEarned)
		})
	})

	t.Run("GetBalance without activity is zero", func(t *testing.T) {
		inTx(t, func(s *Service, storage repository.Storage) {
			balance, err := s.GetBalance(t.Context(), uuid.New())

			require.NoError(t, err)
			require.Zero(t, balance.Available)
			require.Zero(t, balance.Pending)
			require.Zero(t, balance.TotalEarned)
		})
	})

	t.Run("ListOrders", func(t *testing.T) {
		inTx(t, func(s *Service, storage repository.Storage) {
			product := newProduct(t, storage, "seller")
			settle(t, storage, product, "pay_1", 10000, 1000)
			settle(t, storage, product, "pay_2", 5000, 500)

			orders, err := s.ListOrders(t.Context(), product.SellerID)

			require.NoError(t, err)
			require.Len(t, orders, 2)
		})
	})

	t.Run("Replay", func(t *testing.T) {
		inTx(t, func(s *Service, storage repository.Storage) {
			product := newProduct(t, storage, "seller")
			settle(t, storage, product, "pay_1", 10000, 1000) // +90
			settle(t, storage, product, "pay_2", 5000, 500)   // +45

			completed, err := storage.Withdrawal().CreateWithdrawal(t.Context(), models.Withdrawal{SellerID: product.SellerID, Amount: 3000})
			require.NoError(t, err)
			transferID := "tr_1"
			_, err = storage.Withdrawal().Finish(t.Context(), repository.FinishWithdrawalParams{
				ID: completed.ID, Status: models.WithdrawalCompleted, ProcessedAt: time.Now(), TransferID: &transferID,
			})
			require.NoError(t, err)

			failed, err := storage.Withdrawal().CreateWithdrawal(t.Context(), models.Withdrawal{SellerID: product.SellerID, Amount: 2000})
			require.NoError(t, err)
			_, err = storage.Withdrawal().Finish(t.Context(), repository.FinishWithdrawalParams{
				ID: failed.ID, Status: models.WithdrawalFailed, ProcessedAt: time.Now(),
			})
			require.NoError(t, err)

			_, err = storage.Withdrawal().CreateWithdrawal(t.Context(), models.Withdrawal{SellerID: product.SellerID, Amount: 1000})
			require.NoError(t, err)

			replayed, err := s.Replay(t.Context(), product.SellerID)

			require.NoError(t, err)
			require.Equal(t, money.MustParse("105.00"), replayed.Available, "135 earned - 30 completed")
			require.Equal(t, money.MustParse("10.00"), replayed.Pending, "only the pending one")
			require.Equal(t, money.MustParse("135.00"), replayed.TotalEarned)
		})
	})

	t.Run("Audit", func(t *testing.T) {
		t.Run("consistent", func(t *testing.T) {
			inTx(t, func(s *Service, storage repository.Storage) {
				product := newProduct(t, storage, "seller")
				settle(t, storage, product, "pay_1", 10000, 1000)

				d, err := s.Audit(t.Context(), product.SellerID)

				require.NoError(t, err)
				require.Nil(t, d)
			})
		})

		t.Run("drift detected", func(t *testing.T) {
			inTx(t, func(s *Service, storage repository.Storage) {
				product := newProduct(t, storage, "seller")
				settle(t, storage, product, "pay_1", 10000, 1000)

				// Credit without an order behind it
				_, err := storage.Balance().ApplyChange(t.Context(), models.BalanceChange{SellerID: product.SellerID, Available: 1})
				require.NoError(t, err)

				d, err := s.Audit(t.Context(), product.SellerID)

				require.NoError(t, err)
				require.NotNil(t, d)
				require.Equal(t, money.Cents(9001), d.Stored.Available)
				require.Equal(t, money.Cents(9000), d.Replayed.Available)
			})
		})

		t.Run("AuditAll", func(t *testing.T) {
			inTx(t, func(s *Service, storage repository.Storage) {
				good := newProduct(t, storage, "good")
				settle(t, storage, good, "pay_good", 10000, 1000)

				bad := newProduct(t, storage, "bad")
				settle(t, storage, bad, "pay_bad", 10000, 1000)
				_, err := storage.Balance().ApplyChange(t.Context(), models.BalanceChange{SellerID: bad.SellerID, TotalEarned: 100})
				require.NoError(t, err)

				found, err := s.AuditAll(t.Context())

				require.NoError(t, err)
				require.Len(t, found, 1)
				require.Equal(t, bad.SellerID, found[0].SellerID)
			})
		})
	})
}

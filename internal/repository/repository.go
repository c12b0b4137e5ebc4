package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/settlement/internal/models"
)

type Storage interface {
	Seller() SellerRepo
	Product() ProductRepo
	Order() OrderRepo
	Balance() BalanceRepo
	Withdrawal() WithdrawalRepo
	PayoutAccount() PayoutAccountRepo

	// Run fn in one database transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

type SellerRepo interface {
	// Has to return apperrors.ErrSellerAlreadyExists if username is taken
	CreateSeller(ctx context.Context, username string, hashedPassword string) (models.Seller, error)

	// Has to return apperrors.ErrSellerNotFound if seller not exists
	GetSellerByID(ctx context.Context, id uuid.UUID) (models.Seller, error)
	GetSellerByUsername(ctx context.Context, username string) (models.Seller, error)
}

type ProductRepo interface {
	CreateProduct(ctx context.Context, p models.Product) (models.Product, error)

	// Has to return apperrors.ErrProductNotFound if product not exists
	GetProduct(ctx context.Context, id uuid.UUID) (models.Product, error)
}

type OrderRepo interface {
	// Insert order unless an order with the same external payment id exists
	// On duplicate return the stored order and apperrors.ErrPaymentAlreadyProcessed
	CreateOrder(ctx context.Context, o models.Order) (models.Order, error)

	// Newest first
	ListOrders(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error)
}

type BalanceRepo interface {
	CreateBalance(ctx context.Context, sellerID uuid.UUID) error

	// Missing row is a zero balance. Lock row until transaction end if forUpdate is set
	GetBalance(ctx context.Context, sellerID uuid.UUID, forUpdate bool) (models.Balance, error)

	// Add deltas to seller counters in one statement
	// Has to return apperrors.ErrInsufficientFunds if any counter would become negative
	ApplyChange(ctx context.Context, change models.BalanceChange) (models.Balance, error)

	// Every seller who has a balance row, an order or a withdrawal
	ListSellerIDs(ctx context.Context) ([]uuid.UUID, error)
}

type FinishWithdrawalParams struct {
	ID            uuid.UUID
	Status        models.WithdrawalStatus
	ProcessedAt   time.Time
	TransferID    *string
	FailureReason *string
}

type WithdrawalRepo interface {
	// Has to return apperrors.ErrWithdrawalPending if the seller has an outstanding withdrawal
	CreateWithdrawal(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error)

	// Has to return apperrors.ErrWithdrawalNotFound
	GetWithdrawal(ctx context.Context, id uuid.UUID) (models.Withdrawal, error)

	// Newest first
	ListWithdrawals(ctx context.Context, sellerID uuid.UUID) ([]models.Withdrawal, error)

	// Oldest first, at most limit rows
	ListPending(ctx context.Context, limit int) ([]models.Withdrawal, error)

	// Move withdrawal out of 'pending'. Only one caller may succeed
	// Others get the current row and apperrors.ErrWithdrawalAlreadyProcessed
	Finish(ctx context.Context, arg FinishWithdrawalParams) (models.Withdrawal, error)
}

type PayoutAccountRepo interface {
	// Create or overwrite seller's linked account
	UpsertAccount(ctx context.Context, acc models.LinkedPayoutAccount) (models.LinkedPayoutAccount, error)

	// Has to return apperrors.ErrPayoutAccountNotLinked if seller has no linked account
	GetAccount(ctx context.Context, sellerID uuid.UUID) (models.LinkedPayoutAccount, error)
}

// Package ledger reads seller balances and checks them against the order and withdrawal history.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/models"
	"github.com/nkiryanov/settlement/internal/money"
	"github.com/nkiryanov/settlement/internal/repository"
)

// Stored counters that disagree with the history
type Discrepancy struct {
	SellerID uuid.UUID
	Stored   models.Balance
	Replayed models.Balance
}

type Service struct {
	storage repository.Storage
	logger  logger.Logger
}

func NewService(storage repository.Storage, logger logger.Logger) *Service {
	return &Service{storage: storage, logger: logger}
}

// Seller without any activity has zero balance
func (s *Service) GetBalance(ctx context.Context, sellerID uuid.UUID) (models.Balance, error) {
	return s.storage.Balance().GetBalance(ctx, sellerID, false)
}

func (s *Service) ListOrders(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error) {
	return s.storage.Order().ListOrders(ctx, sellerID)
}

// Recompute balance from orders and withdrawals only, ignoring stored counters
func (s *Service) Replay(ctx context.Context, sellerID uuid.UUID) (models.Balance, error) {
	return replay(ctx, s.storage, sellerID)
}

// Compare stored counters with replayed ones. Nil if they agree
func (s *Service) Audit(ctx context.Context, sellerID uuid.UUID) (*Discrepancy, error) {
	var d *Discrepancy

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		// Every writer updates the balance row, holding its lock keeps history still while we read it
		stored, err := storage.Balance().GetBalance(ctx, sellerID, true)
		if err != nil {
			return err
		}

		replayed, err := replay(ctx, storage, sellerID)
		if err != nil {
			return err
		}

		if !sameCounters(stored, replayed) {
			d = &Discrepancy{SellerID: sellerID, Stored: stored, Replayed: replayed}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit seller %s: %w", sellerID, err)
	}

	if d != nil {
		s.logger.Error("Balance does not match history",
			"seller_id", sellerID,
			"stored_available", d.Stored.Available,
			"replayed_available", d.Replayed.Available,
			"stored_pending", d.Stored.Pending,
			"replayed_pending", d.Replayed.Pending,
			"stored_total_earned", d.Stored.TotalEarned,
			"replayed_total_earned", d.Replayed.TotalEarned,
		)
	}

	return d, nil
}

// Audit every seller with any money activity
func (s *Service) AuditAll(ctx context.Context) ([]Discrepancy, error) {
	ids, err := s.storage.Balance().ListSellerIDs(ctx)
	if err != nil {
		return nil, err
	}

	var found []Discrepancy
	for _, id := range ids {
		d, err := s.Audit(ctx, id)
		if err != nil {
			return found, err
		}
		if d != nil {
			found = append(found, *d)
		}
	}

	s.logger.Info("Ledger audit finished", "sellers", len(ids), "discrepancies", len(found))
	return found, nil
}

func replay(ctx context.Context, storage repository.Storage, sellerID uuid.UUID) (models.Balance, error) {
	b := models.Balance{SellerID: sellerID}

	orders, err := storage.Order().ListOrders(ctx, sellerID)
	if err != nil {
		return b, err
	}
	for _, o := range orders {
		b.TotalEarned += o.SellerAmount
	}

	withdrawals, err := storage.Withdrawal().ListWithdrawals(ctx, sellerID)
	if err != nil {
		return b, err
	}

	var withdrawn money.Cents
	for _, w := range withdrawals {
		switch w.Status {
		case models.WithdrawalCompleted:
			withdrawn += w.Amount
		case models.WithdrawalPending:
			b.Pending += w.Amount
		}
	}

	b.Available = b.TotalEarned - withdrawn
	return b, nil
}

func sameCounters(a, b models.Balance) bool {
	return a.Available == b.Available && a.Pending == b.Pending && a.TotalEarned == b.TotalEarned
}

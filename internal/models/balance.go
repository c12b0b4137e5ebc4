package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/settlement/internal/money"
)

type Balance struct {
	SellerID    uuid.UUID
	Available   money.Cents
	Pending     money.Cents
	TotalEarned money.Cents
	UpdatedAt   time.Time
}

// Balance delta applied atomically to one seller row
type BalanceChange struct {
	SellerID    uuid.UUID
	Available   money.Cents
	Pending     money.Cents
	TotalEarned money.Cents
}

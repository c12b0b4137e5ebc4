package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/settlement/internal/money"
)

// Order is created once per successful external payment and never changed
// Invariant: SellerAmount + PlatformFee == Gross
type Order struct {
	ID                uuid.UUID
	ProductID         uuid.UUID
	ProductName       string
	SellerID          uuid.UUID
	Gross             money.Cents
	PlatformFee       money.Cents
	SellerAmount      money.Cents
	ExternalPaymentID string
	CreatedAt         time.Time
}

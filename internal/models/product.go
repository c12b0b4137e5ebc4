package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/settlement/internal/money"
)

// Product is owned by the catalog; settlement only reads it
type Product struct {
	ID        uuid.UUID
	SellerID  uuid.UUID
	Name      string
	Price     money.Cents
	CreatedAt time.Time
}

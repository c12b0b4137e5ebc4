package models

import (
	"time"

	"github.com/google/uuid"
)

type Seller struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	HashedPassword string
}

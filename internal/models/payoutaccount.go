package models

import (
	"time"

	"github.com/google/uuid"
)

type LinkedPayoutAccount struct {
	SellerID          uuid.UUID
	ExternalAccountID string
	AccessToken       string
	RefreshToken      string
	TokenExpiresAt    *time.Time
	LinkedAt          time.Time
}

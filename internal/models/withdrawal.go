package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/settlement/internal/money"
)

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalFailed
}

type Withdrawal struct {
	ID            uuid.UUID
	SellerID      uuid.UUID
	Amount        money.Cents
	Status        WithdrawalStatus
	RequestedAt   time.Time
	ProcessedAt   *time.Time // nil while pending
	TransferID    *string    // set on completion
	FailureReason *string    // set on failure
}

// Key presented to the payout provider for every attempt of the withdrawal
func (w Withdrawal) IdempotencyKey() string {
	return "withdrawal_" + w.ID.String()
}

package apperrors

import (
	"errors"
)

var (
	ErrValidation = errors.New("validation failed")

	ErrSellerAlreadyExists = errors.New("seller already exists")
	ErrSellerNotFound      = errors.New("seller not found")

	ErrProductNotFound = errors.New("product not found")

	// Duplicate payment notification. Callers treat it as success
	ErrPaymentAlreadyProcessed = errors.New("payment already processed")

	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrBelowMinimum           = errors.New("amount is below minimum withdrawal")
	ErrPayoutAccountNotLinked = errors.New("payout account not linked")

	ErrWithdrawalNotFound         = errors.New("withdrawal not found")
	ErrWithdrawalPending          = errors.New("seller already has a pending withdrawal")
	ErrWithdrawalAlreadyProcessed = errors.New("withdrawal already processed")

	ErrExternalUnavailable = errors.New("payout provider unavailable")
	ErrExternalRejected    = errors.New("payout provider rejected transfer")

	ErrInvalidState        = errors.New("invalid or expired authorization state")
	ErrTokenExchangeFailed = errors.New("token exchange failed")

	ErrInvalidSignature = errors.New("invalid webhook signature")
)

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/settlement/internal/apperrors"
	"github.com/nkiryanov/settlement/internal/handlers/render"
	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/models"
	"github.com/nkiryanov/settlement/internal/money"
)

type withdrawalResponse struct {
	ID            uuid.UUID               `json:"id"`
	Amount        money.Cents             `json:"amount"`
	Status        models.WithdrawalStatus `json:"status"`
	RequestedAt   time.Time               `json:"requested_at"`
	ProcessedAt   *time.Time              `json:"processed_at,omitempty"`
	TransferID    *string                 `json:"transfer_id,omitempty"`
	FailureReason *string                 `json:"failure_reason,omitempty"`
}

func newWithdrawalResponse(w models.Withdrawal) withdrawalResponse {
	return withdrawalResponse{
		ID:            w.ID,
		Amount:        w.Amount,
		Status:        w.Status,
		RequestedAt:   w.RequestedAt,
		ProcessedAt:   w.ProcessedAt,
		TransferID:    w.TransferID,
		FailureReason: w.FailureReason,
	}
}

func handleRequestWithdrawal(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	type request struct {
		Amount money.Cents `json:"amount" validate:"gt=0"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seller, ok := currentSeller(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		withdrawal, err := withdrawalService.Request(r.Context(), seller.ID, data.Amount)

		switch {
		case err == nil:
			render.JSONWithStatus(w, newWithdrawalResponse(withdrawal), http.StatusCreated)
		case errors.Is(err, apperrors.ErrBelowMinimum):
			render.ServiceError(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			render.ServiceError(w, "Insufficient funds", http.StatusPaymentRequired)
		case errors.Is(err, apperrors.ErrWithdrawalPending):
			render.ServiceError(w, "Withdrawal already pending", http.StatusConflict)
		case errors.Is(err, apperrors.ErrPayoutAccountNotLinked):
			render.ServiceError(w, "Payout account not linked", http.StatusPreconditionFailed)
		default:
			l.Error("Failed to request withdrawal", "error", err, "seller_id", seller.ID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleListWithdrawals(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seller, ok := currentSeller(w, r)
		if !ok {
			return
		}

		withdrawals, err := withdrawalService.List(r.Context(), seller.ID)
		if err != nil {
			l.Error("Failed to list withdrawals", "error", err, "seller_id", seller.ID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := make([]withdrawalResponse, 0, len(withdrawals))
		for _, wd := range withdrawals {
			res = append(res, newWithdrawalResponse(wd))
		}
		render.JSON(w, res)
	})
}

func handleGetWithdrawal(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seller, ok := currentSeller(w, r)
		if !ok {
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Withdrawal not found", http.StatusNotFound)
			return
		}

		withdrawal, err := withdrawalService.Get(r.Context(), seller.ID, id)

		switch {
		case err == nil:
			render.JSON(w, newWithdrawalResponse(withdrawal))
		case errors.Is(err, apperrors.ErrWithdrawalNotFound):
			render.ServiceError(w, "Withdrawal not found", http.StatusNotFound)
		default:
			l.Error("Failed to get withdrawal", "error", err, "withdrawal_id", id)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// Drive one of the seller's withdrawals. Completed and failed both answer 200
func handleProcessWithdrawal(withdrawalService withdrawalService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seller, ok := currentSeller(w, r)
		if !ok {
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Withdrawal not found", http.StatusNotFound)
			return
		}

		// Ownership check
		withdrawal, err := withdrawalService.Get(r.Context(), seller.ID, id)
		if err == nil {
			withdrawal, err = withdrawalService.Process(r.Context(), withdrawal.ID)
		}

		switch {
		case err == nil:
			render.JSON(w, newWithdrawalResponse(withdrawal))
		case errors.Is(err, apperrors.ErrWithdrawalNotFound):
			render.ServiceError(w, "Withdrawal not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrWithdrawalAlreadyProcessed):
			render.ServiceError(w, "Withdrawal already processed", http.StatusConflict)
		case errors.Is(err, apperrors.ErrExternalUnavailable):
			render.ServiceError(w, "Payout provider unavailable, try again later", http.StatusServiceUnavailable)
		default:
			l.Error("Failed to process withdrawal", "error", err, "withdrawal_id", id)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

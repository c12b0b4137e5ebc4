package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/nkiryanov/settlement/internal/apperrors"
	"github.com/nkiryanov/settlement/internal/handlers/render"
	"github.com/nkiryanov/settlement/internal/logger"
)

func handleAuthorizePayoutAccount(payoutLinkService payoutLinkService, l logger.Logger) http.Handler {
	type response struct {
		AuthorizationURL string `json:"authorization_url"`
		State            string `json:"state"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seller, ok := currentSeller(w, r)
		if !ok {
			return
		}

		authURL, state, err := payoutLinkService.Begin(r.Context(), seller.ID)
		if err != nil {
			l.Error("Failed to begin payout account linking", "error", err, "seller_id", seller.ID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{AuthorizationURL: authURL, State: state})
	})
}

func handlePayoutAccountCallback(payoutLinkService payoutLinkService, l logger.Logger) http.Handler {
	type request struct {
		Code  string `json:"code" validate:"required"`
		State string `json:"state"`
	}
	type response struct {
		Success           bool   `json:"success"`
		ExternalAccountID string `json:"external_account_id"`
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

		acc, err := payoutLinkService.Complete(r.Context(), seller.ID, data.Code, data.State)

		switch {
		case err == nil:
			render.JSON(w, response{Success: true, ExternalAccountID: acc.ExternalAccountID})
		case errors.Is(err, apperrors.ErrInvalidState):
			render.ServiceError(w, "Invalid or expired state", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrValidation):
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrTokenExchangeFailed):
			render.ServiceError(w, "Payout provider authorization failed", http.StatusBadGateway)
		default:
			l.Error("Failed to complete payout account linking", "error", err, "seller_id", seller.ID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleGetPayoutAccount(payoutLinkService payoutLinkService, l logger.Logger) http.Handler {
	type response struct {
		Linked            bool       `json:"linked"`
		ExternalAccountID string     `json:"external_account_id,omitempty"`
		LinkedAt          *time.Time `json:"linked_at,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seller, ok := currentSeller(w, r)
		if !ok {
			return
		}

		acc, err := payoutLinkService.GetLinked(r.Context(), seller.ID)

		switch {
		case err == nil:
			render.JSON(w, response{Linked: true, ExternalAccountID: acc.ExternalAccountID, LinkedAt: &acc.LinkedAt})
		case errors.Is(err, apperrors.ErrPayoutAccountNotLinked):
			render.JSON(w, response{Linked: false})
		default:
			l.Error("Failed to get payout account", "error", err, "seller_id", seller.ID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

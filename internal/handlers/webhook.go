package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/settlement/internal/apperrors"
	"github.com/nkiryanov/settlement/internal/handlers/render"
	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/service/payment"
)

const (
	SignatureHeader = "X-Webhook-Signature"

	maxWebhookBodySize = 1 << 20
)

// Provider retries everything but 2xx, so only transient failures answer 5xx
func handlePaymentWebhook(paymentService paymentService, l logger.Logger) http.Handler {
	type response struct {
		Success bool            `json:"success"`
		Outcome payment.Outcome `json:"outcome"`
		OrderID *uuid.UUID      `json:"order_id,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
		if err != nil {
			render.ServiceError(w, "Failed to read request body", http.StatusBadRequest)
			return
		}

		res, err := paymentService.Handle(r.Context(), body, r.Header.Get(SignatureHeader))

		switch {
		case err == nil:
			resp := response{Success: true, Outcome: res.Outcome}
			if res.Order.ID != uuid.Nil {
				resp.OrderID = &res.Order.ID
			}
			render.JSON(w, resp)
		case errors.Is(err, apperrors.ErrInvalidSignature):
			render.ServiceError(w, "Invalid signature", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrValidation):
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrProductNotFound):
			render.ServiceError(w, "Product not found", http.StatusNotFound)
		default:
			l.Error("Failed to process payment notification", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

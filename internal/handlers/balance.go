package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/settlement/internal/handlers/render"
	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/money"
)

func handleBalance(ledgerService ledgerService, l logger.Logger) http.Handler {
	type response struct {
		Available   money.Cents `json:"available"`
		Pending     money.Cents `json:"pending"`
		TotalEarned money.Cents `json:"total_earned"`

		// What a new withdrawal may take
		Withdrawable money.Cents `json:"withdrawable"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seller, ok := currentSeller(w, r)
		if !ok {
			return
		}

		balance, err := ledgerService.GetBalance(r.Context(), seller.ID)
		if err != nil {
			l.Error("Failed to get balance", "error", err, "seller_id", seller.ID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{
			Available:    balance.Available,
			Pending:      balance.Pending,
			TotalEarned:  balance.TotalEarned,
			Withdrawable: max(balance.Available-balance.Pending, 0),
		})
	})
}

func handleListOrders(ledgerService ledgerService, l logger.Logger) http.Handler {
	type order struct {
		ID                uuid.UUID   `json:"id"`
		ProductID         uuid.UUID   `json:"product_id"`
		ProductName       string      `json:"product_name"`
		Gross             money.Cents `json:"gross"`
		PlatformFee       money.Cents `json:"platform_fee"`
		SellerAmount      money.Cents `json:"seller_amount"`
		ExternalPaymentID string      `json:"external_payment_id"`
		CreatedAt         time.Time   `json:"created_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seller, ok := currentSeller(w, r)
		if !ok {
			return
		}

		orders, err := ledgerService.ListOrders(r.Context(), seller.ID)
		if err != nil {
			l.Error("Failed to list orders", "error", err, "seller_id", seller.ID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := make([]order, 0, len(orders))
		for _, o := range orders {
			res = append(res, order{
				ID:                o.ID,
				ProductID:         o.ProductID,
				ProductName:       o.ProductName,
				Gross:             o.Gross,
				PlatformFee:       o.PlatformFee,
				SellerAmount:      o.SellerAmount,
				ExternalPaymentID: o.ExternalPaymentID,
				CreatedAt:         o.CreatedAt,
			})
		}
		render.JSON(w, res)
	})
}

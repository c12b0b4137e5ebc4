package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/nkiryanov/settlement/internal/apperrors"
	"github.com/nkiryanov/settlement/internal/handlers/render"
	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/models"
)

type credentials struct {
	Username string `json:"username" validate:"required,min=2,max=50"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func writeToken(w http.ResponseWriter, token models.IssuedToken, code int) {
	w.Header().Set("Authorization", "Bearer "+token.Value)
	render.JSONWithStatus(w, tokenResponse{Token: token.Value, ExpiresAt: token.ExpiresAt}, code)
}

func handleRegister(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[credentials](w, r)
		if err != nil {
			return
		}

		token, err := authService.Register(r.Context(), data.Username, data.Password)

		switch {
		case err == nil:
			writeToken(w, token, http.StatusCreated)
		case errors.Is(err, apperrors.ErrSellerAlreadyExists):
			render.ServiceError(w, "Seller already exists", http.StatusConflict)
		default:
			l.Error("Failed to register seller", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogin(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		token, err := authService.Login(r.Context(), data.Username, data.Password)

		switch {
		case err == nil:
			writeToken(w, token, http.StatusOK)
		case errors.Is(err, apperrors.ErrSellerNotFound):
			render.ServiceError(w, "Invalid username or password", http.StatusUnauthorized)
		default:
			l.Error("Failed to login seller", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

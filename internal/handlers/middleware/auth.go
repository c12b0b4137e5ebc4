package middleware

import (
	"context"
	"net/http"

	"github.com/nkiryanov/settlement/internal/handlers/render"
	"github.com/nkiryanov/settlement/internal/handlers/sellerctx"
	"github.com/nkiryanov/settlement/internal/models"
)

type authService interface {
	Auth(ctx context.Context, r *http.Request) (models.Seller, error)
}

// Put authenticated seller into request context or answer 401
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seller, err := as.Auth(r.Context(), r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := sellerctx.New(r.Context(), seller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

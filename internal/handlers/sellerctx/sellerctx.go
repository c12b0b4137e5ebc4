package sellerctx

import (
	"context"

	"github.com/nkiryanov/settlement/internal/models"
)

type ctxKey string

const sellerKey ctxKey = "seller"

// Create a new context with the seller
func New(ctx context.Context, s models.Seller) context.Context {
	return context.WithValue(ctx, sellerKey, s)
}

// Extract the seller from the context
func FromContext(ctx context.Context) (models.Seller, bool) {
	s, ok := ctx.Value(sellerKey).(models.Seller)
	return s, ok
}

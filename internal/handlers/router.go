package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nkiryanov/settlement/internal/handlers/middleware"
	"github.com/nkiryanov/settlement/internal/handlers/render"
	"github.com/nkiryanov/settlement/internal/handlers/sellerctx"
	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/models"
	"github.com/nkiryanov/settlement/internal/money"
	"github.com/nkiryanov/settlement/internal/service/payment"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	paymentService paymentService,
	ledgerService ledgerService,
	withdrawalService withdrawalService,
	payoutLinkService payoutLinkService,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)

	apiseller := http.NewServeMux()

	apiseller.Handle("POST /register", handleRegister(authService, logger))
	apiseller.Handle("POST /login", handleLogin(authService, logger))

	apiseller.Handle("GET /balance", withAuth(handleBalance(ledgerService, logger)))
	apiseller.Handle("GET /orders", withAuth(handleListOrders(ledgerService, logger)))

	apiseller.Handle("POST /withdrawals", withAuth(handleRequestWithdrawal(withdrawalService, logger)))
	apiseller.Handle("GET /withdrawals", withAuth(handleListWithdrawals(withdrawalService, logger)))
	apiseller.Handle("GET /withdrawals/{id}", withAuth(handleGetWithdrawal(withdrawalService, logger)))
	apiseller.Handle("POST /withdrawals/{id}/process", withAuth(handleProcessWithdrawal(withdrawalService, logger)))

	apiseller.Handle("POST /payout-account/authorize", withAuth(handleAuthorizePayoutAccount(payoutLinkService, logger)))
	apiseller.Handle("POST /payout-account/callback", withAuth(handlePayoutAccountCallback(payoutLinkService, logger)))
	apiseller.Handle("GET /payout-account", withAuth(handleGetPayoutAccount(payoutLinkService, logger)))

	root := http.NewServeMux()
	root.Handle("POST /api/webhooks/payments", handlePaymentWebhook(paymentService, logger))
	root.Handle("/api/seller/", http.StripPrefix("/api/seller", apiseller))
	root.Handle("GET /metrics", promhttp.Handler())

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Has to return apperrors.ErrSellerAlreadyExists if username is taken
	Register(ctx context.Context, username string, password string) (models.IssuedToken, error)

	// Has to return apperrors.ErrSellerNotFound if username or password is wrong
	Login(ctx context.Context, username string, password string) (models.IssuedToken, error)

	// Get request and return seller if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.Seller, error)
}

type paymentService interface {
	// Raw notification body and its signature header
	Handle(ctx context.Context, body []byte, signature string) (payment.Result, error)
}

type ledgerService interface {
	GetBalance(ctx context.Context, sellerID uuid.UUID) (models.Balance, error)
	ListOrders(ctx context.Context, sellerID uuid.UUID) ([]models.Order, error)
}

type withdrawalService interface {
	Request(ctx context.Context, sellerID uuid.UUID, amount money.Cents) (models.Withdrawal, error)
	Process(ctx context.Context, id uuid.UUID) (models.Withdrawal, error)
	List(ctx context.Context, sellerID uuid.UUID) ([]models.Withdrawal, error)

	// Has to return apperrors.ErrWithdrawalNotFound for withdrawal of another seller
	Get(ctx context.Context, sellerID uuid.UUID, id uuid.UUID) (models.Withdrawal, error)
}

type payoutLinkService interface {
	Begin(ctx context.Context, sellerID uuid.UUID) (authURL string, state string, err error)
	Complete(ctx context.Context, sellerID uuid.UUID, code string, state string) (models.LinkedPayoutAccount, error)
	GetLinked(ctx context.Context, sellerID uuid.UUID) (models.LinkedPayoutAccount, error)
}

// Seller put into context by auth middleware
// Writes 500 if it is missing: route was registered without middleware
func currentSeller(w http.ResponseWriter, r *http.Request) (models.Seller, bool) {
	seller, ok := sellerctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
	}
	return seller, ok
}

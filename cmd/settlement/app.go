package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/nkiryanov/settlement/internal/db"
	"github.com/nkiryanov/settlement/internal/handlers"
	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/money"
	"github.com/nkiryanov/settlement/internal/nonce"
	"github.com/nkiryanov/settlement/internal/repository/postgres"
	"github.com/nkiryanov/settlement/internal/service/auth"
	"github.com/nkiryanov/settlement/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/settlement/internal/service/ledger"
	"github.com/nkiryanov/settlement/internal/service/payment"
	"github.com/nkiryanov/settlement/internal/service/payoutlink"
	"github.com/nkiryanov/settlement/internal/service/transfer"
	"github.com/nkiryanov/settlement/internal/service/withdrawal"
	"github.com/nkiryanov/settlement/internal/service/withdrawalprocessor"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	// Nil when background processing is disabled
	processor *withdrawalprocessor.Processor

	pool   *pgxpool.Pool
	redis  *redis.Client
	logger logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	feeRate, err := money.ParseRate(c.FeeRate)
	if err != nil {
		return nil, err
	}
	minWithdrawal, err := money.Parse(c.MinWithdrawal)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum withdrawal: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	rdb, err := nonce.Connect(ctx, c.RedisURL)
	if err != nil {
		pool.Close()
		return nil, err
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, pool: pool, redis: rdb, logger: logger}
	if err := app.wire(c, feeRate, minWithdrawal); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (s *ServerApp) wire(c *Config, feeRate decimal.Decimal, minWithdrawal money.Cents) error {
	storage := postgres.NewStorage(s.pool)

	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey})
	if err != nil {
		return fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	authService, err := auth.NewService(auth.Config{}, tokenManager, storage)
	if err != nil {
		return fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	paymentService, err := payment.NewProcessor(payment.Config{FeeRate: &feeRate, WebhookSecret: c.WebhookSecret}, storage, s.logger)
	if err != nil {
		return fmt.Errorf("error while creating payment processor. Err: %w", err)
	}

	transferClient, err := transfer.NewClient(transfer.Config{
		BaseURL:  c.PayoutAPIURL,
		APIKey:   c.PayoutAPIKey,
		OriginID: c.PayoutOriginID,
		Timeout:  c.TransferTimeout,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("error while creating transfer client. Err: %w", err)
	}
	withdrawalService := withdrawal.NewService(withdrawal.Config{MinAmount: minWithdrawal}, storage, transferClient, s.logger)

	payoutLinkService, err := payoutlink.NewService(payoutlink.Config{
		ClientID:     c.OAuthClientID,
		ClientSecret: c.OAuthClientSecret,
		AuthURL:      c.OAuthAuthURL,
		TokenURL:     c.OAuthTokenURL,
		RedirectURL:  c.OAuthRedirectURL,
		APIBaseURL:   c.PayoutAPIURL,
	}, nonce.NewStore(s.redis, payoutlink.StateNamespace), storage, s.logger)
	if err != nil {
		return fmt.Errorf("error while creating payout link service. Err: %w", err)
	}

	s.Handler = handlers.NewRouter(
		authService,
		paymentService,
		ledger.NewService(storage, s.logger),
		withdrawalService,
		payoutLinkService,
		s.logger,
	)

	if c.ProcessInterval > 0 {
		s.processor = withdrawalprocessor.New(withdrawalprocessor.Config{
			Workers:  c.Workers,
			Interval: c.ProcessInterval,
		}, withdrawalService, s.logger)
	}

	return nil
}

// Run http server and withdrawal processor until context is cancelled or one of them fails
func (s *ServerApp) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.serve(ctx)
	})

	if s.processor != nil {
		g.Go(func() error {
			<-s.processor.Run(ctx)
			return nil
		})
	}

	return g.Wait()
}

// serve starts http server and closes gracefully on context cancellation
func (s *ServerApp) serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *ServerApp) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/repository/postgres"
	"github.com/nkiryanov/settlement/internal/service/auth"
	"github.com/nkiryanov/settlement/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/settlement/internal/service/ledger"
	"github.com/nkiryanov/settlement/internal/testutil"
)

func Test_AuthHandlers(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Run http server with production auth and ledger services
	withTx := func(dbpool *pgxpool.Pool, t *testing.T, fn func(url string, auth *auth.AuthService)) {
		testutil.InTx(dbpool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)

			tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret", AccessTTL: time.Hour})
			require.NoError(t, err, "token manager should be created without errors")

			s, err := auth.NewService(auth.Config{Hasher: auth.BcryptHasher{Cost: bcrypt.MinCost}}, tokenManager, storage)
			require.NoError(t, err, "auth service starting error", err)

			router := NewRouter(s, nil, ledger.NewService(storage, logger.NewNoOpLogger()), nil, nil, logger.NewNoOpLogger())
			srv := httptest.NewServer(router)
			defer srv.Close()

			fn(srv.URL, s)
		})
	}

	post := func(t *testing.T, url string, data string) (*http.Response, string) {
		t.Helper()

		resp, err := http.Post(url, "application/json", strings.NewReader(data))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(body)
	}

	t.Run("register ok", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, _ *auth.AuthService) {
			resp, body := post(t, url+"/api/seller/register", `{"username": "nk", "password": "StrongEnoughPassword"}`)

			require.Equalf(t, http.StatusCreated, resp.StatusCode, "not expected code. Body: %s", body)

			var token struct {
				Token     string    `json:"token"`
				ExpiresAt time.Time `json:"expires_at"`
			}
			require.NoError(t, json.Unmarshal([]byte(body), &token))
			require.NotEmpty(t, token.Token)
			require.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, time.Minute)
			require.Equal(t, "Bearer "+token.Token, resp.Header.Get("Authorization"))
		})
	})

	t.Run("registered seller sees zero balance", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, _ *auth.AuthService) {
			resp, _ := post(t, url+"/api/seller/register", `{"username": "nk", "password": "StrongEnoughPassword"}`)
			require.Equal(t, http.StatusCreated, resp.StatusCode)

			req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url+"/api/seller/balance", nil)
			require.NoError(t, err)
			req.Header.Set("Authorization", resp.Header.Get("Authorization"))
			balanceResp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer func() { _ = balanceResp.Body.Close() }()
			body, err := io.ReadAll(balanceResp.Body)
			require.NoError(t, err)

			require.Equalf(t, http.StatusOK, balanceResp.StatusCode, "not expected code. Body: %s", string(body))
			require.JSONEq(t, `{"available": 0.00, "pending": 0.00, "total_earned": 0.00, "withdrawable": 0.00}`, string(body))
		})
	})

	t.Run("register existed seller fails", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			_, err := s.Register(t.Context(), "nk", "StrongEnoughPassword")
			require.NoError(t, err)

			resp, body := post(t, url+"/api/seller/register", `{"username": "nk", "password": "StrongEnoughPassword"}`)

			require.Equalf(t, http.StatusConflict, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Seller already exists"
				}`, body)
		})
	})

	t.Run("register weak password fails", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, _ *auth.AuthService) {
			resp, body := post(t, url+"/api/seller/register", `{"username": "nk", "password": "short"}`)

			require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "validation_failed",
					"message": "Request validation failed",
					"fields": {"password": "Value is too short (minimum 8)"}
				}`, body)
		})
	})

	t.Run("login ok", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			_, err := s.Register(t.Context(), "nk", "StrongEnoughPassword")
			require.NoError(t, err)

			resp, body := post(t, url+"/api/seller/login", `{"username": "nk", "password": "StrongEnoughPassword"}`)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.Contains(t, resp.Header.Get("Authorization"), "Bearer ")
		})
	})

	t.Run("login failed", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			_, err := s.Register(t.Context(), "nk", "StrongEnoughPassword")
			require.NoError(t, err)

			resp, body := post(t, url+"/api/seller/login", `{"username": "nk", "password": "WrongPassword"}`)

			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Invalid username or password"
				}`, body)
			require.Empty(t, resp.Header.Get("Authorization"), "Authorization header should not be set")
		})
	})
}

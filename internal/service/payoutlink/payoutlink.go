// Package payoutlink links a seller to an account at the payout provider with the OAuth2
// authorization code flow.
package payoutlink

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/nkiryanov/settlement/internal/apperrors"
	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/models"
	"github.com/nkiryanov/settlement/internal/nonce"
	"github.com/nkiryanov/settlement/internal/repository"
)

const (
	StateNamespace = "oauth_state"

	defaultStateTTL = 10 * time.Minute
	defaultTimeout  = 10 * time.Second
	mePath          = "/api/v1/me"
	stateBytes      = 32
)

// Put must not overwrite live key. Take must return nonce.ErrNotFound for missing or expired key
type NonceStore interface {
	Put(ctx context.Context, key string, value string, ttl time.Duration) error
	Take(ctx context.Context, key string) (string, error)
}

type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string

	// Provider API, serves /api/v1/me
	APIBaseURL string

	StateTTL time.Duration
	Timeout  time.Duration
}

type Service struct {
	oauth    *oauth2.Config
	apiURL   string
	stateTTL time.Duration
	client   *http.Client

	nonces  NonceStore
	storage repository.Storage
	logger  logger.Logger
}

func NewService(cfg Config, nonces NonceStore, storage repository.Storage, logger logger.Logger) (*Service, error) {
	if cfg.ClientID == "" || cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.APIBaseURL == "" {
		return nil, errors.New("payout link: client id, auth url, token url and api base url are required")
	}
	if cfg.StateTTL == 0 {
		cfg.StateTTL = defaultStateTTL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL:   strings.TrimRight(cfg.APIBaseURL, "/"),
		stateTTL: cfg.StateTTL,
		client:   &http.Client{Timeout: cfg.Timeout},
		nonces:   nonces,
		storage:  storage,
		logger:   logger,
	}, nil
}

// Begin issues one-time state bound to the seller and returns where to send the seller
func (s *Service) Begin(ctx context.Context, sellerID uuid.UUID) (authURL string, state string, err error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate state: %w", err)
	}
	state = base64.RawURLEncoding.EncodeToString(b)

	if err := s.nonces.Put(ctx, state, sellerID.String(), s.stateTTL); err != nil {
		return "", "", fmt.Errorf("store state: %w", err)
	}

	s.logger.Info("Payout account linking started", "seller_id", sellerID)
	return s.oauth.AuthCodeURL(state), state, nil
}

// Complete consumes the state, exchanges the code and stores the linked account
// State is single use: it is gone even if the exchange fails
func (s *Service) Complete(ctx context.Context, sellerID uuid.UUID, code string, state string) (models.LinkedPayoutAccount, error) {
	var acc models.LinkedPayoutAccount
	l := s.logger.With("seller_id", sellerID)

	if state == "" {
		return acc, apperrors.ErrInvalidState
	}
	if code == "" {
		return acc, fmt.Errorf("%w: code is required", apperrors.ErrValidation)
	}

	owner, err := s.nonces.Take(ctx, state)
	switch {
	case errors.Is(err, nonce.ErrNotFound):
		l.Info("Unknown or expired link state")
		return acc, apperrors.ErrInvalidState
	case err != nil:
		return acc, fmt.Errorf("take state: %w", err)
	case owner != sellerID.String():
		l.Warn("Link state belongs to another seller")
		return acc, apperrors.ErrInvalidState
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		l.Warn("Code exchange failed", "error", err)
		return acc, fmt.Errorf("%w: %w", apperrors.ErrTokenExchangeFailed, err)
	}

	externalID, err := s.fetchAccountID(ctx, token)
	if err != nil {
		l.Warn("Fetching provider account failed", "error", err)
		return acc, fmt.Errorf("%w: %w", apperrors.ErrTokenExchangeFailed, err)
	}

	acc = models.LinkedPayoutAccount{
		SellerID:          sellerID,
		ExternalAccountID: externalID,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		acc.TokenExpiresAt = &token.Expiry
	}

	acc, err = s.storage.PayoutAccount().UpsertAccount(ctx, acc)
	if err != nil {
		return models.LinkedPayoutAccount{}, err
	}

	l.Info("Payout account linked", "external_account_id", acc.ExternalAccountID)
	return withoutTokens(acc), nil
}

// GetLinked returns seller's account with tokens stripped
// Returns apperrors.ErrPayoutAccountNotLinked if seller never linked one
func (s *Service) GetLinked(ctx context.Context, sellerID uuid.UUID) (models.LinkedPayoutAccount, error) {
	acc, err := s.storage.PayoutAccount().GetAccount(ctx, sellerID)
	if err != nil {
		return models.LinkedPayoutAccount{}, err
	}
	return withoutTokens(acc), nil
}

func (s *Service) fetchAccountID(ctx context.Context, token *oauth2.Token) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+mePath, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("me endpoint answered %d", resp.StatusCode)
	}

	var me struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return "", fmt.Errorf("decode me response: %w", err)
	}
	if me.ID == "" {
		return "", errors.New("me response has no account id")
	}
	return me.ID, nil
}

func withoutTokens(acc models.LinkedPayoutAccount) models.LinkedPayoutAccount {
	acc.AccessToken = ""
	acc.RefreshToken = ""
	return acc
}

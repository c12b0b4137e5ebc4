// Package transfer calls the payout provider to move money to a seller's account.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nkiryanov/settlement/internal/apperrors"
	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/metrics"
	"github.com/nkiryanov/settlement/internal/money"
)

const (
	CodeRejected    = "rejected"
	CodeUnavailable = "unavailable"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultCurrency   = "usd"
	defaultRetryAfter = 60 * time.Second
	transfersPath     = "/api/v1/transfers"

	// Enough for any provider error message
	maxErrorBodySize = 4 << 10
)

// Error wraps apperrors.ErrExternalRejected or apperrors.ErrExternalUnavailable
type Error struct {
	Code       string
	StatusCode int // zero when no response received
	Reason     string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %s, status: %d, reason: %s, retry_after: %s, error: %v", e.Code, e.StatusCode, e.Reason, e.RetryAfter, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func rejected(status int, reason string) *Error {
	return &Error{
		Code:       CodeRejected,
		StatusCode: status,
		Reason:     reason,
		Err:        apperrors.ErrExternalRejected,
	}
}

func unavailable(status int, reason string, retryAfter time.Duration, cause error) *Error {
	err := apperrors.ErrExternalUnavailable
	if cause != nil {
		err = fmt.Errorf("%w: %w", apperrors.ErrExternalUnavailable, cause)
	}
	return &Error{
		Code:       CodeUnavailable,
		StatusCode: status,
		Reason:     reason,
		RetryAfter: retryAfter,
		Err:        err,
	}
}

type Request struct {
	DestinationID  string
	Amount         money.Cents
	IdempotencyKey string
	Notes          string
}

type Result struct {
	TransferID string
}

type Config struct {
	// Provider base url, like https://api.example.com
	BaseURL string

	// Platform API key, sent as bearer token
	APIKey string

	// Platform account money is sent from
	OriginID string

	// Default 'usd'
	Currency string

	// Bound for a single call. Default 10s
	Timeout time.Duration
}

type Client struct {
	baseURL  string
	apiKey   string
	originID string
	currency string
	timeout  time.Duration

	client *http.Client
	logger logger.Logger
}

func NewClient(cfg Config, logger logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("transfer base url must not be empty")
	}
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		originID: cfg.OriginID,
		currency: cfg.Currency,
		timeout:  cfg.Timeout,
		client:   &http.Client{},
		logger:   logger,
	}, nil
}

type transferBody struct {
	Amount         money.Cents `json:"amount"`
	Currency       string      `json:"currency"`
	DestinationID  string      `json:"destination_id"`
	OriginID       string      `json:"origin_id"`
	Notes          string      `json:"notes,omitempty"`
	IdempotencyKey string      `json:"idempotency_key"`
}

// Transfer money to the destination account
// Safe to repeat with the same idempotency key: provider executes it at most once
func (c *Client) Transfer(ctx context.Context, r Request) (Result, error) {
	started := time.Now()

	res, err := c.transfer(ctx, r)

	var trErr *Error
	switch {
	case err == nil:
		metrics.TransferObserved(metrics.OutcomeSuccess, started)
	case errors.As(err, &trErr) && trErr.Code == CodeRejected:
		metrics.TransferObserved(metrics.OutcomeRejected, started)
	default:
		metrics.TransferObserved(metrics.OutcomeUnavailable, started)
	}

	return res, err
}

func (c *Client) transfer(ctx context.Context, r Request) (Result, error) {
	var res Result

	body, err := json.Marshal(transferBody{
		Amount:         r.Amount,
		Currency:       c.currency,
		DestinationID:  r.DestinationID,
		OriginID:       c.originID,
		Notes:          r.Notes,
		IdempotencyKey: r.IdempotencyKey,
	})
	if err != nil {
		return res, fmt.Errorf("failed to encode transfer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transfersPath, bytes.NewReader(body))
	if err != nil {
		return res, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", r.IdempotencyKey)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("Transfer request failed", "error", err, "idempotency_key", r.IdempotencyKey, "timeout", isTimeout(err))
		return res, unavailable(0, "request failed", 0, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return c.processSuccess(resp, r)
	case resp.StatusCode == http.StatusTooManyRequests:
		return res, c.processTooManyRequests(resp)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		reason := readReason(resp.Body)
		c.logger.Warn("Transfer provider unavailable", "status_code", resp.StatusCode, "reason", reason, "idempotency_key", r.IdempotencyKey)
		return res, unavailable(resp.StatusCode, reason, 0, nil)
	default:
		reason := readReason(resp.Body)
		c.logger.Warn("Transfer rejected", "status_code", resp.StatusCode, "reason", reason, "idempotency_key", r.IdempotencyKey)
		return res, rejected(resp.StatusCode, reason)
	}
}

func (c *Client) processSuccess(resp *http.Response, r Request) (Result, error) {
	var payload struct {
		ID string `json:"id"`
	}

	err := json.NewDecoder(resp.Body).Decode(&payload)
	if err != nil || payload.ID == "" {
		// Money may have moved. Keep the withdrawal retryable: the same key returns the same transfer
		c.logger.Error("Transfer accepted but response unreadable", "error", err, "idempotency_key", r.IdempotencyKey)
		return Result{}, unavailable(resp.StatusCode, "unreadable success response", 0, err)
	}

	c.logger.Debug("Transfer done", "transfer_id", payload.ID, "idempotency_key", r.IdempotencyKey)
	return Result{TransferID: payload.ID}, nil
}

func (c *Client) processTooManyRequests(resp *http.Response) error {
	retryAfter := defaultRetryAfter

	seconds, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After")))
	if err == nil && seconds >= 0 {
		retryAfter = time.Duration(seconds) * time.Second
	}

	c.logger.Warn("Transfer provider throttled", "retry_after", retryAfter)
	return unavailable(resp.StatusCode, "rate limited", retryAfter, nil)
}

// Best effort: provider error message or the raw body
func readReason(body io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil || len(b) == 0 {
		return ""
	}

	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if json.Unmarshal(b, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}

		var nested struct {
			Message string `json:"message"`
		}
		var plain string
		switch {
		case json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "":
			return nested.Message
		case json.Unmarshal(payload.Error, &plain) == nil && plain != "":
			return plain
		}
	}

	return strings.TrimSpace(string(b))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}

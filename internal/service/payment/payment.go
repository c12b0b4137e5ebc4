// Package payment turns payment provider notifications into orders and seller credits.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/settlement/internal/apperrors"
	"github.com/nkiryanov/settlement/internal/logger"
	"github.com/nkiryanov/settlement/internal/metrics"
	"github.com/nkiryanov/settlement/internal/models"
	"github.com/nkiryanov/settlement/internal/money"
	"github.com/nkiryanov/settlement/internal/repository"
)

const EventPaymentSucceeded = "payment.succeeded"

var defaultFeeRate = decimal.RequireFromString("0.10")

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	ID          string       `json:"id"`
	Currency    string       `json:"currency"`
	FinalAmount *money.Cents `json:"final_amount"`
	Metadata    struct {
		ProductID string `json:"product_id"`
	} `json:"metadata"`
}

type Result struct {
	Outcome Outcome
	Order   models.Order
}

type Config struct {
	// Platform share of every payment, within [0, 1]. 0.10 if nil
	FeeRate *decimal.Decimal

	// Signature of every notification is checked if set
	WebhookSecret string
}

type Processor struct {
	feeRate decimal.Decimal
	secret  []byte

	storage repository.Storage
	logger  logger.Logger
}

func NewProcessor(cfg Config, storage repository.Storage, logger logger.Logger) (*Processor, error) {
	feeRate := defaultFeeRate
	if cfg.FeeRate != nil {
		feeRate = *cfg.FeeRate
	}
	if feeRate.IsNegative() || feeRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fee rate %s must be between 0 and 1", feeRate)
	}

	return &Processor{
		feeRate: feeRate,
		secret:  []byte(cfg.WebhookSecret),
		storage: storage,
		logger:  logger,
	}, nil
}

// Handle raw notification as received from provider: check signature, decode and process
func (p *Processor) Handle(ctx context.Context, body []byte, signature string) (Result, error) {
	if err := p.VerifySignature(body, signature); err != nil {
		metrics.WebhookEvent(metrics.OutcomeRejected)
		p.logger.Warn("Payment notification signature mismatch")
		return Result{}, err
	}

	// Only the type is read first: other event kinds carry data of any shape and are never an error
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		metrics.WebhookEvent(metrics.OutcomeRejected)
		return Result{}, fmt.Errorf("%w: malformed notification: %w", apperrors.ErrValidation, err)
	}

	ev := Event{Type: envelope.Type}
	if ev.Type != EventPaymentSucceeded {
		return p.Process(ctx, ev)
	}

	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &ev.Data); err != nil {
			metrics.WebhookEvent(metrics.OutcomeRejected)
			return Result{}, fmt.Errorf("%w: malformed payment data: %w", apperrors.ErrValidation, err)
		}
	}

	return p.Process(ctx, ev)
}

// Hex encoded HMAC-SHA256 of the body, optionally prefixed with 'sha256='
// Always ok when no secret configured
func (p *Processor) VerifySignature(body []byte, signature string) error {
	if len(p.secret) == 0 {
		return nil
	}

	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil || len(got) == 0 {
		return apperrors.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, p.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return apperrors.ErrInvalidSignature
	}

	return nil
}

// Process decoded notification
// Repeated delivery of the same payment is a success with OutcomeDuplicate and the stored order
func (p *Processor) Process(ctx context.Context, ev Event) (Result, error) {
	l := p.logger.With("payment_id", ev.Data.ID, "type", ev.Type)

	if ev.Type != EventPaymentSucceeded {
		metrics.WebhookEvent(metrics.OutcomeIgnored)
		l.Info("Payment notification ignored")
		return Result{Outcome: OutcomeIgnored}, nil
	}

	productID, gross, err := p.validate(ev)
	if err != nil {
		metrics.WebhookEvent(metrics.OutcomeRejected)
		l.Warn("Payment notification rejected", "error", err)
		return Result{}, err
	}

	product, err := p.storage.Product().GetProduct(ctx, productID)
	if err != nil {
		metrics.WebhookEvent(metrics.OutcomeRejected)
		l.Warn("Payment for unknown product", "product_id", productID, "error", err)
		return Result{}, err
	}

	fee, sellerAmount := money.SplitFee(gross, p.feeRate)
	order := models.Order{
		ProductID:         product.ID,
		ProductName:       product.Name,
		SellerID:          product.SellerID,
		Gross:             gross,
		PlatformFee:       fee,
		SellerAmount:      sellerAmount,
		ExternalPaymentID: ev.Data.ID,
	}

	var balance models.Balance
	err = p.storage.InTx(ctx, func(storage repository.Storage) error {
		order, err = storage.Order().CreateOrder(ctx, order)
		if err != nil {
			return err
		}

		balance, err = storage.Balance().ApplyChange(ctx, models.BalanceChange{
			SellerID:    order.SellerID,
			Available:   order.SellerAmount,
			TotalEarned: order.SellerAmount,
		})
		return err
	})

	switch {
	case err == nil:
		metrics.WebhookEvent(metrics.OutcomeProcessed)
		metrics.OrderSettled(order.PlatformFee, order.SellerAmount)
		l.Info("Payment settled",
			"order_id", order.ID,
			"seller_id", order.SellerID,
			"gross", order.Gross,
			"platform_fee", order.PlatformFee,
			"seller_amount", order.SellerAmount,
			"available", balance.Available,
		)
		return Result{Outcome: OutcomeProcessed, Order: order}, nil

	case errors.Is(err, apperrors.ErrPaymentAlreadyProcessed):
		metrics.WebhookEvent(metrics.OutcomeDuplicate)
		l.Info("Payment already settled", "order_id", order.ID)
		return Result{Outcome: OutcomeDuplicate, Order: order}, nil

	default:
		metrics.WebhookEvent(metrics.OutcomeFailed)
		l.Error("Payment settlement failed", "error", err, "seller_id", order.SellerID, "gross", order.Gross)
		return Result{}, fmt.Errorf("settle payment %s: %w", ev.Data.ID, err)
	}
}

func (p *Processor) validate(ev Event) (uuid.UUID, money.Cents, error) {
	if ev.Data.ID == "" {
		return uuid.Nil, 0, fmt.Errorf("%w: missing payment id", apperrors.ErrValidation)
	}
	if ev.Data.Metadata.ProductID == "" {
		return uuid.Nil, 0, fmt.Errorf("%w: missing product_id", apperrors.ErrValidation)
	}
	if ev.Data.FinalAmount == nil || *ev.Data.FinalAmount <= 0 {
		return uuid.Nil, 0, fmt.Errorf("%w: final_amount must be positive", apperrors.ErrValidation)
	}

	// Not an id of ours, so there is no such product
	productID, err := uuid.Parse(ev.Data.Metadata.ProductID)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("%w: %q", apperrors.ErrProductNotFound, ev.Data.Metadata.ProductID)
	}

	return productID, *ev.Data.FinalAmount, nil
}

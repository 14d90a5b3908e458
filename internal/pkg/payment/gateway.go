// Package payment verifies inbound payment notifications and turns them into
// trusted payment events.
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

	"github.com/ManuelReschke/NumeroFox/app/models"
	"github.com/ManuelReschke/NumeroFox/app/repository"
	"github.com/ManuelReschke/NumeroFox/internal/pkg/env"
)

var (
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrMalformedEvent   = errors.New("malformed payment event")
	// ErrDuplicatePayment means the payment reference already settled another order.
	ErrDuplicatePayment = errors.New("payment reference already used by another order")
	// ErrIgnoredEvent marks well-formed notifications that do not confirm a payment.
	ErrIgnoredEvent = errors.New("payment event does not confirm a payment")
)

const (
	StatusSucceeded = "succeeded"
	SignatureHeader = "X-Payment-Signature"
	EventIDHeader   = "X-Payment-Event-Id"
)

// RawEvent is an unverified notification as received over HTTP.
type RawEvent struct {
	Body      []byte
	Signature string
}

// Event is a verified payment confirmation.
type Event struct {
	EventID    string `json:"event_id"`
	OrderID    string `json:"order_id"`
	PaymentRef string `json:"payment_ref"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
}

// PaymentRefLookup is the read access the gateway needs to detect a reference
// that already settled a different order.
type PaymentRefLookup interface {
	GetByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error)
}

type Config struct {
	Provider      string
	WebhookSecret string
}

func LoadConfig() (Config, error) {
	cfg := Config{
		Provider:      env.GetEnv("PAYMENT_PROVIDER", "telegram"),
		WebhookSecret: env.GetEnv("PAYMENT_WEBHOOK_SECRET", ""),
	}
	if cfg.WebhookSecret == "" {
		return cfg, errors.New("PAYMENT_WEBHOOK_SECRET is required")
	}
	return cfg, nil
}

type Gateway struct {
	provider string
	secret   []byte
	lookup   PaymentRefLookup
}

func NewGateway(cfg Config, lookup PaymentRefLookup) *Gateway {
	return &Gateway{provider: cfg.Provider, secret: []byte(cfg.WebhookSecret), lookup: lookup}
}

func (g *Gateway) Provider() string {
	return g.provider
}

// Verify authenticates raw and decodes it. It never mutates orders.
func (g *Gateway) Verify(ctx context.Context, raw RawEvent) (*Event, error) {
	if len(g.secret) == 0 || !ValidSignature(raw.Body, raw.Signature, g.secret) {
		return nil, ErrInvalidSignature
	}

	var ev Event
	if err := json.Unmarshal(raw.Body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	ev.EventID = strings.TrimSpace(ev.EventID)
	ev.OrderID = strings.TrimSpace(ev.OrderID)
	ev.PaymentRef = strings.TrimSpace(ev.PaymentRef)
	ev.Currency = strings.ToUpper(strings.TrimSpace(ev.Currency))
	if ev.Status == "" {
		ev.Status = StatusSucceeded
	}
	switch {
	case ev.EventID == "":
		return nil, fmt.Errorf("%w: event_id is required", ErrMalformedEvent)
	case ev.OrderID == "":
		return nil, fmt.Errorf("%w: order_id is required", ErrMalformedEvent)
	case ev.PaymentRef == "":
		return nil, fmt.Errorf("%w: payment_ref is required", ErrMalformedEvent)
	case ev.Amount <= 0:
		return nil, fmt.Errorf("%w: amount must be positive", ErrMalformedEvent)
	}
	if ev.Status != StatusSucceeded {
		return &ev, ErrIgnoredEvent
	}

	existing, err := g.lookup.GetByPaymentRef(ctx, ev.PaymentRef)
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
	case err != nil:
		return nil, fmt.Errorf("lookup payment ref: %w", err)
	case existing.ID != ev.OrderID && existing.Code != ev.OrderID:
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePayment, ev.PaymentRef)
	}
	return &ev, nil
}

// Sign returns the hex HMAC-SHA256 of body, as expected in SignatureHeader.
func Sign(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidSignature compares in constant time. A "sha256=" prefix is accepted.
func ValidSignature(body []byte, signature string, secret []byte) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

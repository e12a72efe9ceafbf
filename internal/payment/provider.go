// Package payment abstracts the Ethiopian payment gateways behind one
// Provider interface. Concrete clients live in subpackages; adapters here
// translate their wire types into the gateway-neutral ones the handlers use.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrChargeNotSuccessful marks a webhook that authenticated fine but does
// not report a successful charge. Receivers acknowledge these so the
// gateway stops redelivering; the order stays PENDING.
var ErrChargeNotSuccessful = errors.New("payment: charge not successful")

// ProviderName identifies a payment gateway.
type ProviderName string

const (
	ProviderChapa    ProviderName = "chapa"
	ProviderTelebirr ProviderName = "telebirr"
	ProviderCBEBirr  ProviderName = "cbebirr"
)

// CheckoutRequest carries everything a gateway needs to start a payment for
// a pending order. OrderID doubles as the gateway transaction reference so
// webhooks can be routed back without a lookup table.
type CheckoutRequest struct {
	OrderID   string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Email     string          `json:"email,omitempty"`
	Phone     string          `json:"phone,omitempty"`
	FirstName string          `json:"first_name,omitempty"`
	LastName  string          `json:"last_name,omitempty"`
	ReturnURL string          `json:"return_url,omitempty"`
}

// Confirmation is a verified statement from a gateway that an order was
// paid. Handlers feed it to the purchase orchestrator.
type Confirmation struct {
	OrderID   string          `json:"order_id"`
	Provider  ProviderName    `json:"provider"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

// Provider is the common surface of all payment gateways.
type Provider interface {
	Name() ProviderName

	// Initialize starts a hosted checkout and returns its URL.
	Initialize(ctx context.Context, req *CheckoutRequest) (string, error)

	// Verify re-checks a transaction directly against the gateway. Used to
	// reconcile orders whose webhook never arrived.
	Verify(ctx context.Context, orderID string) (*Confirmation, error)

	// ParseWebhook authenticates a webhook payload and extracts the
	// confirmation. The error is non-nil for bad signatures and for
	// payloads that do not represent a successful charge.
	ParseWebhook(payload []byte, signature string) (*Confirmation, error)

	Close(ctx context.Context) error
}

package domain

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrInvalidSignature    = errors.New("invalid_signature")
	ErrInvalidPayload      = errors.New("invalid_payload")
	ErrInvalidEvent        = errors.New("invalid_event")
	ErrEventIgnored        = errors.New("event_ignored")
	ErrPaymentFailed       = errors.New("payment_failed")
	ErrProviderUnavailable = errors.New("provider_unavailable")
)

// Provider wraps the external payment provider. Calls are blocking network
// operations; a failed call is an unknown outcome, not a guaranteed no-op,
// so callers own de-duplication on retry.
type Provider interface {
	CreateCustomer(ctx context.Context, name string, metadata map[string]string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
	SetItemQuantity(ctx context.Context, itemID string, quantity int64, proration ProrationMode) error
	ChargeImmediate(ctx context.Context, customerID string, amountMinor int64, description string) (string, error)
	ListInvoices(ctx context.Context, customerID string) ([]Invoice, error)
	VerifySignature(payload []byte, headers http.Header) error
	ParseEvent(payload []byte) (*Event, error)
}

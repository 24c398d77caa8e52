// Package domain contains the canonical types for the external billing provider.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ProrationMode controls how the provider treats a mid-cycle quantity change.
type ProrationMode string

const (
	// ProrationNone skips provider-side proration. Upgrades are charged as a
	// flat immediate invoice instead, so prorating again would double-bill.
	ProrationNone ProrationMode = "none"

	ProrationCreateProrations ProrationMode = "create_prorations"
)

// Canonical event types emitted by ParseEvent.
const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventPaymentSucceeded      = "invoice.payment_succeeded"
	EventPaymentFailed         = "invoice.payment_failed"
	EventPaymentActionRequired = "invoice.payment_action_required"
	EventSubscriptionUpdated   = "customer.subscription.updated"
	EventSubscriptionDeleted   = "customer.subscription.deleted"
)

// Event is the canonical provider event parsed from a webhook payload.
type Event struct {
	Provider        string
	ProviderEventID string
	Type            string
	OccurredAt      time.Time
	RawPayload      []byte

	// Checkout is set for EventCheckoutCompleted.
	Checkout *CheckoutCompleted

	// Subscription fields, set for invoice and subscription events.
	SubscriptionID     string
	SubscriptionStatus string
	ItemID             string
	Quantity           int64
}

// CheckoutCompleted carries the session metadata written at checkout time.
type CheckoutCompleted struct {
	OrgID          snowflake.ID
	UserID         snowflake.ID
	AssetCount     int
	BillingCycle   string
	CustomerID     string
	SubscriptionID string
}

// CheckoutSessionRequest describes a hosted checkout to create.
type CheckoutSessionRequest struct {
	CustomerID string
	PriceRef   string
	Quantity   int64
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CheckoutSession is the provider's hosted checkout handle.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// Invoice is a flattened provider invoice for the org-facing listing.
type Invoice struct {
	ID              string     `json:"id"`
	Number          string     `json:"number"`
	Status          string     `json:"status"`
	AmountDueMinor  int64      `json:"amount_due_minor"`
	AmountPaidMinor int64      `json:"amount_paid_minor"`
	Currency        string     `json:"currency"`
	CreatedAt       time.Time  `json:"created_at"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	HostedURL       string     `json:"hosted_url,omitempty"`
	PDFURL          string     `json:"pdf_url,omitempty"`
}

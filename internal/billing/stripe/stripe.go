// Package stripe implements the billing provider on the Stripe API.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/maintly/maintly/internal/billing/domain"
	"github.com/maintly/maintly/internal/config"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Provider talks to Stripe through an injected client, never the package-level
// singleton, so tests and multi-key setups can construct their own.
type Provider struct {
	api           *client.API
	webhookSecret string
}

func New(cfg config.Config) *Provider {
	api := &client.API{}
	api.Init(cfg.Billing.StripeSecretKey, nil)
	return &Provider{
		api:           api,
		webhookSecret: cfg.Billing.StripeWebhookSecret,
	}
}

// NewWithClient builds a provider around an existing Stripe client.
func NewWithClient(api *client.API, webhookSecret string) *Provider {
	return &Provider{api: api, webhookSecret: webhookSecret}
}

func (p *Provider) CreateCustomer(ctx context.Context, name string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{
		Name: stripe.String(name),
	}
	params.Context = ctx
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}

	customer, err := p.api.Customers.New(params)
	if err != nil {
		return "", mapError(err)
	}
	return customer.ID, nil
}

func (p *Provider) CreateCheckoutSession(ctx context.Context, req billingdomain.CheckoutSessionRequest) (*billingdomain.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(req.CustomerID),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceRef),
				Quantity: stripe.Int64(req.Quantity),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{},
	}
	params.Context = ctx
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
		if params.SubscriptionData.Metadata == nil {
			params.SubscriptionData.Metadata = map[string]string{}
		}
		params.SubscriptionData.Metadata[key] = value
	}

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, mapError(err)
	}
	return &billingdomain.CheckoutSession{SessionID: session.ID, URL: session.URL}, nil
}

func (p *Provider) SetItemQuantity(ctx context.Context, itemID string, quantity int64, proration billingdomain.ProrationMode) error {
	params := &stripe.SubscriptionItemParams{
		Quantity:          stripe.Int64(quantity),
		ProrationBehavior: stripe.String(string(proration)),
	}
	params.Context = ctx

	if _, err := p.api.SubscriptionItems.Update(itemID, params); err != nil {
		return mapError(err)
	}
	return nil
}

// ChargeImmediate bills a flat amount right now: pending invoice item, then a
// charge_automatically invoice, then an explicit pay. The invoice id is
// returned for the audit trail.
func (p *Provider) ChargeImmediate(ctx context.Context, customerID string, amountMinor int64, description string) (string, error) {
	itemParams := &stripe.InvoiceItemParams{
		Customer:    stripe.String(customerID),
		Amount:      stripe.Int64(amountMinor),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Description: stripe.String(description),
	}
	itemParams.Context = ctx
	if _, err := p.api.InvoiceItems.New(itemParams); err != nil {
		return "", mapError(err)
	}

	invoiceParams := &stripe.InvoiceParams{
		Customer:         stripe.String(customerID),
		CollectionMethod: stripe.String(string(stripe.InvoiceCollectionMethodChargeAutomatically)),
		AutoAdvance:      stripe.Bool(false),
	}
	invoiceParams.Context = ctx
	invoice, err := p.api.Invoices.New(invoiceParams)
	if err != nil {
		return "", mapError(err)
	}

	payParams := &stripe.InvoicePayParams{}
	payParams.Context = ctx
	if _, err := p.api.Invoices.Pay(invoice.ID, payParams); err != nil {
		return "", mapError(err)
	}

	return invoice.ID, nil
}

func (p *Provider) ListInvoices(ctx context.Context, customerID string) ([]billingdomain.Invoice, error) {
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
	}
	params.Context = ctx

	var invoices []billingdomain.Invoice
	iter := p.api.Invoices.List(params)
	for iter.Next() {
		inv := iter.Invoice()
		item := billingdomain.Invoice{
			ID:              inv.ID,
			Number:          inv.Number,
			Status:          string(inv.Status),
			AmountDueMinor:  inv.AmountDue,
			AmountPaidMinor: inv.AmountPaid,
			Currency:        string(inv.Currency),
			CreatedAt:       time.Unix(inv.Created, 0).UTC(),
			HostedURL:       inv.HostedInvoiceURL,
			PDFURL:          inv.InvoicePDF,
		}
		if inv.StatusTransitions != nil && inv.StatusTransitions.PaidAt > 0 {
			paidAt := time.Unix(inv.StatusTransitions.PaidAt, 0).UTC()
			item.PaidAt = &paidAt
		}
		invoices = append(invoices, item)
	}
	if err := iter.Err(); err != nil {
		return nil, mapError(err)
	}
	return invoices, nil
}

func (p *Provider) VerifySignature(payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return billingdomain.ErrInvalidSignature
	}
	if err := webhook.ValidatePayload(payload, sigHeader, p.webhookSecret); err != nil {
		return billingdomain.ErrInvalidSignature
	}
	return nil
}

type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSessionObject struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type invoiceObject struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

type subscriptionObject struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Items  struct {
		Data []struct {
			ID       string `json:"id"`
			Quantity int64  `json:"quantity"`
		} `json:"data"`
	} `json:"items"`
}

// ParseEvent maps a raw Stripe payload to the canonical event. Event types
// outside the subscription lifecycle return ErrEventIgnored.
func (p *Provider) ParseEvent(payload []byte) (*billingdomain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, billingdomain.ErrInvalidEvent
	}

	out := &billingdomain.Event{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		OccurredAt:      time.Unix(event.Created, 0).UTC(),
		RawPayload:      payload,
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return p.parseCheckoutCompleted(event, out)
	case "invoice.payment_succeeded", "invoice.paid":
		return p.parseInvoice(event, out, billingdomain.EventPaymentSucceeded)
	case "invoice.payment_failed":
		return p.parseInvoice(event, out, billingdomain.EventPaymentFailed)
	case "invoice.payment_action_required":
		return p.parseInvoice(event, out, billingdomain.EventPaymentActionRequired)
	case "customer.subscription.updated":
		return p.parseSubscription(event, out, billingdomain.EventSubscriptionUpdated)
	case "customer.subscription.deleted":
		return p.parseSubscription(event, out, billingdomain.EventSubscriptionDeleted)
	default:
		return nil, billingdomain.ErrEventIgnored
	}
}

func (p *Provider) parseCheckoutCompleted(event stripeEvent, out *billingdomain.Event) (*billingdomain.Event, error) {
	var session checkoutSessionObject
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}
	if session.Subscription == "" {
		// Payment-mode sessions carry no subscription; nothing to reconcile.
		return nil, billingdomain.ErrEventIgnored
	}

	checkout := &billingdomain.CheckoutCompleted{
		CustomerID:     session.Customer,
		SubscriptionID: session.Subscription,
		BillingCycle:   strings.TrimSpace(session.Metadata["billing_cycle"]),
	}
	if raw := strings.TrimSpace(session.Metadata["org_id"]); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return nil, billingdomain.ErrInvalidPayload
		}
		checkout.OrgID = id
	}
	if raw := strings.TrimSpace(session.Metadata["user_id"]); raw != "" {
		if id, err := snowflake.ParseString(raw); err == nil {
			checkout.UserID = id
		}
	}
	if raw := strings.TrimSpace(session.Metadata["asset_count"]); raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil || count < 0 {
			return nil, billingdomain.ErrInvalidPayload
		}
		checkout.AssetCount = count
	}

	out.Type = billingdomain.EventCheckoutCompleted
	out.Checkout = checkout
	out.SubscriptionID = session.Subscription
	return out, nil
}

func (p *Provider) parseInvoice(event stripeEvent, out *billingdomain.Event, eventType string) (*billingdomain.Event, error) {
	var invoice invoiceObject
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}
	if invoice.Subscription == "" {
		// One-off invoices (immediate upgrade charges) do not drive status.
		return nil, billingdomain.ErrEventIgnored
	}

	out.Type = eventType
	out.SubscriptionID = invoice.Subscription
	return out, nil
}

func (p *Provider) parseSubscription(event stripeEvent, out *billingdomain.Event, eventType string) (*billingdomain.Event, error) {
	var sub subscriptionObject
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}
	if sub.ID == "" {
		return nil, billingdomain.ErrInvalidEvent
	}

	out.Type = eventType
	out.SubscriptionID = sub.ID
	out.SubscriptionStatus = mapSubscriptionStatus(sub.Status)
	if len(sub.Items.Data) > 0 {
		out.ItemID = sub.Items.Data[0].ID
		out.Quantity = sub.Items.Data[0].Quantity
	}
	return out, nil
}

func mapSubscriptionStatus(status string) string {
	switch strings.TrimSpace(status) {
	case "active", "trialing":
		return "active"
	case "past_due", "unpaid", "incomplete":
		return "past_due"
	case "canceled", "incomplete_expired":
		return "canceled"
	default:
		return "active"
	}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Type == stripe.ErrorTypeCard:
			return fmt.Errorf("%w: %s", billingdomain.ErrPaymentFailed, stripeErr.Code)
		case stripeErr.Code == stripe.ErrorCodeCardDeclined:
			return fmt.Errorf("%w: %s", billingdomain.ErrPaymentFailed, stripeErr.Code)
		default:
			return fmt.Errorf("%w: %s", billingdomain.ErrProviderUnavailable, stripeErr.Code)
		}
	}

	return fmt.Errorf("%w: %v", billingdomain.ErrProviderUnavailable, err)
}

var _ billingdomain.Provider = (*Provider)(nil)

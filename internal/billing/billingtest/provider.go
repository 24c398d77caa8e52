// Package billingtest provides a recording in-memory billing provider for tests.
package billingtest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	billingdomain "github.com/maintly/maintly/internal/billing/domain"
)

// Call records a single provider invocation with its arguments.
type Call struct {
	Method     string
	CustomerID string
	ItemID     string
	Quantity   int64
	Proration  billingdomain.ProrationMode
	Amount     int64
}

// Provider is a recording test double. Zero value is usable; every call
// succeeds unless the matching error field is set.
type Provider struct {
	mu    sync.Mutex
	calls []Call

	CreateCustomerErr  error
	CreateCheckoutErr  error
	SetItemQuantityErr error
	ChargeImmediateErr error
	ListInvoicesErr    error
	VerifyErr          error

	ParseEventFn func(payload []byte) (*billingdomain.Event, error)

	CheckoutSession *billingdomain.CheckoutSession
	Invoices        []billingdomain.Invoice

	customerSeq int
	invoiceSeq  int
}

func (p *Provider) record(call Call) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

// Calls returns a copy of the recorded invocations in order.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallsTo returns the recorded invocations of one method.
func (p *Provider) CallsTo(method string) []Call {
	var out []Call
	for _, call := range p.Calls() {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

func (p *Provider) CreateCustomer(ctx context.Context, name string, metadata map[string]string) (string, error) {
	_ = ctx
	if p.CreateCustomerErr != nil {
		return "", p.CreateCustomerErr
	}
	p.mu.Lock()
	p.customerSeq++
	id := fmt.Sprintf("cus_test_%d", p.customerSeq)
	p.mu.Unlock()
	p.record(Call{Method: "CreateCustomer", CustomerID: id})
	return id, nil
}

func (p *Provider) CreateCheckoutSession(ctx context.Context, req billingdomain.CheckoutSessionRequest) (*billingdomain.CheckoutSession, error) {
	_ = ctx
	p.record(Call{Method: "CreateCheckoutSession", CustomerID: req.CustomerID, Quantity: req.Quantity})
	if p.CreateCheckoutErr != nil {
		return nil, p.CreateCheckoutErr
	}
	if p.CheckoutSession != nil {
		return p.CheckoutSession, nil
	}
	return &billingdomain.CheckoutSession{SessionID: "cs_test_1", URL: "https://checkout.test/cs_test_1"}, nil
}

func (p *Provider) SetItemQuantity(ctx context.Context, itemID string, quantity int64, proration billingdomain.ProrationMode) error {
	_ = ctx
	p.record(Call{Method: "SetItemQuantity", ItemID: itemID, Quantity: quantity, Proration: proration})
	return p.SetItemQuantityErr
}

func (p *Provider) ChargeImmediate(ctx context.Context, customerID string, amountMinor int64, description string) (string, error) {
	_ = ctx
	p.record(Call{Method: "ChargeImmediate", CustomerID: customerID, Amount: amountMinor})
	if p.ChargeImmediateErr != nil {
		return "", p.ChargeImmediateErr
	}
	p.mu.Lock()
	p.invoiceSeq++
	id := fmt.Sprintf("in_test_%d", p.invoiceSeq)
	p.mu.Unlock()
	return id, nil
}

func (p *Provider) ListInvoices(ctx context.Context, customerID string) ([]billingdomain.Invoice, error) {
	_ = ctx
	p.record(Call{Method: "ListInvoices", CustomerID: customerID})
	if p.ListInvoicesErr != nil {
		return nil, p.ListInvoicesErr
	}
	return p.Invoices, nil
}

func (p *Provider) VerifySignature(payload []byte, headers http.Header) error {
	_ = payload
	_ = headers
	return p.VerifyErr
}

func (p *Provider) ParseEvent(payload []byte) (*billingdomain.Event, error) {
	if p.ParseEventFn != nil {
		return p.ParseEventFn(payload)
	}
	return nil, billingdomain.ErrEventIgnored
}

var _ billingdomain.Provider = (*Provider)(nil)

package stripe

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	billingdomain "github.com/maintly/maintly/internal/billing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

func signedHeaders(t *testing.T, payload []byte, secret string) http.Header {
	t.Helper()
	ts := time.Now()
	signature := webhook.ComputeSignature(ts, payload, secret)
	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(signature)))
	return headers
}

func TestVerifySignature(t *testing.T) {
	provider := NewWithClient(nil, "whsec_test")
	payload := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)

	err := provider.VerifySignature(payload, signedHeaders(t, payload, "whsec_test"))
	assert.NoError(t, err)

	err = provider.VerifySignature(payload, signedHeaders(t, payload, "whsec_other"))
	assert.ErrorIs(t, err, billingdomain.ErrInvalidSignature)

	err = provider.VerifySignature(payload, http.Header{})
	assert.ErrorIs(t, err, billingdomain.ErrInvalidSignature)

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = 'x'
	err = provider.VerifySignature(tampered, signedHeaders(t, payload, "whsec_test"))
	assert.ErrorIs(t, err, billingdomain.ErrInvalidSignature)
}

func TestParseEventCheckoutCompleted(t *testing.T) {
	provider := NewWithClient(nil, "whsec_test")

	payload := []byte(`{
		"id": "evt_checkout_1",
		"type": "checkout.session.completed",
		"created": 1735689600,
		"data": {"object": {
			"id": "cs_test_1",
			"customer": "cus_123",
			"subscription": "sub_456",
			"metadata": {"org_id": "1234567890", "user_id": "987654321", "asset_count": "25", "billing_cycle": "monthly"}
		}}
	}`)

	event, err := provider.ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.EventCheckoutCompleted, event.Type)
	assert.Equal(t, "evt_checkout_1", event.ProviderEventID)
	assert.Equal(t, "stripe", event.Provider)
	require.NotNil(t, event.Checkout)
	assert.Equal(t, int64(1234567890), event.Checkout.OrgID.Int64())
	assert.Equal(t, 25, event.Checkout.AssetCount)
	assert.Equal(t, "monthly", event.Checkout.BillingCycle)
	assert.Equal(t, "cus_123", event.Checkout.CustomerID)
	assert.Equal(t, "sub_456", event.Checkout.SubscriptionID)
}

func TestParseEventCheckoutWithoutSubscriptionIgnored(t *testing.T) {
	provider := NewWithClient(nil, "whsec_test")

	payload := []byte(`{
		"id": "evt_checkout_2",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_2", "customer": "cus_123", "metadata": {}}}
	}`)

	_, err := provider.ParseEvent(payload)
	assert.ErrorIs(t, err, billingdomain.ErrEventIgnored)
}

func TestParseEventInvoice(t *testing.T) {
	provider := NewWithClient(nil, "whsec_test")

	cases := []struct {
		stripeType string
		want       string
	}{
		{"invoice.payment_succeeded", billingdomain.EventPaymentSucceeded},
		{"invoice.payment_failed", billingdomain.EventPaymentFailed},
		{"invoice.payment_action_required", billingdomain.EventPaymentActionRequired},
	}
	for _, tc := range cases {
		payload := []byte(fmt.Sprintf(`{
			"id": "evt_inv",
			"type": %q,
			"data": {"object": {"id": "in_1", "customer": "cus_123", "subscription": "sub_456"}}
		}`, tc.stripeType))

		event, err := provider.ParseEvent(payload)
		require.NoError(t, err, tc.stripeType)
		assert.Equal(t, tc.want, event.Type)
		assert.Equal(t, "sub_456", event.SubscriptionID)
	}
}

func TestParseEventOneOffInvoiceIgnored(t *testing.T) {
	provider := NewWithClient(nil, "whsec_test")

	payload := []byte(`{
		"id": "evt_inv_oneoff",
		"type": "invoice.payment_succeeded",
		"data": {"object": {"id": "in_2", "customer": "cus_123"}}
	}`)

	_, err := provider.ParseEvent(payload)
	assert.ErrorIs(t, err, billingdomain.ErrEventIgnored)
}

func TestParseEventSubscriptionUpdated(t *testing.T) {
	provider := NewWithClient(nil, "whsec_test")

	payload := []byte(`{
		"id": "evt_sub_upd",
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_456",
			"status": "past_due",
			"items": {"data": [{"id": "si_789", "quantity": 40}]}
		}}
	}`)

	event, err := provider.ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.EventSubscriptionUpdated, event.Type)
	assert.Equal(t, "sub_456", event.SubscriptionID)
	assert.Equal(t, "past_due", event.SubscriptionStatus)
	assert.Equal(t, "si_789", event.ItemID)
	assert.Equal(t, int64(40), event.Quantity)
}

func TestParseEventSubscriptionDeleted(t *testing.T) {
	provider := NewWithClient(nil, "whsec_test")

	payload := []byte(`{
		"id": "evt_sub_del",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_456", "status": "canceled", "items": {"data": []}}}
	}`)

	event, err := provider.ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.EventSubscriptionDeleted, event.Type)
	assert.Equal(t, "canceled", event.SubscriptionStatus)
}

func TestParseEventUnknownTypeIgnored(t *testing.T) {
	provider := NewWithClient(nil, "whsec_test")

	_, err := provider.ParseEvent([]byte(`{"id": "evt_x", "type": "customer.created", "data": {"object": {}}}`))
	assert.ErrorIs(t, err, billingdomain.ErrEventIgnored)
}

func TestParseEventMalformed(t *testing.T) {
	provider := NewWithClient(nil, "whsec_test")

	_, err := provider.ParseEvent([]byte(`not-json`))
	assert.ErrorIs(t, err, billingdomain.ErrInvalidPayload)

	_, err = provider.ParseEvent([]byte(`{"type": "invoice.payment_succeeded"}`))
	assert.ErrorIs(t, err, billingdomain.ErrInvalidEvent)
}

func TestMapSubscriptionStatus(t *testing.T) {
	assert.Equal(t, "active", mapSubscriptionStatus("active"))
	assert.Equal(t, "active", mapSubscriptionStatus("trialing"))
	assert.Equal(t, "past_due", mapSubscriptionStatus("past_due"))
	assert.Equal(t, "past_due", mapSubscriptionStatus("unpaid"))
	assert.Equal(t, "canceled", mapSubscriptionStatus("canceled"))
}

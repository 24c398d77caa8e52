package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	apikeydomain "github.com/maintly/maintly/internal/apikey/domain"
	apikeyrepo "github.com/maintly/maintly/internal/apikey/repository"
	apikeyservice "github.com/maintly/maintly/internal/apikey/service"
	assetdomain "github.com/maintly/maintly/internal/asset/domain"
	assetrepo "github.com/maintly/maintly/internal/asset/repository"
	assetservice "github.com/maintly/maintly/internal/asset/service"
	"github.com/maintly/maintly/internal/billing/billingtest"
	billingdomain "github.com/maintly/maintly/internal/billing/domain"
	billingeventdomain "github.com/maintly/maintly/internal/billingevent/domain"
	billingeventrepo "github.com/maintly/maintly/internal/billingevent/repository"
	billingeventservice "github.com/maintly/maintly/internal/billingevent/service"
	"github.com/maintly/maintly/internal/clock"
	"github.com/maintly/maintly/internal/config"
	"github.com/maintly/maintly/internal/observability"
	obsmetrics "github.com/maintly/maintly/internal/observability/metrics"
	organizationdomain "github.com/maintly/maintly/internal/organization/domain"
	organizationrepo "github.com/maintly/maintly/internal/organization/repository"
	organizationservice "github.com/maintly/maintly/internal/organization/service"
	"github.com/maintly/maintly/internal/pricing"
	subscriptiondomain "github.com/maintly/maintly/internal/subscription/domain"
	subscriptionrepo "github.com/maintly/maintly/internal/subscription/repository"
	subscriptionservice "github.com/maintly/maintly/internal/subscription/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testStack struct {
	server   *httptest.Server
	provider *billingtest.Provider
	genID    *snowflake.Node
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&organizationdomain.Organization{},
		&organizationdomain.Member{},
		&apikeydomain.APIKey{},
		&assetdomain.Asset{},
		&assetdomain.Issue{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.UsageHistoryEntry{},
		&billingeventdomain.WebhookEvent{},
	))

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)

	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	provider := &billingtest.Provider{}
	tiers := pricing.StaticTiers(pricing.DefaultTiers())
	cfg := config.Config{
		Billing: config.BillingConfig{
			MonthlyPriceID:     "price_monthly",
			AnnualPriceID:      "price_annual",
			CheckoutSuccessURL: "https://app.test/success",
			CheckoutCancelURL:  "https://app.test/cancel",
		},
	}

	orgRepo := organizationrepo.NewRepository(db)
	subsRepo := subscriptionrepo.Provide()
	assetRepo := assetrepo.Provide()

	subscriptionSvc := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Repo:     subsRepo,
		Assets:   assetRepo,
		Provider: provider,
		Tiers:    tiers,
		Cfg:      cfg,
	})
	organizationSvc := organizationservice.NewService(db, log, orgRepo, subsRepo, node, clk)
	assetSvc := assetservice.NewService(assetservice.ServiceParam{
		DB:    db,
		Log:   log,
		Repo:  assetRepo,
		Subs:  subsRepo,
		GenID: node,
		Clock: clk,
	})
	apiKeySvc := apikeyservice.New(apikeyservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  apikeyrepo.Provide(),
		Orgs:  orgRepo,
	})
	processor := billingeventservice.NewProcessor(billingeventservice.ProcessorParam{
		DB:     db,
		Log:    log,
		GenID:  node,
		Clock:  clk,
		Events: billingeventrepo.Provide(),
		Subs:   subsRepo,
		Tiers:  tiers,
	})

	httpMetrics, err := obsmetrics.NewHTTPMetrics()
	require.NoError(t, err)

	srv := NewServer(ServerParams{
		Gin:             NewEngine(observability.Config{}, httpMetrics),
		Cfg:             cfg,
		Log:             log,
		GenID:           node,
		Tiers:           tiers,
		SubscriptionSvc: subscriptionSvc,
		OrganizationSvc: organizationSvc,
		AssetSvc:        assetSvc,
		APIKeySvc:       apiKeySvc,
		Provider:        provider,
		Processor:       processor,
	})

	ts := httptest.NewServer(srv.Engine())
	t.Cleanup(ts.Close)

	return &testStack{server: ts, provider: provider, genID: node}
}

func (s *testStack) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// bootstrap creates an org and mints an API key for its owner.
func (s *testStack) bootstrap(t *testing.T) (orgID string, userHeader map[string]string, keyHeader map[string]string) {
	t.Helper()

	userID := s.genID.Generate().String()
	userHeader = map[string]string{"X-User-Id": userID}

	resp, body := s.do(t, http.MethodPost, "/api/orgs", map[string]any{"name": "Acme " + userID}, userHeader)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	orgID = body["organization"].(map[string]any)["id"].(string)

	resp, body = s.do(t, http.MethodPost, "/api/api-keys", map[string]any{"org_id": orgID, "name": "test"}, userHeader)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	plain := body["key"].(map[string]any)["api_key"].(string)
	keyHeader = map[string]string{"Authorization": "Bearer " + plain}
	return orgID, userHeader, keyHeader
}

func TestPricingPreviewIsPublic(t *testing.T) {
	s := newTestStack(t)

	resp, body := s.do(t, http.MethodPost, "/api/subscriptions/pricing-preview",
		map[string]any{"asset_count": 25, "billing_cycle": "monthly"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	quote := body["pricing"].(map[string]any)
	assert.Equal(t, float64(11475), quote["total_monthly_minor"])
	assert.Equal(t, "Value", quote["tier"].(map[string]any)["name"])

	resp, body = s.do(t, http.MethodPost, "/api/subscriptions/pricing-preview",
		map[string]any{"asset_count": 300}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "custom_pricing_required", body["error"])
}

func TestAuthRequiredOnOrgRoutes(t *testing.T) {
	s := newTestStack(t)
	orgID, _, keyHeader := s.bootstrap(t)

	resp, body := s.do(t, http.MethodGet, "/api/subscriptions/org/"+orgID, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	// Valid key, someone else's org.
	otherOrg := s.genID.Generate().String()
	resp, _ = s.do(t, http.MethodGet, "/api/subscriptions/org/"+otherOrg, nil, keyHeader)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSubscriptionLifecycleOverHTTP(t *testing.T) {
	s := newTestStack(t)
	orgID, _, keyHeader := s.bootstrap(t)

	// Fresh org is on the free plan.
	resp, body := s.do(t, http.MethodGet, "/api/subscriptions/org/"+orgID, nil, keyHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sub := body["subscription"].(map[string]any)
	assert.Equal(t, float64(subscriptiondomain.DefaultFreeAssetLimit), sub["AssetLimit"])

	// Declare 5 assets, still free.
	resp, body = s.do(t, http.MethodPost, "/api/subscriptions/org/"+orgID+"/update-asset-count",
		map[string]any{"asset_count": 5}, keyHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(5), body["asset_count"])
	assert.Empty(t, s.provider.Calls())

	// Over the free ceiling.
	resp, body = s.do(t, http.MethodPost, "/api/subscriptions/org/"+orgID+"/update-asset-count",
		map[string]any{"asset_count": 11}, keyHeader)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "asset_limit_exceeded", body["error"])

	// Checkout session for an upgrade.
	resp, body = s.do(t, http.MethodPost, "/api/subscriptions/create-checkout",
		map[string]any{"asset_count": 25, "billing_cycle": "monthly"}, keyHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["url"])
}

func TestWebhookSignatureGate(t *testing.T) {
	s := newTestStack(t)

	s.provider.VerifyErr = billingdomain.ErrInvalidSignature
	resp, body := s.do(t, http.MethodPost, "/api/webhooks/billing", map[string]any{"id": "evt_1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_signature", body["error"])
}

func TestWebhookUpgradesSubscription(t *testing.T) {
	s := newTestStack(t)
	orgIDStr, _, keyHeader := s.bootstrap(t)
	orgID, err := snowflake.ParseString(orgIDStr)
	require.NoError(t, err)

	s.provider.ParseEventFn = func(payload []byte) (*billingdomain.Event, error) {
		return &billingdomain.Event{
			Provider:        "stripe",
			ProviderEventID: "evt_http_1",
			Type:            billingdomain.EventCheckoutCompleted,
			OccurredAt:      time.Now().UTC(),
			RawPayload:      payload,
			Checkout: &billingdomain.CheckoutCompleted{
				OrgID:          orgID,
				AssetCount:     25,
				BillingCycle:   "monthly",
				CustomerID:     "cus_http_1",
				SubscriptionID: "sub_http_1",
			},
		}, nil
	}

	resp, body := s.do(t, http.MethodPost, "/api/webhooks/billing", map[string]any{"id": "evt_http_1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["received"])

	resp, body = s.do(t, http.MethodGet, "/api/subscriptions/org/"+orgIDStr, nil, keyHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sub := body["subscription"].(map[string]any)
	assert.Equal(t, float64(25), sub["CurrentAssetCount"])
	assert.Equal(t, "Value", sub["PricingTierName"])
}

func TestAssetRoutes(t *testing.T) {
	s := newTestStack(t)
	_, _, keyHeader := s.bootstrap(t)

	resp, body := s.do(t, http.MethodPost, "/api/assets",
		map[string]any{"name": "Boiler", "tag": "B-01"}, keyHeader)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assetID := body["asset"].(map[string]any)["id"].(string)

	resp, body = s.do(t, http.MethodPost, "/api/issues",
		map[string]any{"asset_id": assetID, "title": "Leaking valve", "severity": "high"}, keyHeader)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "open", body["issue"].(map[string]any)["status"].(string))

	resp, body = s.do(t, http.MethodGet, "/api/assets", nil, keyHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["assets"].([]any), 1)
}

package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/maintly/maintly/internal/billing/billingtest"
	billingdomain "github.com/maintly/maintly/internal/billing/domain"
	"github.com/maintly/maintly/internal/clock"
	"github.com/maintly/maintly/internal/config"
	"github.com/maintly/maintly/internal/pricing"
	subscriptiondomain "github.com/maintly/maintly/internal/subscription/domain"
	"github.com/maintly/maintly/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stubAssets struct {
	count int
	err   error
}

func (s stubAssets) CountProvisioned(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int, error) {
	return s.count, s.err
}

type fixture struct {
	db       *gorm.DB
	repo     subscriptiondomain.Repository
	provider *billingtest.Provider
	clock    *clock.FakeClock
	genID    *snowflake.Node
	assets   stubAssets
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.UsageHistoryEntry{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &fixture{
		db:       db,
		repo:     repository.Provide(),
		provider: &billingtest.Provider{},
		clock:    clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		genID:    node,
		assets:   stubAssets{count: 0},
	}
}

func (f *fixture) service() subscriptiondomain.Service {
	return NewService(ServiceParam{
		DB:       f.db,
		Log:      zap.NewNop(),
		GenID:    f.genID,
		Clock:    f.clock,
		Repo:     f.repo,
		Assets:   f.assets,
		Provider: f.provider,
		Tiers:    pricing.StaticTiers(pricing.DefaultTiers()),
		Cfg: config.Config{
			Billing: config.BillingConfig{
				MonthlyPriceID:     "price_monthly",
				AnnualPriceID:      "price_annual",
				CheckoutSuccessURL: "https://app.test/billing/success",
				CheckoutCancelURL:  "https://app.test/billing/cancel",
			},
		},
	})
}

func (f *fixture) insertFree(t *testing.T, orgID snowflake.ID, assetCount int) *subscriptiondomain.Subscription {
	t.Helper()
	sub := subscriptiondomain.NewFreeSubscription(f.genID.Generate(), orgID, f.clock.Now())
	sub.CurrentAssetCount = assetCount
	require.NoError(t, f.repo.Insert(context.Background(), f.db, sub))
	return sub
}

func (f *fixture) insertPaid(t *testing.T, orgID snowflake.ID, assetCount int) *subscriptiondomain.Subscription {
	t.Helper()
	quote, err := pricing.Calculate(assetCount, pricing.IntervalMonthly, pricing.DefaultTiers())
	require.NoError(t, err)
	require.NotNil(t, quote)

	subID := "sub_test_1"
	itemID := "si_test_1"
	sub := &subscriptiondomain.Subscription{
		ID:                     f.genID.Generate(),
		OrgID:                  orgID,
		ProviderCustomerID:     "cus_test_1",
		ProviderSubscriptionID: &subID,
		ProviderItemID:         &itemID,
		CurrentAssetCount:      assetCount,
		AssetLimit:             assetCount,
		PricingTierName:        quote.Tier.Name,
		UnitPriceMinor:         quote.UnitPriceMinor,
		TotalMonthlyCostMinor:  quote.TotalMonthlyMinor,
		BillingCycle:           subscriptiondomain.BillingCycleMonthly,
		Status:                 subscriptiondomain.StatusActive,
		CreatedAt:              f.clock.Now(),
		UpdatedAt:              f.clock.Now(),
	}
	require.NoError(t, f.repo.Insert(context.Background(), f.db, sub))
	return sub
}

func (f *fixture) reload(t *testing.T, orgID snowflake.ID) *subscriptiondomain.Subscription {
	t.Helper()
	sub, err := f.repo.FindActiveByOrgID(context.Background(), f.db, orgID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}

func (f *fixture) history(t *testing.T, orgID snowflake.ID) []subscriptiondomain.UsageHistoryEntry {
	t.Helper()
	entries, err := f.repo.ListUsageHistory(context.Background(), f.db, orgID, 0)
	require.NoError(t, err)
	return entries
}

func TestUpdateAssetCount_SubscriptionNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service().UpdateAssetCount(context.Background(), subscriptiondomain.UpdateAssetCountRequest{
		OrgID:      f.genID.Generate(),
		AssetCount: 5,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}

func TestUpdateAssetCount_SameCountRejected(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertPaid(t, orgID, 40)

	_, err := f.service().UpdateAssetCount(context.Background(), subscriptiondomain.UpdateAssetCountRequest{
		OrgID:      orgID,
		AssetCount: 40,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidRequest)
	assert.Empty(t, f.provider.Calls())
}

func TestUpdateAssetCount_BelowProvisionedRejected(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertPaid(t, orgID, 40)
	f.assets = stubAssets{count: 35}

	_, err := f.service().UpdateAssetCount(context.Background(), subscriptiondomain.UpdateAssetCountRequest{
		OrgID:      orgID,
		AssetCount: 30,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidRequest)
	assert.Empty(t, f.provider.Calls())

	assert.Equal(t, 40, f.reload(t, orgID).CurrentAssetCount)
}

func TestUpdateAssetCount_FreeWithinLimit(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertFree(t, orgID, 5)

	resp, err := f.service().UpdateAssetCount(context.Background(), subscriptiondomain.UpdateAssetCountRequest{
		OrgID:      orgID,
		AssetCount: subscriptiondomain.DefaultFreeAssetLimit,
	})
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.DefaultFreeAssetLimit, resp.AssetCount)
	assert.Nil(t, resp.Pricing)
	assert.Empty(t, f.provider.Calls())

	sub := f.reload(t, orgID)
	assert.Equal(t, subscriptiondomain.DefaultFreeAssetLimit, sub.CurrentAssetCount)
	assert.True(t, sub.IsFree())

	entries := f.history(t, orgID)
	require.Len(t, entries, 1)
	assert.Equal(t, subscriptiondomain.DefaultFreeAssetLimit, entries[0].AssetCount)
	assert.Equal(t, 5, entries[0].PreviousCount)
}

func TestUpdateAssetCount_FreeOverLimitRejected(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertFree(t, orgID, 5)

	_, err := f.service().UpdateAssetCount(context.Background(), subscriptiondomain.UpdateAssetCountRequest{
		OrgID:      orgID,
		AssetCount: subscriptiondomain.DefaultFreeAssetLimit + 1,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrLimitExceeded)
	assert.Empty(t, f.provider.Calls())
	assert.Equal(t, 5, f.reload(t, orgID).CurrentAssetCount)
	assert.Empty(t, f.history(t, orgID))
}

func TestUpdateAssetCount_UpgradeIntoCheaperTierSkipsCharge(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertPaid(t, orgID, 49)

	resp, err := f.service().UpdateAssetCount(context.Background(), subscriptiondomain.UpdateAssetCountRequest{
		OrgID:      orgID,
		AssetCount: 50,
		ActorID:    f.genID.Generate(),
	})
	require.NoError(t, err)

	// 50 x 379 = 18950 against 49 x 459 = 22491: adding one asset crosses the
	// volume discount boundary and lowers the total.
	assert.Equal(t, int64(-3541), resp.Billing.CostDifferenceMinor)
	assert.Equal(t, int64(0), resp.Billing.ChargeAmountMinor)
	assert.True(t, resp.Billing.IsUpgrade)
	assert.Empty(t, resp.Billing.InvoiceID)
	assert.Equal(t, "Popular", resp.VolumeTier)
	assert.NotContains(t, resp.Message, "Charged")
	assert.Contains(t, resp.Message, "Upgraded to 50 assets on the Popular tier.")

	calls := f.provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "SetItemQuantity", calls[0].Method)
	assert.Equal(t, int64(50), calls[0].Quantity)

	sub := f.reload(t, orgID)
	assert.Equal(t, 50, sub.CurrentAssetCount)
	assert.Equal(t, "Popular", sub.PricingTierName)
	assert.Equal(t, int64(379), sub.UnitPriceMinor)
}

func TestFormatMinorHandlesNegativeAmounts(t *testing.T) {
	assert.Equal(t, "$43.80", formatMinor(4380))
	assert.Equal(t, "-$35.41", formatMinor(-3541))
	assert.Equal(t, "-$0.05", formatMinor(-5))
	assert.Equal(t, "$0.00", formatMinor(0))
}

func TestUpdateAssetCount_UpgradeChargesBeforeQuantitySync(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertPaid(t, orgID, 40)

	resp, err := f.service().UpdateAssetCount(context.Background(), subscriptiondomain.UpdateAssetCountRequest{
		OrgID:      orgID,
		AssetCount: 60,
		ActorID:    f.genID.Generate(),
	})
	require.NoError(t, err)

	// 60 x 379 = 22740 against 40 x 459 = 18360.
	assert.Equal(t, int64(4380), resp.Billing.CostDifferenceMinor)
	assert.Equal(t, int64(4380), resp.Billing.ChargeAmountMinor)
	assert.True(t, resp.Billing.IsUpgrade)
	assert.NotEmpty(t, resp.Billing.InvoiceID)
	assert.Equal(t, "Popular", resp.VolumeTier)
	assert.Contains(t, resp.Message, "$43.80")

	calls := f.provider.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "ChargeImmediate", calls[0].Method)
	assert.Equal(t, int64(4380), calls[0].Amount)
	assert.Equal(t, "SetItemQuantity", calls[1].Method)
	assert.Equal(t, "si_test_1", calls[1].ItemID)
	assert.Equal(t, int64(60), calls[1].Quantity)
	assert.Equal(t, billingdomain.ProrationNone, calls[1].Proration)

	sub := f.reload(t, orgID)
	assert.Equal(t, 60, sub.CurrentAssetCount)
	assert.Equal(t, 60, sub.AssetLimit)
	assert.Equal(t, "Popular", sub.PricingTierName)
	assert.Equal(t, int64(379), sub.UnitPriceMinor)
	assert.Equal(t, int64(22740), sub.TotalMonthlyCostMinor)

	entries := f.history(t, orgID)
	require.Len(t, entries, 1)
	assert.Equal(t, 60, entries[0].AssetCount)
	assert.Equal(t, 40, entries[0].PreviousCount)
	assert.Equal(t, "asset_count_increase", entries[0].ChangeReason)
}

func TestUpdateAssetCount_ChargeFailureAbortsEverything(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertPaid(t, orgID, 40)
	f.provider.ChargeImmediateErr = billingdomain.ErrPaymentFailed

	_, err := f.service().UpdateAssetCount(context.Background(), subscriptiondomain.UpdateAssetCountRequest{
		OrgID:      orgID,
		AssetCount: 60,
	})
	assert.ErrorIs(t, err, billingdomain.ErrPaymentFailed)

	assert.Empty(t, f.provider.CallsTo("SetItemQuantity"))

	sub := f.reload(t, orgID)
	assert.Equal(t, 40, sub.CurrentAssetCount)
	assert.Equal(t, "Value", sub.PricingTierName)
	assert.Equal(t, int64(18360), sub.TotalMonthlyCostMinor)
	assert.Empty(t, f.history(t, orgID))
}

func TestUpdateAssetCount_QuantitySyncFailureAfterChargeStillSucceeds(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertPaid(t, orgID, 40)
	f.provider.SetItemQuantityErr = billingdomain.ErrProviderUnavailable

	resp, err := f.service().UpdateAssetCount(context.Background(), subscriptiondomain.UpdateAssetCountRequest{
		OrgID:      orgID,
		AssetCount: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4380), resp.Billing.ChargeAmountMinor)

	sub := f.reload(t, orgID)
	assert.Equal(t, 60, sub.CurrentAssetCount)

	entries := f.history(t, orgID)
	require.Len(t, entries, 1)
	assert.Equal(t, false, entries[0].ChangeContext["provider_quantity_synced"])
}

func TestUpdateAssetCount_DowngradeNeverCharges(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertPaid(t, orgID, 60)

	resp, err := f.service().UpdateAssetCount(context.Background(), subscriptiondomain.UpdateAssetCountRequest{
		OrgID:      orgID,
		AssetCount: 40,
	})
	require.NoError(t, err)

	assert.False(t, resp.Billing.IsUpgrade)
	assert.Equal(t, int64(0), resp.Billing.ChargeAmountMinor)
	assert.Equal(t, int64(-4380), resp.Billing.CostDifferenceMinor)
	assert.Contains(t, resp.Message, "credit")

	assert.Empty(t, f.provider.CallsTo("ChargeImmediate"))
	quantityCalls := f.provider.CallsTo("SetItemQuantity")
	require.Len(t, quantityCalls, 1)
	assert.Equal(t, int64(40), quantityCalls[0].Quantity)

	entries := f.history(t, orgID)
	require.Len(t, entries, 1)
	assert.Equal(t, false, entries[0].ChangeContext["credit_issued"])
}

func TestUpdateAssetCount_DowngradeQuantityFailureAborts(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertPaid(t, orgID, 60)
	f.provider.SetItemQuantityErr = billingdomain.ErrProviderUnavailable

	_, err := f.service().UpdateAssetCount(context.Background(), subscriptiondomain.UpdateAssetCountRequest{
		OrgID:      orgID,
		AssetCount: 40,
	})
	assert.ErrorIs(t, err, billingdomain.ErrProviderUnavailable)

	sub := f.reload(t, orgID)
	assert.Equal(t, 60, sub.CurrentAssetCount)
	assert.Empty(t, f.history(t, orgID))
}

func TestUpdateAssetCount_CustomPricingAboveLastTier(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertPaid(t, orgID, 200)

	_, err := f.service().UpdateAssetCount(context.Background(), subscriptiondomain.UpdateAssetCountRequest{
		OrgID:      orgID,
		AssetCount: 250,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrCustomPricingRequired)
	assert.Empty(t, f.provider.Calls())
}

func TestCreateCheckout_CreatesCustomerOnce(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertFree(t, orgID, 0)
	svc := f.service()

	session, err := svc.CreateCheckout(context.Background(), subscriptiondomain.CreateCheckoutRequest{
		OrgID:        orgID,
		UserID:       f.genID.Generate(),
		AssetCount:   25,
		BillingCycle: subscriptiondomain.BillingCycleMonthly,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.URL)

	require.Len(t, f.provider.CallsTo("CreateCustomer"), 1)
	checkouts := f.provider.CallsTo("CreateCheckoutSession")
	require.Len(t, checkouts, 1)
	assert.Equal(t, int64(25), checkouts[0].Quantity)

	sub := f.reload(t, orgID)
	assert.NotEmpty(t, sub.ProviderCustomerID)

	// A second checkout reuses the stored customer.
	_, err = svc.CreateCheckout(context.Background(), subscriptiondomain.CreateCheckoutRequest{
		OrgID:        orgID,
		UserID:       f.genID.Generate(),
		AssetCount:   25,
		BillingCycle: subscriptiondomain.BillingCycleAnnual,
	})
	require.NoError(t, err)
	assert.Len(t, f.provider.CallsTo("CreateCustomer"), 1)
}

func TestCreateCheckout_PaidSubscriptionRejected(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertPaid(t, orgID, 40)

	_, err := f.service().CreateCheckout(context.Background(), subscriptiondomain.CreateCheckoutRequest{
		OrgID:        orgID,
		UserID:       f.genID.Generate(),
		AssetCount:   50,
		BillingCycle: subscriptiondomain.BillingCycleMonthly,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidRequest)
}

func TestCreateCheckout_CustomPricingRejected(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertFree(t, orgID, 0)

	_, err := f.service().CreateCheckout(context.Background(), subscriptiondomain.CreateCheckoutRequest{
		OrgID:        orgID,
		UserID:       f.genID.Generate(),
		AssetCount:   300,
		BillingCycle: subscriptiondomain.BillingCycleMonthly,
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrCustomPricingRequired)
	assert.Empty(t, f.provider.Calls())
}

func TestGetOverview(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertPaid(t, orgID, 40)
	f.assets = stubAssets{count: 12}

	overview, err := f.service().GetOverview(context.Background(), orgID)
	require.NoError(t, err)

	assert.Equal(t, 12, overview.ProvisionedAssets)
	require.NotNil(t, overview.Pricing)
	assert.Equal(t, int64(18360), overview.Pricing.TotalMonthlyMinor)
	require.NotNil(t, overview.NextTierSavings)
	assert.Equal(t, "Popular", overview.NextTierSavings.NextTierName)
}

func TestListInvoices_NoCustomerReturnsEmpty(t *testing.T) {
	f := newFixture(t)
	orgID := f.genID.Generate()
	f.insertFree(t, orgID, 0)

	invoices, err := f.service().ListInvoices(context.Background(), orgID)
	require.NoError(t, err)
	assert.Empty(t, invoices)
	assert.Empty(t, f.provider.Calls())
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/maintly/maintly/internal/billing/domain"
	"github.com/maintly/maintly/internal/clock"
	"github.com/maintly/maintly/internal/config"
	"github.com/maintly/maintly/internal/observability/metrics"
	"github.com/maintly/maintly/internal/pricing"
	subscriptiondomain "github.com/maintly/maintly/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PolicyChargeFirstQuantityAfter names the deliberate ordering on paid
// upgrades: collect the flat charge first, sync the recurring quantity after,
// and swallow a quantity-sync failure rather than risk a double charge on
// retry. Under-billing drift self-corrects on the next reconciliation.
const PolicyChargeFirstQuantityAfter = "charge_first_quantity_after"

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	repo     subscriptiondomain.Repository
	assets   subscriptiondomain.AssetCounter
	provider billingdomain.Provider
	tiers    pricing.TierSource
	metrics  *metrics.Metrics

	billingCfg config.BillingConfig
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     subscriptiondomain.Repository
	Assets   subscriptiondomain.AssetCounter
	Provider billingdomain.Provider
	Tiers    pricing.TierSource
	Metrics  *metrics.Metrics `optional:"true"`
	Cfg      config.Config
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("subscription.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		assets:     p.Assets,
		provider:   p.Provider,
		tiers:      p.Tiers,
		metrics:    p.Metrics,
		billingCfg: p.Cfg.Billing,
	}
}

// UpdateAssetCount reconciles the org's billable asset count with the
// provider. The whole read-compute-charge-write sequence runs inside one
// transaction holding the subscription row lock, so two concurrent calls for
// the same org serialize instead of overwriting each other's pricing.
func (s *Service) UpdateAssetCount(ctx context.Context, req subscriptiondomain.UpdateAssetCountRequest) (*subscriptiondomain.UpdateAssetCountResponse, error) {
	if req.OrgID == 0 || req.AssetCount < 0 {
		return nil, subscriptiondomain.ErrInvalidRequest
	}

	var resp *subscriptiondomain.UpdateAssetCountResponse
	err := s.db.Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindActiveByOrgIDForUpdate(ctx, tx, req.OrgID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		provisioned, err := s.assets.CountProvisioned(ctx, tx, req.OrgID)
		if err != nil {
			return err
		}
		if req.AssetCount < provisioned {
			return subscriptiondomain.ErrInvalidRequest
		}
		if req.AssetCount == subscription.CurrentAssetCount {
			return subscriptiondomain.ErrInvalidRequest
		}

		if subscription.IsFree() {
			resp, err = s.updateFreeCount(ctx, tx, subscription, req, provisioned)
			return err
		}
		resp, err = s.updatePaidCount(ctx, tx, subscription, req, provisioned)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) updateFreeCount(
	ctx context.Context,
	tx *gorm.DB,
	subscription *subscriptiondomain.Subscription,
	req subscriptiondomain.UpdateAssetCountRequest,
	provisioned int,
) (*subscriptiondomain.UpdateAssetCountResponse, error) {
	if req.AssetCount > subscription.AssetLimit {
		return nil, subscriptiondomain.ErrLimitExceeded
	}

	count := req.AssetCount
	if err := s.repo.Update(ctx, tx, subscription.ID, subscriptiondomain.UpdateFields{
		CurrentAssetCount: &count,
	}); err != nil {
		return nil, err
	}

	s.recordHistory(ctx, tx, subscription, req, datatypes.JSONMap{
		"direction":          direction(req.AssetCount, subscription.CurrentAssetCount),
		"provisioned_assets": provisioned,
		"plan":               "free",
	})
	if s.metrics != nil {
		s.metrics.RecordUsageChange(ctx, direction(req.AssetCount, subscription.CurrentAssetCount))
	}

	return &subscriptiondomain.UpdateAssetCountResponse{
		AssetCount: req.AssetCount,
		Message:    fmt.Sprintf("Asset count updated to %d.", req.AssetCount),
	}, nil
}

func (s *Service) updatePaidCount(
	ctx context.Context,
	tx *gorm.DB,
	subscription *subscriptiondomain.Subscription,
	req subscriptiondomain.UpdateAssetCountRequest,
	provisioned int,
) (*subscriptiondomain.UpdateAssetCountResponse, error) {
	interval := intervalFor(subscription.BillingCycle)
	table := s.tiers.Tiers()

	oldQuote, err := pricing.Calculate(subscription.CurrentAssetCount, interval, table)
	if err != nil {
		return nil, err
	}
	newQuote, err := pricing.Calculate(req.AssetCount, interval, table)
	if err != nil {
		return nil, err
	}
	if newQuote == nil {
		return nil, subscriptiondomain.ErrCustomPricingRequired
	}

	var oldTotal int64
	if oldQuote != nil {
		oldTotal = oldQuote.TermTotalMinor
	}
	costDifference := newQuote.TermTotalMinor - oldTotal
	isUpgrade := req.AssetCount > subscription.CurrentAssetCount

	outcome := subscriptiondomain.BillingOutcome{
		CostDifferenceMinor: costDifference,
		IsUpgrade:           isUpgrade,
	}
	changeContext := datatypes.JSONMap{
		"direction":          direction(req.AssetCount, subscription.CurrentAssetCount),
		"provisioned_assets": provisioned,
		"plan":               "paid",
		"cost_difference":    costDifference,
		"policy":             PolicyChargeFirstQuantityAfter,
	}

	charged := false
	if isUpgrade && costDifference > 0 {
		// The immediate flat charge replaces proration. It must land before
		// any state mutation; a declined charge aborts with nothing changed.
		description := fmt.Sprintf("Upgrade to %d assets (%s tier)", req.AssetCount, newQuote.Tier.Name)
		invoiceID, err := s.provider.ChargeImmediate(ctx, subscription.ProviderCustomerID, costDifference, description)
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordBillingCharge(ctx, "failed")
			}
			if errors.Is(err, billingdomain.ErrPaymentFailed) || errors.Is(err, billingdomain.ErrProviderUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", billingdomain.ErrProviderUnavailable, err)
		}
		charged = true
		outcome.ChargeAmountMinor = costDifference
		outcome.InvoiceID = invoiceID
		changeContext["charge_amount"] = costDifference
		changeContext["invoice_id"] = invoiceID
		if s.metrics != nil {
			s.metrics.RecordBillingCharge(ctx, "succeeded")
		}
	}

	if err := s.syncProviderQuantity(ctx, subscription, req.AssetCount, charged, changeContext); err != nil {
		return nil, err
	}

	count := req.AssetCount
	limit := req.AssetCount
	tierName := newQuote.Tier.Name
	unitPrice := newQuote.UnitPriceMinor
	total := newQuote.TotalMonthlyMinor
	if err := s.repo.Update(ctx, tx, subscription.ID, subscriptiondomain.UpdateFields{
		CurrentAssetCount:     &count,
		AssetLimit:            &limit,
		PricingTierName:       &tierName,
		UnitPriceMinor:        &unitPrice,
		TotalMonthlyCostMinor: &total,
	}); err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Upgraded to %d assets on the %s tier.", req.AssetCount, newQuote.Tier.Name)
	if charged {
		// An upgrade can land on a cheaper tier (a volume discount boundary);
		// only claim a charge when one was actually collected.
		message = fmt.Sprintf("Upgraded to %d assets on the %s tier. Charged %s immediately.",
			req.AssetCount, newQuote.Tier.Name, formatMinor(costDifference))
	}
	if !isUpgrade {
		// The credit is a promise, not a provider-side credit note; the gap
		// is recorded in the change context rather than papered over.
		message = fmt.Sprintf("Reduced to %d assets on the %s tier. A credit will be applied to your next invoice.",
			req.AssetCount, newQuote.Tier.Name)
		changeContext["credit_issued"] = false
	}

	s.recordHistory(ctx, tx, subscription, req, changeContext)
	if s.metrics != nil {
		s.metrics.RecordUsageChange(ctx, direction(req.AssetCount, subscription.CurrentAssetCount))
	}

	return &subscriptiondomain.UpdateAssetCountResponse{
		AssetCount: req.AssetCount,
		Pricing:    newQuote,
		VolumeTier: newQuote.Tier.Name,
		Billing:    outcome,
		Message:    message,
	}, nil
}

// syncProviderQuantity updates the recurring quantity with proration disabled.
// After a successful charge a failure here is logged loudly and swallowed
// (PolicyChargeFirstQuantityAfter); before any charge it aborts the call.
func (s *Service) syncProviderQuantity(
	ctx context.Context,
	subscription *subscriptiondomain.Subscription,
	quantity int,
	charged bool,
	changeContext datatypes.JSONMap,
) error {
	if subscription.ProviderItemID == nil || *subscription.ProviderItemID == "" {
		s.log.Warn("subscription has no provider item id; skipping quantity sync",
			zap.Int64("subscription_id", int64(subscription.ID)),
		)
		changeContext["provider_quantity_synced"] = false
		return nil
	}

	err := s.provider.SetItemQuantity(ctx, *subscription.ProviderItemID, int64(quantity), billingdomain.ProrationNone)
	if err == nil {
		changeContext["provider_quantity_synced"] = true
		return nil
	}

	if !charged {
		return fmt.Errorf("%w: %v", billingdomain.ErrProviderUnavailable, err)
	}

	changeContext["provider_quantity_synced"] = false
	s.log.Error("customer charged but provider quantity sync failed; relying on next reconciliation",
		zap.String("policy", PolicyChargeFirstQuantityAfter),
		zap.Int64("org_id", int64(subscription.OrgID)),
		zap.Int64("subscription_id", int64(subscription.ID)),
		zap.Int("quantity", quantity),
		zap.Error(err),
	)
	return nil
}

// recordHistory appends the audit entry. The billing outcome is
// authoritative; a failed audit write is logged and never fails the request.
func (s *Service) recordHistory(
	ctx context.Context,
	tx *gorm.DB,
	subscription *subscriptiondomain.Subscription,
	req subscriptiondomain.UpdateAssetCountRequest,
	changeContext datatypes.JSONMap,
) {
	entry := &subscriptiondomain.UsageHistoryEntry{
		ID:             s.genID.Generate(),
		OrgID:          subscription.OrgID,
		SubscriptionID: subscription.ID,
		AssetCount:     req.AssetCount,
		PreviousCount:  subscription.CurrentAssetCount,
		ChangedBy:      req.ActorID,
		ChangeReason:   "asset_count_" + direction(req.AssetCount, subscription.CurrentAssetCount),
		ChangeContext:  changeContext,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.repo.InsertUsageHistory(ctx, tx, entry); err != nil {
		s.log.Warn("usage history write failed",
			zap.Int64("org_id", int64(subscription.OrgID)),
			zap.Error(err),
		)
	}
}

// CreateCheckout starts the hosted free-to-paid upgrade flow.
func (s *Service) CreateCheckout(ctx context.Context, req subscriptiondomain.CreateCheckoutRequest) (*billingdomain.CheckoutSession, error) {
	if req.OrgID == 0 || req.AssetCount < 1 {
		return nil, subscriptiondomain.ErrInvalidRequest
	}
	if req.BillingCycle != subscriptiondomain.BillingCycleMonthly && req.BillingCycle != subscriptiondomain.BillingCycleAnnual {
		return nil, subscriptiondomain.ErrInvalidRequest
	}
	if tier := pricing.FindTier(req.AssetCount, s.tiers.Tiers()); tier == nil {
		return nil, subscriptiondomain.ErrCustomPricingRequired
	}

	subscription, err := s.repo.FindActiveByOrgID(ctx, s.db, req.OrgID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	if !subscription.IsFree() {
		return nil, subscriptiondomain.ErrInvalidRequest
	}

	customerID := subscription.ProviderCustomerID
	if customerID == "" {
		customerID, err = s.provider.CreateCustomer(ctx, "org-"+req.OrgID.String(), map[string]string{
			"org_id": req.OrgID.String(),
		})
		if err != nil {
			return nil, err
		}
		if err := s.repo.Update(ctx, s.db, subscription.ID, subscriptiondomain.UpdateFields{
			ProviderCustomerID: &customerID,
		}); err != nil {
			return nil, err
		}
	}

	priceRef := s.billingCfg.MonthlyPriceID
	if req.BillingCycle == subscriptiondomain.BillingCycleAnnual {
		priceRef = s.billingCfg.AnnualPriceID
	}

	return s.provider.CreateCheckoutSession(ctx, billingdomain.CheckoutSessionRequest{
		CustomerID: customerID,
		PriceRef:   priceRef,
		Quantity:   int64(req.AssetCount),
		SuccessURL: s.billingCfg.CheckoutSuccessURL,
		CancelURL:  s.billingCfg.CheckoutCancelURL,
		Metadata: map[string]string{
			"org_id":        req.OrgID.String(),
			"user_id":       req.UserID.String(),
			"asset_count":   strconv.Itoa(req.AssetCount),
			"billing_cycle": string(req.BillingCycle),
		},
	})
}

// GetOverview returns the subscription with its current pricing preview.
func (s *Service) GetOverview(ctx context.Context, orgID snowflake.ID) (*subscriptiondomain.Overview, error) {
	subscription, err := s.repo.FindActiveByOrgID(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}

	provisioned, err := s.assets.CountProvisioned(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	overview := &subscriptiondomain.Overview{
		Subscription:      *subscription,
		ProvisionedAssets: provisioned,
	}
	if subscription.CurrentAssetCount > 0 {
		table := s.tiers.Tiers()
		quote, err := pricing.Calculate(subscription.CurrentAssetCount, intervalFor(subscription.BillingCycle), table)
		if err == nil && quote != nil {
			overview.Pricing = quote
			overview.NextTierSavings = pricing.NextTierSavings(subscription.CurrentAssetCount, table)
		}
	}
	return overview, nil
}

// ListInvoices proxies the provider's invoice list for the org.
func (s *Service) ListInvoices(ctx context.Context, orgID snowflake.ID) ([]billingdomain.Invoice, error) {
	subscription, err := s.repo.FindActiveByOrgID(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	if subscription.ProviderCustomerID == "" {
		return []billingdomain.Invoice{}, nil
	}
	return s.provider.ListInvoices(ctx, subscription.ProviderCustomerID)
}

// ListUsageHistory returns the most recent reconciliation audit entries.
func (s *Service) ListUsageHistory(ctx context.Context, orgID snowflake.ID, limit int) ([]subscriptiondomain.UsageHistoryEntry, error) {
	return s.repo.ListUsageHistory(ctx, s.db, orgID, limit)
}

func intervalFor(cycle subscriptiondomain.BillingCycle) pricing.Interval {
	if cycle == subscriptiondomain.BillingCycleAnnual {
		return pricing.IntervalAnnual
	}
	return pricing.IntervalMonthly
}

func direction(requested, current int) string {
	if requested > current {
		return "increase"
	}
	return "decrease"
}

func formatMinor(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s$%d.%02d", sign, amount/100, amount%100)
}

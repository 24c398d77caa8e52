package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/maintly/maintly/internal/billing/domain"
	billingeventdomain "github.com/maintly/maintly/internal/billingevent/domain"
	"github.com/maintly/maintly/internal/clock"
	"github.com/maintly/maintly/internal/observability/metrics"
	"github.com/maintly/maintly/internal/pricing"
	subscriptiondomain "github.com/maintly/maintly/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var errOrgMissing = errors.New("checkout event carries no org id")

type Processor struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	events  billingeventdomain.Repository
	subs    subscriptiondomain.Repository
	tiers   pricing.TierSource
	metrics *metrics.Metrics
}

type ProcessorParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Events  billingeventdomain.Repository
	Subs    subscriptiondomain.Repository
	Tiers   pricing.TierSource
	Metrics *metrics.Metrics `optional:"true"`
}

func NewProcessor(p ProcessorParam) billingeventdomain.Processor {
	return &Processor{
		db:      p.DB,
		log:     p.Log.Named("billingevent.processor"),
		genID:   p.GenID,
		clock:   p.Clock,
		events:  p.Events,
		subs:    p.Subs,
		tiers:   p.Tiers,
		metrics: p.Metrics,
	}
}

// Process records the delivery and applies it to subscription state. The
// event row is the source of truth for the outcome: duplicates short-circuit
// on the unique constraint, and handler failures are written to the row and
// swallowed so the provider stops redelivering.
func (p *Processor) Process(ctx context.Context, event *billingdomain.Event) error {
	row := &billingeventdomain.WebhookEvent{
		ID:              p.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      p.clock.Now(),
		Status:          billingeventdomain.StatusReceived,
	}

	inserted, err := p.events.InsertIfNew(ctx, p.db, row)
	if err != nil {
		return err
	}
	if !inserted {
		p.log.Debug("duplicate webhook delivery ignored",
			zap.String("provider", event.Provider),
			zap.String("event_id", event.ProviderEventID),
		)
		p.record(ctx, event, "duplicate")
		return nil
	}

	if err := p.db.Transaction(func(tx *gorm.DB) error {
		return p.handle(ctx, tx, event)
	}); err != nil {
		p.log.Error("webhook event processing failed",
			zap.String("provider", event.Provider),
			zap.String("event_id", event.ProviderEventID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		p.record(ctx, event, "failed")
		return p.events.MarkFailed(ctx, p.db, row.ID, p.clock.Now(), err.Error())
	}

	p.record(ctx, event, "completed")
	return p.events.MarkCompleted(ctx, p.db, row.ID, p.clock.Now())
}

func (p *Processor) record(ctx context.Context, event *billingdomain.Event, outcome string) {
	if p.metrics != nil {
		p.metrics.RecordWebhookEvent(ctx, event.Provider, event.Type, outcome)
	}
}

func (p *Processor) handle(ctx context.Context, tx *gorm.DB, event *billingdomain.Event) error {
	switch event.Type {
	case billingdomain.EventCheckoutCompleted:
		return p.handleCheckout(ctx, tx, event)
	case billingdomain.EventPaymentSucceeded:
		return p.applyStatus(ctx, tx, event, subscriptiondomain.StatusActive)
	case billingdomain.EventPaymentFailed, billingdomain.EventPaymentActionRequired:
		return p.applyStatus(ctx, tx, event, subscriptiondomain.StatusPastDue)
	case billingdomain.EventSubscriptionUpdated:
		return p.handleSubscriptionUpdated(ctx, tx, event)
	case billingdomain.EventSubscriptionDeleted:
		return p.applyStatus(ctx, tx, event, subscriptiondomain.StatusCanceled)
	default:
		p.log.Info("unhandled webhook event type", zap.String("event_type", event.Type))
		return nil
	}
}

// handleCheckout upgrades the org's free subscription in place. Pricing is
// recomputed from the session metadata rather than trusted from the payload.
func (p *Processor) handleCheckout(ctx context.Context, tx *gorm.DB, event *billingdomain.Event) error {
	checkout := event.Checkout
	if checkout == nil || checkout.OrgID == 0 {
		return errOrgMissing
	}

	cycle := subscriptiondomain.BillingCycleMonthly
	interval := pricing.IntervalMonthly
	if checkout.BillingCycle == string(subscriptiondomain.BillingCycleAnnual) {
		cycle = subscriptiondomain.BillingCycleAnnual
		interval = pricing.IntervalAnnual
	}

	quote, err := pricing.Calculate(checkout.AssetCount, interval, p.tiers.Tiers())
	if err != nil {
		return err
	}
	if quote == nil {
		return fmt.Errorf("asset count %d is outside the pricing table", checkout.AssetCount)
	}

	fields := subscriptiondomain.UpgradeFields{
		ProviderCustomerID:     checkout.CustomerID,
		ProviderSubscriptionID: checkout.SubscriptionID,
		ProviderItemID:         event.ItemID,
		CurrentAssetCount:      checkout.AssetCount,
		AssetLimit:             checkout.AssetCount,
		PricingTierName:        quote.Tier.Name,
		UnitPriceMinor:         quote.UnitPriceMinor,
		TotalMonthlyCostMinor:  quote.TotalMonthlyMinor,
		BillingCycle:           cycle,
		EventAt:                event.OccurredAt,
	}

	upgraded, err := p.subs.UpgradeFreeToPaid(ctx, tx, checkout.OrgID, fields)
	if err != nil {
		return err
	}
	if upgraded {
		p.log.Info("subscription upgraded from checkout",
			zap.Int64("org_id", int64(checkout.OrgID)),
			zap.Int("asset_count", checkout.AssetCount),
			zap.String("tier", quote.Tier.Name),
		)
		return nil
	}

	existing, err := p.subs.FindActiveByOrgID(ctx, tx, checkout.OrgID)
	if err != nil {
		return err
	}
	if existing != nil {
		// Already paid; a redelivery that slipped past the event log or a
		// second checkout for the same org. Nothing to change.
		p.log.Info("checkout event for already-paid subscription ignored",
			zap.Int64("org_id", int64(checkout.OrgID)),
		)
		return nil
	}

	// No live row at all. The org predates subscription seeding, so create
	// the paid row directly.
	now := p.clock.Now()
	subscriptionID := checkout.SubscriptionID
	itemID := event.ItemID
	sub := &subscriptiondomain.Subscription{
		ID:                     p.genID.Generate(),
		OrgID:                  checkout.OrgID,
		ProviderCustomerID:     checkout.CustomerID,
		ProviderSubscriptionID: &subscriptionID,
		CurrentAssetCount:      checkout.AssetCount,
		AssetLimit:             checkout.AssetCount,
		PricingTierName:        quote.Tier.Name,
		UnitPriceMinor:         quote.UnitPriceMinor,
		TotalMonthlyCostMinor:  quote.TotalMonthlyMinor,
		BillingCycle:           cycle,
		Status:                 subscriptiondomain.StatusActive,
		LastEventAt:            &event.OccurredAt,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if itemID != "" {
		sub.ProviderItemID = &itemID
	}
	return p.subs.Insert(ctx, tx, sub)
}

// applyStatus mirrors a provider status onto the matching subscription. The
// timestamp guard in the repository drops out-of-order deliveries.
func (p *Processor) applyStatus(ctx context.Context, tx *gorm.DB, event *billingdomain.Event, status subscriptiondomain.Status) error {
	sub, err := p.subs.FindByProviderSubscriptionID(ctx, tx, event.SubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		p.log.Warn("webhook event for unknown subscription",
			zap.String("provider_subscription_id", event.SubscriptionID),
			zap.String("event_type", event.Type),
		)
		return nil
	}

	applied, err := p.subs.UpdateStatusIfNewer(ctx, tx, sub.ID, status, event.OccurredAt)
	if err != nil {
		return err
	}
	if !applied {
		p.log.Debug("stale webhook event dropped",
			zap.Int64("subscription_id", int64(sub.ID)),
			zap.String("event_type", event.Type),
			zap.Time("occurred_at", event.OccurredAt),
		)
	}
	return nil
}

func (p *Processor) handleSubscriptionUpdated(ctx context.Context, tx *gorm.DB, event *billingdomain.Event) error {
	sub, err := p.subs.FindByProviderSubscriptionID(ctx, tx, event.SubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		p.log.Warn("webhook event for unknown subscription",
			zap.String("provider_subscription_id", event.SubscriptionID),
			zap.String("event_type", event.Type),
		)
		return nil
	}

	// The item id is not known at checkout time; the first subscription
	// snapshot after checkout backfills it.
	if (sub.ProviderItemID == nil || *sub.ProviderItemID == "") && event.ItemID != "" {
		itemID := event.ItemID
		if err := p.subs.Update(ctx, tx, sub.ID, subscriptiondomain.UpdateFields{
			ProviderItemID: &itemID,
		}); err != nil {
			return err
		}
	}

	status := mapStatus(event.SubscriptionStatus)
	_, err = p.subs.UpdateStatusIfNewer(ctx, tx, sub.ID, status, event.OccurredAt)
	return err
}

func mapStatus(s string) subscriptiondomain.Status {
	switch subscriptiondomain.Status(s) {
	case subscriptiondomain.StatusPastDue:
		return subscriptiondomain.StatusPastDue
	case subscriptiondomain.StatusCanceled:
		return subscriptiondomain.StatusCanceled
	default:
		return subscriptiondomain.StatusActive
	}
}

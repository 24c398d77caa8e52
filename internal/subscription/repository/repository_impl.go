package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/maintly/maintly/internal/subscription/domain"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, org_id, provider_customer_id, provider_subscription_id, provider_item_id,
	 current_asset_count, asset_limit, pricing_tier_name, unit_price_minor, total_monthly_cost_minor,
	 billing_cycle, status, last_event_at, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, org_id, provider_customer_id, provider_subscription_id, provider_item_id,
			current_asset_count, asset_limit, pricing_tier_name, unit_price_minor,
			total_monthly_cost_minor, billing_cycle, status, last_event_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.OrgID,
		subscription.ProviderCustomerID,
		subscription.ProviderSubscriptionID,
		subscription.ProviderItemID,
		subscription.CurrentAssetCount,
		subscription.AssetLimit,
		subscription.PricingTierName,
		subscription.UnitPriceMinor,
		subscription.TotalMonthlyCostMinor,
		subscription.BillingCycle,
		subscription.Status,
		subscription.LastEventAt,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindActiveByOrgID(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findActive(ctx, db, orgID, false)
}

func (r *repo) FindActiveByOrgIDForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findActive(ctx, db, orgID, true)
}

func (r *repo) findActive(ctx context.Context, db *gorm.DB, orgID snowflake.ID, forUpdate bool) (*subscriptiondomain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
	 FROM subscriptions WHERE org_id = ? AND status <> 'canceled'`
	if forUpdate && supportsRowLock(db) {
		query += " FOR UPDATE"
	}

	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(query, orgID).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	if err := subscription.Validate(); err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repo) FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions WHERE provider_subscription_id = ?`,
		providerSubscriptionID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	if err := subscription.Validate(); err != nil {
		return nil, err
	}
	return &subscription, nil
}

// Update applies all non-nil fields in one UPDATE so a concurrent writer
// cannot observe a half-applied change.
func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields subscriptiondomain.UpdateFields) error {
	sets := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)

	if fields.ProviderCustomerID != nil {
		sets = append(sets, "provider_customer_id = ?")
		args = append(args, *fields.ProviderCustomerID)
	}
	if fields.CurrentAssetCount != nil {
		sets = append(sets, "current_asset_count = ?")
		args = append(args, *fields.CurrentAssetCount)
	}
	if fields.AssetLimit != nil {
		sets = append(sets, "asset_limit = ?")
		args = append(args, *fields.AssetLimit)
	}
	if fields.PricingTierName != nil {
		sets = append(sets, "pricing_tier_name = ?")
		args = append(args, *fields.PricingTierName)
	}
	if fields.UnitPriceMinor != nil {
		sets = append(sets, "unit_price_minor = ?")
		args = append(args, *fields.UnitPriceMinor)
	}
	if fields.TotalMonthlyCostMinor != nil {
		sets = append(sets, "total_monthly_cost_minor = ?")
		args = append(args, *fields.TotalMonthlyCostMinor)
	}
	if fields.ProviderItemID != nil {
		sets = append(sets, "provider_item_id = ?")
		args = append(args, *fields.ProviderItemID)
	}
	if fields.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *fields.Status)
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE subscriptions SET %s WHERE id = ?", strings.Join(sets, ", "))
	return db.WithContext(ctx).Exec(query, args...).Error
}

// UpgradeFreeToPaid converts the org's free row in place, preserving its id.
// The provider_subscription_id IS NULL guard makes redelivered checkout
// events no-ops; the caller inspects the returned flag.
func (r *repo) UpgradeFreeToPaid(ctx context.Context, db *gorm.DB, orgID snowflake.ID, fields subscriptiondomain.UpgradeFields) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET
			provider_customer_id = ?,
			provider_subscription_id = ?,
			provider_item_id = ?,
			current_asset_count = ?,
			asset_limit = ?,
			pricing_tier_name = ?,
			unit_price_minor = ?,
			total_monthly_cost_minor = ?,
			billing_cycle = ?,
			status = 'active',
			last_event_at = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE org_id = ? AND status <> 'canceled' AND provider_subscription_id IS NULL`,
		fields.ProviderCustomerID,
		fields.ProviderSubscriptionID,
		nullableString(fields.ProviderItemID),
		fields.CurrentAssetCount,
		fields.AssetLimit,
		fields.PricingTierName,
		fields.UnitPriceMinor,
		fields.TotalMonthlyCostMinor,
		fields.BillingCycle,
		fields.EventAt,
		orgID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateStatusIfNewer applies a webhook-driven status change only when the
// event is more recent than the last one applied, so out-of-order deliveries
// cannot roll the row backwards.
func (r *repo) UpdateStatusIfNewer(ctx context.Context, db *gorm.DB, id snowflake.ID, status subscriptiondomain.Status, eventAt time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, last_event_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND (last_event_at IS NULL OR last_event_at <= ?)`,
		status,
		eventAt,
		id,
		eventAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertUsageHistory(ctx context.Context, db *gorm.DB, entry *subscriptiondomain.UsageHistoryEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO usage_history (
			id, org_id, subscription_id, asset_count, previous_count,
			changed_by, change_reason, change_context, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.OrgID,
		entry.SubscriptionID,
		entry.AssetCount,
		entry.PreviousCount,
		entry.ChangedBy,
		entry.ChangeReason,
		entry.ChangeContext,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListUsageHistory(ctx context.Context, db *gorm.DB, orgID snowflake.ID, limit int) ([]subscriptiondomain.UsageHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []subscriptiondomain.UsageHistoryEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, subscription_id, asset_count, previous_count,
		 changed_by, change_reason, change_context, created_at
		 FROM usage_history WHERE org_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		orgID,
		limit,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// sqlite has no SELECT ... FOR UPDATE; its writes serialize on the database
// handle instead.
func supportsRowLock(db *gorm.DB) bool {
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}

func nullableString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

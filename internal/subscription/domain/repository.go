package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// UpdateFields is a partial update applied in a single statement, so
// concurrent writers cannot interleave field by field. Nil fields are
// left untouched.
type UpdateFields struct {
	ProviderCustomerID    *string
	CurrentAssetCount     *int
	AssetLimit            *int
	PricingTierName       *string
	UnitPriceMinor        *int64
	TotalMonthlyCostMinor *int64
	ProviderItemID        *string
	Status                *Status
}

// UpgradeFields carries everything the free to paid transition sets on the
// existing row.
type UpgradeFields struct {
	ProviderCustomerID     string
	ProviderSubscriptionID string
	ProviderItemID         string
	CurrentAssetCount      int
	AssetLimit             int
	PricingTierName        string
	UnitPriceMinor         int64
	TotalMonthlyCostMinor  int64
	BillingCycle           BillingCycle
	EventAt                time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindActiveByOrgID(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Subscription, error)
	FindActiveByOrgIDForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Subscription, error)
	FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*Subscription, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields UpdateFields) error
	UpgradeFreeToPaid(ctx context.Context, db *gorm.DB, orgID snowflake.ID, fields UpgradeFields) (bool, error)
	UpdateStatusIfNewer(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, eventAt time.Time) (bool, error)
	InsertUsageHistory(ctx context.Context, db *gorm.DB, entry *UsageHistoryEntry) error
	ListUsageHistory(ctx context.Context, db *gorm.DB, orgID snowflake.ID, limit int) ([]UsageHistoryEntry, error)
}

// AssetCounter reports how many assets an organization currently has
// provisioned. The reconciler refuses to bill below this floor.
type AssetCounter interface {
	CountProvisioned(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int, error)
}

// Package domain contains persistence models for organization subscriptions
// and their usage audit trail.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status represents lifecycle states for a subscription. Transitions to
// past_due and canceled happen only through webhook events.
type Status string

const (
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// BillingCycle is the recurring interval the provider bills on.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleAnnual  BillingCycle = "annual"
)

// DefaultFreeAssetLimit is the hard ceiling for subscriptions that have not
// gone through checkout.
const DefaultFreeAssetLimit = 10

// Subscription is the single billing row per organization. A nil
// ProviderSubscriptionID means a free subscription with no external billing
// relationship; the row is upgraded in place on checkout completion, never
// replaced, so its identity survives the free to paid transition.
type Subscription struct {
	ID                     snowflake.ID `gorm:"primaryKey"`
	OrgID                  snowflake.ID `gorm:"not null;index"`
	ProviderCustomerID     string       `gorm:"type:text;not null;default:''"`
	ProviderSubscriptionID *string      `gorm:"type:text;index"`
	ProviderItemID         *string      `gorm:"type:text"`
	CurrentAssetCount      int          `gorm:"not null;default:0"`
	AssetLimit             int          `gorm:"not null;default:0"`
	PricingTierName        string       `gorm:"type:text;not null;default:''"`
	UnitPriceMinor         int64        `gorm:"not null;default:0"`
	TotalMonthlyCostMinor  int64        `gorm:"not null;default:0"`
	BillingCycle           BillingCycle `gorm:"type:text;not null;default:'monthly'"`
	Status                 Status       `gorm:"type:text;not null;default:'active'"`
	LastEventAt            *time.Time   `gorm:""`
	CreatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// IsFree reports whether the subscription has no external billing relationship.
func (s *Subscription) IsFree() bool {
	return s.ProviderSubscriptionID == nil || strings.TrimSpace(*s.ProviderSubscriptionID) == ""
}

// Validate rejects rows that violate the model's invariants. Malformed rows
// are surfaced as ErrDataCorruption at the repository boundary instead of
// leaking zero values into billing math.
func (s *Subscription) Validate() error {
	switch s.Status {
	case StatusActive, StatusPastDue, StatusCanceled:
	default:
		return ErrDataCorruption
	}
	switch s.BillingCycle {
	case BillingCycleMonthly, BillingCycleAnnual:
	default:
		return ErrDataCorruption
	}
	if s.CurrentAssetCount < 0 || s.AssetLimit < 0 {
		return ErrDataCorruption
	}
	if s.UnitPriceMinor < 0 || s.TotalMonthlyCostMinor < 0 {
		return ErrDataCorruption
	}
	return nil
}

// UsageHistoryEntry is the append-only audit record for one successful
// asset-count reconciliation. Entries are never updated or deleted.
type UsageHistoryEntry struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	OrgID          snowflake.ID      `gorm:"not null;index"`
	SubscriptionID snowflake.ID      `gorm:"not null;index"`
	AssetCount     int               `gorm:"not null"`
	PreviousCount  int               `gorm:"not null"`
	ChangedBy      snowflake.ID      `gorm:""`
	ChangeReason   string            `gorm:"type:text;not null;default:''"`
	ChangeContext  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageHistoryEntry) TableName() string { return "usage_history" }

// NewFreeSubscription builds the free row created alongside an organization.
func NewFreeSubscription(id, orgID snowflake.ID, now time.Time) *Subscription {
	return &Subscription{
		ID:                id,
		OrgID:             orgID,
		CurrentAssetCount: 0,
		AssetLimit:        DefaultFreeAssetLimit,
		BillingCycle:      BillingCycleMonthly,
		Status:            StatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

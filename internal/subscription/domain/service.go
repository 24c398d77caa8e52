package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/maintly/maintly/internal/billing/domain"
	"github.com/maintly/maintly/internal/pricing"
)

var (
	ErrSubscriptionNotFound  = errors.New("subscription_not_found")
	ErrInvalidRequest        = errors.New("invalid_request")
	ErrLimitExceeded         = errors.New("asset_limit_exceeded")
	ErrCustomPricingRequired = errors.New("custom_pricing_required")
	ErrDataCorruption        = errors.New("data_corruption")
)

type UpdateAssetCountRequest struct {
	OrgID      snowflake.ID
	AssetCount int
	ActorID    snowflake.ID
}

// BillingOutcome summarizes the provider-side effect of a reconciliation.
type BillingOutcome struct {
	CostDifferenceMinor int64  `json:"cost_difference_minor"`
	ChargeAmountMinor   int64  `json:"charge_amount_minor"`
	IsUpgrade           bool   `json:"is_upgrade"`
	InvoiceID           string `json:"invoice_id,omitempty"`
}

type UpdateAssetCountResponse struct {
	AssetCount int            `json:"asset_count"`
	Pricing    *pricing.Quote `json:"pricing,omitempty"`
	VolumeTier string         `json:"volume_tier,omitempty"`
	Billing    BillingOutcome `json:"billing"`
	Message    string         `json:"message"`
}

type CreateCheckoutRequest struct {
	OrgID        snowflake.ID
	UserID       snowflake.ID
	AssetCount   int
	BillingCycle BillingCycle
}

type Overview struct {
	Subscription      Subscription     `json:"subscription"`
	Pricing           *pricing.Quote   `json:"pricing,omitempty"`
	NextTierSavings   *pricing.Savings `json:"next_tier_savings,omitempty"`
	ProvisionedAssets int              `json:"provisioned_assets"`
}

type Service interface {
	UpdateAssetCount(ctx context.Context, req UpdateAssetCountRequest) (*UpdateAssetCountResponse, error)
	CreateCheckout(ctx context.Context, req CreateCheckoutRequest) (*billingdomain.CheckoutSession, error)
	GetOverview(ctx context.Context, orgID snowflake.ID) (*Overview, error)
	ListInvoices(ctx context.Context, orgID snowflake.ID) ([]billingdomain.Invoice, error)
	ListUsageHistory(ctx context.Context, orgID snowflake.ID, limit int) ([]UsageHistoryEntry, error)
}

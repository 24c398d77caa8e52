package pricing

import (
	"errors"
	"fmt"
)

// TierSource yields the currently effective tier table. The config holder
// implements it with a hot-reloadable table.
type TierSource interface {
	Tiers() []Tier
}

// StaticTiers is a TierSource over a fixed table.
type StaticTiers []Tier

func (s StaticTiers) Tiers() []Tier { return s }

// Interval is the billing interval a quote is expressed in.
type Interval string

const (
	IntervalMonthly Interval = "monthly"
	IntervalAnnual  Interval = "annual"
)

var ErrInvalidInterval = errors.New("invalid_billing_interval")

// Tier is a contiguous asset-count range billed at a flat per-asset price.
// MaxAssets nil means the table ends at the previous tier; counts beyond the
// last bounded tier have no tier and require custom pricing.
type Tier struct {
	Name           string `mapstructure:"name" json:"name"`
	MinAssets      int    `mapstructure:"minAssets" json:"min_assets"`
	MaxAssets      *int   `mapstructure:"maxAssets" json:"max_assets"`
	UnitPriceMinor int64  `mapstructure:"unitPriceMinor" json:"unit_price_minor"`
}

// Quote is the result of pricing an asset count. All units are billed at the
// rate of the tier the total count falls into (volume pricing, not marginal).
type Quote struct {
	Tier              Tier     `json:"tier"`
	UnitPriceMinor    int64    `json:"unit_price_minor"`
	TotalMonthlyMinor int64    `json:"total_monthly_minor"`
	TermTotalMinor    int64    `json:"term_total_minor"`
	Interval          Interval `json:"interval"`
}

// Savings is the advisory next-tier hint: the monthly delta if the
// organization grew to the next tier's minimum count.
type Savings struct {
	NextTierName         string `json:"next_tier_name"`
	NextTierMinAssets    int    `json:"next_tier_min_assets"`
	NextTierUnitMinor    int64  `json:"next_tier_unit_minor"`
	MonthlySavingsMinor  int64  `json:"monthly_savings_minor"`
	CurrentMonthlyMinor  int64  `json:"current_monthly_minor"`
	NextTierMonthlyMinor int64  `json:"next_tier_monthly_minor"`
}

// DefaultTiers is the compiled-in tier table, covering counts 1..249.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "Starter", MinAssets: 1, MaxAssets: intPtr(9), UnitPriceMinor: 499},
		{Name: "Value", MinAssets: 10, MaxAssets: intPtr(49), UnitPriceMinor: 459},
		{Name: "Popular", MinAssets: 50, MaxAssets: intPtr(99), UnitPriceMinor: 379},
		{Name: "Scale", MinAssets: 100, MaxAssets: intPtr(249), UnitPriceMinor: 299},
	}
}

func intPtr(v int) *int { return &v }

// ValidateTable rejects tables whose tiers are not contiguous, non-overlapping
// ranges with positive prices. Every tier except the last must be bounded.
func ValidateTable(tiers []Tier) error {
	if len(tiers) == 0 {
		return errors.New("pricing table cannot be empty")
	}
	for i, tier := range tiers {
		if tier.Name == "" {
			return fmt.Errorf("tier %d has no name", i)
		}
		if tier.UnitPriceMinor <= 0 {
			return fmt.Errorf("tier %q unit price must be positive", tier.Name)
		}
		if tier.MaxAssets != nil && *tier.MaxAssets < tier.MinAssets {
			return fmt.Errorf("tier %q has maxAssets below minAssets", tier.Name)
		}
		if i == 0 {
			if tier.MinAssets < 1 {
				return fmt.Errorf("tier %q must start at 1 or above", tier.Name)
			}
			continue
		}
		prev := tiers[i-1]
		if prev.MaxAssets == nil {
			return fmt.Errorf("tier %q is unbounded but not last", prev.Name)
		}
		if tier.MinAssets != *prev.MaxAssets+1 {
			return fmt.Errorf("tier %q does not start adjacent to %q", tier.Name, prev.Name)
		}
	}
	return nil
}

// FindTier returns the tier containing assetCount, or nil when the count
// exceeds every tier (custom pricing territory).
func FindTier(assetCount int, tiers []Tier) *Tier {
	if assetCount < 1 {
		return nil
	}
	for i := range tiers {
		tier := tiers[i]
		if assetCount < tier.MinAssets {
			return nil
		}
		if tier.MaxAssets == nil || assetCount <= *tier.MaxAssets {
			return &tier
		}
	}
	return nil
}

// Calculate prices assetCount under volume pricing. Returns nil when no tier
// matches. The term total is 12x the monthly total on the annual interval.
func Calculate(assetCount int, interval Interval, tiers []Tier) (*Quote, error) {
	if interval != IntervalMonthly && interval != IntervalAnnual {
		return nil, ErrInvalidInterval
	}
	tier := FindTier(assetCount, tiers)
	if tier == nil {
		return nil, nil
	}

	monthly := int64(assetCount) * tier.UnitPriceMinor
	term := monthly
	if interval == IntervalAnnual {
		term = monthly * 12
	}

	return &Quote{
		Tier:              *tier,
		UnitPriceMinor:    tier.UnitPriceMinor,
		TotalMonthlyMinor: monthly,
		TermTotalMinor:    term,
		Interval:          interval,
	}, nil
}

// NextTierSavings reports the monthly delta if the organization grew to the
// next tier's minimum count. Advisory only; nil when already on the last tier
// or the count has no tier.
func NextTierSavings(assetCount int, tiers []Tier) *Savings {
	current := FindTier(assetCount, tiers)
	if current == nil {
		return nil
	}

	var next *Tier
	for i := range tiers {
		if tiers[i].Name == current.Name && i+1 < len(tiers) {
			next = &tiers[i+1]
			break
		}
	}
	if next == nil {
		return nil
	}

	currentMonthly := int64(assetCount) * current.UnitPriceMinor
	nextMonthly := int64(next.MinAssets) * next.UnitPriceMinor

	return &Savings{
		NextTierName:         next.Name,
		NextTierMinAssets:    next.MinAssets,
		NextTierUnitMinor:    next.UnitPriceMinor,
		MonthlySavingsMinor:  currentMonthly - nextMonthly,
		CurrentMonthlyMinor:  currentMonthly,
		NextTierMonthlyMinor: nextMonthly,
	}
}

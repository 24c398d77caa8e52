package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindTierCoversSupportedRange(t *testing.T) {
	tiers := DefaultTiers()

	for n := 1; n <= 249; n++ {
		tier := FindTier(n, tiers)
		require.NotNilf(t, tier, "count %d has no tier", n)
		assert.GreaterOrEqual(t, n, tier.MinAssets)
		if tier.MaxAssets != nil {
			assert.LessOrEqual(t, n, *tier.MaxAssets)
		}
	}
}

func TestFindTierBoundaries(t *testing.T) {
	tiers := DefaultTiers()

	cases := []struct {
		count int
		tier  string
	}{
		{1, "Starter"},
		{9, "Starter"},
		{10, "Value"},
		{49, "Value"},
		{50, "Popular"},
		{99, "Popular"},
		{100, "Scale"},
		{249, "Scale"},
	}
	for _, tc := range cases {
		tier := FindTier(tc.count, tiers)
		require.NotNil(t, tier)
		assert.Equalf(t, tc.tier, tier.Name, "count %d", tc.count)
	}

	assert.Nil(t, FindTier(250, tiers))
	assert.Nil(t, FindTier(0, tiers))
	assert.Nil(t, FindTier(-3, tiers))
}

func TestUnitPriceMonotonicity(t *testing.T) {
	tiers := DefaultTiers()

	for i := 1; i < len(tiers); i++ {
		assert.LessOrEqual(t, tiers[i].UnitPriceMinor, tiers[i-1].UnitPriceMinor)
	}
}

func TestCalculateVolumePricing(t *testing.T) {
	tiers := DefaultTiers()

	for n := 1; n <= 249; n++ {
		quote, err := Calculate(n, IntervalMonthly, tiers)
		require.NoError(t, err)
		require.NotNil(t, quote)
		assert.Equal(t, int64(n)*quote.UnitPriceMinor, quote.TotalMonthlyMinor)
		assert.Equal(t, quote.TotalMonthlyMinor, quote.TermTotalMinor)
	}
}

func TestCalculateExactTotals(t *testing.T) {
	tiers := DefaultTiers()

	quote, err := Calculate(40, IntervalMonthly, tiers)
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.Equal(t, "Value", quote.Tier.Name)
	assert.Equal(t, int64(459), quote.UnitPriceMinor)
	assert.Equal(t, int64(18360), quote.TotalMonthlyMinor)

	quote, err = Calculate(60, IntervalMonthly, tiers)
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.Equal(t, "Popular", quote.Tier.Name)
	assert.Equal(t, int64(379), quote.UnitPriceMinor)
	assert.Equal(t, int64(22740), quote.TotalMonthlyMinor)
}

func TestCalculateAnnualTerm(t *testing.T) {
	quote, err := Calculate(10, IntervalAnnual, DefaultTiers())
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.Equal(t, int64(4590), quote.TotalMonthlyMinor)
	assert.Equal(t, int64(55080), quote.TermTotalMinor)
}

func TestCalculateBeyondLastTier(t *testing.T) {
	quote, err := Calculate(250, IntervalMonthly, DefaultTiers())
	require.NoError(t, err)
	assert.Nil(t, quote)
}

func TestCalculateRejectsUnknownInterval(t *testing.T) {
	_, err := Calculate(10, Interval("weekly"), DefaultTiers())
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestNextTierSavings(t *testing.T) {
	tiers := DefaultTiers()

	savings := NextTierSavings(45, tiers)
	require.NotNil(t, savings)
	assert.Equal(t, "Popular", savings.NextTierName)
	assert.Equal(t, 50, savings.NextTierMinAssets)
	assert.Equal(t, int64(45*459), savings.CurrentMonthlyMinor)
	assert.Equal(t, int64(50*379), savings.NextTierMonthlyMinor)
	assert.Equal(t, int64(45*459-50*379), savings.MonthlySavingsMinor)

	assert.Nil(t, NextTierSavings(200, tiers), "last tier has no next tier")
	assert.Nil(t, NextTierSavings(250, tiers))
}

func TestValidateTable(t *testing.T) {
	require.NoError(t, ValidateTable(DefaultTiers()))

	assert.Error(t, ValidateTable(nil))

	gap := []Tier{
		{Name: "A", MinAssets: 1, MaxAssets: intPtr(9), UnitPriceMinor: 500},
		{Name: "B", MinAssets: 11, MaxAssets: intPtr(20), UnitPriceMinor: 400},
	}
	assert.Error(t, ValidateTable(gap), "non-adjacent tiers rejected")

	overlap := []Tier{
		{Name: "A", MinAssets: 1, MaxAssets: intPtr(10), UnitPriceMinor: 500},
		{Name: "B", MinAssets: 10, MaxAssets: intPtr(20), UnitPriceMinor: 400},
	}
	assert.Error(t, ValidateTable(overlap))

	freePrice := []Tier{{Name: "A", MinAssets: 1, MaxAssets: intPtr(10), UnitPriceMinor: 0}}
	assert.Error(t, ValidateTable(freePrice))

	unboundedMiddle := []Tier{
		{Name: "A", MinAssets: 1, MaxAssets: nil, UnitPriceMinor: 500},
		{Name: "B", MinAssets: 10, MaxAssets: intPtr(20), UnitPriceMinor: 400},
	}
	assert.Error(t, ValidateTable(unboundedMiddle))
}

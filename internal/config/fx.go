package config

import (
	"github.com/maintly/maintly/internal/pricing"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(
		Load,
		NewPricingConfigHolder,
		func(holder *PricingConfigHolder) pricing.TierSource { return holder },
	),
)

package billing

import (
	billingdomain "github.com/maintly/maintly/internal/billing/domain"
	billingstripe "github.com/maintly/maintly/internal/billing/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(
		fx.Annotate(billingstripe.New, fx.As(new(billingdomain.Provider))),
	),
)

package subscription

import (
	"github.com/maintly/maintly/internal/subscription/repository"
	"github.com/maintly/maintly/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)

package organization

import (
	"github.com/maintly/maintly/internal/organization/repository"
	"github.com/maintly/maintly/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization",
	fx.Provide(
		repository.NewRepository,
		service.NewService,
	),
)

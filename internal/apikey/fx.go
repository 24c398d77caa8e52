package apikey

import (
	"github.com/maintly/maintly/internal/apikey/repository"
	"github.com/maintly/maintly/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

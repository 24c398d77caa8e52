package billingevent

import (
	"github.com/maintly/maintly/internal/billingevent/repository"
	"github.com/maintly/maintly/internal/billingevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingevent",
	fx.Provide(
		repository.Provide,
		service.NewProcessor,
	),
)

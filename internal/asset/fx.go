package asset

import (
	assetdomain "github.com/maintly/maintly/internal/asset/domain"
	"github.com/maintly/maintly/internal/asset/repository"
	"github.com/maintly/maintly/internal/asset/service"
	subscriptiondomain "github.com/maintly/maintly/internal/subscription/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("asset",
	fx.Provide(
		repository.Provide,
		service.NewService,
		// The asset repository doubles as the reconciler's provisioned-count
		// source.
		func(repo assetdomain.Repository) subscriptiondomain.AssetCounter { return repo },
	),
)

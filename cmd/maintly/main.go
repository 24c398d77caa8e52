package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/maintly/maintly/internal/apikey"
	"github.com/maintly/maintly/internal/asset"
	"github.com/maintly/maintly/internal/billing"
	"github.com/maintly/maintly/internal/billingevent"
	"github.com/maintly/maintly/internal/clock"
	"github.com/maintly/maintly/internal/config"
	"github.com/maintly/maintly/internal/migration"
	"github.com/maintly/maintly/internal/observability"
	"github.com/maintly/maintly/internal/organization"
	"github.com/maintly/maintly/internal/ratelimit"
	"github.com/maintly/maintly/internal/server"
	"github.com/maintly/maintly/internal/subscription"
	"github.com/maintly/maintly/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,

		billing.Module,
		organization.Module,
		subscription.Module,
		billingevent.Module,
		asset.Module,
		apikey.Module,

		server.Module,
	)
	app.Run()
}

func registerSnowflake() *snowflake.Node {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE_ID"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			nodeID = parsed
		}
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		panic(err)
	}
	return node
}

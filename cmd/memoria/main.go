package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/clock"
	"github.com/smallbiznis/memoria/internal/config"
	"github.com/smallbiznis/memoria/internal/migration"
	"github.com/smallbiznis/memoria/internal/observability"
	"github.com/smallbiznis/memoria/internal/server"
	"github.com/smallbiznis/memoria/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Domains and HTTP surface
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}

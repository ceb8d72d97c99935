package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/fitmirror/fitmirror/internal/clock"
	"github.com/fitmirror/fitmirror/internal/config"
	"github.com/fitmirror/fitmirror/internal/migration"
	"github.com/fitmirror/fitmirror/internal/notify"
	"github.com/fitmirror/fitmirror/internal/observability"
	"github.com/fitmirror/fitmirror/internal/scheduler"
	"github.com/fitmirror/fitmirror/internal/server"
	"github.com/fitmirror/fitmirror/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		notify.Module,

		server.Module,

		scheduler.Module,
		migration.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

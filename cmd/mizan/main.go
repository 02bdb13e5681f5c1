package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/mizanlaw/mizan/internal/audit"
	"github.com/mizanlaw/mizan/internal/billingrate"
	"github.com/mizanlaw/mizan/internal/clock"
	"github.com/mizanlaw/mizan/internal/config"
	"github.com/mizanlaw/mizan/internal/expense"
	"github.com/mizanlaw/mizan/internal/invoice"
	"github.com/mizanlaw/mizan/internal/locks"
	"github.com/mizanlaw/mizan/internal/migration"
	"github.com/mizanlaw/mizan/internal/observability"
	"github.com/mizanlaw/mizan/internal/payment"
	"github.com/mizanlaw/mizan/internal/retainer"
	"github.com/mizanlaw/mizan/internal/scheduler"
	"github.com/mizanlaw/mizan/internal/server"
	"github.com/mizanlaw/mizan/internal/timeentry"
	"github.com/mizanlaw/mizan/internal/timer"
	"github.com/mizanlaw/mizan/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		locks.Module,
		migration.Module,

		// domain services
		audit.Module,
		billingrate.Module,
		timeentry.Module,
		timer.Module,
		expense.Module,
		invoice.Module,
		payment.Module,
		retainer.Module,

		// background jobs and HTTP surface
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

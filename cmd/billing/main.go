package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/orcafacil/billing/internal/audit"
	"github.com/orcafacil/billing/internal/budget"
	"github.com/orcafacil/billing/internal/config"
	"github.com/orcafacil/billing/internal/credential"
	"github.com/orcafacil/billing/internal/customer"
	"github.com/orcafacil/billing/internal/invoice"
	"github.com/orcafacil/billing/internal/migration"
	"github.com/orcafacil/billing/internal/notification"
	"github.com/orcafacil/billing/internal/observability"
	"github.com/orcafacil/billing/internal/payment"
	"github.com/orcafacil/billing/internal/ratelimit"
	"github.com/orcafacil/billing/internal/server"
	"github.com/orcafacil/billing/internal/serviceorder"
	"github.com/orcafacil/billing/internal/subscription"
	"github.com/orcafacil/billing/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		ratelimit.Module,

		audit.Module,
		customer.Module,
		budget.Module,
		invoice.Module,
		serviceorder.Module,
		subscription.Module,
		credential.Module,
		notification.Module,
		payment.Module,

		server.Module,
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

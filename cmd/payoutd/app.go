package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payoutd/internal/alert"
	"github.com/smallbiznis/payoutd/internal/audit"
	"github.com/smallbiznis/payoutd/internal/clock"
	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/customer"
	"github.com/smallbiznis/payoutd/internal/ledger"
	"github.com/smallbiznis/payoutd/internal/observability"
	"github.com/smallbiznis/payoutd/internal/order"
	"github.com/smallbiznis/payoutd/internal/payment"
	"github.com/smallbiznis/payoutd/internal/payout"
	"github.com/smallbiznis/payoutd/internal/payoutaccount"
	"github.com/smallbiznis/payoutd/internal/providers"
	"github.com/smallbiznis/payoutd/internal/ratelimit"
	"github.com/smallbiznis/payoutd/internal/subscription"
	"github.com/smallbiznis/payoutd/internal/user"
	"github.com/smallbiznis/payoutd/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// infrastructure is what every command needs: configuration, logging and
// the database.
func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
}

// domains wires the business services without any inbound surface.
func domains() fx.Option {
	return fx.Options(
		providers.Module,
		ratelimit.Module,
		audit.Module,
		alert.Module,
		user.Module,
		ledger.Module,
		customer.Module,
		order.Module,
		payoutaccount.Module,
		payout.Module,
		subscription.Module,
		payment.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

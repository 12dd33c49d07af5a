package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"vpnstore/pkg/config"
	"vpnstore/pkg/db"
	"vpnstore/pkg/health"
	"vpnstore/pkg/logger"
	"vpnstore/pkg/redis"
	"vpnstore/pkg/sequence"
	"vpnstore/pkg/server"
	"vpnstore/pkg/session"
	"vpnstore/pkg/task"
	"vpnstore/services/account"
	"vpnstore/services/billing"
	"vpnstore/services/notify"
	"vpnstore/services/promo"
	"vpnstore/services/provisioning"
	"vpnstore/services/referral"
	"vpnstore/services/subscription"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		task.Scheduler,
		sequence.Module,
		session.Module,
		server.ProvideHTTPServer,
		health.Module,
		fx.Provide(provideSnowflakeNode),
		fx.Invoke(migrate),
		account.Module,
		provisioning.Module,
		billing.Module,
		subscription.Module,
		referral.Module,
		promo.Module,
		notify.Module,
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&account.User{},
		&billing.TopUp{},
		&subscription.Subscription{},
		&referral.ReferralActivation{},
		&referral.ReferralBonus{},
		&promo.AdminPromo{},
		&promo.AdminPromoActivation{},
	)
}

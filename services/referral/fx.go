package referral

import (
	"vpnstore/services/billing"

	"go.uber.org/fx"
)

var Module = fx.Module("referral.service",
	fx.Provide(
		NewService,
		NewTask,
		fx.Annotate(
			func(s *Service) *Service { return s },
			fx.As(new(billing.BonusCleaner)),
		),
	),
	fx.Invoke(
		RegisterTaskHandlers,
	),
)

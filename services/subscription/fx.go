package subscription

import "go.uber.org/fx"

var Module = fx.Module("subscription.service",
	fx.Provide(
		NewService,
		NewTask,
	),
	fx.Invoke(
		RegisterTaskHandlers,
		RegisterScheduledTasks,
	),
)

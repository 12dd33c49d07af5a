package billing

import "go.uber.org/fx"

var Module = fx.Module("billing.service",
	fx.Provide(
		NewInvoiceClient,
		NewService,
		NewHandler,
		NewTask,
	),
	fx.Invoke(
		RegisterRoutes,
		RegisterTaskHandlers,
		RegisterScheduledTasks,
	),
)

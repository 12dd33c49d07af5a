package taskname

const (
	// Billing tasks
	TopUpCredited     = "billing:topup:credited"
	TopUpTimeoutSweep = "billing:topup:timeout_sweep"

	// Subscription tasks
	SubscriptionExpirySweep = "subscription:expiry_sweep"

	// Notification tasks
	NotifyUser = "notify:user"
)

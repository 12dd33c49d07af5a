package billing

import (
	"encoding/json"
	"time"

	"vpnstore/pkg/taskname"

	"github.com/hibiken/asynq"
)

// TopUpCreditedPayload is the domain event emitted exactly once per credited
// top-up. Consumers (referral bonus, notifier) must stay idempotent because
// asynq delivery is at-least-once.
type TopUpCreditedPayload struct {
	TopUpID    string    `json:"topup_id"`
	UserID     string    `json:"user_id"`
	ChatID     int64     `json:"chat_id"`
	Amount     int64     `json:"amount"`
	OrderID    string    `json:"order_id"`
	CreditedAt time.Time `json:"credited_at"`
}

func NewTopUpCreditedTask(p TopUpCreditedPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.TopUpCredited, payload,
		asynq.Queue("critical"),
		asynq.MaxRetry(5)), nil
}

func NewTimeoutSweepTask() *asynq.Task {
	return asynq.NewTask(taskname.TopUpTimeoutSweep, nil, asynq.Queue("low"))
}

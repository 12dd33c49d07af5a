package notify

import (
	"encoding/json"

	"vpnstore/pkg/taskname"

	"github.com/hibiken/asynq"
)

// Kind identifies the domain event behind a user notification; the renderer
// below is the only place that turns kinds into message text.
type Kind string

const (
	KindTopUpCredited        Kind = "topup_credited"
	KindTopUpFailed          Kind = "topup_failed"
	KindTopUpTimeout         Kind = "topup_timeout"
	KindBonusCredited        Kind = "bonus_credited"
	KindRenewalDue           Kind = "renewal_due"
	KindProvisioningDegraded Kind = "provisioning_degraded"
)

type UserNotificationPayload struct {
	ChatID int64             `json:"chat_id"`
	Kind   Kind              `json:"kind"`
	Params map[string]string `json:"params,omitempty"`
}

func NewUserNotificationTask(p UserNotificationPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.NotifyUser, payload,
		asynq.Queue("default"),
		asynq.MaxRetry(3)), nil
}

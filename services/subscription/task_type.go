package subscription

import (
	"vpnstore/pkg/taskname"

	"github.com/hibiken/asynq"
)

func NewExpirySweepTask() *asynq.Task {
	return asynq.NewTask(taskname.SubscriptionExpirySweep, nil, asynq.Queue("low"))
}

package referral

import (
	"context"
	"encoding/json"

	"vpnstore/pkg/taskname"
	"vpnstore/services/billing"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

type Task struct {
	svc *Service
}

type TaskParams struct {
	fx.In
	Service *Service
}

func NewTask(p TaskParams) *Task {
	return &Task{svc: p.Service}
}

func (t *Task) HandleTopUpCredited(ctx context.Context, task *asynq.Task) error {
	var payload billing.TopUpCreditedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}
	return t.svc.ProcessTopUpCredited(ctx, payload)
}

func RegisterTaskHandlers(mux *asynq.ServeMux, t *Task) {
	mux.HandleFunc(taskname.TopUpCredited, t.HandleTopUpCredited)
}

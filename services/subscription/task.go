package subscription

import (
	"context"

	"vpnstore/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
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

func (t *Task) HandleExpirySweep(ctx context.Context, _ *asynq.Task) error {
	sent, err := t.svc.SweepExpiring(ctx)
	if err != nil {
		return err
	}
	if sent > 0 {
		zap.L().Info("renewal reminders sent", zap.Int("count", sent))
	}
	return nil
}

func RegisterTaskHandlers(mux *asynq.ServeMux, t *Task) {
	mux.HandleFunc(taskname.SubscriptionExpirySweep, t.HandleExpirySweep)
}

func RegisterScheduledTasks(scheduler *asynq.Scheduler) error {
	_, err := scheduler.Register("@every 1h", NewExpirySweepTask())
	return err
}

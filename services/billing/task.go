package billing

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

func (t *Task) HandleTimeoutSweep(ctx context.Context, _ *asynq.Task) error {
	swept, err := t.svc.SweepPendingTimeouts(ctx)
	if err != nil {
		return err
	}
	if swept > 0 {
		zap.L().Info("pending top-ups timed out", zap.Int("count", swept))
	}
	return nil
}

func RegisterTaskHandlers(mux *asynq.ServeMux, t *Task) {
	mux.HandleFunc(taskname.TopUpTimeoutSweep, t.HandleTimeoutSweep)
}

func RegisterScheduledTasks(scheduler *asynq.Scheduler) error {
	_, err := scheduler.Register("@every 1m", NewTimeoutSweepTask())
	return err
}

package notify

import (
	"context"
	"encoding/json"

	"vpnstore/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Task struct {
	sender Sender
}

type TaskParams struct {
	fx.In
	Sender Sender
}

func NewTask(p TaskParams) *Task {
	return &Task{sender: p.Sender}
}

// HandleUserNotification renders and delivers one queued notification. An
// unknown kind is dropped rather than retried; a send failure is returned so
// asynq retries it.
func (t *Task) HandleUserNotification(ctx context.Context, task *asynq.Task) error {
	var payload UserNotificationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	text := Render(payload.Kind, payload.Params)
	if text == "" {
		zap.L().Warn("dropping notification of unknown kind", zap.String("kind", string(payload.Kind)))
		return nil
	}

	if err := t.sender.Send(ctx, payload.ChatID, text); err != nil {
		zap.L().Error("failed to send notification",
			zap.Int64("chat_id", payload.ChatID),
			zap.String("kind", string(payload.Kind)),
			zap.Error(err))
		return err
	}
	return nil
}

func RegisterTaskHandlers(mux *asynq.ServeMux, t *Task) {
	mux.HandleFunc(taskname.NotifyUser, t.HandleUserNotification)
}

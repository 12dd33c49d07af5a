package notify

import (
	"context"
	"encoding/json"
	"testing"

	"vpnstore/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRender(t *testing.T) {
	msg := Render(KindTopUpCredited, map[string]string{"amount": "330"})
	require.Contains(t, msg, "330")

	msg = Render(KindRenewalDue, map[string]string{"days": "3"})
	require.Contains(t, msg, "3 day")

	msg = Render(KindBonusCredited, map[string]string{"bonus": "19"})
	require.Contains(t, msg, "19")

	require.Empty(t, Render(Kind("made_up"), nil))
}

type captureSender struct {
	chatIDs []int64
	texts   []string
	err     error
}

func (s *captureSender) Send(ctx context.Context, chatID int64, text string) error {
	if s.err != nil {
		return s.err
	}
	s.chatIDs = append(s.chatIDs, chatID)
	s.texts = append(s.texts, text)
	return nil
}

func TestHandleUserNotification(t *testing.T) {
	sender := &captureSender{}
	task := NewTask(TaskParams{Sender: sender})

	asynqTask, err := NewUserNotificationTask(UserNotificationPayload{
		ChatID: 777,
		Kind:   KindTopUpTimeout,
	})
	require.NoError(t, err)
	require.Equal(t, taskname.NotifyUser, asynqTask.Type())

	require.NoError(t, task.HandleUserNotification(context.Background(), asynqTask))
	require.Equal(t, []int64{777}, sender.chatIDs)
	require.NotEmpty(t, sender.texts[0])
}

func TestHandleUserNotification_UnknownKindDropped(t *testing.T) {
	sender := &captureSender{}
	task := NewTask(TaskParams{Sender: sender})

	payload, err := json.Marshal(UserNotificationPayload{ChatID: 1, Kind: "nonsense"})
	require.NoError(t, err)

	err = task.HandleUserNotification(context.Background(), asynq.NewTask(taskname.NotifyUser, payload))
	require.NoError(t, err)
	require.Empty(t, sender.chatIDs)
}

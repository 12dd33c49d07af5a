package notify

import (
	"context"
	"fmt"

	"vpnstore/pkg/config"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Sender delivers a rendered message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type telegramSender struct {
	bot *bot.Bot
}

func NewTelegramSender(cfg *config.Config) (Sender, error) {
	if cfg.Telegram.Token == "" {
		zap.L().Warn("telegram token not configured, notifications will only be logged")
		return &logSender{}, nil
	}
	b, err := bot.New(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &telegramSender{bot: b}, nil
}

func (s *telegramSender) Send(ctx context.Context, chatID int64, text string) error {
	disablePreview := true
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	})
	return err
}

// logSender stands in when no bot token is configured.
type logSender struct{}

func (s *logSender) Send(_ context.Context, chatID int64, text string) error {
	zap.L().Info("notification (no telegram sender)",
		zap.Int64("chat_id", chatID),
		zap.String("text", text))
	return nil
}

// Render turns a notification kind and its parameters into the message the
// user sees. Message wording lives only here.
func Render(kind Kind, params map[string]string) string {
	get := func(key string) string { return params[key] }
	switch kind {
	case KindTopUpCredited:
		return fmt.Sprintf("✅ Your balance has been topped up by %s.", get("amount"))
	case KindTopUpFailed:
		return "❌ Your payment was rejected. The balance was not charged."
	case KindTopUpTimeout:
		return "⏰ Your payment was not completed in time and has been cancelled."
	case KindBonusCredited:
		return fmt.Sprintf("🎁 Referral bonus! %s has been added to your balance.", get("bonus"))
	case KindRenewalDue:
		return fmt.Sprintf("⚠️ Your subscription expires in %s day(s). Renew it to keep your access.", get("days"))
	case KindProvisioningDegraded:
		return "⚠️ Your subscription is active, but one of the access links is still being prepared. Please try fetching it again shortly."
	default:
		return ""
	}
}

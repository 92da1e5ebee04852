package telegram

import (
	"context"
	"net/http"
	"time"

	"reelpipe/domain/repository"
	"reelpipe/infrastructure/configuration"
	"reelpipe/infrastructure/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier posts plain-text messages to one chat. Delivery failures are
// logged and never returned.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier returns a log-only notifier when the bot token or chat id is
// missing. The bot is built without the getMe round trip.
func NewNotifier(cfg configuration.Telegram) repository.INotifier {
	if cfg.Token == "" || cfg.ChatID == 0 {
		logger.GetLogger().Warn("Telegram is not configured, notifications go to the log only")
		return LogNotifier{}
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	bot := &tgbotapi.BotAPI{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: timeout},
		Buffer: 100,
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot.SetAPIEndpoint(endpoint)
	return &Notifier{bot: bot, chatID: cfg.ChatID}
}

func (n *Notifier) Notify(ctx context.Context, message string) {
	if ctx.Err() != nil {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, message)
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		logger.GetLogger().WithError(err).Warn("Telegram notification failed")
	}
}

// LogNotifier writes notifications to the application log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, message string) {
	logger.GetLogger().WithField("notification", message).Info("Notification")
}

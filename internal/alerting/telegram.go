package alerting

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"
)

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// chatRecipient accepts numeric chat ids as well as "@channel" names.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	sender messageSender
	chat   chatRecipient
	logger zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。The bot runs offline: it only
// sends, it never polls for updates.
func NewTelegramNotifier(botToken, chatID, apiBase string, timeout time.Duration, logger zerolog.Logger) (*TelegramNotifier, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if apiBase == "" {
		apiBase = tele.DefaultApiURL
	}

	bot, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimRight(apiBase, "/"),
		Token:   botToken,
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return newTelegramNotifier(bot, chatID, logger), nil
}

func newTelegramNotifier(sender messageSender, chatID string, logger zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender: sender,
		chat:   chatRecipient(chatID),
		logger: logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends the rendered alert text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text := RenderMessage(note)
	if text == "" {
		return nil
	}

	if _, err := n.sender.Send(n.chat, text); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	n.logger.Info().Time("sample_ts", note.Result.Current.Timestamp).
		Str("signal", note.Result.Signal.String()).
		Int("alerts", len(note.Result.Alerts)).
		Msg("告警已发送 (Telegram)")
	return nil
}

var _ Notifier = (*TelegramNotifier)(nil)

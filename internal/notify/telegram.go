package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender delivers notifications through the Telegram Bot API. The
// bot client is created on the first Send, because construction calls getMe
// and should not block startup.
type TelegramSender struct {
	token    string
	chatID   string
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramSender creates a TelegramSender for the given bot token and
// chat. chatID is a numeric id or an @channel username.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:    token,
		chatID:   strings.TrimSpace(chatID),
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts a plain-text message with the title on the first line.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	bot, err := t.botAPI()
	if err != nil {
		return err
	}

	text := title + "\n" + message
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(t.chatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(t.chatID, text)
	}
	msg.DisableWebPagePreview = true

	// The bot API has no context support; honour cancellation before sending.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

func (t *TelegramSender) botAPI() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	t.bot = bot
	return bot, nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

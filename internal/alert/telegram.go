package alert

import (
	"context"
	"fmt"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

var telegramIcons = map[AlertLevel]string{
	Info:     "ℹ️",
	Warning:  "⚠️",
	Error:    "❌",
	Critical: "🚨",
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// TelegramChannel sends alerts through the Bot API sendMessage method
type TelegramChannel struct {
	botToken string
	chatID   string
	apiURL   string
	poster   *poster
}

func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		apiURL:   telegramAPI,
		poster:   newPoster("telegram"),
	}
}

// WithAPIURL points the channel at another Bot API host
func (t *TelegramChannel) WithAPIURL(url string) *TelegramChannel {
	t.apiURL = strings.TrimRight(url, "/")
	return t
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

func (t *TelegramChannel) Send(ctx context.Context, alert AlertPayload) error {
	if t.botToken == "" || t.chatID == "" {
		return nil
	}

	icon, ok := telegramIcons[alert.Level]
	if !ok {
		icon = telegramIcons[Info]
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%s *[%s] %s*\n\n%s", icon, alert.Level, alert.Title, alert.Message)
	if len(alert.Fields) > 0 {
		text.WriteString("\n")
		for _, k := range alert.SortedFieldKeys() {
			fmt.Fprintf(&text, "\n- *%s*: %s", k, alert.Fields[k])
		}
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.botToken)
	return t.poster.postJSON(ctx, url, telegramMessage{
		ChatID:    t.chatID,
		Text:      text.String(),
		ParseMode: "Markdown",
	})
}

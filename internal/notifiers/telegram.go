package notifiers

import (
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Fullex26/smsrelay/internal/config"
)

const telegramAPI = "https://api.telegram.org/bot%s/sendMessage"

// Telegram sends notifications via Telegram Bot API
type Telegram struct {
	token  string
	chatID string
	client *http.Client
}

func NewTelegram(cfg config.TelegramConfig) *Telegram {
	return &Telegram{
		token:  cfg.BotToken,
		chatID: cfg.ChatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Post(title, subtitle, body string) error {
	return t.send(formatHTML(title, subtitle, body))
}

func (t *Telegram) Test() error {
	return t.send("📨 <b>SMSRelay</b> — Test notification\n\nIf you see this, SMSRelay is connected!")
}

func (t *Telegram) send(text string) error {
	apiURL := fmt.Sprintf(telegramAPI, t.token)

	data := url.Values{}
	data.Set("chat_id", t.chatID)
	data.Set("parse_mode", "HTML")
	data.Set("text", text)

	resp, err := t.client.PostForm(apiURL, data)
	if err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// formatHTML renders a notification for Telegram's HTML parse mode.
// SMS text is escaped so stray angle brackets don't break the message.
func formatHTML(title, subtitle, body string) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("<b>%s</b>\n", html.EscapeString(title)))
	if subtitle != "" {
		b.WriteString(fmt.Sprintf("<i>%s</i>\n", html.EscapeString(subtitle)))
	}
	if body != "" {
		b.WriteString("\n" + html.EscapeString(body))
	}

	return b.String()
}

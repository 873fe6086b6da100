package notifiers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Fullex26/smsrelay/internal/config"
)

// Discord sends notifications via Discord webhooks
type Discord struct {
	webhookURL string
	client     *http.Client
}

func NewDiscord(cfg config.DiscordConfig) *Discord {
	return &Discord{
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Post(title, subtitle, body string) error {
	embed := map[string]interface{}{
		"title":       title,
		"description": body,
	}
	if subtitle != "" {
		embed["footer"] = map[string]string{"text": subtitle}
	}

	payload := map[string]interface{}{
		"embeds": []interface{}{embed},
	}
	return d.sendJSON(payload)
}

func (d *Discord) Test() error {
	return d.sendJSON(map[string]string{
		"content": "📨 **SMSRelay** — Test notification\n\nIf you see this, SMSRelay is connected!",
	})
}

func (d *Discord) sendJSON(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("discord send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord returned status %d", resp.StatusCode)
	}
	return nil
}

package sinks

import (
	"context"

	"github.com/Fullex26/smsrelay/internal/config"
)

// Webhook is a conditional secondary sink. It receives {"msg": message}
// and no credential.
type Webhook struct {
	poster
	name string
	url  string
}

func NewWebhook(cfg config.SinkConfig, httpCfg config.HTTPConfig) *Webhook {
	return &Webhook{
		poster: newPoster(httpCfg),
		name:   cfg.Name,
		url:    cfg.URL,
	}
}

func (w *Webhook) Name() string { return w.name }

func (w *Webhook) Send(ctx context.Context, message, sender string) (int, error) {
	payload := map[string]string{"msg": message}
	return w.postJSON(ctx, w.name, w.url, payload)
}

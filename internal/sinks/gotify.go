package sinks

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Fullex26/smsrelay/internal/config"
)

// PrimaryName is the sink name of the Gotify endpoint
const PrimaryName = "gotify"

// Gotify is the primary sink. Every SMS goes here.
type Gotify struct {
	poster
	url      string
	token    string
	title    string
	priority int
}

func NewGotify(cfg config.PrimaryConfig, httpCfg config.HTTPConfig) *Gotify {
	return &Gotify{
		poster:   newPoster(httpCfg),
		url:      cfg.URL,
		token:    cfg.Token,
		title:    cfg.Title,
		priority: cfg.Priority,
	}
}

func (g *Gotify) Name() string { return PrimaryName }

func (g *Gotify) Send(ctx context.Context, message, sender string) (int, error) {
	target, err := g.endpoint()
	if err != nil {
		return 0, err
	}
	payload := map[string]interface{}{
		"title":    g.title,
		"message":  message,
		"priority": g.priority,
	}
	return g.postJSON(ctx, g.Name(), target, payload)
}

// endpoint appends the token as a query parameter, keeping any query
// the configured URL already has
func (g *Gotify) endpoint() (string, error) {
	u, err := url.Parse(g.url)
	if err != nil {
		return "", fmt.Errorf("gotify: parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", g.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

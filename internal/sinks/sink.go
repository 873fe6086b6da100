package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Fullex26/smsrelay/internal/config"
)

// Sink is an outbound endpoint that receives a forwarded SMS
type Sink interface {
	// Name returns the sink identifier used by rules
	Name() string
	// Send posts message and returns the response status code. Any
	// HTTP response counts as delivered; only a failure to get one is
	// an error.
	Send(ctx context.Context, message, sender string) (int, error)
}

const contentType = "application/json;charset=utf-8"

// poster holds the request plumbing shared by every sink
type poster struct {
	userAgent string
	client    *http.Client
}

func newPoster(cfg config.HTTPConfig) poster {
	ua := cfg.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	return poster{
		userAgent: ua,
		client:    &http.Client{Timeout: cfg.TimeoutDuration()},
	}
}

func (p poster) postJSON(ctx context.Context, name, url string, payload any) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("%s: marshal payload: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%s: create request: %w", name, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", p.userAgent)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s send failed: %w", name, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	slog.Debug("sink responded", "sink", name, "status", resp.StatusCode,
		"elapsed", time.Since(start), "body", string(body))

	return resp.StatusCode, nil
}

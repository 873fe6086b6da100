package notifiers

import (
	"errors"
	"log/slog"

	"github.com/Fullex26/smsrelay/internal/config"
)

// Notifier delivers operator notifications to an external channel
type Notifier interface {
	// Name returns the notifier identifier
	Name() string
	// Post delivers one notification. Callers treat it as fire-and-forget.
	Post(title, subtitle, body string) error
	// Test sends a test notification to verify configuration
	Test() error
}

// FromConfig builds the operator channel from config. With nothing
// enabled, notifications only go to the log.
func FromConfig(cfg config.NotificationConfig) Notifier {
	var ns []Notifier
	if cfg.Telegram.Enabled {
		ns = append(ns, NewTelegram(cfg.Telegram))
	}
	if cfg.Ntfy.Enabled {
		ns = append(ns, NewNtfy(cfg.Ntfy))
	}
	if cfg.Discord.Enabled {
		ns = append(ns, NewDiscord(cfg.Discord))
	}

	switch len(ns) {
	case 0:
		return NewLog()
	case 1:
		return ns[0]
	}
	return NewMulti(ns...)
}

// Log writes notifications to slog instead of a remote channel
type Log struct {
	logger *slog.Logger
}

func NewLog() *Log {
	return &Log{logger: slog.Default()}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Post(title, subtitle, body string) error {
	l.logger.Info("notification", "title", title, "subtitle", subtitle, "body", body)
	return nil
}

func (l *Log) Test() error {
	return l.Post("SMSRelay", "", "Test notification")
}

// Multi posts to every wrapped notifier
type Multi struct {
	notifiers []Notifier
}

func NewMulti(ns ...Notifier) *Multi {
	return &Multi{notifiers: ns}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Post(title, subtitle, body string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Post(title, subtitle, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Test() error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Test(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package notifiers

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/Fullex26/smsrelay/internal/config"
	"github.com/Fullex26/smsrelay/pkg/models"
)

// Manager is the single entry point every pipeline stage reports through.
// It always logs, then decides from the verbosity flags whether the
// notification reaches the operator channel. Posts are queued and sent in
// order by one background goroutine, so a slow channel never holds up the
// caller.
type Manager struct {
	channel  Notifier
	detailed bool
	debug    bool
	subtitle string
	logger   *slog.Logger

	mu      sync.Mutex
	idle    *sync.Cond
	queue   []post
	sending bool
}

type post struct {
	title, body string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger replaces slog.Default as the log sink.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func NewManager(cfg config.NotificationConfig, channel Notifier, opts ...Option) *Manager {
	m := &Manager{
		channel:  channel,
		detailed: cfg.Detailed,
		debug:    cfg.Debug,
		subtitle: cfg.Subtitle,
		logger:   slog.Default(),
	}
	m.idle = sync.NewCond(&m.mu)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Notify logs the notification and queues it for the channel unless the
// verbosity flags suppress it. It never blocks on the channel. Post
// failures are only logged.
func (m *Manager) Notify(sev models.Severity, title, message string) {
	m.log(sev, title, message)

	if !m.Surfaces(sev) || m.channel == nil {
		return
	}

	m.mu.Lock()
	m.queue = append(m.queue, post{title: sev.Emoji() + " " + title, body: message})
	start := !m.sending
	m.sending = true
	m.mu.Unlock()

	if start {
		go m.flush()
	}
}

// Drain blocks until every queued notification has been posted
func (m *Manager) Drain() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.sending {
		m.idle.Wait()
	}
}

// flush posts queued notifications until the queue is empty
func (m *Manager) flush() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.sending = false
			m.idle.Broadcast()
			m.mu.Unlock()
			return
		}
		p := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		if err := m.channel.Post(p.title, m.subtitle, p.body); err != nil {
			m.logger.Debug("notification post failed", "channel", m.channel.Name(), "error", err)
		}
	}
}

// Surfaces reports whether a severity reaches the operator channel.
// error, success and warning always do.
func (m *Manager) Surfaces(sev models.Severity) bool {
	if sev == models.SeverityDebug && !m.debug {
		return false
	}
	if !m.detailed && (sev == models.SeverityInfo || sev == models.SeverityDebug) {
		return false
	}
	return true
}

func (m *Manager) log(sev models.Severity, title, message string) {
	level := slog.LevelInfo
	switch sev {
	case models.SeverityDebug:
		level = slog.LevelDebug
	case models.SeverityWarning:
		level = slog.LevelWarn
	case models.SeverityError:
		level = slog.LevelError
	}
	m.logger.Log(context.Background(), level, "["+strings.ToUpper(sev.String())+"] "+title, "message", message)
}

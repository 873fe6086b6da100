package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Fullex26/smsrelay/internal/config"
	"github.com/Fullex26/smsrelay/internal/dispatch"
	"github.com/Fullex26/smsrelay/internal/eventbus"
	"github.com/Fullex26/smsrelay/internal/host"
	"github.com/Fullex26/smsrelay/internal/metrics"
	"github.com/Fullex26/smsrelay/internal/notifiers"
	"github.com/Fullex26/smsrelay/internal/pipeline"
	"github.com/Fullex26/smsrelay/internal/sinks"
	"github.com/Fullex26/smsrelay/internal/store"
	"github.com/Fullex26/smsrelay/pkg/models"
)

// Version is set at build time via ldflags: -X github.com/Fullex26/smsrelay/internal/daemon.Version=<tag>
var Version = "dev"

// Host is an inbound transport that runs until ctx is cancelled
type Host interface {
	Name() string
	Start(ctx context.Context) error
}

// Daemon is the main SMSRelay process
type Daemon struct {
	cfg        *config.Config
	channel    notifiers.Notifier
	notify     *notifiers.Manager
	bus        *eventbus.Bus
	store      *store.Store
	metrics    *metrics.Registry
	pipeline   *pipeline.Pipeline
	dispatcher *dispatch.Dispatcher
	hosts      []Host
}

// Option configures a Daemon
type Option func(*Daemon)

// WithChannel replaces the operator channel built from config
func WithChannel(n notifiers.Notifier) Option {
	return func(d *Daemon) { d.channel = n }
}

// New creates a new daemon instance
func New(cfg *config.Config, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		cfg:     cfg,
		channel: notifiers.FromConfig(cfg.Notifications),
		bus:     eventbus.New(),
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.notify = notifiers.NewManager(cfg.Notifications, d.channel)

	// Open record store
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	d.store = db

	d.bus.Subscribe(func(rec models.Record) {
		if err := d.store.SaveRecord(rec); err != nil {
			slog.Error("failed to save record", "kind", rec.Kind, "error", err)
		}
	})
	d.bus.Subscribe(d.metrics.Observe)

	p, disp, err := pipeline.Build(cfg, d.notify, d.bus,
		dispatch.WithOutcomeHook(d.publishOutcome),
		dispatch.WithTimeout(cfg.HTTP.TimeoutDuration()),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	d.pipeline, d.dispatcher = p, disp

	// Register hosts
	d.hosts = append(d.hosts, host.NewHTTP(cfg.Server.Listen, d.pipeline, d.metrics.Handler()))
	if cfg.Spool.Enabled {
		d.hosts = append(d.hosts, host.NewSpool(cfg.Spool.Dir, d.pipeline))
	}
	if cfg.Notifications.Telegram.Enabled && cfg.Notifications.Telegram.Interactive {
		d.hosts = append(d.hosts, host.NewTelegramBot(cfg, db))
	}

	return d, nil
}

// Run starts every host and blocks until interrupted
func (d *Daemon) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	for _, h := range d.hosts {
		wg.Add(1)
		go func(h Host) {
			defer wg.Done()
			slog.Info("starting host", "name", h.Name())
			if err := h.Start(ctx); err != nil {
				slog.Error("host failed", "name", h.Name(), "error", err)
			}
		}(h)
	}

	// Start store pruning
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.runCleanup(ctx)
	}()

	hostname, _ := os.Hostname()
	slog.Info("smsrelay started",
		"version", Version,
		"hostname", hostname,
		"hosts", len(d.hosts),
		"channel", d.channel.Name(),
	)
	d.notify.Notify(models.SeverityInfo, "SMSRelay started",
		fmt.Sprintf("%s | version %s | listening on %s", hostname, Version, d.cfg.Server.Listen))

	// Wait for shutdown signal
	<-sigCh
	slog.Info("shutting down...")
	cancel()
	wg.Wait()

	d.Close()
	slog.Info("smsrelay stopped")
	return nil
}

// Process runs the pipeline once on raw and waits for every send it issued
func (d *Daemon) Process(raw []byte) pipeline.Result {
	res := d.pipeline.Run(raw, nil)
	d.dispatcher.Wait()
	return res
}

// Close waits for in-flight sends, queued notifications and pending
// records, then closes the store
func (d *Daemon) Close() {
	d.dispatcher.Wait()
	d.notify.Drain()
	d.bus.Drain()
	_ = d.store.Close()
}

// Metrics returns the daemon's counter registry
func (d *Daemon) Metrics() *metrics.Registry {
	return d.metrics
}

// Store returns the daemon's record store
func (d *Daemon) Store() *store.Store {
	return d.store
}

func (d *Daemon) publishOutcome(out models.DispatchOutcome) {
	state := "delivered"
	if !out.Success {
		state = "failed"
	}
	d.bus.Publish(models.Record{
		ID:        uuid.New().String(),
		Kind:      models.RecordDelivery,
		RunID:     out.RunID,
		Timestamp: time.Now(),
		State:     state,
		Error:     out.Error,
		Outcome:   &out,
	})
}

func (d *Daemon) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.prune()
		}
	}
}

func (d *Daemon) prune() {
	if d.cfg.Store.RetentionDays <= 0 {
		return
	}
	pruned, err := d.store.Prune(d.cfg.Store.RetentionDays)
	if err != nil {
		slog.Error("pruning records", "error", err)
		return
	}
	if pruned > 0 {
		slog.Info("pruned old records", "count", pruned)
	}
}

// TestSinks sends a test message to every sink, then to the operator
// channel. All failures are reported together.
func (d *Daemon) TestSinks() error {
	hostname, _ := os.Hostname()
	message := fmt.Sprintf("🧪 SMSRelay test message from %s", hostname)

	targets := []sinks.Sink{d.dispatcher.Primary()}
	for _, sc := range d.cfg.Secondary {
		if s, ok := d.dispatcher.Secondary(sc.Name); ok {
			targets = append(targets, s)
		}
	}

	var errs []error
	for _, s := range targets {
		slog.Info("testing sink", "name", s.Name())
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.HTTP.TimeoutDuration())
		status, err := s.Send(ctx, message, "smsrelay")
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		if status >= 400 {
			errs = append(errs, fmt.Errorf("%s: returned status %d", s.Name(), status))
			continue
		}
		slog.Info("sink OK", "name", s.Name(), "status", status)
	}

	slog.Info("testing notifier", "name", d.channel.Name())
	if err := d.channel.Test(); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", d.channel.Name(), err))
	} else {
		slog.Info("notifier OK", "name", d.channel.Name())
	}

	return errors.Join(errs...)
}

// Handler exposes the HTTP host's routes, for tests and embedding
func (d *Daemon) Handler() http.Handler {
	for _, h := range d.hosts {
		if hh, ok := h.(*host.HTTP); ok {
			return hh.Router()
		}
	}
	return http.NotFoundHandler()
}

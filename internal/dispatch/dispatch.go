// Package dispatch fans a formatted SMS out to its sinks. Every send runs
// on its own goroutine and reports its own outcome; nothing joins them.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Fullex26/smsrelay/internal/notifiers"
	"github.com/Fullex26/smsrelay/internal/sinks"
	"github.com/Fullex26/smsrelay/pkg/models"
)

// OutcomeFunc observes each sink outcome after it has been reported
type OutcomeFunc func(models.DispatchOutcome)

// Dispatcher sends to a mandatory primary sink and to named secondaries
type Dispatcher struct {
	primary   sinks.Sink
	secondary map[string]sinks.Sink
	notify    *notifiers.Manager
	timeout   time.Duration
	onOutcome OutcomeFunc

	wg sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithOutcomeHook registers f to observe every outcome.
func WithOutcomeHook(f OutcomeFunc) Option {
	return func(d *Dispatcher) { d.onOutcome = f }
}

// WithTimeout bounds each send with a context deadline in addition to the
// sink's own client timeout.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = t }
}

func New(primary sinks.Sink, secondary []sinks.Sink, notify *notifiers.Manager, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		primary:   primary,
		secondary: make(map[string]sinks.Sink, len(secondary)),
		notify:    notify,
	}
	for _, s := range secondary {
		d.secondary[s.Name()] = s
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch issues the primary send and one send per named secondary sink,
// then returns without waiting for any of them.
func (d *Dispatcher) Dispatch(runID, message, sender string, secondary []string) {
	d.notify.Notify(models.SeverityInfo, "Forwarding", "Forwarding SMS...")

	d.issue(runID, d.primary, message, sender)

	if len(secondary) == 0 {
		d.notify.Notify(models.SeverityInfo, "Primary only",
			fmt.Sprintf("Forwarding to %s only, no rule matched", d.primary.Name()))
		return
	}

	d.notify.Notify(models.SeverityInfo, "Conditional forward",
		fmt.Sprintf("Rule matched, also forwarding to %v", secondary))
	for _, name := range secondary {
		s, ok := d.secondary[name]
		if !ok {
			d.notify.Notify(models.SeverityWarning, "Unknown sink",
				fmt.Sprintf("No secondary sink named %q is configured", name))
			continue
		}
		d.issue(runID, s, message, sender)
	}
}

// Wait blocks until every issued send has resolved and its outcome
// notification has been posted
func (d *Dispatcher) Wait() {
	d.wg.Wait()
	d.notify.Drain()
}

// Primary returns the primary sink
func (d *Dispatcher) Primary() sinks.Sink {
	return d.primary
}

// Secondary returns the named secondary sink
func (d *Dispatcher) Secondary(name string) (sinks.Sink, bool) {
	s, ok := d.secondary[name]
	return s, ok
}

func (d *Dispatcher) issue(runID string, s sinks.Sink, message, sender string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.report(d.send(runID, s, message, sender))
	}()
}

func (d *Dispatcher) send(runID string, s sinks.Sink, message, sender string) models.DispatchOutcome {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	slog.Debug("sending to sink", "sink", s.Name(), "run", runID)
	status, err := s.Send(ctx, message, sender)

	out := models.DispatchOutcome{RunID: runID, Sink: s.Name(), StatusCode: status}
	if err != nil {
		out.Error = fmt.Errorf("%w: %v", models.ErrDispatch, err).Error()
		return out
	}
	out.Success = true
	return out
}

func (d *Dispatcher) report(out models.DispatchOutcome) {
	if out.Success {
		d.notify.Notify(models.SeveritySuccess, fmt.Sprintf("Forwarded to %s", out.Sink),
			fmt.Sprintf("Status: %d, SMS delivered to %s", out.StatusCode, out.Sink))
		if out.StatusCode >= 400 {
			d.notify.Notify(models.SeverityWarning, fmt.Sprintf("%s rejected the request", out.Sink),
				fmt.Sprintf("%s answered with status %d", out.Sink, out.StatusCode))
		}
	} else {
		d.notify.Notify(models.SeverityError, fmt.Sprintf("Forward to %s failed", out.Sink),
			fmt.Sprintf("Error forwarding to %s: %s", out.Sink, out.Error))
	}

	if d.onOutcome != nil {
		d.onOutcome(out)
	}
}

// Package pipeline runs one interception end to end: validate config,
// extract the SMS, classify it, format it and hand it to the dispatcher.
package pipeline

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Fullex26/smsrelay/internal/config"
	"github.com/Fullex26/smsrelay/internal/dispatch"
	"github.com/Fullex26/smsrelay/internal/extract"
	"github.com/Fullex26/smsrelay/internal/format"
	"github.com/Fullex26/smsrelay/internal/notifiers"
	"github.com/Fullex26/smsrelay/internal/rules"
	"github.com/Fullex26/smsrelay/pkg/models"
)

// State is a step of a pipeline run
type State int

const (
	StateStart State = iota
	StateConfigValidated
	StateExtracted
	StateClassified
	StateDispatched
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateConfigValidated:
		return "config_validated"
	case StateExtracted:
		return "extracted"
	case StateClassified:
		return "classified"
	case StateDispatched:
		return "dispatched"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Result summarises one run. Completed means sends were issued, not that
// they succeeded.
type Result struct {
	RunID string
	State State
	Err   error
}

// Publisher receives the run record when a run ends
type Publisher interface {
	Publish(rec models.Record)
}

// Pipeline is safe to Run concurrently; it holds no per-run state.
type Pipeline struct {
	cfg        *config.Config
	notify     *notifiers.Manager
	extractor  *extract.Extractor
	matcher    *rules.Matcher
	formatter  *format.Formatter
	dispatcher *dispatch.Dispatcher
	publisher  Publisher
}

func New(cfg *config.Config, notify *notifiers.Manager, extractor *extract.Extractor,
	matcher *rules.Matcher, formatter *format.Formatter, dispatcher *dispatch.Dispatcher, publisher Publisher) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		notify:     notify,
		extractor:  extractor,
		matcher:    matcher,
		formatter:  formatter,
		dispatcher: dispatcher,
		publisher:  publisher,
	}
}

// Run processes one raw payload. done is called exactly once before Run
// returns, on every path including a recovered panic. Sends issued by the
// dispatcher may still be in flight when done is called.
func (p *Pipeline) Run(raw []byte, done func()) (res Result) {
	res = Result{RunID: uuid.New().String(), State: StateStart}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline panic", "run", res.RunID, "panic", r)
			p.notify.Notify(models.SeverityError, "Pipeline crashed",
				fmt.Sprintf("Unhandled error while processing SMS: %v", r))
			res.State = StateAborted
			res.Err = fmt.Errorf("panic: %v", r)
		}
		p.publish(res)
		if done != nil {
			done()
		}
	}()

	p.notify.Notify(models.SeverityInfo, "Relay starting", "Processing SMS forward request")

	if err := p.validate(); err != nil {
		return p.abort(res, err)
	}
	res.State = StateConfigValidated

	ev, err := p.extractor.Extract(raw)
	if err != nil {
		return p.abort(res, err)
	}
	res.State = StateExtracted

	class := p.matcher.Classify(ev.Content)
	res.State = StateClassified

	message := p.formatter.Format(ev)
	p.dispatcher.Dispatch(res.RunID, message, ev.Sender, class.Sinks())
	res.State = StateDispatched
	slog.Debug("sends issued", "run", res.RunID)

	res.State = StateCompleted
	slog.Info("run completed", "run", res.RunID, "matched", class.Matched(), "secondary", class.Sinks())
	return res
}

func (p *Pipeline) validate() error {
	if p.cfg.Primary.Token == "" {
		p.notify.Notify(models.SeverityError, "Config error", "A Gotify token is required")
		return fmt.Errorf("%w: primary token is empty", models.ErrConfig)
	}

	p.notify.Notify(models.SeverityInfo, "Config validated", "Config valid, relay ready")
	p.notify.Notify(models.SeverityDebug, "Config details", p.describeConfig())
	return nil
}

func (p *Pipeline) describeConfig() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Gotify: %s\n", p.cfg.Primary.URL))
	for _, s := range p.cfg.Secondary {
		b.WriteString(fmt.Sprintf("Sink %s: %s\n", s.Name, s.URL))
	}
	for _, r := range p.matcher.Rules() {
		b.WriteString(fmt.Sprintf("Rule %s: %s -> %v\n", r.Name, r.Pattern.String(), r.Sinks))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (p *Pipeline) abort(res Result, err error) Result {
	slog.Warn("run aborted", "run", res.RunID, "after", res.State, "error", err)
	res.State = StateAborted
	res.Err = err
	return res
}

func (p *Pipeline) publish(res Result) {
	if p.publisher == nil {
		return
	}
	rec := models.Record{
		ID:        uuid.New().String(),
		Kind:      models.RecordRun,
		RunID:     res.RunID,
		Timestamp: time.Now(),
		State:     res.State.String(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	p.publisher.Publish(rec)
}

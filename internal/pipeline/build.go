package pipeline

import (
	"fmt"

	"github.com/Fullex26/smsrelay/internal/config"
	"github.com/Fullex26/smsrelay/internal/dispatch"
	"github.com/Fullex26/smsrelay/internal/extract"
	"github.com/Fullex26/smsrelay/internal/format"
	"github.com/Fullex26/smsrelay/internal/notifiers"
	"github.com/Fullex26/smsrelay/internal/rules"
	"github.com/Fullex26/smsrelay/internal/sinks"
)

// Build wires every stage from config. The returned dispatcher is the one
// the pipeline uses, so hosts can Wait on in-flight sends.
func Build(cfg *config.Config, notify *notifiers.Manager, publisher Publisher, opts ...dispatch.Option) (*Pipeline, *dispatch.Dispatcher, error) {
	matcher, err := rules.New(cfg.Rules, notify)
	if err != nil {
		return nil, nil, fmt.Errorf("building rules: %w", err)
	}

	primary := sinks.NewGotify(cfg.Primary, cfg.HTTP)
	var secondary []sinks.Sink
	for _, sc := range cfg.Secondary {
		secondary = append(secondary, sinks.NewWebhook(sc, cfg.HTTP))
	}

	d := dispatch.New(primary, secondary, notify, opts...)
	p := New(cfg, notify, extract.New(notify), matcher, format.New(cfg.Location()), d, publisher)
	return p, d, nil
}

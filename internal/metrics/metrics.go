// Package metrics counts pipeline runs and sink deliveries and exposes
// them in the Prometheus text format.
package metrics

import (
	"io"
	"net/http"
	"sort"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/Fullex26/smsrelay/pkg/models"
)

const (
	runsName       = "smsrelay_runs_total"
	deliveriesName = "smsrelay_deliveries_total"
)

type deliveryKey struct {
	sink   string
	result string
}

// Registry holds the relay counters
type Registry struct {
	mu         sync.Mutex
	runs       map[string]float64
	deliveries map[deliveryKey]float64
}

func New() *Registry {
	return &Registry{
		runs:       make(map[string]float64),
		deliveries: make(map[deliveryKey]float64),
	}
}

// Observe counts one record. It is meant to be subscribed to the bus.
func (r *Registry) Observe(rec models.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch rec.Kind {
	case models.RecordRun:
		r.runs[rec.State]++
	case models.RecordDelivery:
		if rec.Outcome == nil {
			return
		}
		result := "failure"
		if rec.Outcome.Success {
			result = "success"
		}
		r.deliveries[deliveryKey{sink: rec.Outcome.Sink, result: result}]++
	}
}

// Families snapshots the counters as metric families
func (r *Registry) Families() []*dto.MetricFamily {
	r.mu.Lock()
	defer r.mu.Unlock()

	runs := &dto.MetricFamily{
		Name: ptr(runsName),
		Help: ptr("Pipeline runs by final state."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	states := make([]string, 0, len(r.runs))
	for s := range r.runs {
		states = append(states, s)
	}
	sort.Strings(states)
	for _, s := range states {
		runs.Metric = append(runs.Metric, counter(r.runs[s], label("state", s)))
	}

	deliveries := &dto.MetricFamily{
		Name: ptr(deliveriesName),
		Help: ptr("Sink sends by sink and result."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	keys := make([]deliveryKey, 0, len(r.deliveries))
	for k := range r.deliveries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].sink != keys[j].sink {
			return keys[i].sink < keys[j].sink
		}
		return keys[i].result < keys[j].result
	})
	for _, k := range keys {
		deliveries.Metric = append(deliveries.Metric,
			counter(r.deliveries[k], label("result", k.result), label("sink", k.sink)))
	}

	return []*dto.MetricFamily{runs, deliveries}
}

// Write encodes every family in the text exposition format
func (r *Registry) Write(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range r.Families() {
		if len(mf.Metric) == 0 {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the registry over HTTP
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		if err := r.Write(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func counter(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{
		Label:   labels,
		Counter: &dto.Counter{Value: ptr(v)},
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: ptr(name), Value: ptr(value)}
}

func ptr[T any](v T) *T { return &v }

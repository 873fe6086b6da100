package models

import "time"

// Severity levels for operator notifications
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityDebug
	SeveritySuccess
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityDebug:
		return "debug"
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

func (s Severity) Emoji() string {
	switch s {
	case SeveritySuccess:
		return "✅"
	case SeverityError:
		return "❌"
	case SeverityDebug:
		return "🔍"
	case SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// Notification is a single operator-facing status message
type Notification struct {
	Severity Severity
	Title    string
	Message  string
}

// InterceptedEvent is the normalized SMS pulled out of a host payload.
// Content is always a value that was present in the payload.
type InterceptedEvent struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// MatchResult is the outcome of evaluating one rule against SMS content
type MatchResult struct {
	Rule    string   `json:"rule"`
	Matched bool     `json:"matched"`
	Keyword string   `json:"keyword,omitempty"` // first matched substring
	Sinks   []string `json:"sinks,omitempty"`   // sinks the rule toggles on match
}

// Classification holds every rule result for one event, in rule order
type Classification struct {
	Results []MatchResult `json:"results"`
}

// Matched reports whether any rule matched
func (c Classification) Matched() bool {
	for _, r := range c.Results {
		if r.Matched {
			return true
		}
	}
	return false
}

// Sinks returns the secondary sinks toggled by matching rules,
// deduplicated and in rule order.
func (c Classification) Sinks() []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range c.Results {
		if !r.Matched {
			continue
		}
		for _, s := range r.Sinks {
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// DispatchOutcome describes how one sink send resolved
type DispatchOutcome struct {
	RunID      string `json:"run_id"`
	Sink       string `json:"sink"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RecordKind distinguishes pipeline run records from delivery records
type RecordKind string

const (
	RecordRun      RecordKind = "run"
	RecordDelivery RecordKind = "delivery"
)

// Record is what flows over the bus to the store and metrics.
// It never carries the sender or the SMS content.
type Record struct {
	ID        string     `json:"id"`
	Kind      RecordKind `json:"kind"`
	RunID     string     `json:"run_id"`
	Timestamp time.Time  `json:"timestamp"`

	// Run records
	State string `json:"state,omitempty"`
	Error string `json:"error,omitempty"`

	// Delivery records
	Outcome *DispatchOutcome `json:"outcome,omitempty"`
}

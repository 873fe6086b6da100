package notifiers

import (
	"strings"
	"sync"
)

// Posted is one notification captured by a Recorder
type Posted struct {
	Title    string
	Subtitle string
	Body     string
}

// Recorder keeps every posted notification in memory. Safe for use from
// concurrent dispatch callbacks.
type Recorder struct {
	mu     sync.Mutex
	posted []Posted
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Post(title, subtitle, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posted = append(r.posted, Posted{Title: title, Subtitle: subtitle, Body: body})
	return nil
}

func (r *Recorder) Test() error {
	return r.Post("SMSRelay", "", "Test notification")
}

// Posted returns a copy of everything recorded so far
func (r *Recorder) Posted() []Posted {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Posted, len(r.posted))
	copy(out, r.posted)
	return out
}

// Count returns how many recorded titles start with prefix
func (r *Recorder) Count(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.posted {
		if strings.HasPrefix(p.Title, prefix) {
			n++
		}
	}
	return n
}

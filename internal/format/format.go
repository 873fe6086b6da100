// Package format renders an intercepted SMS into the text sent to sinks.
package format

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/Fullex26/smsrelay/pkg/models"
)

// TimeLayout is the rendered timestamp, e.g. 2025/07/14 09:05:03
const TimeLayout = "2006/01/02 15:04:05"

// Formatter stamps messages with the wall clock in a fixed zone. The
// timestamp is when the relay formatted the message, not when the SMS
// was sent.
type Formatter struct {
	loc *time.Location
	now func() time.Time
}

func New(loc *time.Location) *Formatter {
	return &Formatter{loc: loc, now: time.Now}
}

// WithClock returns a copy of f that reads time from now
func (f *Formatter) WithClock(now func() time.Time) *Formatter {
	return &Formatter{loc: f.loc, now: now}
}

func (f *Formatter) Format(ev models.InterceptedEvent) string {
	ts := f.now().In(f.loc).Format(TimeLayout)
	return fmt.Sprintf("👤 Sender: %s\n📅 Time: %s\n📜 Content: %s", ev.Sender, ts, ev.Content)
}

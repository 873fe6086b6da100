// Package extract turns the raw body handed over by an interception host
// into a normalized SMS event.
package extract

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Fullex26/smsrelay/internal/notifiers"
	"github.com/Fullex26/smsrelay/pkg/models"
)

// UnknownSender stands in for a payload without query.sender
const UnknownSender = "unknown number"

// previewLen is the rune limit for the SMS preview in notifications
const previewLen = 50

// Extractor parses host payloads of the shape
// {"query":{"sender":"...","message":{"text":"..."}}}.
type Extractor struct {
	notify *notifiers.Manager
}

func New(notify *notifiers.Manager) *Extractor {
	return &Extractor{notify: notify}
}

// Extract parses raw and returns the event. A body that is not JSON yields
// models.ErrParse; a body without message text yields models.ErrExtraction.
// Both are reported as one error notification.
func (x *Extractor) Extract(raw []byte) (models.InterceptedEvent, error) {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		x.notify.Notify(models.SeverityError, "Payload parse failed",
			fmt.Sprintf("Could not parse SMS payload: %v", err))
		return models.InterceptedEvent{}, fmt.Errorf("%w: %v", models.ErrParse, err)
	}
	x.notify.Notify(models.SeverityDebug, "Payload parsed", "SMS payload parsed")

	sender, ok := lookupString(data, "query", "sender")
	if !ok {
		sender = UnknownSender
	}

	content, ok := lookupString(data, "query", "message", "text")
	if !ok {
		x.notify.Notify(models.SeverityError, "Content extraction failed", "Could not read SMS content")
		return models.InterceptedEvent{}, fmt.Errorf("%w: query.message.text missing", models.ErrExtraction)
	}

	x.notify.Notify(models.SeverityInfo, "SMS received",
		fmt.Sprintf("From: %s\nContent: %s", sender, Preview(content)))

	return models.InterceptedEvent{Sender: sender, Content: content}, nil
}

// Preview truncates s to 50 runes, appending "..." when it cut anything.
func Preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen]) + "..."
}

// lookupString walks nested objects by key. Any missing key, null or
// non-object along the way means absent. Scalars at the leaf are rendered
// as text; objects and arrays are absent.
func lookupString(v any, path ...string) (string, bool) {
	for _, key := range path {
		obj, ok := v.(map[string]any)
		if !ok {
			return "", false
		}
		v, ok = obj[key]
		if !ok {
			return "", false
		}
	}

	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

package models

import "errors"

// Error classes for a pipeline run. Components wrap these with
// fmt.Errorf("%w: ...") so callers can test with errors.Is.
var (
	// ErrConfig aborts a run before any work (missing credential).
	ErrConfig = errors.New("config error")
	// ErrParse means the inbound payload is not valid JSON.
	ErrParse = errors.New("parse error")
	// ErrExtraction means the payload parsed but holds no SMS content.
	ErrExtraction = errors.New("extraction error")
	// ErrDispatch is a single failed sink send. It never aborts a run.
	ErrDispatch = errors.New("dispatch error")
)

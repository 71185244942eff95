package orchestrator

import (
	"errors"

	"github.com/kalambet/claritydesk/internal/classify"
)

// Status is the process-wide busy state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusError   Status = "error"
)

var (
	// ErrBusy is returned when a submission or retry needs the remote service
	// while another submission or sync is in flight.
	ErrBusy = errors.New("another request is in flight")
	// ErrNothingToRetry is returned by Retry when no request is retained.
	ErrNothingToRetry = errors.New("no request to retry")
)

// State is a point-in-time view of the orchestrator for rendering.
type State struct {
	Status     Status          `json:"status"`
	Error      *classify.Error `json:"error,omitempty"`
	Online     bool            `json:"online"`
	HasPending bool            `json:"has_pending"`
}

// The transition helpers below must be called with o.mu held.

func (o *Orchestrator) beginLoading() bool {
	if o.status == StatusLoading {
		return false
	}
	o.status = StatusLoading
	o.err = nil
	recordStatus(o.status)
	return true
}

func (o *Orchestrator) finishIdle() {
	o.status = StatusIdle
	o.err = nil
	recordStatus(o.status)
}

func (o *Orchestrator) fail(ce *classify.Error) {
	o.status = StatusError
	o.err = ce
	recordStatus(o.status)
}

// LoadingMessages rotate while a generation call is in flight.
var LoadingMessages = []string{
	"Consulting the engineering archives...",
	"Matching vehicle architecture with known failure modes...",
	"Filtering manufacturer recall data...",
	"Translating complex signals into clarity...",
	"Building your Clarity Report...",
}

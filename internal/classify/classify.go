// Package classify turns failures from the generation service into
// user-facing categories while keeping the raw message for diagnostics.
package classify

import (
	"fmt"
	"strings"
)

// Category groups failures by how the user should read them.
type Category int

const (
	// NodeInterruption is any remote failure that is not a capacity signal.
	NodeInterruption Category = iota
	// CapacityLimit means the remote service signalled rate or quota exhaustion.
	CapacityLimit
	// SyncInterruption is a systemic failure that aborted a whole sync run.
	SyncInterruption
)

func (c Category) String() string {
	switch c {
	case CapacityLimit:
		return "capacity_limit"
	case SyncInterruption:
		return "sync_interruption"
	default:
		return "node_interruption"
	}
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	switch string(b) {
	case "capacity_limit":
		*c = CapacityLimit
	case "sync_interruption":
		*c = SyncInterruption
	case "node_interruption":
		*c = NodeInterruption
	default:
		return fmt.Errorf("unknown category %q", b)
	}
	return nil
}

// Transient reports whether the condition is expected to clear on its own.
func (c Category) Transient() bool {
	return c == CapacityLimit
}

// NoTrace is the trace used when the failure carried no message.
const NoTrace = "No technical trace available."

// Error is a classified failure. Trace always holds the raw underlying message.
type Error struct {
	Category Category `json:"category"`
	Title    string   `json:"title"`
	Detail   string   `json:"detail"`
	Trace    string   `json:"trace"`
	cause    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Trace)
}

func (e *Error) Unwrap() error {
	return e.cause
}

var capacityMarkers = []string{"429", "quota", "limit"}

// Classify maps err to a category for the given context label (e.g.
// "Technical"). It never panics; a nil error classifies as a node
// interruption with the NoTrace placeholder.
func Classify(err error, context string) *Error {
	trace := NoTrace
	if err != nil {
		if msg := err.Error(); msg != "" {
			trace = msg
		}
	}

	lower := strings.ToLower(trace)
	if err != nil {
		for _, m := range capacityMarkers {
			if strings.Contains(lower, m) {
				return &Error{
					Category: CapacityLimit,
					Title:    context + " Capacity Limit",
					Detail:   "Authority Tier node handling maximum volume. Resolves shortly.",
					Trace:    trace,
					cause:    err,
				}
			}
		}
	}

	return &Error{
		Category: NodeInterruption,
		Title:    context + " Node Interruption",
		Detail:   "Encountered an internal exception during protocol generation.",
		Trace:    trace,
		cause:    err,
	}
}

// SyncInterrupted wraps a systemic fault that aborted a sync run.
func SyncInterrupted(err error) *Error {
	trace := NoTrace
	if err != nil && err.Error() != "" {
		trace = err.Error()
	}
	return &Error{
		Category: SyncInterruption,
		Title:    "Sync Interrupted",
		Detail:   "Network error during batch sync.",
		Trace:    trace,
		cause:    err,
	}
}

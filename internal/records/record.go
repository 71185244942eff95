// Package records keeps the two persisted request/report collections
// (Technical and Strategic) and the lifecycle status of every entry.
package records

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/claritydesk/internal/intake"
)

// ErrNotFound is returned when no record with the requested id exists.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateID is returned when a new record would reuse an existing id.
var ErrDuplicateID = errors.New("duplicate record id")

// TimestampLayout is ISO-8601 UTC with millisecond precision. Fixed width, so
// lexicographic comparison is chronological comparison.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Status is the lifecycle state of a record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Variant distinguishes the two independent record collections.
type Variant string

const (
	Technical Variant = "Technical"
	Strategic Variant = "Strategic"
)

// Prefix is prepended to record ids of this variant.
func (v Variant) Prefix() string {
	switch v {
	case Technical:
		return "TR"
	case Strategic:
		return "SJ"
	}
	return "XX"
}

// StorageKey is the persisted-storage key holding this variant's collection.
func (v Variant) StorageKey() string {
	switch v {
	case Technical:
		return "clarity_history"
	case Strategic:
		return "judgment_history"
	}
	return ""
}

// ParseVariant accepts the variant name in any case, or its id prefix.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "Technical", "technical", "TR", "tr":
		return Technical, nil
	case "Strategic", "strategic", "SJ", "sj":
		return Strategic, nil
	}
	return "", fmt.Errorf("unknown variant %q", s)
}

// VariantOf derives the variant from a record id's prefix.
func VariantOf(id string) (Variant, error) {
	prefix, _, ok := strings.Cut(id, "-")
	if !ok {
		return "", fmt.Errorf("malformed record id %q", id)
	}
	return ParseVariant(prefix)
}

// idMillis parses the millisecond suffix of a record id.
func idMillis(id string) (int64, bool) {
	_, suffix, ok := strings.Cut(id, "-")
	if !ok {
		return 0, false
	}
	ms, err := strconv.ParseInt(suffix, 10, 64)
	return ms, err == nil
}

// NewID builds "<prefix>-<unix millis>".
func NewID(v Variant, millis int64) string {
	return fmt.Sprintf("%s-%d", v.Prefix(), millis)
}

// Record is one request/report pair. Input never changes after creation;
// only Report and Status do.
type Record[I, R any] struct {
	ID        string `json:"id"`
	Input     I      `json:"input"`
	Report    *R     `json:"report,omitempty"`
	Timestamp string `json:"timestamp"`
	Status    Status `json:"status"`
}

// Complete returns a copy of r carrying report with status completed.
func (r Record[I, R]) Complete(report *R) Record[I, R] {
	r.Report = report
	r.Status = StatusCompleted
	return r
}

// Fail returns a copy of r with status failed and no report.
func (r Record[I, R]) Fail() Record[I, R] {
	r.Report = nil
	r.Status = StatusFailed
	return r
}

// Valid reports whether the record satisfies the completed-implies-report rule.
func (r Record[I, R]) Valid() bool {
	if r.ID == "" || r.Timestamp == "" {
		return false
	}
	switch r.Status {
	case StatusCompleted:
		return r.Report != nil
	case StatusPending, StatusFailed:
		return true
	}
	return false
}

type (
	TechnicalRecord = Record[intake.TechnicalInput, intake.TechnicalReport]
	StrategicRecord = Record[intake.StrategicInput, intake.StrategicReport]
)

package records

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/kalambet/claritydesk/internal/intake"
)

// KV is the persisted key/value text storage the collections are written to.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	SetMany(pairs map[string]string) error
}

// Store holds both variant collections and writes them through to KV. Store
// is not safe for concurrent use; callers serialise access.
type Store struct {
	kv     KV
	logger *slog.Logger

	Technical *Collection[intake.TechnicalInput, intake.TechnicalReport]
	Strategic *Collection[intake.StrategicInput, intake.StrategicReport]
}

// NewStore returns a Store with empty collections. Call Load to populate it.
func NewStore(kv KV) *Store {
	return &Store{
		kv:        kv,
		logger:    slog.Default(),
		Technical: NewCollection[intake.TechnicalInput, intake.TechnicalReport](Technical),
		Strategic: NewCollection[intake.StrategicInput, intake.StrategicReport](Strategic),
	}
}

// Load reads both collections from KV. Missing, unreadable or malformed data
// for one variant yields an empty collection for that variant only; Load
// itself never fails.
func (s *Store) Load() {
	loadInto(s, s.Technical)
	loadInto(s, s.Strategic)
}

func loadInto[I, R any](s *Store, c *Collection[I, R]) {
	key := c.Variant().StorageKey()
	raw, ok, err := s.kv.Get(key)
	if err != nil {
		s.logger.Warn("reading collection, starting empty", "variant", c.Variant(), "error", err)
		c.restore(nil)
		return
	}
	if !ok || strings.TrimSpace(raw) == "" {
		c.restore(nil)
		return
	}
	if err := c.Unmarshal(raw); err != nil {
		s.logger.Warn("discarding corrupt collection", "variant", c.Variant(), "error", err)
	}
}

// Save writes the full collection for v.
func (s *Store) Save(v Variant) error {
	raw, err := s.marshal(v)
	if err != nil {
		return err
	}
	if err := s.kv.Set(v.StorageKey(), raw); err != nil {
		return fmt.Errorf("persisting %s collection: %w", v, err)
	}
	return nil
}

// SaveAll writes both collections in one KV call.
func (s *Store) SaveAll() error {
	pairs := make(map[string]string, 2)
	for _, v := range []Variant{Technical, Strategic} {
		raw, err := s.marshal(v)
		if err != nil {
			return err
		}
		pairs[v.StorageKey()] = raw
	}
	if err := s.kv.SetMany(pairs); err != nil {
		return fmt.Errorf("persisting collections: %w", err)
	}
	return nil
}

func (s *Store) marshal(v Variant) (string, error) {
	switch v {
	case Technical:
		return s.Technical.Marshal()
	case Strategic:
		return s.Strategic.Marshal()
	}
	return "", fmt.Errorf("unknown variant %q", v)
}

// Delete removes a record and persists its collection. If the write fails
// the record is put back.
func (s *Store) Delete(v Variant, id string) error {
	switch v {
	case Technical:
		return deleteFrom(s, s.Technical, id)
	case Strategic:
		return deleteFrom(s, s.Strategic, id)
	}
	return fmt.Errorf("unknown variant %q", v)
}

func deleteFrom[I, R any](s *Store, c *Collection[I, R], id string) error {
	before := c.All()
	if err := c.Delete(id); err != nil {
		return err
	}
	if err := s.Save(c.Variant()); err != nil {
		c.restore(before)
		return err
	}
	return nil
}

// Snapshot captures both collections and returns a function that puts them
// back, for undoing an in-memory change whose write failed.
func (s *Store) Snapshot() (restore func()) {
	tech, strat := s.Technical.All(), s.Strategic.All()
	return func() {
		s.Technical.restore(tech)
		s.Strategic.restore(strat)
	}
}

// MaxMillis returns the largest creation millisecond among the ids of both
// collections.
func (s *Store) MaxMillis() int64 {
	return max(s.Technical.MaxMillis(), s.Strategic.MaxMillis())
}

// HasPending reports whether either collection has queued records.
func (s *Store) HasPending() bool {
	return s.Technical.HasPending() || s.Strategic.HasPending()
}

// Entry is a read-only row of the merged view.
type Entry struct {
	Variant     Variant `json:"type"`
	ID          string  `json:"id"`
	ClientName  string  `json:"name"`
	VehicleYear string  `json:"year"`
	Timestamp   string  `json:"timestamp"`
	Status      Status  `json:"status"`
}

// TechnicalEntry summarises a Technical record.
func TechnicalEntry(r TechnicalRecord) Entry {
	return Entry{
		Variant:     Technical,
		ID:          r.ID,
		ClientName:  r.Input.Client.Name,
		VehicleYear: r.Input.Vehicle.Year,
		Timestamp:   r.Timestamp,
		Status:      r.Status,
	}
}

// StrategicEntry summarises a Strategic record.
func StrategicEntry(r StrategicRecord) Entry {
	return Entry{
		Variant:     Strategic,
		ID:          r.ID,
		ClientName:  r.Input.Client.Name,
		VehicleYear: r.Input.Vehicle.Year,
		Timestamp:   r.Timestamp,
		Status:      r.Status,
	}
}

// MergedView lists both collections newest first, tagged with their variant.
// Ties keep Technical entries ahead of Strategic ones.
func (s *Store) MergedView() []Entry {
	out := make([]Entry, 0, s.Technical.Len()+s.Strategic.Len())
	for _, r := range s.Technical.items {
		out = append(out, TechnicalEntry(r))
	}
	for _, r := range s.Strategic.items {
		out = append(out, StrategicEntry(r))
	}
	slices.SortStableFunc(out, func(a, b Entry) int {
		return strings.Compare(b.Timestamp, a.Timestamp)
	})
	return out
}

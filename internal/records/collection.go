package records

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Collection is one variant's records in reverse-chronological order. Order
// is maintained by construction (new records go to the front), never by
// re-sorting. A Collection is not safe for concurrent use.
type Collection[I, R any] struct {
	variant Variant
	items   []Record[I, R]
}

// NewCollection returns an empty collection for v.
func NewCollection[I, R any](v Variant) *Collection[I, R] {
	return &Collection[I, R]{variant: v}
}

func (c *Collection[I, R]) Variant() Variant { return c.variant }

func (c *Collection[I, R]) Len() int { return len(c.items) }

// All returns a copy of the records, newest first.
func (c *Collection[I, R]) All() []Record[I, R] {
	return slices.Clone(c.items)
}

// Get returns the record with the given id.
func (c *Collection[I, R]) Get(id string) (Record[I, R], error) {
	if i := c.index(id); i >= 0 {
		return c.items[i], nil
	}
	return Record[I, R]{}, fmt.Errorf("%s %s: %w", c.variant, id, ErrNotFound)
}

// InsertFront puts rec at index 0. A record whose id is already present is
// refused with ErrDuplicateID and the collection is left unchanged.
func (c *Collection[I, R]) InsertFront(rec Record[I, R]) error {
	if c.index(rec.ID) >= 0 {
		return fmt.Errorf("%s %s: %w", c.variant, rec.ID, ErrDuplicateID)
	}
	c.items = slices.Insert(c.items, 0, rec)
	return nil
}

// MaxMillis returns the largest creation millisecond encoded in the ids of
// the collection, or 0 when it is empty.
func (c *Collection[I, R]) MaxMillis() int64 {
	var hi int64
	for _, r := range c.items {
		if ms, ok := idMillis(r.ID); ok && ms > hi {
			hi = ms
		}
	}
	return hi
}

// Replace rewrites the record with rec.ID in place, keeping its position.
func (c *Collection[I, R]) Replace(rec Record[I, R]) error {
	i := c.index(rec.ID)
	if i < 0 {
		return fmt.Errorf("%s %s: %w", c.variant, rec.ID, ErrNotFound)
	}
	c.items[i] = rec
	return nil
}

// Delete removes the record with the given id.
func (c *Collection[I, R]) Delete(id string) error {
	i := c.index(id)
	if i < 0 {
		return fmt.Errorf("%s %s: %w", c.variant, id, ErrNotFound)
	}
	c.items = slices.Delete(c.items, i, i+1)
	return nil
}

// Pending returns the pending records in collection order.
func (c *Collection[I, R]) Pending() []Record[I, R] {
	var out []Record[I, R]
	for _, r := range c.items {
		if r.Status == StatusPending {
			out = append(out, r)
		}
	}
	return out
}

func (c *Collection[I, R]) HasPending() bool {
	for _, r := range c.items {
		if r.Status == StatusPending {
			return true
		}
	}
	return false
}

// Marshal serialises the collection as an ordered JSON array of
// {id, input, report?, timestamp, status}.
func (c *Collection[I, R]) Marshal() (string, error) {
	items := c.items
	if items == nil {
		items = []Record[I, R]{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encoding %s collection: %w", c.variant, err)
	}
	return string(b), nil
}

// Unmarshal replaces the collection contents with raw. On error the
// collection is left empty. Entries that violate record invariants make the
// whole payload invalid.
func (c *Collection[I, R]) Unmarshal(raw string) error {
	c.items = nil
	var items []Record[I, R]
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return fmt.Errorf("decoding %s collection: %w", c.variant, err)
	}
	seen := make(map[string]struct{}, len(items))
	for i, r := range items {
		if !r.Valid() {
			return fmt.Errorf("decoding %s collection: entry %d is malformed", c.variant, i)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("decoding %s collection: duplicate id %s", c.variant, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	c.items = items
	return nil
}

// restore swaps in a previously captured slice.
func (c *Collection[I, R]) restore(items []Record[I, R]) {
	c.items = items
}

func (c *Collection[I, R]) index(id string) int {
	return slices.IndexFunc(c.items, func(r Record[I, R]) bool { return r.ID == id })
}

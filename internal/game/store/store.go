// Package store owns the authoritative mutable state of every cache the
// world has ever generated. A cache's record survives the viewport moving
// away: dematerializing only clears the presentation handle, so coming
// back restores the same point value and serial counter instead of
// re-rolling them.
package store

import (
	"errors"
	"fmt"

	"geocache.world/internal/game/grid"
	"geocache.world/internal/game/luck"
)

var ErrUnknownCache = errors.New("no cache record for cell")

// Record is the memento for one cache. At most one Record exists per
// (i, j) for the lifetime of the process.
type Record struct {
	Cell *grid.Cell

	// PointValue decreases by 1 per harvest. No floor: policy for
	// clamping at zero belongs to the caller, not this layer.
	PointValue int

	// NextSerial is the serial the next harvested item will get. It only
	// ever increases.
	NextSerial int

	// handle is the presentation layer's opaque rendered object, nil
	// while the cache is not materialized.
	handle any
}

func (r *Record) Materialized() bool { return r.handle != nil }

// Item identifies one harvested item. Serial is unique within the cell;
// the full (I, J, Serial) tuple is globally unique.
type Item struct {
	I      int
	J      int
	Serial int
}

func (it Item) String() string {
	return fmt.Sprintf("%d:%d#%d", it.I, it.J, it.Serial)
}

// Store maps cell keys to records. Records are created lazily and never
// deleted.
type Store struct {
	roll            luck.Source
	initialValueMax int

	// Accessed only from the session's logical thread of control.
	records map[grid.Key]*Record
}

func New(roll luck.Source, initialValueMax int) *Store {
	if roll == nil {
		roll = luck.Float
	}
	if initialValueMax <= 0 {
		initialValueMax = 100
	}
	return &Store{
		roll:            roll,
		initialValueMax: initialValueMax,
		records:         map[grid.Key]*Record{},
	}
}

// GetOrCreate returns the record for cell, creating it on first visit.
// The initial point value is rolled exactly once, from the luck source
// keyed by (i, j, "initialValue"); later visits never re-roll it.
func (s *Store) GetOrCreate(cell *grid.Cell) *Record {
	k := cell.Key()
	if r, ok := s.records[k]; ok {
		return r
	}
	r := &Record{
		Cell:       cell,
		PointValue: int(s.roll(luck.Key(cell.I, cell.J, "initialValue")) * float64(s.initialValueMax)),
	}
	s.records[k] = r
	return r
}

// Get returns the record for cell if one has ever been created.
func (s *Store) Get(cell grid.Cell) (*Record, bool) {
	r, ok := s.records[cell.Key()]
	return r, ok
}

// Harvest takes one item from an existing cache: decrements the point
// value and assigns the next serial, as a single step. Harvesting a cell
// that was never rolled is a caller bug and fails.
func (s *Store) Harvest(cell grid.Cell) (Item, error) {
	r, ok := s.records[cell.Key()]
	if !ok {
		return Item{}, fmt.Errorf("harvest %v: %w", cell, ErrUnknownCache)
	}
	it := Item{I: cell.I, J: cell.J, Serial: r.NextSerial}
	r.NextSerial++
	r.PointValue--
	return it, nil
}

// SetMaterialized records the presentation handle for a cache, or clears
// it with nil. Bookkeeping only: point value and serials are untouched.
func (s *Store) SetMaterialized(cell grid.Cell, handle any) error {
	r, ok := s.records[cell.Key()]
	if !ok {
		return fmt.Errorf("set materialized %v: %w", cell, ErrUnknownCache)
	}
	r.handle = handle
	return nil
}

// Handle returns the presentation handle stored for cell, if any.
func (s *Store) Handle(cell grid.Cell) any {
	if r, ok := s.records[cell.Key()]; ok {
		return r.handle
	}
	return nil
}

func (s *Store) Len() int { return len(s.records) }

// Keys returns every cell key with a record, in unspecified order.
func (s *Store) Keys() []grid.Key {
	keys := make([]grid.Key, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	return keys
}

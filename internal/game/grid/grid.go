// Package grid maps continuous player coordinates onto the discrete cell
// grid the rest of the game runs on.
package grid

import (
	"errors"
	"fmt"
	"math"
)

// DefaultScale quantizes at 1e-4 degrees per cell.
const DefaultScale = 1e4

var (
	ErrInvalidCoordinate = errors.New("non-finite coordinate")
	ErrCoordinateRange   = errors.New("coordinate outside grid range")
)

// Cell is one fixed-size rectangle of the coordinate plane, identified by
// its integer grid coordinates. Cells are immutable; canonical instances
// come from an Interner so pointer equality works as identity.
type Cell struct {
	I int
	J int
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.I, c.J)
}

// Key packs (i, j) into a single map key. Cell counts are bounded by the
// area a player covers in one session, far inside int32 on both axes.
type Key int64

func (c Cell) Key() Key {
	return Key(int64(int32(c.I))<<32 | int64(uint32(int32(c.J))))
}

func (k Key) Cell() Cell {
	return Cell{I: int(int32(k >> 32)), J: int(int32(uint32(k)))}
}

// Rect is the continuous region a cell covers.
type Rect struct {
	LatMin, LngMin float64
	LatMax, LngMax float64
}

// Quantizer floors continuous coordinates onto the grid and hands out
// canonical cells from its interner.
type Quantizer struct {
	scale  float64
	intern *Interner
}

func NewQuantizer(scale float64) *Quantizer {
	if scale <= 0 {
		scale = DefaultScale
	}
	return &Quantizer{scale: scale, intern: NewInterner()}
}

func (q *Quantizer) Scale() float64 { return q.scale }

// Quantize returns the canonical cell containing (lat, lng). NaN or Inf
// fails fast rather than producing a nonsense cell, and so do finite
// inputs whose grid coordinates overflow the int32 packing in Key (far
// outside any real latitude/longitude at the default scale).
func (q *Quantizer) Quantize(lat, lng float64) (*Cell, error) {
	if !finite(lat) || !finite(lng) {
		return nil, fmt.Errorf("quantize (%v, %v): %w", lat, lng, ErrInvalidCoordinate)
	}
	fi := math.Floor(lat * q.scale)
	fj := math.Floor(lng * q.scale)
	// Checked as floats: out-of-range float-to-int conversion is not
	// well defined.
	if fi < math.MinInt32 || fi > math.MaxInt32 || fj < math.MinInt32 || fj > math.MaxInt32 {
		return nil, fmt.Errorf("quantize (%v, %v): %w", lat, lng, ErrCoordinateRange)
	}
	return q.intern.GetOrCreate(int(fi), int(fj)), nil
}

// Intern returns the canonical cell for grid coordinates directly,
// bypassing continuous coordinates.
func (q *Quantizer) Intern(i, j int) *Cell {
	return q.intern.GetOrCreate(i, j)
}

// Bounds is the inverse of Quantize: the continuous rectangle a cell
// covers. Used by presentation, not by core logic.
func (q *Quantizer) Bounds(c Cell) Rect {
	return Rect{
		LatMin: float64(c.I) / q.scale,
		LngMin: float64(c.J) / q.scale,
		LatMax: float64(c.I+1) / q.scale,
		LngMax: float64(c.J+1) / q.scale,
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Package engine drives the visible world. It owns the whole game state
// for one session (player position, points, the cell interner and the
// cache store) and recomputes cache visibility from scratch on every
// player move, emitting the spawn/despawn diff the presentation layer
// needs to keep its rendered objects in sync.
package engine

import (
	"errors"
	"fmt"
	"sort"

	"geocache.world/internal/game/grid"
	"geocache.world/internal/game/luck"
	"geocache.world/internal/game/store"
	"geocache.world/internal/game/tuning"
)

var ErrNotVisible = errors.New("cache not in visible set")

type Config struct {
	ScaleFactor        float64
	NeighborhoodRadius int
	SpawnProbability   float64
	InitialValueMax    int
	OriginLat          float64
	OriginLng          float64
}

func ConfigFromTuning(t tuning.Tuning) Config {
	return Config{
		ScaleFactor:        t.ScaleFactor,
		NeighborhoodRadius: t.NeighborhoodRadius,
		SpawnProbability:   t.SpawnProbability,
		InitialValueMax:    t.InitialValueMax,
		OriginLat:          t.OriginLat,
		OriginLng:          t.OriginLng,
	}
}

// CacheView is the read-only slice of a cache record handed to the
// presentation layer on spawn.
type CacheView struct {
	Cell       grid.Cell
	PointValue int
	NextSerial int
	Bounds     grid.Rect
}

// Diff is what changed in the visible set after one move: caches to
// materialize and caches to dispose. Both slices are sorted by (I, J).
type Diff struct {
	Spawn   []CacheView
	Despawn []grid.Cell
}

func (d Diff) Empty() bool { return len(d.Spawn) == 0 && len(d.Despawn) == 0 }

// HarvestResult reports one harvest: the item taken, the cache's
// remaining point value, and the player's running total.
type HarvestResult struct {
	Item       store.Item
	PointValue int
	Points     int
}

// Engine is not safe for concurrent use; the caller serializes player
// actions (one command at a time per session).
type Engine struct {
	cfg   Config
	roll  luck.Source
	quant *grid.Quantizer
	store *store.Store

	playerLat float64
	playerLng float64
	center    *grid.Cell
	visible   map[grid.Key]*grid.Cell
	points    int
}

func New(cfg Config, roll luck.Source) *Engine {
	if roll == nil {
		roll = luck.Float
	}
	return &Engine{
		cfg:       cfg,
		roll:      roll,
		quant:     grid.NewQuantizer(cfg.ScaleFactor),
		store:     store.New(roll, cfg.InitialValueMax),
		playerLat: cfg.OriginLat,
		playerLng: cfg.OriginLng,
		visible:   map[grid.Key]*grid.Cell{},
	}
}

func (e *Engine) Player() (lat, lng float64) { return e.playerLat, e.playerLng }

func (e *Engine) Points() int { return e.points }

func (e *Engine) Quantizer() *grid.Quantizer { return e.quant }

func (e *Engine) Store() *store.Store { return e.store }

// Center returns the player's current cell, or false before the first
// move or reset.
func (e *Engine) Center() (grid.Cell, bool) {
	if e.center == nil {
		return grid.Cell{}, false
	}
	return *e.center, true
}

// VisibleCells returns the materialized set, sorted.
func (e *Engine) VisibleCells() []grid.Cell {
	cells := make([]grid.Cell, 0, len(e.visible))
	for _, c := range e.visible {
		cells = append(cells, *c)
	}
	sortCells(cells)
	return cells
}

// MoveTo places the player at an absolute position. If the new position
// quantizes to the same center cell the visible set cannot change and
// the diff is empty; otherwise visibility is re-derived in full.
func (e *Engine) MoveTo(lat, lng float64) (Diff, error) {
	c, err := e.quant.Quantize(lat, lng)
	if err != nil {
		return Diff{}, err
	}
	e.playerLat, e.playerLng = lat, lng
	if e.center == c {
		return Diff{}, nil
	}
	e.center = c
	return e.recompute(), nil
}

// MoveBy nudges the player by a delta. Crossing a quantization boundary
// changes the center cell even for deltas smaller than one cell.
func (e *Engine) MoveBy(dLat, dLng float64) (Diff, error) {
	return e.MoveTo(e.playerLat+dLat, e.playerLng+dLng)
}

// Reset returns the player to the origin and forces a full
// recomputation, regardless of whether the center cell changed.
func (e *Engine) Reset() Diff {
	c, err := e.quant.Quantize(e.cfg.OriginLat, e.cfg.OriginLng)
	if err != nil {
		// tuning.Load rejects non-finite origins, so a bad origin here
		// means the Config was built by hand and is a programming error.
		panic(fmt.Sprintf("engine: invalid origin: %v", err))
	}
	e.playerLat, e.playerLng = e.cfg.OriginLat, e.cfg.OriginLng
	e.center = c
	return e.recompute()
}

// Harvest takes one item from a currently visible cache and credits the
// player a point. Harvesting outside the visible set is rejected; it
// means the presentation layer let the player interact with a cache it
// should have disposed.
func (e *Engine) Harvest(cell grid.Cell) (HarvestResult, error) {
	if _, ok := e.visible[cell.Key()]; !ok {
		return HarvestResult{}, fmt.Errorf("harvest %v: %w", cell, ErrNotVisible)
	}
	it, err := e.store.Harvest(cell)
	if err != nil {
		return HarvestResult{}, err
	}
	e.points++
	rec, _ := e.store.Get(cell)
	return HarvestResult{Item: it, PointValue: rec.PointValue, Points: e.points}, nil
}

// recompute re-derives the member set around the current center and
// reconciles it against what is materialized. Membership is a pure
// function of the cell key, so the same world falls out of every pass.
func (e *Engine) recompute() Diff {
	r := e.cfg.NeighborhoodRadius
	members := map[grid.Key]*grid.Cell{}
	for di := -r; di <= r; di++ {
		for dj := -r; dj <= r; dj++ {
			i, j := e.center.I+di, e.center.J+dj
			if e.roll(luck.Key(i, j)) < e.cfg.SpawnProbability {
				c := e.quant.Intern(i, j)
				members[c.Key()] = c
			}
		}
	}

	var diff Diff
	for k, c := range members {
		if _, ok := e.visible[k]; ok {
			continue
		}
		rec := e.store.GetOrCreate(c)
		_ = e.store.SetMaterialized(*c, c)
		e.visible[k] = c
		diff.Spawn = append(diff.Spawn, CacheView{
			Cell:       *c,
			PointValue: rec.PointValue,
			NextSerial: rec.NextSerial,
			Bounds:     e.quant.Bounds(*c),
		})
	}
	for k, c := range e.visible {
		if _, ok := members[k]; ok {
			continue
		}
		_ = e.store.SetMaterialized(*c, nil)
		delete(e.visible, k)
		diff.Despawn = append(diff.Despawn, *c)
	}

	sort.Slice(diff.Spawn, func(a, b int) bool {
		return cellLess(diff.Spawn[a].Cell, diff.Spawn[b].Cell)
	})
	sortCells(diff.Despawn)
	return diff
}

func sortCells(cells []grid.Cell) {
	sort.Slice(cells, func(a, b int) bool { return cellLess(cells[a], cells[b]) })
}

func cellLess(a, b grid.Cell) bool {
	if a.I != b.I {
		return a.I < b.I
	}
	return a.J < b.J
}

// Package spatial is an in-memory uniform grid answering "which interactables
// are near this point" for the interaction resolver.
package spatial

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"interactworld.ai/internal/sim/geom"
	"interactworld.ai/internal/sim/interact"
)

const (
	DefaultCellSize = 4.0

	// DefaultLayer is assigned to entries inserted with layer 0.
	DefaultLayer interact.Layer = 1
)

var ErrDuplicateID = errors.New("spatial: duplicate id")

type entry struct {
	id     string
	target interact.Interactable
	pos    geom.Vec3
	layer  interact.Layer
	cell   geom.Vec3i
	seq    uint64
}

// Index buckets entries by grid cell. Queries enumerate hits in insertion
// order, which makes the resolver's first-seen tie-break deterministic.
type Index struct {
	cellSize float64
	cells    map[geom.Vec3i][]*entry
	byID     map[string]*entry
	seq      uint64
}

var _ interact.Query = (*Index)(nil)

func New(cellSize float64) *Index {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &Index{
		cellSize: cellSize,
		cells:    map[geom.Vec3i][]*entry{},
		byID:     map[string]*entry{},
	}
}

func (x *Index) Len() int { return len(x.byID) }

func (x *Index) CellSize() float64 { return x.cellSize }

func (x *Index) Insert(id string, t interact.Interactable, pos geom.Vec3, layer interact.Layer) error {
	if id == "" || t == nil {
		return fmt.Errorf("spatial: insert %q: missing id or target", id)
	}
	if _, ok := x.byID[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	if layer == 0 {
		layer = DefaultLayer
	}
	x.seq++
	e := &entry{
		id:     id,
		target: t,
		pos:    pos,
		layer:  layer,
		cell:   geom.Cell(pos, x.cellSize),
		seq:    x.seq,
	}
	x.byID[id] = e
	x.cells[e.cell] = append(x.cells[e.cell], e)
	return nil
}

// Move updates an entry's position, rebucketing it when it crosses a cell.
// Enumeration order is preserved.
func (x *Index) Move(id string, pos geom.Vec3) bool {
	e := x.byID[id]
	if e == nil {
		return false
	}
	e.pos = pos
	c := geom.Cell(pos, x.cellSize)
	if c == e.cell {
		return true
	}
	x.unbucket(e)
	e.cell = c
	x.cells[c] = append(x.cells[c], e)
	return true
}

func (x *Index) SetLayer(id string, layer interact.Layer) bool {
	e := x.byID[id]
	if e == nil {
		return false
	}
	if layer == 0 {
		layer = DefaultLayer
	}
	e.layer = layer
	return true
}

func (x *Index) Remove(id string) bool {
	e := x.byID[id]
	if e == nil {
		return false
	}
	x.unbucket(e)
	delete(x.byID, id)
	return true
}

func (x *Index) Get(id string) (interact.Interactable, bool) {
	e := x.byID[id]
	if e == nil {
		return nil, false
	}
	return e.target, true
}

// IDOf does a reverse lookup from target to id.
func (x *Index) IDOf(t interact.Interactable) (string, bool) {
	if t == nil {
		return "", false
	}
	for id, e := range x.byID {
		if e.target == t {
			return id, true
		}
	}
	return "", false
}

// IDs returns all ids in insertion order.
func (x *Index) IDs() []string {
	all := make([]*entry, 0, len(x.byID))
	for _, e := range x.byID {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	out := make([]string, len(all))
	for i, e := range all {
		out[i] = e.id
	}
	return out
}

func (x *Index) Nearby(center geom.Vec3, radius float64, mask interact.Layer) []interact.Candidate {
	if radius < 0 || math.IsNaN(radius) {
		return nil
	}
	if mask == 0 {
		mask = interact.AllLayers
	}
	lo := geom.Cell(geom.Vec3{X: center.X - radius, Y: center.Y - radius, Z: center.Z - radius}, x.cellSize)
	hi := geom.Cell(geom.Vec3{X: center.X + radius, Y: center.Y + radius, Z: center.Z + radius}, x.cellSize)

	r2 := radius * radius
	var hits []*entry
	// Sparse worlds: walking the populated cells beats walking a huge box.
	if boxCells(lo, hi) > len(x.cells) {
		for c, es := range x.cells {
			if !inBox(c, lo, hi) {
				continue
			}
			hits = collect(hits, es, center, r2, mask)
		}
	} else {
		for cx := lo.X; cx <= hi.X; cx++ {
			for cy := lo.Y; cy <= hi.Y; cy++ {
				for cz := lo.Z; cz <= hi.Z; cz++ {
					hits = collect(hits, x.cells[geom.Vec3i{X: cx, Y: cy, Z: cz}], center, r2, mask)
				}
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })

	out := make([]interact.Candidate, len(hits))
	for i, e := range hits {
		out[i] = interact.Candidate{Target: e.target, Pos: e.pos}
	}
	return out
}

func collect(dst []*entry, es []*entry, center geom.Vec3, r2 float64, mask interact.Layer) []*entry {
	for _, e := range es {
		if e.layer&mask == 0 {
			continue
		}
		if geom.DistanceSq(center, e.pos) > r2 {
			continue
		}
		dst = append(dst, e)
	}
	return dst
}

func (x *Index) unbucket(e *entry) {
	es := x.cells[e.cell]
	for i, o := range es {
		if o == e {
			es = append(es[:i], es[i+1:]...)
			break
		}
	}
	if len(es) == 0 {
		delete(x.cells, e.cell)
		return
	}
	x.cells[e.cell] = es
}

func boxCells(lo, hi geom.Vec3i) int {
	dx := hi.X - lo.X + 1
	dy := hi.Y - lo.Y + 1
	dz := hi.Z - lo.Z + 1
	if dx > 1<<10 || dy > 1<<10 || dz > 1<<10 {
		return math.MaxInt
	}
	return dx * dy * dz
}

func inBox(c, lo, hi geom.Vec3i) bool {
	return c.X >= lo.X && c.X <= hi.X &&
		c.Y >= lo.Y && c.Y <= hi.Y &&
		c.Z >= lo.Z && c.Z <= hi.Z
}

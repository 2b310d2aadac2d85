// Package physics implements collision detection (layers, collider shapes, a
// grid broadphase, pairwise narrow phase, ray casts) and rigid body response.
// Everything runs on the game loop inside the fixed step.
package physics

import (
	"github.com/rotisserie/eris"
)

// MaxLayers is the width of a LayerMask.
const MaxLayers = 32

var (
	ErrTooManyLayers  = eris.New("too many collision layers")
	ErrDuplicateLayer = eris.New("duplicate collision layer")
	ErrUnknownLayer   = eris.New("unknown collision layer")
)

// LayerMask is a bitset over layer indices.
type LayerMask uint32

// AllLayers matches every layer.
const AllLayers = ^LayerMask(0)

func (m LayerMask) Has(layer int) bool {
	return layer >= 0 && layer < MaxLayers && m&(1<<uint(layer)) != 0
}

func (m LayerMask) With(layer int) LayerMask {
	if layer < 0 || layer >= MaxLayers {
		return m
	}
	return m | 1<<uint(layer)
}

// LayerTable maps layer names to indices. Index 0 is "Default" unless the
// table is loaded with other names.
type LayerTable struct {
	names []string
	index map[string]int
}

func NewLayerTable(names ...string) (*LayerTable, error) {
	if len(names) > MaxLayers {
		return nil, eris.Wrapf(ErrTooManyLayers, "%d > %d", len(names), MaxLayers)
	}
	t := &LayerTable{names: append([]string(nil), names...), index: make(map[string]int, len(names))}
	for i, n := range names {
		if _, dup := t.index[n]; dup {
			return nil, eris.Wrapf(ErrDuplicateLayer, "%q", n)
		}
		t.index[n] = i
	}
	return t, nil
}

// DefaultLayers holds the single "Default" layer.
func DefaultLayers() *LayerTable {
	t, _ := NewLayerTable("Default")
	return t
}

func (t *LayerTable) Len() int        { return len(t.names) }
func (t *LayerTable) Names() []string { return t.names }

// Index returns the index of name.
func (t *LayerTable) Index(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Name returns the name at index i, "" if out of range.
func (t *LayerTable) Name(i int) string {
	if i < 0 || i >= len(t.names) {
		return ""
	}
	return t.names[i]
}

// Mask converts names to a mask. Unknown names are skipped and returned.
func (t *LayerTable) Mask(names ...string) (LayerMask, []string) {
	var m LayerMask
	var unknown []string
	for _, n := range names {
		i, ok := t.index[n]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		m = m.With(i)
	}
	return m, unknown
}

// MaskNames converts a mask back to names, in index order.
func (t *LayerTable) MaskNames(m LayerMask) []string {
	var names []string
	for i, n := range t.names {
		if m.Has(i) {
			names = append(names, n)
		}
	}
	return names
}

package physics

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	json "github.com/goccy/go-json"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/id"
	"github.com/quarrygate/engine/internal/core/serial"
	"github.com/quarrygate/engine/internal/core/system"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// record is the collision system's view of one live collider.
type record struct {
	c      Collider
	b      *ColliderBase
	order  uint64
	bounds AABB
	span   cellSpan
	alive  bool
}

type pairKey struct{ a, b id.ID }

type contact struct {
	key  pairKey
	a, b *record
	data CollisionData
}

// contactSet is the ordered set of pairs currently touching.
type contactSet struct {
	keys []pairKey
	byID map[pairKey]*contact
}

func (s *contactSet) has(k pairKey) bool {
	_, ok := s.byID[k]
	return ok
}

func (s *contactSet) add(c *contact) {
	if s.byID == nil {
		s.byID = make(map[pairKey]*contact)
	}
	s.keys = append(s.keys, c.key)
	s.byID[c.key] = c
}

func (s *contactSet) remove(k pairKey) {
	if _, ok := s.byID[k]; !ok {
		return
	}
	delete(s.byID, k)
	for i, key := range s.keys {
		if key == k {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

func (s *contactSet) snapshot() []*contact {
	out := make([]*contact, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.byID[k])
	}
	return out
}

// CollisionSystem finds touching collider pairs every fixed step and fires
// their callbacks. Pairs are ordered by the registration order of their
// colliders, so a run is deterministic. For each step, exits fire first,
// then for each touching pair A (registered first) and B: enter A, enter B
// on the first frame, then stay A, stay B.
type CollisionSystem struct {
	log      *zap.Logger
	world    *ecs.World
	layers   *LayerTable
	grid     *grid
	records  []*record
	byID     map[id.ID]*record
	contacts contactSet
	next     uint64
}

// NewCollisionSystem attaches the system to every collider type in w and
// provides it as a world service.
func NewCollisionSystem(w *ecs.World) *CollisionSystem {
	s := &CollisionSystem{
		log:    w.Log(),
		world:  w,
		layers: DefaultLayers(),
		grid:   newGrid(defaultCellSize),
		byID:   make(map[id.ID]*record),
	}
	w.RegisterBehaviors(ecs.TagOf[*CircleCollider](), s)
	w.RegisterBehaviors(ecs.TagOf[*LineCollider](), s)
	w.RegisterBehaviors(ecs.TagOf[*TilemapCollider](), s)
	ecs.Provide(w, s)
	return s
}

func (s *CollisionSystem) Name() string        { return "CollisionSystem" }
func (s *CollisionSystem) Phase() system.Phase { return system.PhaseCollision }
func (s *CollisionSystem) Layers() *LayerTable { return s.layers }
func (s *CollisionSystem) Len() int            { return len(s.byID) }
func (s *CollisionSystem) ContactCount() int   { return len(s.contacts.keys) }

// SetLayers replaces the layer table and re-resolves every collider.
func (s *CollisionSystem) SetLayers(t *LayerTable) {
	s.layers = t
	for _, r := range s.records {
		s.resolveLayers(r.b)
	}
}

// SetCellSize rebuilds the broadphase with a new cell size.
func (s *CollisionSystem) SetCellSize(size float32) {
	s.grid = newGrid(size)
	for _, r := range s.records {
		s.grid.Add(r)
	}
}

// Touching reports whether a and b were in contact after the last step.
func (s *CollisionSystem) Touching(a, b Collider) bool {
	ra, rb := s.byID[a.ID()], s.byID[b.ID()]
	if ra == nil || rb == nil {
		return false
	}
	return s.contacts.has(s.key(ra, rb))
}

func (s *CollisionSystem) AddComponent(c ecs.Component) error {
	col, ok := c.(Collider)
	if !ok {
		return eris.Wrapf(ecs.ErrInvariantViolation, "collision system given %T", c)
	}
	if _, dup := s.byID[c.ID()]; dup {
		return eris.Wrapf(ecs.ErrInvariantViolation, "collider %d already registered", c.ID())
	}
	s.next++
	r := &record{c: col, b: col.collider(), order: s.next, alive: true}
	r.b.system = s
	s.resolveLayers(r.b)
	r.bounds = col.Bounds()
	r.b.changed = false
	s.grid.Add(r)
	s.records = append(s.records, r)
	s.byID[c.ID()] = r
	return nil
}

// RemoveComponent unregisters c and fires the exit callbacks of every
// contact it was part of.
func (s *CollisionSystem) RemoveComponent(c ecs.Component) error {
	r, ok := s.byID[c.ID()]
	if !ok {
		return eris.Wrapf(ecs.ErrInvariantViolation, "collider %d not registered", c.ID())
	}
	r.alive = false
	delete(s.byID, c.ID())
	s.grid.Remove(r)
	for i, rec := range s.records {
		if rec == r {
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	for _, ct := range s.contacts.snapshot() {
		if ct.a == r || ct.b == r {
			s.contacts.remove(ct.key)
			s.fireExit(ct)
		}
	}
	r.b.system = nil
	return nil
}

// FixedUpdate refreshes stale broadphase records, finds touching pairs and
// dispatches callbacks.
func (s *CollisionSystem) FixedUpdate() {
	records := append([]*record(nil), s.records...)
	for _, r := range records {
		if r.b.changed {
			s.grid.Move(r, r.c.Bounds())
			r.b.changed = false
		}
	}

	current := s.detect(records)
	touching := make(map[pairKey]struct{}, len(current))
	for _, ct := range current {
		touching[ct.key] = struct{}{}
	}

	for _, ct := range s.contacts.snapshot() {
		if _, still := touching[ct.key]; !still && s.contacts.has(ct.key) {
			s.contacts.remove(ct.key)
			s.fireExit(ct)
		}
	}

	for _, ct := range current {
		if !ct.a.alive || !ct.b.alive {
			continue
		}
		if !s.contacts.has(ct.key) {
			s.contacts.add(ct)
			s.fire(ct, &ct.a.b.enter, &ct.b.b.enter)
		} else {
			s.contacts.byID[ct.key].data = ct.data
		}
		s.fire(ct, &ct.a.b.stay, &ct.b.b.stay)
	}
}

// detect returns every touching, layer-eligible pair in registration order.
func (s *CollisionSystem) detect(records []*record) []*contact {
	var out []*contact
	seen := make(map[*record]struct{})
	var near []*record
	for _, a := range records {
		clear(seen)
		near = near[:0]
		s.grid.Nearby(a, func(b *record) {
			if b.order <= a.order {
				return
			}
			if _, dup := seen[b]; dup {
				return
			}
			seen[b] = struct{}{}
			near = append(near, b)
		})
		sort.Slice(near, func(i, j int) bool { return near[i].order < near[j].order })
		for _, b := range near {
			if !eligible(a.b, b.b) || !a.bounds.Overlaps(b.bounds) {
				continue
			}
			d, ok := Collide(a.c, b.c)
			if !ok {
				continue
			}
			out = append(out, &contact{key: pairKey{a.c.ID(), b.c.ID()}, a: a, b: b, data: d})
		}
	}
	return out
}

// eligible is the layer test: either side's mask selects the other's layer.
func eligible(a, b *ColliderBase) bool {
	return a.mask.Has(b.layer) || b.mask.Has(a.layer)
}

func (s *CollisionSystem) fire(ct *contact, onA, onB *id.Callbacks[CollisionFunc]) {
	if ct.a.alive && ct.b.alive {
		onA.Each(func(fn CollisionFunc) { fn(ct.b.c, ct.data) })
	}
	if ct.a.alive && ct.b.alive {
		neg := ct.data.Negated()
		onB.Each(func(fn CollisionFunc) { fn(ct.a.c, neg) })
	}
}

func (s *CollisionSystem) fireExit(ct *contact) {
	ct.a.b.exit.Each(func(fn ExitFunc) { fn(ct.b.c) })
	ct.b.b.exit.Each(func(fn ExitFunc) { fn(ct.a.c) })
}

func (s *CollisionSystem) key(a, b *record) pairKey {
	if a.order > b.order {
		a, b = b, a
	}
	return pairKey{a.c.ID(), b.c.ID()}
}

func (s *CollisionSystem) resolveLayers(b *ColliderBase) {
	b.layer = 0
	if b.layerName != "" {
		i, ok := s.layers.Index(b.layerName)
		if !ok {
			s.log.Warn("collider layer", zap.Error(eris.Wrapf(ErrUnknownLayer, "%q", b.layerName)))
			i = -1
		}
		b.layer = i
	}
	var unknown []string
	b.mask, unknown = s.layers.Mask(b.maskNames...)
	for _, n := range unknown {
		s.log.Warn("collider mask", zap.Error(eris.Wrapf(ErrUnknownLayer, "%q", n)))
	}
}

// RayCast returns the nearest hit among colliders whose layer is in mask.
// dir need not be normalised; a zero direction hits nothing.
func (s *CollisionSystem) RayCast(origin, dir mgl32.Vec2, maxDistance float32, mask LayerMask) (RayCastHit, bool) {
	if dir.LenSqr() == 0 || maxDistance <= 0 {
		return RayCastHit{}, false
	}
	dir = dir.Normalize()
	var best RayCastHit
	found := false
	for _, r := range s.records {
		if !mask.Has(r.b.layer) {
			continue
		}
		hit, ok := r.c.RayCast(origin, dir, maxDistance)
		if ok && (!found || hit.Distance < best.Distance) {
			best, found = hit, true
		}
	}
	return best, found
}

// RayCastLayers is RayCast with the mask given by layer names.
func (s *CollisionSystem) RayCastLayers(origin, dir mgl32.Vec2, maxDistance float32, layers ...string) (RayCastHit, bool) {
	mask, _ := s.layers.Mask(layers...)
	return s.RayCast(origin, dir, maxDistance, mask)
}

func (s *CollisionSystem) ReadMethods() serial.Methods {
	return serial.Methods{
		{Key: "Layers", Read: func(r *serial.Reader, data json.RawMessage) {
			var names []string
			serial.Slice(&names, serial.Value[string])(r, data)
			t, err := NewLayerTable(names...)
			if err != nil {
				r.Error(err)
				return
			}
			s.SetLayers(t)
		}},
		{Key: "CellSize", Read: serial.Func(s.SetCellSize)},
	}
}

func (s *CollisionSystem) Write() *serial.Object {
	return serial.NewObject().
		Set("Layers", s.layers.Names()).
		Set("CellSize", s.grid.size)
}

func (s *CollisionSystem) Load(r *serial.Reader, data json.RawMessage) { r.Read(s, data) }

func (s *CollisionSystem) DebugWindow() *serial.Object {
	return s.Write().
		Set("Colliders", len(s.records)).
		Set("Contacts", len(s.contacts.keys))
}

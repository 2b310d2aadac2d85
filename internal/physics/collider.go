package physics

import (
	"github.com/go-gl/mathgl/mgl32"
	json "github.com/goccy/go-json"
	"github.com/quarrygate/engine/internal/component"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/id"
	"github.com/quarrygate/engine/internal/core/serial"
)

// Kind identifies a collider shape in the pair dispatch table.
type Kind int

const (
	KindCircle Kind = iota
	KindLine
	KindTilemap
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindCircle:
		return "circle"
	case KindLine:
		return "line"
	case KindTilemap:
		return "tilemap"
	}
	return "unknown"
}

// AABB is an axis-aligned box in world space.
type AABB struct {
	Min, Max mgl32.Vec2
}

func (a AABB) Overlaps(b AABB) bool {
	return a.Min.X() <= b.Max.X() && b.Min.X() <= a.Max.X() &&
		a.Min.Y() <= b.Max.Y() && b.Min.Y() <= a.Max.Y()
}

// CollisionData describes one contact as seen by the receiving collider:
// Normal points from the other collider toward the receiver.
type CollisionData struct {
	Normal   mgl32.Vec2
	Depth    float32
	Position mgl32.Vec2
	// TilePos is the tile involved when either side is a tilemap.
	TilePos [2]int
	HasTile bool
}

// Negated is the same contact seen from the other side.
func (d CollisionData) Negated() CollisionData {
	d.Normal = d.Normal.Mul(-1)
	return d
}

// CollisionFunc receives the other collider and the contact.
type CollisionFunc func(other Collider, d CollisionData)

// ExitFunc receives the collider a contact was lost with.
type ExitFunc func(other Collider)

// Collider is implemented by every collider shape. The unexported method
// keeps the set closed to this package.
type Collider interface {
	ecs.Component
	Kind() Kind
	Bounds() AABB
	RayCast(origin, dir mgl32.Vec2, maxDistance float32) (RayCastHit, bool)
	collider() *ColliderBase
}

// ColliderBase carries the state shared by every shape: layer and mask, the
// co-resident Transform, and the collision callbacks.
type ColliderBase struct {
	ecs.Base
	layerName string
	maskNames []string
	layer     int
	mask      LayerMask

	transform    ecs.ComponentReference[*component.Transform]
	transformKey id.ID

	enter id.Callbacks[CollisionFunc]
	stay  id.Callbacks[CollisionFunc]
	exit  id.Callbacks[ExitFunc]

	changed bool
	system  *CollisionSystem
}

func (b *ColliderBase) collider() *ColliderBase { return b }

// BaseOf returns the layer and callback state shared by every shape.
func BaseOf(c Collider) *ColliderBase { return c.collider() }

func (b *ColliderBase) Layer() int          { return b.layer }
func (b *ColliderBase) LayerName() string   { return b.layerName }
func (b *ColliderBase) Mask() LayerMask     { return b.mask }
func (b *ColliderBase) MaskNames() []string { return b.maskNames }

// HasChanged reports whether the broadphase record is stale.
func (b *ColliderBase) HasChanged() bool { return b.changed }
func (b *ColliderBase) MarkChanged()     { b.changed = true }

// SetLayer moves the collider to the named layer.
func (b *ColliderBase) SetLayer(name string) {
	b.layerName = name
	if b.system != nil {
		b.system.resolveLayers(b)
	}
}

// SetMask replaces the set of layers this collider reacts to.
func (b *ColliderBase) SetMask(names ...string) {
	b.maskNames = append([]string(nil), names...)
	if b.system != nil {
		b.system.resolveLayers(b)
	}
}

func (b *ColliderBase) AddOnCollisionEnterCallback(fn CollisionFunc) id.ID { return b.enter.Add(fn) }
func (b *ColliderBase) AddOnCollisionCallback(fn CollisionFunc) id.ID      { return b.stay.Add(fn) }
func (b *ColliderBase) AddOnCollisionExitCallback(fn ExitFunc) id.ID       { return b.exit.Add(fn) }

// RemoveCallback removes an enter, stay or exit callback by key.
func (b *ColliderBase) RemoveCallback(key id.ID) bool {
	return b.enter.Remove(key) || b.stay.Remove(key) || b.exit.Remove(key)
}

// Transform returns the co-resident transform, nil if there is none.
func (b *ColliderBase) Transform() *component.Transform { return b.transform.Get() }

// RigidBody returns the co-resident rigid body, nil if there is none.
func (b *ColliderBase) RigidBody() *RigidBody {
	if b.Entity() == nil {
		return nil
	}
	return ecs.Get[*RigidBody](b.Entity())
}

// StaticBody returns the co-resident static body, nil if there is none.
func (b *ColliderBase) StaticBody() *StaticBody {
	if b.Entity() == nil {
		return nil
	}
	return ecs.Get[*StaticBody](b.Entity())
}

func (b *ColliderBase) OnInit(*ecs.World) {
	b.transform.SetOnConnectCallback(func(t *component.Transform) {
		b.transformKey = t.AddOnChanged(func(*component.Transform) { b.changed = true })
	})
	b.transform.SetOnDisconnectCallback(func(t *component.Transform) {
		t.RemoveOnChanged(b.transformKey)
		b.transformKey = 0
	})
	b.transform.SetRequired(false)
	b.transform.Init(b.Entity())
	b.changed = true
}

func (b *ColliderBase) OnExit() { b.transform.Exit() }

// local maps a point from the collider's local space to world space.
func (b *ColliderBase) local(p mgl32.Vec2) mgl32.Vec2 {
	if t := b.transform.Get(); t != nil {
		return t.Apply(p)
	}
	return p
}

func (b *ColliderBase) origin() mgl32.Vec2 {
	if t := b.transform.Get(); t != nil {
		return t.Translation()
	}
	return mgl32.Vec2{}
}

func (b *ColliderBase) scale() float32 {
	t := b.transform.Get()
	if t == nil {
		return 1
	}
	s := t.Scale()
	return max(abs(s.X()), abs(s.Y()))
}

func (b *ColliderBase) readMethods() serial.Methods {
	return serial.Methods{
		{Key: "CollisionLayer", Read: serial.Func(b.SetLayer)},
		{Key: "CollisionLayerFlags", Read: func(r *serial.Reader, data json.RawMessage) {
			var names []string
			serial.Slice(&names, serial.Value[string])(r, data)
			b.SetMask(names...)
		}},
	}
}

func (b *ColliderBase) write(o *serial.Object) *serial.Object {
	flags := b.maskNames
	if flags == nil {
		flags = []string{}
	}
	return o.Set("CollisionLayer", b.layerName).Set("CollisionLayerFlags", flags)
}

// cloneBase returns a detached copy of the layer settings only.
func (b *ColliderBase) cloneBase() ColliderBase {
	return ColliderBase{
		layerName: b.layerName,
		maskNames: append([]string(nil), b.maskNames...),
		layer:     b.layer,
		mask:      b.mask,
		changed:   true,
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

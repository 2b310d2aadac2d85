// Package component holds the engine's built-in components: spatial state and
// the small gameplay-support behaviors shared by every scene.
package component

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/id"
	"github.com/quarrygate/engine/internal/core/serial"
)

// Transform is an entity's 2D pose. The 4x4 matrix (T·R·S) is rebuilt lazily
// after a change; change callbacks fire in registration order, only when a
// setter actually changed something.
type Transform struct {
	ecs.Base
	translation mgl32.Vec2
	rotation    float32
	scale       mgl32.Vec2
	diegetic    bool

	matrix  mgl32.Mat4
	dirty   bool
	changed id.Callbacks[func(*Transform)]
}

func NewTransform() *Transform {
	return &Transform{scale: mgl32.Vec2{1, 1}, diegetic: true, dirty: true}
}

func (t *Transform) Translation() mgl32.Vec2 { return t.translation }
func (t *Transform) Rotation() float32       { return t.rotation }
func (t *Transform) Scale() mgl32.Vec2       { return t.scale }

// Diegetic transforms live in world space; others are screen-space overlays.
func (t *Transform) Diegetic() bool { return t.diegetic }

func (t *Transform) SetTranslation(v mgl32.Vec2) {
	if v == t.translation {
		return
	}
	t.translation = v
	t.touch()
}

func (t *Transform) SetRotation(r float32) {
	if r == t.rotation {
		return
	}
	t.rotation = r
	t.touch()
}

func (t *Transform) SetScale(v mgl32.Vec2) {
	if v == t.scale {
		return
	}
	t.scale = v
	t.touch()
}

func (t *Transform) SetDiegetic(d bool) {
	if d == t.diegetic {
		return
	}
	t.diegetic = d
	t.touch()
}

func (t *Transform) Translate(d mgl32.Vec2) { t.SetTranslation(t.translation.Add(d)) }
func (t *Transform) Rotate(r float32)       { t.SetRotation(t.rotation + r) }

// Matrix returns translate·rotate·scale.
func (t *Transform) Matrix() mgl32.Mat4 {
	if t.dirty {
		t.matrix = mgl32.Translate3D(t.translation.X(), t.translation.Y(), 0).
			Mul4(mgl32.HomogRotate3DZ(t.rotation)).
			Mul4(mgl32.Scale3D(t.scale.X(), t.scale.Y(), 1))
		t.dirty = false
	}
	return t.matrix
}

// Apply maps a point from local to world space.
func (t *Transform) Apply(p mgl32.Vec2) mgl32.Vec2 {
	return t.Matrix().Mul4x1(p.Vec4(0, 1)).Vec2()
}

// ApplyVector maps a direction, ignoring translation.
func (t *Transform) ApplyVector(v mgl32.Vec2) mgl32.Vec2 {
	return t.Matrix().Mul4x1(v.Vec4(0, 0)).Vec2()
}

// AddOnChanged registers fn; the returned key removes it.
func (t *Transform) AddOnChanged(fn func(*Transform)) id.ID { return t.changed.Add(fn) }

func (t *Transform) RemoveOnChanged(key id.ID) bool { return t.changed.Remove(key) }

func (t *Transform) ReadMethods() serial.Methods {
	return serial.Methods{
		{Key: "translation", Read: serial.Floats(t.translation[:])},
		{Key: "rotation", Read: serial.Value(&t.rotation)},
		{Key: "scale", Read: serial.Floats(t.scale[:])},
		{Key: "diegetic", Read: serial.Value(&t.diegetic)},
	}
}

func (t *Transform) AfterLoad() { t.touch() }

func (t *Transform) Write() *serial.Object {
	return serial.NewObject().
		Set("translation", t.translation).
		Set("rotation", t.rotation).
		Set("scale", t.scale).
		Set("diegetic", t.diegetic)
}

func (t *Transform) Clone() ecs.Component {
	c := *t
	c.Base = ecs.Base{}
	c.changed = id.Callbacks[func(*Transform)]{}
	c.dirty = true
	return &c
}

func (t *Transform) touch() {
	t.dirty = true
	t.changed.Each(func(fn func(*Transform)) { fn(t) })
}

package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	json "github.com/goccy/go-json"
	"github.com/quarrygate/engine/internal/component"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/id"
	"github.com/quarrygate/engine/internal/core/serial"
	"github.com/rotisserie/eris"
)

const (
	// MinMass replaces non-positive masses.
	MinMass float32 = 1e-4
	// separation is added to the penetration depth when pushing a body out
	// of a static one so the pair does not stay in contact.
	separation float32 = 1e-3
)

// RigidBody is a mobile body integrated on the fixed step. It moves its
// entity's Transform and responds to contacts reported on its entity's
// collider.
type RigidBody struct {
	ecs.Base
	Velocity           mgl32.Vec2
	Acceleration       mgl32.Vec2
	RotationalVelocity float32
	Mass               float32
	Restitution        float32
	Friction           float32
	Drag               float32

	transform ecs.ComponentReference[*component.Transform]
	collider  ecs.ComponentReference[Collider]
	stayKey   id.ID

	// resolvedWith holds partners that already resolved this step's contact
	// for both bodies; the reciprocal callback consumes the entry and skips.
	resolvedWith map[id.ID]struct{}
}

func NewRigidBody() *RigidBody {
	return &RigidBody{Mass: 1, Restitution: 1, resolvedWith: make(map[id.ID]struct{})}
}

func (b *RigidBody) Transform() *component.Transform { return b.transform.Get() }

// Momentum is mass times velocity.
func (b *RigidBody) Momentum() mgl32.Vec2 { return b.Velocity.Mul(b.Mass) }

func (b *RigidBody) OnInit(*ecs.World) {
	b.collider.SetRequired(false)
	b.collider.SetOnConnectCallback(func(c Collider) {
		b.stayKey = c.collider().AddOnCollisionCallback(b.onCollision)
	})
	b.collider.SetOnDisconnectCallback(func(c Collider) {
		c.collider().RemoveCallback(b.stayKey)
		b.stayKey = 0
	})
	b.transform.Init(b.Entity())
	b.collider.Init(b.Entity())
}

func (b *RigidBody) OnExit() {
	b.collider.Exit()
	b.transform.Exit()
}

// FixedUpdate integrates one step: velocity from acceleration, position and
// rotation from velocity, then drag as v -= v·drag·dt/mass. Drag never
// reverses the velocity.
func (b *RigidBody) FixedUpdate() {
	clear(b.resolvedWith)
	t := b.transform.Get()
	if t == nil {
		return
	}
	dt := float32(b.World().FixedStep().Seconds())
	b.Velocity = b.Velocity.Add(b.Acceleration.Mul(dt))
	pos := t.Translation().Add(b.Velocity.Mul(dt))
	rot := t.Rotation() + b.RotationalVelocity*dt
	b.Velocity = b.Velocity.Sub(b.Velocity.Mul(min(b.Drag*dt/b.mass(), 1)))
	t.SetTranslation(pos)
	t.SetRotation(rot)
}

// mass is Mass floored at MinMass, for bodies whose Mass was set in code.
func (b *RigidBody) mass() float32 {
	if !(b.Mass >= MinMass) {
		return MinMass
	}
	return b.Mass
}

func (b *RigidBody) onCollision(other Collider, d CollisionData) {
	if d.Normal.LenSqr() == 0 {
		return
	}
	ob := other.collider()
	if rb := ob.RigidBody(); rb != nil && rb != b {
		b.resolveRigid(rb, d)
		return
	}
	if sb := ob.StaticBody(); sb != nil {
		b.resolveStatic(sb, d)
	}
}

// resolveStatic pushes the body out along the normal, reflects the normal
// speed scaled by both restitutions and applies friction to the tangential
// speed, clamped so it never reverses it.
func (b *RigidBody) resolveStatic(s *StaticBody, d CollisionData) {
	n := d.Normal
	if t := b.transform.Get(); t != nil {
		t.Translate(n.Mul(d.Depth + separation))
	}
	vn := b.Velocity.Dot(n)
	if vn >= 0 {
		return
	}
	newVn := -vn * b.Restitution * s.Restitution
	tangent := perp(n)
	vt := b.Velocity.Dot(tangent)
	impulse := b.Friction * s.Friction * (newVn - vn)
	newVt := vt
	if abs(impulse) >= abs(vt) {
		newVt = 0
	} else {
		newVt -= sign(vt) * impulse
	}
	b.Velocity = b.Velocity.Add(n.Mul(newVn - vn)).Add(tangent.Mul(newVt - vt))
}

// resolveRigid resolves the contact for both bodies: each is pushed out by
// half the penetration, then normal speeds are exchanged with combined
// restitution rA·rB, conserving momentum along the normal.
func (b *RigidBody) resolveRigid(o *RigidBody, d CollisionData) {
	if _, done := b.resolvedWith[o.ID()]; done {
		delete(b.resolvedWith, o.ID())
		return
	}
	o.resolvedWith[b.ID()] = struct{}{}

	n := d.Normal
	half := n.Mul(d.Depth / 2)
	if t := b.transform.Get(); t != nil {
		t.Translate(half)
	}
	if t := o.transform.Get(); t != nil {
		t.Translate(half.Mul(-1))
	}

	va, vb := b.Velocity.Dot(n), o.Velocity.Dot(n)
	if va-vb >= 0 {
		return
	}
	ma, mb := b.mass(), o.mass()
	e := b.Restitution * o.Restitution
	p := ma*va + mb*vb
	newVa := (p + mb*e*(vb-va)) / (ma + mb)
	newVb := (p + ma*e*(va-vb)) / (ma + mb)
	b.Velocity = b.Velocity.Add(n.Mul(newVa - va))
	o.Velocity = o.Velocity.Add(n.Mul(newVb - vb))
}

func (b *RigidBody) ReadMethods() serial.Methods {
	return serial.Methods{
		{Key: "Velocity", Read: serial.Floats(b.Velocity[:])},
		{Key: "Acceleration", Read: serial.Floats(b.Acceleration[:])},
		{Key: "RotationalVelocity", Read: serial.Value(&b.RotationalVelocity)},
		{Key: "Mass", Read: b.readMass},
		{Key: "Restitution", Read: serial.Value(&b.Restitution)},
		{Key: "Friction", Read: serial.Value(&b.Friction)},
		{Key: "Drag", Read: serial.Value(&b.Drag)},
	}
}

func (b *RigidBody) readMass(r *serial.Reader, data json.RawMessage) {
	serial.Value(&b.Mass)(r, data)
	if b.Mass <= 0 {
		r.Warn(eris.Errorf("mass must be positive, got %v; using %v", b.Mass, MinMass))
		b.Mass = MinMass
	}
}

func (b *RigidBody) Write() *serial.Object {
	return serial.NewObject().
		Set("Velocity", b.Velocity).
		Set("Acceleration", b.Acceleration).
		Set("RotationalVelocity", b.RotationalVelocity).
		Set("Mass", b.Mass).
		Set("Restitution", b.Restitution).
		Set("Friction", b.Friction).
		Set("Drag", b.Drag)
}

func (b *RigidBody) Clone() ecs.Component {
	c := NewRigidBody()
	c.Velocity, c.Acceleration, c.RotationalVelocity = b.Velocity, b.Acceleration, b.RotationalVelocity
	c.Mass, c.Restitution, c.Friction, c.Drag = b.Mass, b.Restitution, b.Friction, b.Drag
	return c
}

// StaticBody marks an immovable collision partner.
type StaticBody struct {
	ecs.Base
	Restitution float32
	Friction    float32
}

func NewStaticBody() *StaticBody { return &StaticBody{Restitution: 1} }

func (s *StaticBody) ReadMethods() serial.Methods {
	return serial.Methods{
		{Key: "Restitution", Read: serial.Value(&s.Restitution)},
		{Key: "Friction", Read: serial.Value(&s.Friction)},
	}
}

func (s *StaticBody) Write() *serial.Object {
	return serial.NewObject().Set("Restitution", s.Restitution).Set("Friction", s.Friction)
}

func (s *StaticBody) Clone() ecs.Component {
	return &StaticBody{Restitution: s.Restitution, Friction: s.Friction}
}

func sign(v float32) float32 {
	return float32(math.Copysign(1, float64(v)))
}

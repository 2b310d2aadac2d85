package physics

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/quarrygate/engine/internal/component"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/serial"
	"github.com/quarrygate/engine/internal/core/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	w   *ecs.World
	eng *system.Engine
	cs  *CollisionSystem
}

func newHarness(t *testing.T, layers ...string) *harness {
	t.Helper()
	w := ecs.NewWorld(zap.NewNop())
	w.SetFixedStep(10 * time.Millisecond)
	reg := system.NewRegistry(nil)
	reg.MustRegister(Systems(w)...)
	cs, ok := ecs.Service[*CollisionSystem](w)
	require.True(t, ok)
	if len(layers) > 0 {
		table, err := NewLayerTable(layers...)
		require.NoError(t, err)
		cs.SetLayers(table)
	}
	return &harness{w: w, eng: system.NewEngine(nil, w, reg), cs: cs}
}

func (h *harness) spawn(t *testing.T, name string, at mgl32.Vec2, cs ...ecs.Component) *ecs.Entity {
	t.Helper()
	tr := component.NewTransform()
	tr.SetTranslation(at)
	e := ecs.NewEntity(name).MustAdd(tr).MustAdd(cs...)
	require.NoError(t, h.w.Entities().Add(e))
	return e
}

func circle(layer string, mask ...string) *CircleCollider {
	c := NewCircleCollider()
	c.SetLayer(layer)
	c.SetMask(mask...)
	return c
}

func TestLayerTable(t *testing.T) {
	table, err := NewLayerTable("Default", "Enemy", "Bullet")
	require.NoError(t, err)
	m, unknown := table.Mask("Bullet", "Ghost")
	assert.True(t, m.Has(2))
	assert.False(t, m.Has(1))
	assert.Equal(t, []string{"Ghost"}, unknown)
	assert.Equal(t, []string{"Bullet"}, table.MaskNames(m))

	_, err = NewLayerTable("A", "A")
	assert.ErrorIs(t, err, ErrDuplicateLayer)

	names := make([]string, MaxLayers+1)
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	_, err = NewLayerTable(names...)
	assert.ErrorIs(t, err, ErrTooManyLayers)
}

func TestLayerMaskEligibility(t *testing.T) {
	h := newHarness(t, "Default", "Enemy", "Bullet", "Wall", "Ghost")
	c0 := circle("Enemy", "Bullet")
	c1 := circle("Bullet", "Enemy")
	c2 := circle("Wall", "Bullet", "Enemy")
	c3 := circle("Ghost")
	h.spawn(t, "c0", mgl32.Vec2{}, c0)
	h.spawn(t, "c1", mgl32.Vec2{}, c1)
	h.spawn(t, "c2", mgl32.Vec2{}, c2)
	h.spawn(t, "c3", mgl32.Vec2{}, c3)

	hits := map[*ecs.Entity]int{}
	for _, c := range []*CircleCollider{c0, c1, c2, c3} {
		c.AddOnCollisionEnterCallback(func(other Collider, _ CollisionData) { hits[c.Entity()]++ })
	}
	h.eng.FixedStep()

	assert.True(t, h.cs.Touching(c0, c1))
	assert.True(t, h.cs.Touching(c0, c2))
	assert.True(t, h.cs.Touching(c1, c2))
	assert.False(t, h.cs.Touching(c3, c0))
	assert.Equal(t, 3, h.cs.ContactCount())
	assert.Zero(t, hits[c3.Entity()])
	assert.Equal(t, 2, hits[c0.Entity()])
}

func TestUnknownLayerIsNeverSelected(t *testing.T) {
	h := newHarness(t, "Default")
	a := circle("Nowhere", "Default")
	b := circle("Default", "Default")
	h.spawn(t, "a", mgl32.Vec2{}, a)
	h.spawn(t, "b", mgl32.Vec2{}, b)
	h.eng.FixedStep()
	assert.Equal(t, -1, a.Layer())
	assert.True(t, h.cs.Touching(a, b))

	a.SetMask()
	h.eng.FixedStep()
	assert.False(t, h.cs.Touching(a, b))
}

func TestRayCastNearest(t *testing.T) {
	h := newHarness(t, "Default", "Wall")
	near, far := circle("Wall"), circle("Wall")
	near.SetRadius(1)
	far.SetRadius(1)
	h.spawn(t, "near", mgl32.Vec2{0, 0}, near)
	h.spawn(t, "far", mgl32.Vec2{5, 0}, far)

	hit, ok := h.cs.RayCastLayers(mgl32.Vec2{-2, 0}, mgl32.Vec2{1, 0}, 10, "Wall")
	require.True(t, ok)
	assert.Same(t, near, hit.Collider)
	assert.InDelta(t, 1, hit.Distance, 1e-5)
	assert.InDelta(t, -1, hit.Normal.X(), 1e-5)
	assert.InDelta(t, 0, hit.Normal.Y(), 1e-5)

	_, ok = h.cs.RayCastLayers(mgl32.Vec2{-2, 0}, mgl32.Vec2{1, 0}, 10, "Default")
	assert.False(t, ok)
	_, ok = h.cs.RayCastLayers(mgl32.Vec2{-2, 0}, mgl32.Vec2{1, 0}, 0.5, "Wall")
	assert.False(t, ok)
}

func TestRayCastTilemap(t *testing.T) {
	m := NewTilemapCollider()
	require.NoError(t, m.SetTiles(4, 1, 1, []int{0, 0, 1, 0}))
	hit, ok := m.RayCast(mgl32.Vec2{0.5, 0.5}, mgl32.Vec2{1, 0}, 10)
	require.True(t, ok)
	assert.InDelta(t, 1.5, hit.Distance, 1e-5)
	assert.Equal(t, [2]int{2, 0}, hit.TilePos)
	assert.Equal(t, mgl32.Vec2{-1, 0}, hit.Normal)

	assert.ErrorIs(t, m.SetTiles(2, 2, 1, []int{1}), serial.ErrJSONArraySizeMismatch)
}

func TestCallbackOrderAndSymmetry(t *testing.T) {
	h := newHarness(t)
	a, b := circle("Default", "Default"), circle("Default", "Default")
	h.spawn(t, "a", mgl32.Vec2{0, 0}, a)
	eb := h.spawn(t, "b", mgl32.Vec2{0.8, 0}, b)

	var order []string
	var seenA, seenB CollisionData
	a.AddOnCollisionEnterCallback(func(Collider, CollisionData) { order = append(order, "enter a") })
	b.AddOnCollisionEnterCallback(func(Collider, CollisionData) { order = append(order, "enter b") })
	a.AddOnCollisionCallback(func(_ Collider, d CollisionData) {
		order = append(order, "stay a")
		seenA = d
	})
	b.AddOnCollisionCallback(func(_ Collider, d CollisionData) {
		order = append(order, "stay b")
		seenB = d
	})
	a.AddOnCollisionExitCallback(func(other Collider) {
		assert.Same(t, b, other)
		order = append(order, "exit a")
	})
	b.AddOnCollisionExitCallback(func(Collider) { order = append(order, "exit b") })

	h.eng.FixedStep()
	assert.Equal(t, []string{"enter a", "enter b", "stay a", "stay b"}, order)
	assert.InDelta(t, 0.2, seenA.Depth, 1e-5)
	assert.InDelta(t, -1, seenA.Normal.X(), 1e-6)
	assert.Equal(t, seenA.Normal.Mul(-1), seenB.Normal)

	order = nil
	h.eng.FixedStep()
	assert.Equal(t, []string{"stay a", "stay b"}, order)

	order = nil
	ecs.Get[*component.Transform](eb).SetTranslation(mgl32.Vec2{3, 0})
	h.eng.FixedStep()
	assert.Equal(t, []string{"exit a", "exit b"}, order)
	assert.Zero(t, h.cs.ContactCount())
}

func TestDestroyFiresExit(t *testing.T) {
	h := newHarness(t)
	a, b := circle("Default", "Default"), circle("Default", "Default")
	h.spawn(t, "a", mgl32.Vec2{}, a)
	eb := h.spawn(t, "b", mgl32.Vec2{0.5, 0}, b)
	exits := 0
	a.AddOnCollisionExitCallback(func(Collider) { exits++ })

	h.eng.FixedStep()
	require.True(t, h.cs.Touching(a, b))

	eb.Destroy()
	h.w.Entities().FlushDestroyQueue()
	assert.Equal(t, 1, exits)
	assert.Equal(t, 1, h.cs.Len())
	assert.Zero(t, h.cs.ContactCount())

	h.eng.FixedStep()
	assert.Equal(t, 1, exits)
}

func TestCircleTilemapContact(t *testing.T) {
	h := newHarness(t)
	m := NewTilemapCollider()
	m.SetMask("Default")
	require.NoError(t, m.SetTiles(3, 1, 1, []int{0, 1, 0}))
	c := circle("Default", "Default")
	h.spawn(t, "ground", mgl32.Vec2{}, m)
	h.spawn(t, "ball", mgl32.Vec2{1.5, 1.3}, c)

	var got CollisionData
	c.AddOnCollisionEnterCallback(func(other Collider, d CollisionData) {
		assert.Same(t, m, other)
		got = d
	})
	h.eng.FixedStep()
	require.True(t, got.HasTile)
	assert.Equal(t, [2]int{1, 0}, got.TilePos)
	assert.InDelta(t, 0.2, got.Depth, 1e-5)
	assert.InDelta(t, 1, got.Normal.Y(), 1e-5)
}

func TestLineLineCrossing(t *testing.T) {
	a, b := NewLineCollider(), NewLineCollider()
	a.SetPoints(mgl32.Vec2{0, -1}, mgl32.Vec2{0, 2})
	b.SetPoints(mgl32.Vec2{-1, 0}, mgl32.Vec2{1, 0})
	d, ok := Collide(a, b)
	require.True(t, ok)
	assert.Zero(t, d.Depth)
	assert.Equal(t, mgl32.Vec2{0, 1}, d.Normal)

	b.SetPoints(mgl32.Vec2{-1, 5}, mgl32.Vec2{1, 5})
	_, ok = Collide(a, b)
	assert.False(t, ok)
}

func TestRigidBodyIntegration(t *testing.T) {
	h := newHarness(t)
	rb := NewRigidBody()
	rb.Velocity = mgl32.Vec2{1, 0}
	rb.Acceleration = mgl32.Vec2{0, -10}
	rb.RotationalVelocity = 2
	e := h.spawn(t, "shell", mgl32.Vec2{}, rb)

	h.eng.FixedStep()
	tr := ecs.Get[*component.Transform](e)
	assert.InDelta(t, 0.01, tr.Translation().X(), 1e-6)
	assert.InDelta(t, -0.001, tr.Translation().Y(), 1e-6)
	assert.InDelta(t, 0.02, tr.Rotation(), 1e-6)
	assert.InDelta(t, -0.1, rb.Velocity.Y(), 1e-6)
}

func TestRigidBodyDragScalesWithMass(t *testing.T) {
	h := newHarness(t)
	light, heavy := NewRigidBody(), NewRigidBody()
	light.Velocity, heavy.Velocity = mgl32.Vec2{1, 0}, mgl32.Vec2{1, 0}
	light.Drag, heavy.Drag = 10, 10
	heavy.Mass = 10
	h.spawn(t, "light", mgl32.Vec2{}, light)
	h.spawn(t, "heavy", mgl32.Vec2{5, 5}, heavy)

	h.eng.FixedStep()
	assert.InDelta(t, 0.9, light.Velocity.X(), 1e-6)
	assert.InDelta(t, 0.99, heavy.Velocity.X(), 1e-6)
}

func TestRigidBodyZeroMassStaysFinite(t *testing.T) {
	h := newHarness(t)
	rb := NewRigidBody()
	rb.Velocity = mgl32.Vec2{2, -1}
	rb.Drag = 0.5
	dust := h.spawn(t, "dust", mgl32.Vec2{}, rb)
	rb.Mass = 0

	h.eng.FixedStep()
	for _, v := range []float32{rb.Velocity.X(), rb.Velocity.Y()} {
		assert.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0))
	}
	assert.Equal(t, mgl32.Vec2{}, rb.Velocity)

	tr := ecs.Get[*component.Transform](dust)
	assert.InDelta(t, 0.02, tr.Translation().X(), 1e-6)
}

func TestRigidBodiesConserveMomentum(t *testing.T) {
	h := newHarness(t)
	ra, rb := NewRigidBody(), NewRigidBody()
	ra.Velocity = mgl32.Vec2{1, 0}
	rb.Velocity = mgl32.Vec2{-1, 0}
	rb.Mass = 2
	h.spawn(t, "a", mgl32.Vec2{-0.45, 0}, ra, circle("Default", "Default"))
	h.spawn(t, "b", mgl32.Vec2{0.45, 0}, rb, circle("Default", "Default"))

	before := ra.Momentum().Add(rb.Momentum())
	energy := func() float32 {
		return 0.5*ra.Mass*ra.Velocity.LenSqr() + 0.5*rb.Mass*rb.Velocity.LenSqr()
	}
	e0 := energy()

	h.eng.FixedStep()
	after := ra.Momentum().Add(rb.Momentum())
	assert.InDelta(t, before.X(), after.X(), 1e-5)
	assert.InDelta(t, e0, energy(), 1e-5)
	assert.InDelta(t, -5.0/3, ra.Velocity.X(), 1e-5)
	assert.InDelta(t, 1.0/3, rb.Velocity.X(), 1e-5)
}

func TestRigidBodyBouncesOffStatic(t *testing.T) {
	h := newHarness(t)
	floor := NewLineCollider()
	floor.SetPoints(mgl32.Vec2{-5, 0}, mgl32.Vec2{5, 0})
	floor.SetMask("Default")
	h.spawn(t, "floor", mgl32.Vec2{}, floor, NewStaticBody())

	rb := NewRigidBody()
	rb.Velocity = mgl32.Vec2{0, -2}
	ball := h.spawn(t, "ball", mgl32.Vec2{0, 0.51}, rb, circle("Default", "Default"))

	h.eng.FixedStep()
	assert.InDelta(t, 2, rb.Velocity.Y(), 1e-5)
	assert.Greater(t, ecs.Get[*component.Transform](ball).Translation().Y(), float32(0.5))
}

func TestStaticFrictionNeverReversesTangent(t *testing.T) {
	rb := NewRigidBody()
	rb.Velocity = mgl32.Vec2{0.1, -2}
	rb.Friction = 1
	rb.Restitution = 0.5
	s := NewStaticBody()
	s.Friction = 1
	rb.resolveStatic(s, CollisionData{Normal: mgl32.Vec2{0, 1}})
	assert.InDelta(t, 1, rb.Velocity.Y(), 1e-6)
	assert.InDelta(t, 0, rb.Velocity.X(), 1e-6)
}

func TestRigidBodyMassValidation(t *testing.T) {
	rb := NewRigidBody()
	r := serial.NewReader(nil)
	r.Read(rb, []byte(`{"Mass":-3,"Velocity":[1,2]}`))
	require.Len(t, r.Issues(), 1)
	assert.Equal(t, serial.SeverityWarning, r.Issues()[0].Severity)
	assert.Equal(t, MinMass, rb.Mass)
	assert.Equal(t, mgl32.Vec2{1, 2}, rb.Velocity)
}

func TestColliderJSON(t *testing.T) {
	c := NewCircleCollider()
	r := serial.NewReader(nil)
	require.True(t, r.Read(c, []byte(`{"Radius":2,"CollisionLayer":"Enemy","CollisionLayerFlags":["Bullet"]}`)))
	assert.Equal(t, float32(2), c.Radius())
	assert.Equal(t, "Enemy", c.LayerName())

	out, err := serial.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Radius":2,"CollisionLayer":"Enemy","CollisionLayerFlags":["Bullet"]}`, string(out))

	clone := c.Clone().(*CircleCollider)
	assert.Equal(t, []string{"Bullet"}, clone.MaskNames())
}

func TestCollisionSystemConfig(t *testing.T) {
	h := newHarness(t)
	r := serial.NewReader(nil)
	h.cs.Load(r, []byte(`{"Layers":["Default","Enemy"],"CellSize":8}`))
	assert.Empty(t, r.Issues())
	assert.Equal(t, []string{"Default", "Enemy"}, h.cs.Layers().Names())

	r = serial.NewReader(nil)
	h.cs.Load(r, []byte(`{"Layers":["A","A"]}`))
	require.NotEmpty(t, r.Issues())
	assert.Equal(t, []string{"Default", "Enemy"}, h.cs.Layers().Names())
}

func TestPhysicsTypesRegistered(t *testing.T) {
	for _, name := range []string{"CircleCollider", "LineCollider", "TilemapCollider", "RigidBody", "StaticBody"} {
		c, err := ecs.Create(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, ecs.TypeName(c))
	}
}

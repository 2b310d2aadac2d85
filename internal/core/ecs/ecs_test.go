package ecs

import (
	"testing"

	"github.com/quarrygate/engine/internal/core/serial"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// journal records lifecycle hooks across components in a test.
type journal []string

func (j *journal) add(s string) { *j = append(*j, s) }

type vitals struct {
	Base
	HP    int
	trace *journal
}

func (v *vitals) OnInit(*World) { v.trace.add("vitals.init") }
func (v *vitals) OnExit()       { v.trace.add("vitals.exit") }

func (v *vitals) OnHierarchyChange(prev *Entity) {
	v.trace.add("vitals.hier:" + entityName(v.Entity()) + "<-" + entityName(prev))
}

func (v *vitals) ReadMethods() serial.Methods {
	return serial.Methods{{Key: "HP", Read: serial.Value(&v.HP)}}
}

func (v *vitals) Write() *serial.Object { return serial.NewObject().Set("HP", v.HP) }

func (v *vitals) Clone() Component {
	c := *v
	c.Base = Base{}
	return &c
}

type armor struct {
	Base
	Rating float32
	trace  *journal
}

func (a *armor) OnInit(*World) { a.trace.add("armor.init") }
func (a *armor) OnExit()       { a.trace.add("armor.exit") }

func (a *armor) ReadMethods() serial.Methods {
	return serial.Methods{{Key: "Rating", Read: serial.Value(&a.Rating)}}
}

func (a *armor) Write() *serial.Object { return serial.NewObject().Set("Rating", a.Rating) }

func (a *armor) Clone() Component {
	c := *a
	c.Base = Base{}
	return &c
}

// protective is implemented by armor only.
type protective interface{ protection() float32 }

func (a *armor) protection() float32 { return a.Rating }

// watcher holds a reference to another entity's vitals.
type watcher struct {
	Base
	target      ComponentReference[*vitals]
	connects    int
	disconnects int
}

func (w *watcher) OnInit(*World) {
	w.target.SetOnConnectCallback(func(*vitals) { w.connects++ })
	w.target.SetOnDisconnectCallback(func(*vitals) { w.disconnects++ })
	w.target.Init(w.Entity())
}

func (w *watcher) OnExit() { w.target.Exit() }

func (w *watcher) ReadMethods() serial.Methods {
	return serial.Methods{{Key: "Target", Read: w.target.ReadOwnerName()}}
}

func (w *watcher) Write() *serial.Object {
	return serial.NewObject().Set("Target", w.target.OwnerName())
}

func (w *watcher) Clone() Component {
	c := *w
	c.Base = Base{}
	c.target.Reset()
	return &c
}

// selfRemover tries to detach itself while it is being initialised.
type selfRemover struct {
	Base
	err error
}

func (s *selfRemover) OnInit(*World)               { s.err = s.Entity().Remove(s) }
func (s *selfRemover) ReadMethods() serial.Methods { return nil }
func (s *selfRemover) Write() *serial.Object       { return serial.NewObject() }
func (s *selfRemover) Clone() Component            { return &selfRemover{} }

func init() {
	Register("TestVitals", func() *vitals { return &vitals{trace: new(journal)} })
	Register("TestArmor", func() *armor { return &armor{trace: new(journal)} })
	Register("TestWatcher", func() *watcher { return &watcher{} })
}

func newTestWorld() *World { return NewWorld(zap.NewNop()) }

func TestAddRejectsDuplicateTag(t *testing.T) {
	e := NewEntity("tower")
	require.NoError(t, e.Add(&vitals{trace: new(journal)}))

	err := e.Add(&vitals{trace: new(journal)})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicateTypeTag))
	assert.Equal(t, 1, e.Len())
}

func TestLifecycleOrder(t *testing.T) {
	w := newTestWorld()
	var j journal
	e := NewEntity("tower").MustAdd(&vitals{trace: &j}, &armor{trace: &j})
	require.NoError(t, w.Entities().Add(e))
	assert.Equal(t, journal{"vitals.init", "armor.init"}, j)

	e.Destroy()
	assert.Len(t, j, 2, "exit is deferred to the sweep")
	assert.Equal(t, 1, w.Entities().Pending())

	w.Entities().FlushDestroyQueue()
	assert.Equal(t, journal{"vitals.init", "armor.init", "armor.exit", "vitals.exit"}, j)
	assert.Equal(t, 0, w.Entities().Len())
	assert.Nil(t, w.Entities().GetEntity("tower"))
}

func TestAddToLiveEntityInitsImmediately(t *testing.T) {
	w := newTestWorld()
	var j journal
	e := NewEntity("tower").MustAdd(&vitals{trace: &j})
	require.NoError(t, w.Entities().Add(e))

	a := &armor{trace: &j}
	require.NoError(t, e.Add(a))
	assert.True(t, a.IsLive())
	assert.Same(t, e, a.Entity())

	require.NoError(t, e.Remove(a))
	assert.False(t, a.IsLive())
	assert.Nil(t, a.Entity())
	assert.Equal(t, journal{"vitals.init", "armor.init", "armor.exit"}, j)
}

func TestRemoveDuringInitIsRejected(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	w := NewWorld(zap.New(core))
	s := &selfRemover{}
	e := NewEntity("odd").MustAdd(s)
	require.NoError(t, w.Entities().Add(e))

	require.Error(t, s.err)
	assert.True(t, eris.Is(s.err, ErrInvariantViolation))
	assert.Same(t, s, Get[*selfRemover](e))
	assert.True(t, s.IsLive())
	assert.Equal(t, 1, logs.FilterMessage("component remove rejected").Len())
}

func TestGetAndComponentsOf(t *testing.T) {
	a := &armor{Rating: 3, trace: new(journal)}
	e := NewEntity("wall").MustAdd(&vitals{trace: new(journal)}, a)

	assert.Same(t, a, Get[*armor](e))
	assert.Nil(t, Get[*watcher](e))
	assert.True(t, Has[*vitals](e))
	assert.Same(t, a, e.GetByTag(TagOf[*armor]()))

	prot := ComponentsOf[protective](e)
	require.Len(t, prot, 1)
	assert.Equal(t, float32(3), prot[0].protection())
	assert.Len(t, ComponentsOf[Component](e), 2)
}

func TestHierarchyNotifiesDepthFirst(t *testing.T) {
	var j journal
	root := NewEntity("root")
	mid := NewEntity("mid").MustAdd(&vitals{trace: &j})
	leaf := NewEntity("leaf").MustAdd(&vitals{trace: &j})
	mid.AddChild(leaf)
	j = nil

	root.AddChild(mid)
	assert.Equal(t, journal{"vitals.hier:mid<-", "vitals.hier:leaf<-"}, j)
	assert.Same(t, root, mid.Parent())
	assert.Equal(t, []*Entity{mid}, root.Children())

	j = nil
	mid.SetParent(nil)
	assert.Equal(t, journal{"vitals.hier:mid<-root", "vitals.hier:leaf<-root"}, j)
	assert.Empty(t, root.Children())
	assert.Nil(t, mid.Parent())
}

func TestCloneIsDeep(t *testing.T) {
	src := NewEntity("turret").MustAdd(&vitals{HP: 7, trace: new(journal)})
	src.AddChild(NewEntity("barrel").MustAdd(&armor{Rating: 2, trace: new(journal)}))

	dup := src.Clone()
	assert.NotEqual(t, src.ID(), dup.ID())
	assert.Equal(t, "turret", dup.Name())

	orig, cloned := Get[*vitals](src), Get[*vitals](dup)
	require.NotNil(t, cloned)
	assert.NotSame(t, orig, cloned)
	assert.NotEqual(t, orig.ID(), cloned.ID())
	assert.Equal(t, 7, cloned.HP)
	assert.Same(t, dup, cloned.Entity())

	require.Len(t, dup.Children(), 1)
	child := dup.Children()[0]
	assert.Same(t, dup, child.Parent())
	assert.NotSame(t, src.Children()[0], child)
	assert.Equal(t, float32(2), Get[*armor](child).Rating)
}

func TestDestroyCascadesToChildren(t *testing.T) {
	w := newTestWorld()
	parent := NewEntity("parent")
	child := NewEntity("child")
	parent.AddChild(child)
	require.NoError(t, w.Entities().Add(parent))
	assert.Equal(t, 2, w.Entities().Len())
	assert.Equal(t, []*Entity{parent}, w.Entities().Roots())

	parent.Destroy()
	assert.True(t, child.IsDestroyed())
	w.Entities().FlushDestroyQueue()
	assert.Equal(t, 0, w.Entities().Len())
	assert.False(t, child.IsLive())
}

func TestAddRejectsLiveEntity(t *testing.T) {
	w := newTestWorld()
	e := NewEntity("once")
	require.NoError(t, w.Entities().Add(e))
	err := w.Entities().Add(e)
	assert.True(t, eris.Is(err, ErrInvariantViolation))
	assert.Equal(t, 1, w.Entities().Len())
}

func TestGetEntityNormalisesNames(t *testing.T) {
	w := newTestWorld()
	composed := NewEntity("Caf\u00e9")
	require.NoError(t, w.Entities().Add(composed))

	assert.Same(t, composed, w.Entities().GetEntity("Cafe\u0301"))

	composed.SetName("Bistro")
	assert.Nil(t, w.Entities().GetEntity("Caf\u00e9"))
	assert.Same(t, composed, w.Entities().GetEntity("Bistro"))
}

// S1: destroying an entity disconnects every reference into it exactly once.
func TestDestroyCascadeDisconnectsReferences(t *testing.T) {
	w := newTestWorld()
	e1 := NewEntity("E1").MustAdd(&vitals{HP: 10, trace: new(journal)})
	obs := &watcher{}
	obs.target.SetOwnerName("E1")
	e2 := NewEntity("E2").MustAdd(obs)
	require.NoError(t, w.Entities().Add(e1))
	require.NoError(t, w.Entities().Add(e2))

	require.True(t, obs.target.IsConnected())
	assert.Equal(t, 1, obs.connects)
	assert.Equal(t, 10, obs.target.Get().HP)

	e1.Destroy()
	assert.Equal(t, 0, obs.disconnects, "disconnect waits for the sweep")
	w.Entities().FlushDestroyQueue()

	assert.Equal(t, 1, obs.disconnects)
	assert.False(t, obs.target.IsConnected())
	assert.Nil(t, obs.target.Get())

	e2.Destroy()
	w.Entities().FlushDestroyQueue()
	assert.Equal(t, 1, obs.disconnects, "exit after disconnect does not fire twice")
}

func TestReferencePairingAcrossRemoval(t *testing.T) {
	w := newTestWorld()
	v := &vitals{trace: new(journal)}
	e := NewEntity("solo").MustAdd(v)
	obs := &watcher{}
	require.NoError(t, e.Add(obs))
	require.NoError(t, w.Entities().Add(e))
	require.True(t, obs.target.IsConnected())

	require.NoError(t, e.Remove(v))
	assert.Equal(t, 1, obs.connects)
	assert.Equal(t, 1, obs.disconnects)

	require.NoError(t, e.Add(v))
	assert.True(t, obs.target.Init(e))
	assert.Equal(t, 2, obs.connects)

	obs.target.Exit()
	obs.target.Exit()
	connected := 0
	if obs.target.IsConnected() {
		connected = 1
	}
	assert.Equal(t, obs.connects, obs.disconnects+connected)
}

func TestRequiredReferenceLogsMissing(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	w := NewWorld(zap.New(core))
	obs := &watcher{}
	obs.target.SetOwnerName("nobody")
	require.NoError(t, w.Entities().Add(NewEntity("E2").MustAdd(obs)))

	assert.False(t, obs.target.IsConnected())
	assert.Equal(t, 0, obs.connects)
	entries := logs.FilterMessage("component reference").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], ErrMissingRequiredComponent.Error())

	var optional ComponentReference[*armor]
	optional.SetRequired(false)
	assert.False(t, optional.Init(NewEntity("bare")))
	assert.Equal(t, 1, logs.Len())
}

func TestInterfaceReferenceScansComponents(t *testing.T) {
	w := newTestWorld()
	a := &armor{Rating: 5, trace: new(journal)}
	e := NewEntity("wall").MustAdd(&vitals{trace: new(journal)}, a)
	require.NoError(t, w.Entities().Add(e))

	var ref ComponentReference[protective]
	require.True(t, ref.Init(e))
	assert.Equal(t, float32(5), ref.Get().protection())

	require.NoError(t, e.Remove(a))
	assert.False(t, ref.IsConnected())
}

func TestEntityReferenceResolvesContained(t *testing.T) {
	w := newTestWorld()
	target := NewEntity("Base").MustAdd(&vitals{HP: 3, trace: new(journal)})
	require.NoError(t, w.Entities().Add(target))

	var vit ComponentReference[*vitals]
	var ref EntityReference
	ref.SetName("Base")
	ref.Add(&vit)
	disconnected := 0
	ref.SetOnDisconnectCallback(func(*Entity) { disconnected++ })

	require.True(t, ref.Init(w))
	assert.Same(t, target, ref.Get())
	assert.Equal(t, 3, vit.Get().HP)

	target.Destroy()
	w.Entities().FlushDestroyQueue()
	assert.False(t, ref.IsConnected())
	assert.False(t, vit.IsConnected())
	assert.Equal(t, 1, disconnected)
}

func TestFactoryCreate(t *testing.T) {
	c, err := Create("TestArmor")
	require.NoError(t, err)
	assert.IsType(t, &armor{}, c)
	assert.Equal(t, "TestArmor", TypeName(c))

	_, err = Create("Nope")
	assert.True(t, eris.Is(err, ErrUnknownComponentType))
	assert.Contains(t, RegisteredTypes(), "TestVitals")
}

type prefabs map[string]*Entity

func (p prefabs) Instantiate(name string) (*Entity, error) {
	e, ok := p[name]
	if !ok {
		return nil, eris.Errorf("no prefab %q", name)
	}
	return e.Clone(), nil
}

func TestEntityJSONRoundTrip(t *testing.T) {
	doc := `{"name":"tower","Components":[{"TestVitals":{"HP":12}},{"TestArmor":{"Rating":1.5}}],` +
		`"Children":[{"name":"gun","Components":[{"TestWatcher":{"Target":"tower"}}]}]}`

	r := serial.NewReader(nil)
	e := ReadEntity(r, []byte(doc))
	require.Empty(t, r.Issues())
	assert.Equal(t, "tower", e.Name())
	assert.Equal(t, 12, Get[*vitals](e).HP)
	require.Len(t, e.Children(), 1)
	assert.Equal(t, "tower", Get[*watcher](e.Children()[0]).target.OwnerName())

	out, err := serial.Marshal(e)
	require.NoError(t, err)
	assert.Equal(t, doc, string(out))
}

func TestEntityJSONUnknownTypeAndArchetype(t *testing.T) {
	proto := NewEntity("Grunt").MustAdd(&vitals{HP: 5, trace: new(journal)}, &armor{Rating: 1, trace: new(journal)})
	r := WithPrefabs(serial.NewReader(nil), prefabs{"Grunt": proto})

	e := ReadEntity(r, []byte(`{"Archetype":"Grunt","Components":[{"TestVitals":{"HP":9}},{"Laser":{}}]}`))
	require.Len(t, r.Issues(), 1)
	assert.True(t, eris.Is(r.Issues()[0].Err, ErrUnknownComponentType))
	assert.Equal(t, "Components[1].Laser", r.Issues()[0].Path)

	assert.Equal(t, "Grunt", e.Name())
	assert.Equal(t, 9, Get[*vitals](e).HP, "inline fields override the prefab")
	assert.Equal(t, float32(1), Get[*armor](e).Rating)
	assert.Equal(t, 5, Get[*vitals](proto).HP, "prefab is untouched")
}

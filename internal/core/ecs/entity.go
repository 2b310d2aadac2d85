package ecs

import (
	"reflect"
	"slices"

	"github.com/quarrygate/engine/internal/core/id"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Entity is a named container of components with a parent/child tree.
// Components are kept in insertion order and keyed by Tag, at most one per tag.
type Entity struct {
	id        id.ID
	name      string
	destroyed bool

	parent   *Entity
	children []*Entity

	components []Component
	byTag      map[Tag]Component

	world *World

	destroyedWatchers id.Callbacks[func(*Entity)]
	removedWatchers   id.Callbacks[func(Component)]
}

// NewEntity creates a detached entity.
func NewEntity(name string) *Entity {
	return &Entity{
		id:    id.Next(),
		name:  name,
		byTag: make(map[Tag]Component),
	}
}

func (e *Entity) ID() id.ID       { return e.id }
func (e *Entity) Name() string    { return e.name }
func (e *Entity) Parent() *Entity { return e.parent }
func (e *Entity) World() *World   { return e.world }

// IsDestroyed reports whether Destroy has been called.
func (e *Entity) IsDestroyed() bool { return e.destroyed }

// IsLive reports whether the entity is entered in a world.
func (e *Entity) IsLive() bool { return e.world != nil }

// SetName renames the entity, keeping the world's name index current.
func (e *Entity) SetName(name string) {
	if name == e.name {
		return
	}
	old := e.name
	e.name = name
	if e.world != nil {
		e.world.entities.rename(e, old)
	}
}

// Children returns the child list. Callers must not modify it.
func (e *Entity) Children() []*Entity { return e.children }

// Components returns the components in insertion order. Callers must not modify it.
func (e *Entity) Components() []Component { return e.components }

func (e *Entity) Len() int { return len(e.components) }

// Add attaches c. The entity takes ownership; if it is live, c is initialised
// immediately.
func (e *Entity) Add(c Component) error {
	tag := TagFor(c)
	if _, ok := e.byTag[tag]; ok {
		return eris.Wrapf(ErrDuplicateTypeTag, "%s on %q", TypeName(c), e.name)
	}
	b := c.base()
	if b.entity != nil && b.entity != e {
		return eris.Wrapf(ErrInvariantViolation, "%s already belongs to %q", TypeName(c), b.entity.name)
	}
	b.entity = e
	e.components = append(e.components, c)
	e.byTag[tag] = c
	if e.world != nil && !e.destroyed {
		e.world.initComponent(c)
	}
	return nil
}

// MustAdd is Add for construction code where a duplicate is a programming error.
func (e *Entity) MustAdd(cs ...Component) *Entity {
	for _, c := range cs {
		if err := e.Add(c); err != nil {
			panic(err)
		}
	}
	return e
}

// Remove detaches c. A live component receives OnExit first. Removing a
// component while its own OnInit is running is rejected.
func (e *Entity) Remove(c Component) error {
	tag := TagFor(c)
	if cur, ok := e.byTag[tag]; !ok || cur != c {
		return eris.Wrapf(ErrInvariantViolation, "%s is not attached to %q", TypeName(c), e.name)
	}
	b := c.base()
	if b.initializing {
		err := eris.Wrapf(ErrInvariantViolation, "remove %s from %q during its OnInit", TypeName(c), e.name)
		e.logger().Error("component remove rejected", zap.Error(err))
		return err
	}
	if b.live && e.world != nil {
		e.world.exitComponent(c)
	}
	delete(e.byTag, tag)
	if i := slices.Index(e.components, c); i >= 0 {
		e.components = slices.Delete(e.components, i, i+1)
	}
	b.entity = nil
	e.removedWatchers.Each(func(fn func(Component)) { fn(c) })
	return nil
}

// GetByTag returns the component with the given tag, nil if absent.
func (e *Entity) GetByTag(tag Tag) Component {
	return e.byTag[tag]
}

// Get returns the component of type T, or the zero value if absent.
func Get[T Component](e *Entity) T {
	var zero T
	if e == nil {
		return zero
	}
	c, ok := e.byTag[TagOf[T]()].(T)
	if !ok {
		return zero
	}
	return c
}

// Has reports whether e carries a component of type T.
func Has[T Component](e *Entity) bool {
	_, ok := e.byTag[TagOf[T]()]
	return ok
}

// ComponentsOf returns every component whose dynamic type implements or is I,
// in insertion order. Use it to query abstract bases such as colliders.
func ComponentsOf[I any](e *Entity) []I {
	var out []I
	for _, c := range e.components {
		if v, ok := c.(I); ok {
			out = append(out, v)
		}
	}
	return out
}

// find resolves T against e: by tag for concrete types, by scan for interfaces.
func find[T any](e *Entity) (T, bool) {
	var zero T
	if e == nil {
		return zero, false
	}
	if reflect.TypeOf((*T)(nil)).Elem().Kind() == reflect.Interface {
		for _, c := range e.components {
			if v, ok := c.(T); ok {
				return v, true
			}
		}
		return zero, false
	}
	v, ok := e.byTag[TagOf[T]()].(T)
	return v, ok
}

// AddChild attaches child under e, detaching it from its previous parent.
// A detached child of a live parent enters the parent's world.
func (e *Entity) AddChild(child *Entity) {
	if child == nil || child == e || child.parent == e {
		return
	}
	prev := child.parent
	if prev != nil {
		prev.unlinkChild(child)
	}
	child.parent = e
	e.children = append(e.children, child)
	child.notifyHierarchy(prev)
	if e.world != nil && child.world == nil {
		e.world.entities.Add(child)
	}
}

// RemoveChild detaches child from e. The child stays in its world as a root.
func (e *Entity) RemoveChild(child *Entity) {
	if child == nil || child.parent != e {
		return
	}
	e.unlinkChild(child)
	child.parent = nil
	child.notifyHierarchy(e)
}

// SetParent moves e under parent, or makes it a root when parent is nil.
func (e *Entity) SetParent(parent *Entity) {
	if parent == nil {
		if e.parent != nil {
			e.parent.RemoveChild(e)
		}
		return
	}
	parent.AddChild(e)
}

func (e *Entity) unlinkChild(child *Entity) {
	if i := slices.Index(e.children, child); i >= 0 {
		e.children = slices.Delete(e.children, i, i+1)
	}
}

// notifyHierarchy walks the subtree depth-first.
func (e *Entity) notifyHierarchy(prev *Entity) {
	for _, c := range slices.Clone(e.components) {
		c.OnHierarchyChange(prev)
	}
	for _, child := range slices.Clone(e.children) {
		child.notifyHierarchy(prev)
	}
}

// Clone returns a detached deep copy: every component is cloned and so is
// every child. The copy has fresh IDs.
func (e *Entity) Clone() *Entity {
	out := NewEntity(e.name)
	for _, c := range e.components {
		cc := c.Clone()
		cc.base().entity = out
		out.components = append(out.components, cc)
		out.byTag[TagFor(cc)] = cc
	}
	for _, child := range e.children {
		cc := child.Clone()
		cc.parent = out
		out.children = append(out.children, cc)
	}
	return out
}

// Destroy flags e and its descendants. A live entity is freed by the sweep at
// the end of the current fixed step.
func (e *Entity) Destroy() {
	if e.destroyed {
		return
	}
	e.destroyed = true
	if e.world != nil {
		e.world.entities.queueDestroy(e)
	}
	for _, child := range e.children {
		child.Destroy()
	}
}

// OnDestroyed registers fn to run when the entity is swept or its scene ends.
func (e *Entity) OnDestroyed(fn func(*Entity)) id.ID {
	return e.destroyedWatchers.Add(fn)
}

func (e *Entity) RemoveOnDestroyed(key id.ID) bool {
	return e.destroyedWatchers.Remove(key)
}

// OnComponentRemoved registers fn to run after a component is removed from e.
func (e *Entity) OnComponentRemoved(fn func(Component)) id.ID {
	return e.removedWatchers.Add(fn)
}

func (e *Entity) RemoveOnComponentRemoved(key id.ID) bool {
	return e.removedWatchers.Remove(key)
}

// enter initialises every component in insertion order.
func (e *Entity) enter(w *World) {
	e.world = w
	for _, c := range slices.Clone(e.components) {
		if b := c.base(); !b.live && !b.initializing && b.entity == e {
			w.initComponent(c)
		}
	}
}

// exit runs OnExit in reverse insertion order and notifies destroy watchers.
func (e *Entity) exit() {
	w := e.world
	for i := len(e.components) - 1; i >= 0; i-- {
		if c := e.components[i]; c.base().live {
			w.exitComponent(c)
		}
	}
	e.destroyedWatchers.Each(func(fn func(*Entity)) { fn(e) })
	e.world = nil
}

// free drops every component. The entity must not be used afterwards.
func (e *Entity) free() {
	for _, c := range e.components {
		c.base().entity = nil
	}
	e.components = nil
	e.byTag = make(map[Tag]Component)
	e.destroyedWatchers.Clear()
	e.removedWatchers.Clear()
}

func (e *Entity) logger() *zap.Logger {
	if e.world != nil {
		return e.world.log
	}
	return zap.L()
}

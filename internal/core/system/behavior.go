package system

import (
	"time"

	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/id"
	"github.com/quarrygate/engine/internal/core/serial"
	"github.com/rotisserie/eris"
)

type slot[T ecs.Component] struct {
	c     T
	alive bool
}

// BehaviorSystem keeps the ordered live list of every component of type T and
// fans the fixed and variable updates out to it. Components join after their
// OnInit and leave before their OnExit.
//
// Dispatch walks the list by index up to the length it had when the pass
// began: components added during a pass wait for the next one, removed
// components are tombstoned and skipped, and the list is compacted once the
// pass ends.
type BehaviorSystem[T ecs.Component] struct {
	name  string
	phase Phase

	slots       []slot[T]
	index       map[id.ID]int
	live        int
	dispatching int
	tombstones  int

	fixed, variable bool
}

// NewBehaviorSystem creates the system for T, named "BehaviorSystem<typeName>",
// and attaches it to w so entity lifecycle keeps it current.
func NewBehaviorSystem[T ecs.Component](w *ecs.World, typeName string) *BehaviorSystem[T] {
	var zero T
	_, fixed := any(zero).(FixedUpdater)
	_, variable := any(zero).(Updater)
	b := &BehaviorSystem[T]{
		name:     BehaviorName(typeName),
		phase:    PhaseUpdate,
		index:    make(map[id.ID]int),
		fixed:    fixed,
		variable: variable,
	}
	w.RegisterBehaviors(ecs.TagOf[T](), b)
	return b
}

// BehaviorName is the system name used for a behavior type.
func BehaviorName(typeName string) string {
	return "BehaviorSystem<" + typeName + ">"
}

func (b *BehaviorSystem[T]) Name() string { return b.name }
func (b *BehaviorSystem[T]) Phase() Phase { return b.phase }
func (b *BehaviorSystem[T]) Len() int     { return b.live }

// SetPhase moves the system to another phase; call before the first frame.
func (b *BehaviorSystem[T]) SetPhase(p Phase) *BehaviorSystem[T] {
	b.phase = p
	return b
}

// AddComponent appends c to the live list.
func (b *BehaviorSystem[T]) AddComponent(c ecs.Component) error {
	t, ok := c.(T)
	if !ok {
		return b.violation("add %T to %s", c, b.name)
	}
	if _, dup := b.index[c.ID()]; dup {
		return b.violation("%s already holds component %d", b.name, c.ID())
	}
	b.index[c.ID()] = len(b.slots)
	b.slots = append(b.slots, slot[T]{c: t, alive: true})
	b.live++
	return nil
}

// RemoveComponent drops c from the live list.
func (b *BehaviorSystem[T]) RemoveComponent(c ecs.Component) error {
	i, ok := b.index[c.ID()]
	if !ok {
		return b.violation("%s does not hold component %d", b.name, c.ID())
	}
	delete(b.index, c.ID())
	var zero T
	b.slots[i] = slot[T]{c: zero}
	b.live--
	b.tombstones++
	if b.dispatching == 0 {
		b.compact()
	}
	return nil
}

// Contains reports whether c is in the live list.
func (b *BehaviorSystem[T]) Contains(c T) bool {
	_, ok := b.index[c.ID()]
	return ok
}

// Components returns the live components in insertion order.
func (b *BehaviorSystem[T]) Components() []T {
	out := make([]T, 0, b.live)
	for _, s := range b.slots {
		if s.alive {
			out = append(out, s.c)
		}
	}
	return out
}

// Each calls fn for every live component with the same mutation guarantees as
// the update passes.
func (b *BehaviorSystem[T]) Each(fn func(T)) {
	b.dispatching++
	n := len(b.slots)
	for i := 0; i < n; i++ {
		if s := b.slots[i]; s.alive {
			fn(s.c)
		}
	}
	b.dispatching--
	if b.dispatching == 0 && b.tombstones > 0 {
		b.compact()
	}
}

func (b *BehaviorSystem[T]) FixedUpdate() {
	if !b.fixed {
		return
	}
	b.Each(func(c T) { any(c).(FixedUpdater).FixedUpdate() })
}

func (b *BehaviorSystem[T]) Update(dt time.Duration) {
	if !b.variable {
		return
	}
	b.Each(func(c T) { any(c).(Updater).Update(dt) })
}

func (b *BehaviorSystem[T]) DebugWindow() *serial.Object {
	return serial.NewObject().
		Set("Phase", int(b.phase)).
		Set("Components", b.live)
}

func (b *BehaviorSystem[T]) compact() {
	kept := b.slots[:0]
	for _, s := range b.slots {
		if s.alive {
			b.index[s.c.ID()] = len(kept)
			kept = append(kept, s)
		}
	}
	var zero slot[T]
	for i := len(kept); i < len(b.slots); i++ {
		b.slots[i] = zero
	}
	b.slots = kept
	b.tombstones = 0
}

// violation builds the error returned for a double add or remove. The world
// logs it; the operation is skipped.
func (b *BehaviorSystem[T]) violation(format string, args ...any) error {
	return eris.Wrapf(ecs.ErrInvariantViolation, format, args...)
}

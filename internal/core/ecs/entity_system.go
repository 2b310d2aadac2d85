package ecs

import (
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// EntitySystem owns the live entity set of a world, a name index and the
// deferred destruction queue flushed at the end of every fixed step.
type EntitySystem struct {
	world        *World
	active       []*Entity
	byName       map[string][]*Entity
	destroyQueue []*Entity
}

func newEntitySystem(w *World) *EntitySystem {
	return &EntitySystem{
		world:        w,
		active:       make([]*Entity, 0, 256),
		byName:       make(map[string][]*Entity),
		destroyQueue: make([]*Entity, 0, 64),
	}
}

func (s *EntitySystem) Name() string { return "EntitySystem" }

// Add enters e and its descendants into the world. Components receive OnInit
// in insertion order, parents before children.
func (s *EntitySystem) Add(e *Entity) error {
	if e.world != nil {
		err := eris.Wrapf(ErrInvariantViolation, "entity %q is already live", e.name)
		s.world.log.Error("entity add rejected", zap.Error(err))
		return err
	}
	s.active = append(s.active, e)
	key := nameKey(e.name)
	s.byName[key] = append(s.byName[key], e)
	e.enter(s.world)
	if e.destroyed {
		s.queueDestroy(e)
	}
	for _, child := range slices.Clone(e.children) {
		if child.world == nil {
			s.Add(child)
		}
	}
	return nil
}

// GetEntity returns the first live entity with the given name, nil if none.
// Names are compared after Unicode NFC normalisation.
func (s *EntitySystem) GetEntity(name string) *Entity {
	for _, e := range s.byName[nameKey(name)] {
		if !e.destroyed {
			return e
		}
	}
	return nil
}

// Entities returns the live set in insertion order. Callers must not modify it.
func (s *EntitySystem) Entities() []*Entity { return s.active }

// Roots returns the live entities without a parent, in insertion order.
func (s *EntitySystem) Roots() []*Entity {
	var out []*Entity
	for _, e := range s.active {
		if e.parent == nil {
			out = append(out, e)
		}
	}
	return out
}

func (s *EntitySystem) Len() int { return len(s.active) }

// Pending returns the number of entities waiting for the sweep.
func (s *EntitySystem) Pending() int { return len(s.destroyQueue) }

func (s *EntitySystem) queueDestroy(e *Entity) {
	s.destroyQueue = append(s.destroyQueue, e)
}

// FlushDestroyQueue frees every entity destroyed since the last flush:
// components exit in reverse order, destroy watchers fire, then the entity is
// unlinked and dropped. Destroys requested by exit hooks are handled in the
// same flush.
func (s *EntitySystem) FlushDestroyQueue() {
	for len(s.destroyQueue) > 0 {
		queue := s.destroyQueue
		s.destroyQueue = make([]*Entity, 0, cap(queue))
		for _, e := range queue {
			if e.world != s.world {
				continue
			}
			e.exit()
			s.drop(e)
		}
	}
}

// Clear tears down every live entity in reverse insertion order.
func (s *EntitySystem) Clear() {
	for len(s.active) > 0 {
		e := s.active[len(s.active)-1]
		e.destroyed = true
		e.exit()
		s.drop(e)
	}
	s.destroyQueue = s.destroyQueue[:0]
}

func (s *EntitySystem) drop(e *Entity) {
	if e.parent != nil {
		e.parent.unlinkChild(e)
		e.parent = nil
	}
	if i := slices.Index(s.active, e); i >= 0 {
		s.active = slices.Delete(s.active, i, i+1)
	}
	s.unindex(e, e.name)
	e.free()
}

func (s *EntitySystem) rename(e *Entity, old string) {
	s.unindex(e, old)
	key := nameKey(e.name)
	s.byName[key] = append(s.byName[key], e)
}

func (s *EntitySystem) unindex(e *Entity, name string) {
	key := nameKey(name)
	list := s.byName[key]
	if i := slices.Index(list, e); i >= 0 {
		list = slices.Delete(list, i, i+1)
	}
	if len(list) == 0 {
		delete(s.byName, key)
	} else {
		s.byName[key] = list
	}
}

func nameKey(name string) string {
	return norm.NFC.String(name)
}

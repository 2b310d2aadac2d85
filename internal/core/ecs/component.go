package ecs

import (
	"github.com/quarrygate/engine/internal/core/id"
	"github.com/quarrygate/engine/internal/core/serial"
)

// Component is a typed, serializable piece of state attached to an Entity.
// Every component embeds Base, which supplies identity, the owner back-reference
// and no-op lifecycle hooks.
type Component interface {
	serial.Serializable

	ID() id.ID
	Entity() *Entity

	// OnInit fires when the owning entity enters a world, or immediately on Add
	// if the entity is already live.
	OnInit(w *World)
	// OnExit fires when the component leaves a live entity.
	OnExit()
	// OnHierarchyChange fires when the owning entity, or one of its ancestors,
	// is re-parented. prev is the moved subtree's previous parent.
	OnHierarchyChange(prev *Entity)

	// Clone returns a detached copy with a fresh ID and no owner.
	Clone() Component

	base() *Base
}

// Base is embedded by every component.
type Base struct {
	id           id.ID
	entity       *Entity
	initializing bool
	live         bool
}

func (b *Base) ID() id.ID {
	if b.id == 0 {
		b.id = id.Next()
	}
	return b.id
}

// Entity returns the owning entity, nil while detached.
func (b *Base) Entity() *Entity { return b.entity }

// World returns the world the owner is live in, nil otherwise.
func (b *Base) World() *World {
	if b.entity == nil {
		return nil
	}
	return b.entity.world
}

// IsLive reports whether OnInit has fired and OnExit has not.
func (b *Base) IsLive() bool { return b.live }

func (b *Base) OnInit(*World)             {}
func (b *Base) OnExit()                   {}
func (b *Base) OnHierarchyChange(*Entity) {}

func (b *Base) base() *Base { return b }

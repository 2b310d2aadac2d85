package ecs

import (
	"github.com/quarrygate/engine/internal/core/id"
	"github.com/quarrygate/engine/internal/core/serial"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Connector is anything that can be resolved against an entity and released.
type Connector interface {
	Init(holder *Entity) bool
	Exit()
}

// ComponentReference is a non-owning handle to a component of type T on some
// entity. It connects on Init and disconnects when the target component is
// removed, its entity is destroyed, or Exit is called. Connect and disconnect
// hooks pair one to one.
//
// The zero value is a required reference to the holder's own entity.
// Hooks capture their receiver, so set them in OnInit rather than in a
// constructor: Clone resets them.
type ComponentReference[T any] struct {
	ownerName string
	optional  bool

	onConnect    func(T)
	onDisconnect func(T)

	target    T
	entity    *Entity
	connected bool

	destroyKey id.ID
	removeKey  id.ID
}

// SetOwnerName points the reference at a named entity instead of the holder.
func (r *ComponentReference[T]) SetOwnerName(name string) { r.ownerName = name }
func (r *ComponentReference[T]) OwnerName() string        { return r.ownerName }

// SetRequired controls whether a failed resolution is logged as an error.
func (r *ComponentReference[T]) SetRequired(required bool) { r.optional = !required }
func (r *ComponentReference[T]) Required() bool            { return !r.optional }

func (r *ComponentReference[T]) SetOnConnectCallback(fn func(T))    { r.onConnect = fn }
func (r *ComponentReference[T]) SetOnDisconnectCallback(fn func(T)) { r.onDisconnect = fn }

// Get returns the target, or the zero value while disconnected.
func (r *ComponentReference[T]) Get() T { return r.target }

func (r *ComponentReference[T]) IsConnected() bool { return r.connected }

// TargetEntity returns the entity holding the target, nil while disconnected.
func (r *ComponentReference[T]) TargetEntity() *Entity { return r.entity }

// Init resolves the reference. An empty owner name resolves against holder;
// otherwise the name is looked up in holder's world.
func (r *ComponentReference[T]) Init(holder *Entity) bool {
	if r.connected {
		r.Exit()
	}
	target := holder
	if r.ownerName != "" {
		target = nil
		if holder != nil && holder.world != nil {
			target = holder.world.entities.GetEntity(r.ownerName)
		}
	}
	var c T
	ok := target != nil && !target.destroyed
	if ok {
		c, ok = find[T](target)
	}
	if !ok {
		if !r.optional {
			log := zap.L()
			if holder != nil {
				log = holder.logger()
			}
			log.Error("component reference",
				zap.String("holder", entityName(holder)),
				zap.String("owner", r.ownerName),
				zap.Error(eris.Wrapf(ErrMissingRequiredComponent, "%T", c)))
		}
		return false
	}

	r.target = c
	r.entity = target
	r.connected = true
	r.destroyKey = target.OnDestroyed(func(*Entity) { r.disconnect() })
	r.removeKey = target.OnComponentRemoved(func(removed Component) {
		if any(removed) == any(r.target) {
			r.disconnect()
		}
	})
	if r.onConnect != nil {
		r.onConnect(c)
	}
	return true
}

// Exit disconnects, firing the disconnect hook if the reference was connected.
func (r *ComponentReference[T]) Exit() {
	r.disconnect()
}

// Reset returns the reference to its uninitialised state, keeping the owner
// name and required flag. Used by Clone.
func (r *ComponentReference[T]) Reset() {
	r.onConnect = nil
	r.onDisconnect = nil
	var zero T
	r.target = zero
	r.entity = nil
	r.connected = false
	r.destroyKey = 0
	r.removeKey = 0
}

// ReadOwnerName is a read method for the owner name.
func (r *ComponentReference[T]) ReadOwnerName() serial.ReadFunc {
	return serial.Value(&r.ownerName)
}

func (r *ComponentReference[T]) disconnect() {
	if !r.connected {
		return
	}
	prev := r.target
	r.entity.RemoveOnDestroyed(r.destroyKey)
	r.entity.RemoveOnComponentRemoved(r.removeKey)
	var zero T
	r.target = zero
	r.entity = nil
	r.connected = false
	if r.onDisconnect != nil {
		r.onDisconnect(prev)
	}
}

// EntityReference is a named handle to another entity together with the
// component references that live inside it. On connect each contained
// reference is resolved against the named entity.
type EntityReference struct {
	name string
	refs []Connector

	onConnect    func(*Entity)
	onDisconnect func(*Entity)

	entity     *Entity
	destroyKey id.ID
}

func (r *EntityReference) SetName(name string) { r.name = name }
func (r *EntityReference) Name() string        { return r.name }

// Add registers a contained reference. Its owner name should be empty.
func (r *EntityReference) Add(ref Connector) { r.refs = append(r.refs, ref) }

func (r *EntityReference) SetOnConnectCallback(fn func(*Entity))    { r.onConnect = fn }
func (r *EntityReference) SetOnDisconnectCallback(fn func(*Entity)) { r.onDisconnect = fn }

func (r *EntityReference) Get() *Entity      { return r.entity }
func (r *EntityReference) IsConnected() bool { return r.entity != nil }

// Init resolves the name in w, then initialises every contained reference
// against the resolved entity.
func (r *EntityReference) Init(w *World) bool {
	if r.entity != nil {
		r.Exit()
	}
	if w == nil || r.name == "" {
		return false
	}
	e := w.entities.GetEntity(r.name)
	if e == nil {
		w.log.Warn("entity reference did not resolve", zap.String("name", r.name))
		return false
	}
	r.entity = e
	r.destroyKey = e.OnDestroyed(func(*Entity) { r.Exit() })
	for _, ref := range r.refs {
		ref.Init(e)
	}
	if r.onConnect != nil {
		r.onConnect(e)
	}
	return true
}

// Exit releases the contained references and disconnects.
func (r *EntityReference) Exit() {
	if r.entity == nil {
		return
	}
	prev := r.entity
	prev.RemoveOnDestroyed(r.destroyKey)
	for _, ref := range r.refs {
		ref.Exit()
	}
	r.entity = nil
	if r.onDisconnect != nil {
		r.onDisconnect(prev)
	}
}

// Reset clears connection state and hooks, keeping name and contained references.
func (r *EntityReference) Reset() {
	r.onConnect = nil
	r.onDisconnect = nil
	r.entity = nil
	r.destroyKey = 0
}

// ReadName is a read method for the entity name.
func (r *EntityReference) ReadName() serial.ReadFunc {
	return serial.Value(&r.name)
}

func entityName(e *Entity) string {
	if e == nil {
		return ""
	}
	return e.name
}

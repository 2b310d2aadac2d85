package event

import (
	"reflect"

	"github.com/quarrygate/engine/internal/core/id"
)

// handler pairs a response with an optional filter.
type handler[E any] struct {
	response func(E)
	filter   func(E) bool
}

// Bus is a typed publish/subscribe hub keyed by the event's Go type.
// Broadcast delivers synchronously on the caller's goroutine; Emit queues an
// event until the next DispatchQueued, which the event system runs at the
// start of every fixed step. Single-goroutine access only (game loop).
type Bus struct {
	listeners map[reflect.Type]any // reflect.Type -> *id.Callbacks[handler[E]]
	queue     []func()
}

func NewBus() *Bus {
	return &Bus{
		listeners: make(map[reflect.Type]any),
		queue:     make([]func(), 0, 64),
	}
}

func callbacksFor[E any](b *Bus, create bool) *id.Callbacks[handler[E]] {
	t := reflect.TypeOf((*E)(nil)).Elem()
	if cbs, ok := b.listeners[t]; ok {
		return cbs.(*id.Callbacks[handler[E]])
	}
	if !create {
		return nil
	}
	cbs := &id.Callbacks[handler[E]]{}
	b.listeners[t] = cbs
	return cbs
}

// AddListener registers response for events of type E. A nil filter accepts
// everything. Returns the key to pass to RemoveListener.
func AddListener[E any](b *Bus, response func(E), filter func(E) bool) id.ID {
	return callbacksFor[E](b, true).Add(handler[E]{response: response, filter: filter})
}

// Subscribe registers an unfiltered handler for events of type E.
func Subscribe[E any](b *Bus, fn func(E)) id.ID {
	return AddListener(b, fn, nil)
}

// RemoveListener unregisters the listener stored under key.
func RemoveListener[E any](b *Bus, key id.ID) bool {
	cbs := callbacksFor[E](b, false)
	if cbs == nil {
		return false
	}
	return cbs.Remove(key)
}

// ListenerCount returns how many listeners E has.
func ListenerCount[E any](b *Bus) int {
	cbs := callbacksFor[E](b, false)
	if cbs == nil {
		return 0
	}
	return cbs.Len()
}

// Broadcast delivers event to every listener of E in registration order and
// returns once all of them ran. Listeners added during delivery wait for the
// next broadcast; listeners removed during delivery are skipped.
func Broadcast[E any](b *Bus, event E) {
	cbs := callbacksFor[E](b, false)
	if cbs == nil {
		return
	}
	cbs.Each(func(h handler[E]) {
		if h.filter == nil || h.filter(event) {
			h.response(event)
		}
	})
}

// Emit queues event for the next DispatchQueued.
func Emit[E any](b *Bus, event E) {
	b.queue = append(b.queue, func() { Broadcast(b, event) })
}

// Queued returns the number of events waiting for dispatch.
func (b *Bus) Queued() int { return len(b.queue) }

// DispatchQueued broadcasts every queued event in emission order. Events
// emitted while dispatching are kept for the next call.
func (b *Bus) DispatchQueued() {
	if len(b.queue) == 0 {
		return
	}
	pending := b.queue
	b.queue = make([]func(), 0, cap(pending))
	for _, deliver := range pending {
		deliver()
	}
}

// Listener is a value object owning one response/filter pair. Init attaches it
// to a bus and Exit detaches it, so a component can hold one as a field.
type Listener[E any] struct {
	Response func(E)
	Filter   func(E) bool

	bus *Bus
	key id.ID
}

func (l *Listener[E]) Init(b *Bus) {
	if l.bus != nil {
		l.Exit()
	}
	l.bus = b
	l.key = AddListener(b, func(e E) {
		if l.Response != nil {
			l.Response(e)
		}
	}, func(e E) bool {
		return l.Filter == nil || l.Filter(e)
	})
}

func (l *Listener[E]) Exit() {
	if l.bus == nil {
		return
	}
	RemoveListener[E](l.bus, l.key)
	l.bus = nil
	l.key = 0
}

func (l *Listener[E]) IsAttached() bool { return l.bus != nil }

package ecs

import (
	"reflect"
	"time"

	"github.com/quarrygate/engine/internal/core/event"
	"go.uber.org/zap"
)

// DefaultFixedStep is the simulation tick used until configuration says otherwise.
const DefaultFixedStep = time.Second / 60

// BehaviorList is the per-type live list a behavior system keeps. The world
// adds a component after its OnInit and removes it before its OnExit.
type BehaviorList interface {
	AddComponent(c Component) error
	RemoveComponent(c Component) error
}

// World is the service context threaded through components: it owns the live
// entity set, the event bus, the per-type behavior lists and any other
// services the process provides.
type World struct {
	log       *zap.Logger
	entities  *EntitySystem
	events    *event.Bus
	behaviors map[Tag][]BehaviorList
	services  map[reflect.Type]any
	fixedStep time.Duration
}

func NewWorld(log *zap.Logger) *World {
	if log == nil {
		log = zap.NewNop()
	}
	w := &World{
		log:       log,
		events:    event.NewBus(),
		behaviors: make(map[Tag][]BehaviorList),
		services:  make(map[reflect.Type]any),
		fixedStep: DefaultFixedStep,
	}
	w.entities = newEntitySystem(w)
	return w
}

func (w *World) Log() *zap.Logger             { return w.log }
func (w *World) Entities() *EntitySystem      { return w.entities }
func (w *World) Events() *event.Bus           { return w.events }
func (w *World) FixedStep() time.Duration     { return w.fixedStep }
func (w *World) SetFixedStep(d time.Duration) { w.fixedStep = d }

// RegisterBehaviors attaches a behavior list for components with the given tag.
func (w *World) RegisterBehaviors(tag Tag, list BehaviorList) {
	w.behaviors[tag] = append(w.behaviors[tag], list)
}

// Provide makes svc available to components through Service.
func Provide[T any](w *World, svc T) {
	w.services[reflect.TypeOf((*T)(nil)).Elem()] = svc
}

// Service returns the service of type T registered with Provide.
func Service[T any](w *World) (T, bool) {
	var zero T
	if w == nil {
		return zero, false
	}
	v, ok := w.services[reflect.TypeOf((*T)(nil)).Elem()]
	if !ok {
		return zero, false
	}
	return v.(T), true
}

func (w *World) initComponent(c Component) {
	b := c.base()
	b.initializing = true
	c.OnInit(w)
	b.initializing = false
	b.live = true
	for _, list := range w.behaviors[TagFor(c)] {
		if err := list.AddComponent(c); err != nil {
			w.log.Error("behavior list add", zap.String("component", TypeName(c)), zap.Error(err))
		}
	}
}

func (w *World) exitComponent(c Component) {
	b := c.base()
	if !b.live {
		return
	}
	for _, list := range w.behaviors[TagFor(c)] {
		if err := list.RemoveComponent(c); err != nil {
			w.log.Error("behavior list remove", zap.String("component", TypeName(c)), zap.Error(err))
		}
	}
	b.live = false
	c.OnExit()
}

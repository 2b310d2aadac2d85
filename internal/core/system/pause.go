package system

import (
	"sort"

	json "github.com/goccy/go-json"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/event"
	"github.com/quarrygate/engine/internal/core/serial"
	"go.uber.org/zap"
)

// DefaultOptOut names the systems that keep running while the simulation is
// paused: platform and presentation systems, the core bookkeeping systems and
// the behaviors that must stay responsive in menus.
var DefaultOptOut = []string{
	"PlatformSystem",
	"InputSystem",
	"CameraSystem",
	"RenderSystem",
	"AudioSystem",
	"DebugSystem",
	"ParticleSystem",
	"EventSystem",
	"SceneSystem",
	"EntitySystem",
	"PauseSystem",
	BehaviorName("UIButton"),
	BehaviorName("UISlider"),
	BehaviorName("Popup"),
	BehaviorName("PauseMenu"),
	BehaviorName("SceneTransition"),
}

// PauseSystem owns the process-wide "simulation running" flag. While paused,
// the engine skips fixed and variable updates of every system not in the
// opt-out set.
type PauseSystem struct {
	log     *zap.Logger
	world   *ecs.World
	running bool
	optOut  map[string]struct{}
	names   []string
}

func NewPauseSystem(w *ecs.World) *PauseSystem {
	p := &PauseSystem{log: w.Log(), world: w, running: true}
	p.SetOptOut(DefaultOptOut)
	return p
}

func (p *PauseSystem) Name() string    { return "PauseSystem" }
func (p *PauseSystem) Phase() Phase    { return PhaseInput }
func (p *PauseSystem) IsRunning() bool { return p.running }

// SetRunning pauses or resumes the simulation, broadcasting PauseChanged on
// every transition.
func (p *PauseSystem) SetRunning(running bool) {
	if running == p.running {
		return
	}
	p.running = running
	p.log.Info("simulation", zap.Bool("running", running))
	event.Broadcast(p.world.Events(), event.PauseChanged{Running: running})
}

// OptedOut reports whether the named system keeps running while paused.
func (p *PauseSystem) OptedOut(name string) bool {
	_, ok := p.optOut[name]
	return ok
}

// SetOptOut replaces the opt-out set.
func (p *PauseSystem) SetOptOut(names []string) {
	p.optOut = make(map[string]struct{}, len(names))
	for _, n := range names {
		p.optOut[n] = struct{}{}
	}
	p.names = p.names[:0]
	for n := range p.optOut {
		p.names = append(p.names, n)
	}
	sort.Strings(p.names)
}

// OptOut returns the opt-out set, sorted.
func (p *PauseSystem) OptOut() []string { return p.names }

func (p *PauseSystem) ReadMethods() serial.Methods {
	return serial.Methods{
		{Key: "OptOut", Read: func(r *serial.Reader, data json.RawMessage) {
			var names []string
			serial.Slice(&names, serial.Value[string])(r, data)
			if names != nil {
				p.SetOptOut(names)
			}
		}},
		{Key: "Running", Read: serial.Func(p.SetRunning)},
	}
}

func (p *PauseSystem) Write() *serial.Object {
	return serial.NewObject().
		Set("OptOut", p.names).
		Set("Running", p.running)
}

func (p *PauseSystem) Load(r *serial.Reader, data json.RawMessage) { r.Read(p, data) }
func (p *PauseSystem) DebugWindow() *serial.Object                 { return p.Write() }

// EventSystem delivers events queued with event.Emit at the start of every
// fixed step.
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(w *ecs.World) *EventSystem {
	return &EventSystem{bus: w.Events()}
}

func (s *EventSystem) Name() string { return "EventSystem" }
func (s *EventSystem) Phase() Phase { return PhasePreUpdate }
func (s *EventSystem) FixedUpdate() { s.bus.DispatchQueued() }

func (s *EventSystem) DebugWindow() *serial.Object {
	return serial.NewObject().Set("Queued", s.bus.Queued())
}

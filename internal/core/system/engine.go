package system

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/serial"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultMaxFixedSteps caps catch-up after a long frame.
const DefaultMaxFixedSteps = 8

// SceneRequests hands the engine a pending scene change, if any.
type SceneRequests interface {
	TakeRequest() (string, bool)
}

// Engine drives the registry from the wall clock: each frame drains a pending
// scene change, runs as many fixed steps as the accumulated time allows
// (flushing destroyed entities after each), then runs one variable update.
type Engine struct {
	log      *zap.Logger
	world    *ecs.World
	registry *Registry
	pause    *PauseSystem
	scenes   SceneRequests

	maxSteps      int
	frameInterval time.Duration
	now           func() time.Time

	started     bool
	last        time.Time
	accumulator time.Duration
	fixedSteps  uint64
	frames      uint64
}

func NewEngine(log *zap.Logger, w *ecs.World, r *Registry) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		log:           log,
		world:         w,
		registry:      r,
		maxSteps:      DefaultMaxFixedSteps,
		frameInterval: 4 * time.Millisecond,
		now:           time.Now,
	}
}

func (e *Engine) Name() string                  { return "Engine" }
func (e *Engine) Registry() *Registry           { return e.registry }
func (e *Engine) World() *ecs.World             { return e.world }
func (e *Engine) FixedSteps() uint64            { return e.fixedSteps }
func (e *Engine) Frames() uint64                { return e.frames }
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// SetSceneRequests installs the source of scene changes drained each frame.
func (e *Engine) SetSceneRequests(s SceneRequests) { e.scenes = s }

// SetFrameInterval sets how often Run polls the clock.
func (e *Engine) SetFrameInterval(d time.Duration) { e.frameInterval = d }

// SetMaxFixedSteps caps fixed steps per frame; zero or less means no cap.
func (e *Engine) SetMaxFixedSteps(n int) { e.maxSteps = n }

func (e *Engine) ReadMethods() serial.Methods {
	return serial.Methods{
		{Key: "FixedFrameDuration", Read: func(r *serial.Reader, data json.RawMessage) {
			var secs float64
			serial.Value(&secs)(r, data)
			if secs <= 0 {
				r.Warn(eris.Errorf("FixedFrameDuration must be positive, got %v", secs))
				return
			}
			e.world.SetFixedStep(time.Duration(secs * float64(time.Second)))
		}},
		{Key: "MaxFixedSteps", Read: serial.Value(&e.maxSteps)},
	}
}

func (e *Engine) Write() *serial.Object {
	return serial.NewObject().
		Set("FixedFrameDuration", e.world.FixedStep().Seconds()).
		Set("MaxFixedSteps", e.maxSteps)
}

func (e *Engine) DebugWindow() *serial.Object {
	return e.Write().
		Set("FixedSteps", e.fixedSteps).
		Set("Frames", e.frames).
		Set("Systems", e.registry.Names())
}

// Configure reads a systems config document: the "Engine" section configures
// the engine, every other section goes to the system of that name.
func (e *Engine) Configure(r *serial.Reader, data json.RawMessage) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil || sections == nil {
		r.Error(eris.Wrap(serial.ErrJSONTypeMismatch, "systems config must be an object"))
		return
	}
	if raw, ok := sections["Engine"]; ok {
		r.Push("Engine")
		r.Read(e, raw)
		r.Pop()
		delete(sections, "Engine")
	}
	rest, err := json.Marshal(sections)
	if err != nil {
		r.Error(eris.Wrap(err, ""))
		return
	}
	e.registry.Load(r, rest)
}

// Start initialises every system. Call once before the first frame.
func (e *Engine) Start() {
	e.registry.Init(e.world)
	e.log.Info("engine started",
		zap.Duration("fixed_step", e.world.FixedStep()),
		zap.Strings("systems", e.registry.Names()))
}

// Stop tears the scene down and exits every system in reverse order.
func (e *Engine) Stop() {
	e.registry.SceneExit()
	e.world.Entities().Clear()
	e.registry.Exit()
	e.log.Info("engine stopped", zap.Uint64("fixed_steps", e.fixedSteps))
}

// Run drives frames until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Frame(e.now())
		}
	}
}

// Frame runs one wall-clock frame ending at now.
func (e *Engine) Frame(now time.Time) {
	e.frames++
	e.transition()

	if !e.started {
		e.started = true
		e.last = now
	}
	elapsed := now.Sub(e.last)
	if elapsed < 0 {
		elapsed = 0
	}
	e.last = now
	e.accumulator += elapsed

	step := e.world.FixedStep()
	steps := 0
	for e.accumulator >= step {
		if e.maxSteps > 0 && steps == e.maxSteps {
			dropped := e.accumulator
			e.accumulator %= step
			e.log.Warn("simulation behind, dropping time",
				zap.Int("steps", steps), zap.Duration("dropped", dropped-e.accumulator))
			break
		}
		e.accumulator -= step
		e.FixedStep()
		steps++
	}

	e.Update(elapsed)
}

// FixedStep runs one fixed-update pass followed by the destroy sweep.
func (e *Engine) FixedStep() {
	e.fixedSteps++
	for _, s := range e.registry.snapshot() {
		if fu, ok := s.(FixedUpdater); ok && e.active(s) {
			fu.FixedUpdate()
		}
	}
	e.world.Entities().FlushDestroyQueue()
}

// Update runs one variable-update pass.
func (e *Engine) Update(dt time.Duration) {
	for _, s := range e.registry.snapshot() {
		if u, ok := s.(Updater); ok && e.active(s) {
			u.Update(dt)
		}
	}
}

func (e *Engine) transition() {
	if e.scenes == nil {
		return
	}
	name, ok := e.scenes.TakeRequest()
	if !ok {
		return
	}
	e.log.Info("scene transition", zap.String("scene", name))
	e.registry.SceneExit()
	e.registry.SceneLoad()
	e.registry.SceneInit()
}

// active reports whether s runs this pass: everything runs while the
// simulation runs, only opted-out systems run while it is paused.
func (e *Engine) active(s System) bool {
	if e.pause == nil {
		e.pause, _ = Lookup[*PauseSystem](e.registry)
	}
	if e.pause == nil || e.pause.IsRunning() {
		return true
	}
	return e.pause.OptedOut(s.Name())
}

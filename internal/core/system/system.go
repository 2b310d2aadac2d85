package system

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/serial"
)

// Phase orders systems within a pass. Systems in the same phase keep their
// registration order.
type Phase int

const (
	PhaseInput      Phase = iota // 0: platform, input, debug requests
	PhasePreUpdate               // 1: queued events
	PhaseUpdate                  // 2: gameplay behaviors (default)
	PhasePhysics                 // 3: rigid body integration
	PhaseCollision               // 4: collision detection and response
	PhasePostUpdate              // 5: animation, camera
	PhaseOutput                  // 6: render, audio
)

// System is a named singleton driven by the engine. Every lifecycle hook is
// optional: a system implements only the interfaces below that it needs.
type System interface {
	Name() string
}

// Phased systems choose their phase; others run in PhaseUpdate.
type Phased interface {
	Phase() Phase
}

type Initializer interface {
	OnInit(w *ecs.World)
}

type Exiter interface {
	OnExit()
}

// FixedUpdater runs once per fixed step. Behavior components implement it too.
type FixedUpdater interface {
	FixedUpdate()
}

// Updater runs once per frame with the wall time since the previous frame.
// Behavior components implement it too.
type Updater interface {
	Update(dt time.Duration)
}

type SceneLoader interface {
	OnSceneLoad()
}

type SceneIniter interface {
	OnSceneInit()
}

type SceneExiter interface {
	OnSceneExit()
}

// Loader receives the system's section of the systems config document.
type Loader interface {
	Load(r *serial.Reader, data json.RawMessage)
}

// Debugger exposes a snapshot of internal state for the inspector.
type Debugger interface {
	DebugWindow() *serial.Object
}

func phaseOf(s System) Phase {
	if p, ok := s.(Phased); ok {
		return p.Phase()
	}
	return PhaseUpdate
}

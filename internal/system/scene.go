package system

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/event"
	"github.com/quarrygate/engine/internal/core/serial"
	coresys "github.com/quarrygate/engine/internal/core/system"
	"github.com/quarrygate/engine/internal/persist"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultStoreTimeout bounds a single scene store call.
const DefaultStoreTimeout = 5 * time.Second

var ErrNoActiveScene = eris.New("no active scene")

// Scene is a scene document: its name and its root entities.
//
//	{ "Name": str, "Entities": [entity...] }
type Scene struct {
	Name     string
	Entities []*ecs.Entity
}

func (s *Scene) ReadMethods() serial.Methods {
	return serial.Methods{
		{Key: "Name", Read: serial.Value(&s.Name)},
		{Key: "Entities", Read: serial.Slice(&s.Entities, readEntity)},
	}
}

func (s *Scene) Write() *serial.Object {
	return serial.NewObject().
		Set("Name", s.Name).
		Set("Entities", serial.Array(s.Entities))
}

// readEntity leaves dst nil when the element is not an entity object.
func readEntity(dst **ecs.Entity) serial.ReadFunc {
	return func(r *serial.Reader, data json.RawMessage) {
		e := ecs.NewEntity("")
		if r.Read(e, data) {
			*dst = e
		}
	}
}

// SceneSystem owns the active scene. A requested scene is swapped in between
// frames by the engine: the old scene's entities are torn down on SceneExit,
// the new document is read from the store on SceneLoad and its entities enter
// the world on SceneInit.
type SceneSystem struct {
	log     *zap.Logger
	world   *ecs.World
	store   persist.SceneStore
	prefabs ecs.PrefabSource
	timeout time.Duration

	active  string
	next    string
	pending bool
	loading string
	loaded  *Scene
	issues  []serial.Issue
	loads   int
}

func NewSceneSystem(w *ecs.World, store persist.SceneStore, prefabs ecs.PrefabSource) *SceneSystem {
	return &SceneSystem{
		log:     w.Log().Named("scene"),
		world:   w,
		store:   store,
		prefabs: prefabs,
		timeout: DefaultStoreTimeout,
	}
}

func (s *SceneSystem) Name() string         { return "SceneSystem" }
func (s *SceneSystem) Phase() coresys.Phase { return coresys.PhaseInput }

// ActiveScene returns the name of the scene whose entities are live, empty
// when none is.
func (s *SceneSystem) ActiveScene() string { return s.active }

// Issues returns the read problems of the last scene load.
func (s *SceneSystem) Issues() []serial.Issue { return s.issues }

func (s *SceneSystem) Store() persist.SceneStore { return s.store }

// SetNextScene queues a transition. Only the last request before a frame is
// honoured.
func (s *SceneSystem) SetNextScene(name string) {
	s.next = name
	s.pending = true
}

// Reload queues the active scene again, discarding unsaved changes.
func (s *SceneSystem) Reload() {
	if s.active != "" {
		s.SetNextScene(s.active)
	}
}

// TakeRequest hands the pending transition to the engine.
func (s *SceneSystem) TakeRequest() (string, bool) {
	if !s.pending {
		return "", false
	}
	s.pending = false
	s.loading = s.next
	return s.next, true
}

func (s *SceneSystem) OnSceneExit() {
	prev := s.active
	s.world.Entities().Clear()
	s.active = ""
	if prev != "" {
		event.Broadcast(s.world.Events(), event.SceneUnloaded{Name: prev})
		s.log.Info("scene unloaded", zap.String("scene", prev))
	}
}

func (s *SceneSystem) OnSceneLoad() {
	s.loaded = nil
	s.issues = nil
	if s.loading == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	doc, err := s.store.Load(ctx, s.loading)
	if err != nil {
		s.log.Error("scene load failed", zap.String("scene", s.loading), zap.Error(err))
		return
	}
	scene, issues := s.Read(doc)
	s.loaded, s.issues = scene, issues
}

// Read parses a scene document against the prefab source without entering
// it into the world.
func (s *SceneSystem) Read(doc []byte) (*Scene, []serial.Issue) {
	r := serial.NewReader(s.log.With(zap.String("scene", s.loading)))
	if s.prefabs != nil {
		r = ecs.WithPrefabs(r, s.prefabs)
	}
	scene := &Scene{}
	r.Read(scene, doc)
	return scene, r.Issues()
}

func (s *SceneSystem) OnSceneInit() {
	if s.loaded == nil {
		return
	}
	scene := s.loaded
	s.loaded = nil
	if scene.Name != "" && scene.Name != s.loading {
		s.log.Warn("scene document name differs from its key",
			zap.String("scene", s.loading), zap.String("document", scene.Name))
	}

	entered := 0
	for _, e := range scene.Entities {
		if e == nil {
			continue
		}
		if err := s.world.Entities().Add(e); err == nil {
			entered++
		}
	}
	s.active = s.loading
	s.loads++
	event.Broadcast(s.world.Events(), event.SceneLoaded{Name: s.active})
	s.log.Info("scene loaded",
		zap.String("scene", s.active),
		zap.Int("entities", entered),
		zap.Int("issues", len(s.issues)))
}

// Current returns the live scene: every root entity in insertion order.
func (s *SceneSystem) Current() *Scene {
	return &Scene{Name: s.active, Entities: s.world.Entities().Roots()}
}

// Snapshot serializes the live scene with archetypes expanded.
func (s *SceneSystem) Snapshot() ([]byte, error) {
	if s.active == "" {
		return nil, eris.Wrap(ErrNoActiveScene, "snapshot")
	}
	return serial.MarshalIndent(s.Current())
}

// SaveScene writes the live scene back to the store under its name.
func (s *SceneSystem) SaveScene(ctx context.Context) error {
	doc, err := s.Snapshot()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Save(ctx, s.active, doc); err != nil {
		return eris.Wrapf(err, "save scene %q", s.active)
	}
	s.log.Info("scene saved", zap.String("scene", s.active), zap.Int("bytes", len(doc)))
	return nil
}

func (s *SceneSystem) ReadMethods() serial.Methods {
	return serial.Methods{
		{Key: "Scene", Read: serial.Func(s.SetNextScene)},
		{Key: "StoreTimeout", Read: func(r *serial.Reader, data json.RawMessage) {
			var secs float64
			serial.Value(&secs)(r, data)
			if secs <= 0 {
				r.Warn(eris.Errorf("StoreTimeout must be positive, got %v", secs))
				return
			}
			s.timeout = time.Duration(secs * float64(time.Second))
		}},
	}
}

func (s *SceneSystem) Write() *serial.Object {
	return serial.NewObject().
		Set("Scene", s.active).
		Set("StoreTimeout", s.timeout.Seconds())
}

func (s *SceneSystem) Load(r *serial.Reader, data json.RawMessage) { r.Read(s, data) }

func (s *SceneSystem) DebugWindow() *serial.Object {
	o := s.Write().
		Set("Entities", s.world.Entities().Len()).
		Set("Loads", s.loads).
		Set("Issues", len(s.issues))
	if s.pending {
		o.Set("Next", s.next)
	}
	return o
}

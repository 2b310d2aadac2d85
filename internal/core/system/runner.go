package system

import (
	"slices"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/serial"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var ErrDuplicateSystem = eris.New("system already registered")

// Registry holds the ordered system list. Systems are sorted by phase, then by
// registration order; exit-type events walk the list backwards.
type Registry struct {
	log     *zap.Logger
	systems []System
	byName  map[string]System
	sorted  bool
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log:     log,
		systems: make([]System, 0, 16),
		byName:  make(map[string]System),
	}
}

// Register appends s. Names must be unique.
func (r *Registry) Register(s System) error {
	name := s.Name()
	if _, dup := r.byName[name]; dup {
		return eris.Wrapf(ErrDuplicateSystem, "%q", name)
	}
	r.systems = append(r.systems, s)
	r.byName[name] = s
	r.sorted = false
	return nil
}

// MustRegister registers every system, panicking on a duplicate name.
func (r *Registry) MustRegister(systems ...System) {
	for _, s := range systems {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

// Get returns the system with the given name, nil if none.
func (r *Registry) Get(name string) System { return r.byName[name] }

// Lookup returns the first registered system of type T.
func Lookup[T System](r *Registry) (T, bool) {
	for _, s := range r.Systems() {
		if t, ok := s.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// Systems returns the systems in dispatch order. Callers must not modify it.
func (r *Registry) Systems() []System {
	r.ensureSorted()
	return r.systems
}

// Names returns the system names in dispatch order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.systems))
	for _, s := range r.Systems() {
		names = append(names, s.Name())
	}
	return names
}

func (r *Registry) Init(w *ecs.World) {
	for _, s := range r.Systems() {
		if h, ok := s.(Initializer); ok {
			h.OnInit(w)
		}
	}
}

func (r *Registry) Exit() {
	r.reverse(func(s System) {
		if h, ok := s.(Exiter); ok {
			h.OnExit()
		}
	})
}

func (r *Registry) SceneExit() {
	r.reverse(func(s System) {
		if h, ok := s.(SceneExiter); ok {
			h.OnSceneExit()
		}
	})
}

func (r *Registry) SceneLoad() {
	for _, s := range r.Systems() {
		if h, ok := s.(SceneLoader); ok {
			h.OnSceneLoad()
		}
	}
}

func (r *Registry) SceneInit() {
	for _, s := range r.Systems() {
		if h, ok := s.(SceneIniter); ok {
			h.OnSceneInit()
		}
	}
}

// Load hands each Loader its section of a systems config object keyed by
// system name. Sections for unknown systems are reported and skipped.
func (r *Registry) Load(reader *serial.Reader, data json.RawMessage) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil || sections == nil {
		reader.Error(eris.Wrap(serial.ErrJSONTypeMismatch, "systems config must be an object"))
		return
	}
	for _, s := range r.Systems() {
		raw, ok := sections[s.Name()]
		if !ok {
			continue
		}
		delete(sections, s.Name())
		l, ok := s.(Loader)
		if !ok {
			continue
		}
		reader.Push(s.Name())
		l.Load(reader, raw)
		reader.Pop()
	}
	rest := make([]string, 0, len(sections))
	for name := range sections {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	for _, name := range rest {
		reader.Push(name)
		reader.Warn(eris.Wrapf(serial.ErrUnknownJSONKey, "no system named %q", name))
		reader.Pop()
	}
}

func (r *Registry) reverse(fn func(System)) {
	systems := r.Systems()
	for i := len(systems) - 1; i >= 0; i-- {
		fn(systems[i])
	}
}

func (r *Registry) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return phaseOf(r.systems[i]) < phaseOf(r.systems[j])
		})
		r.sorted = true
	}
}

// snapshot returns a copy of the dispatch order, safe against registration
// during a pass.
func (r *Registry) snapshot() []System {
	return slices.Clone(r.Systems())
}

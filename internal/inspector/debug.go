package inspector

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/serial"
	"github.com/quarrygate/engine/internal/core/system"
	"github.com/quarrygate/engine/internal/logging"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	ErrUnknownRequest  = eris.New("unknown request kind")
	ErrNoSuchEntity    = eris.New("no such entity")
	ErrNoSuchComponent = eris.New("no such component")
	ErrUnavailable     = eris.New("not available in this process")
)

// Scenes is the scene control the inspector needs.
type Scenes interface {
	ActiveScene() string
	Snapshot() ([]byte, error)
	SetNextScene(name string)
	SaveScene(ctx context.Context) error
}

// DebugSystem answers inspector requests on the game loop. It keeps running
// while the simulation is paused.
type DebugSystem struct {
	log       *zap.Logger
	world     *ecs.World
	registry  *system.Registry
	requests  <-chan *Request
	scenes    Scenes
	logs      *logging.Buffer
	clipboard *serial.Clipboard
	pause     *system.PauseSystem
	perFrame  int
	served    uint64
	failed    uint64
}

// NewDebugSystem serves requests from src. scenes and logs may be nil; the
// matching request kinds then fail with ErrUnavailable.
func NewDebugSystem(w *ecs.World, reg *system.Registry, src <-chan *Request, scenes Scenes, logs *logging.Buffer) *DebugSystem {
	return &DebugSystem{
		log:       w.Log().Named("debug"),
		world:     w,
		registry:  reg,
		requests:  src,
		scenes:    scenes,
		logs:      logs,
		clipboard: serial.DefaultClipboard(),
		perFrame:  16,
	}
}

func (d *DebugSystem) Name() string        { return "DebugSystem" }
func (d *DebugSystem) Phase() system.Phase { return system.PhaseInput }

func (d *DebugSystem) OnInit(*ecs.World) {
	d.pause, _ = system.Lookup[*system.PauseSystem](d.registry)
}

// Update serves at most perFrame queued requests.
func (d *DebugSystem) Update(time.Duration) {
	for i := 0; i < d.perFrame; i++ {
		select {
		case req := <-d.requests:
			d.Serve(req)
		default:
			return
		}
	}
}

// Serve answers one request.
func (d *DebugSystem) Serve(req *Request) {
	data, err := d.handle(req)
	if err != nil {
		d.failed++
		d.log.Debug("inspector request failed", zap.String("kind", req.Kind), zap.Error(err))
		req.Reply(Response{Error: err.Error()})
		return
	}
	d.served++
	req.Reply(Response{OK: true, Data: data})
}

func (d *DebugSystem) handle(req *Request) (any, error) {
	switch req.Kind {
	case "scene":
		return d.scene()
	case "load":
		if d.scenes == nil {
			return nil, ErrUnavailable
		}
		d.scenes.SetNextScene(req.Scene)
		return nil, nil
	case "save":
		if d.scenes == nil {
			return nil, ErrUnavailable
		}
		return nil, d.scenes.SaveScene(context.Background())
	case "entities":
		return d.entities(), nil
	case "entity":
		e, err := d.entity(req.Entity)
		if err != nil {
			return nil, err
		}
		return e.Write().Set("id", uint64(e.ID())), nil
	case "systems":
		return d.systems(), nil
	case "log":
		if d.logs == nil {
			return nil, ErrUnavailable
		}
		return map[string]any{"total": d.logs.Total(), "entries": d.logs.Entries()}, nil
	case "pause", "resume":
		if d.pause == nil {
			return nil, ErrUnavailable
		}
		d.pause.SetRunning(req.Kind == "resume")
		return map[string]bool{"running": d.pause.IsRunning()}, nil
	case "copy":
		obj, err := d.target(req)
		if err != nil {
			return nil, err
		}
		if err := d.clipboard.Copy(obj); err != nil {
			return nil, err
		}
		return d.clipboard.Contents(), nil
	case "paste":
		return d.paste(req)
	case "types":
		return ecs.RegisteredTypes(), nil
	}
	return nil, eris.Wrapf(ErrUnknownRequest, "%q", req.Kind)
}

func (d *DebugSystem) scene() (any, error) {
	if d.scenes == nil {
		return nil, ErrUnavailable
	}
	doc, err := d.scenes.Snapshot()
	if err != nil {
		return nil, err
	}
	return json.RawMessage(doc), nil
}

type entitySummary struct {
	ID         uint64   `json:"id"`
	Name       string   `json:"name"`
	Parent     string   `json:"parent,omitempty"`
	Components []string `json:"components"`
}

func (d *DebugSystem) entities() []entitySummary {
	live := d.world.Entities().Entities()
	out := make([]entitySummary, 0, len(live))
	for _, e := range live {
		s := entitySummary{ID: uint64(e.ID()), Name: e.Name(), Components: make([]string, 0, e.Len())}
		if p := e.Parent(); p != nil {
			s.Parent = p.Name()
		}
		for _, c := range e.Components() {
			s.Components = append(s.Components, ecs.TypeName(c))
		}
		out = append(out, s)
	}
	return out
}

func (d *DebugSystem) entity(name string) (*ecs.Entity, error) {
	e := d.world.Entities().GetEntity(name)
	if e == nil {
		return nil, eris.Wrapf(ErrNoSuchEntity, "%q", name)
	}
	return e, nil
}

// target is the entity named by req, or its component of type req.Component.
func (d *DebugSystem) target(req *Request) (serial.Serializable, error) {
	e, err := d.entity(req.Entity)
	if err != nil {
		return nil, err
	}
	if req.Component == "" {
		return e, nil
	}
	for _, c := range e.Components() {
		if ecs.TypeName(c) == req.Component {
			return c, nil
		}
	}
	return nil, eris.Wrapf(ErrNoSuchComponent, "%q on %q", req.Component, req.Entity)
}

// paste reads the clipboard, or req.Data when given, into a component and
// returns the resulting patch. Only components can be pasted onto.
func (d *DebugSystem) paste(req *Request) (any, error) {
	if req.Component == "" {
		return nil, eris.Wrap(ErrNoSuchComponent, "paste needs a component")
	}
	obj, err := d.target(req)
	if err != nil {
		return nil, err
	}
	if len(req.Data) > 0 {
		d.clipboard.Set(req.Data)
	}
	r := serial.NewReader(d.log)
	patch, err := d.clipboard.Paste(r, obj)
	if err != nil {
		return nil, err
	}
	issues := make([]string, 0, len(r.Issues()))
	for _, i := range r.Issues() {
		issues = append(issues, i.Path+": "+i.Err.Error())
	}
	return map[string]any{"patch": patch, "issues": issues}, nil
}

func (d *DebugSystem) systems() []*serial.Object {
	out := make([]*serial.Object, 0, len(d.registry.Systems()))
	for _, s := range d.registry.Systems() {
		o := serial.NewObject().Set("name", s.Name())
		if dbg, ok := s.(system.Debugger); ok {
			o.Set("state", dbg.DebugWindow())
		}
		out = append(out, o)
	}
	return out
}

func (d *DebugSystem) DebugWindow() *serial.Object {
	return serial.NewObject().
		Set("Queued", len(d.requests)).
		Set("Served", d.served).
		Set("Failed", d.failed)
}

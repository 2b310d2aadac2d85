package scripting

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/quarrygate/engine/internal/component"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/id"
	"github.com/quarrygate/engine/internal/core/serial"
	"github.com/quarrygate/engine/internal/physics"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Script attaches a Lua module to an entity. The module's hooks receive a
// self table:
//
//	on_init(self)  on_fixed_update(self)  on_update(self, dt)
//	on_collision(self, other_name)  on_exit(self)
//
// self exposes name(), translation(), set_translation(x, y), destroy(),
// log(msg) as methods, and a state table private to this instance.
type Script struct {
	ecs.Base
	Module string

	engine   *Engine
	mod      *lua.LTable
	self     *lua.LTable
	failed   bool
	collider ecs.ComponentReference[physics.Collider]
	enterKey id.ID
}

func NewScript() *Script { return &Script{} }

// Self returns the Lua table passed to every hook, nil before init.
func (s *Script) Self() *lua.LTable { return s.self }

func (s *Script) OnInit(w *ecs.World) {
	eng, ok := ecs.Service[*Engine](w)
	if !ok {
		w.Log().Warn("script without engine", zap.String("module", s.Module))
		return
	}
	mod, ok := eng.Module(s.Module)
	if !ok {
		w.Log().Warn("unknown script module", zap.String("module", s.Module), zap.String("entity", s.Entity().Name()))
		return
	}
	s.engine, s.mod = eng, mod
	s.self = s.newSelf()

	s.collider.SetRequired(false)
	s.collider.SetOnConnectCallback(func(c physics.Collider) {
		s.enterKey = physics.BaseOf(c).AddOnCollisionEnterCallback(func(other physics.Collider, _ physics.CollisionData) {
			name := ""
			if e := other.Entity(); e != nil {
				name = e.Name()
			}
			s.invoke("on_collision", lua.LString(name))
		})
	})
	s.collider.SetOnDisconnectCallback(func(c physics.Collider) {
		physics.BaseOf(c).RemoveCallback(s.enterKey)
		s.enterKey = 0
	})
	s.collider.Init(s.Entity())

	s.invoke("on_init")
}

func (s *Script) OnExit() {
	s.invoke("on_exit")
	s.collider.Exit()
	s.engine, s.mod, s.self = nil, nil, nil
}

func (s *Script) FixedUpdate() { s.invoke("on_fixed_update") }

func (s *Script) Update(dt time.Duration) {
	s.invoke("on_update", lua.LNumber(dt.Seconds()))
}

// invoke calls a hook. A script whose hook raised stops receiving fixed and
// variable updates so one broken module does not flood the log every step.
func (s *Script) invoke(hook string, args ...lua.LValue) {
	if s.mod == nil {
		return
	}
	if s.failed && (hook == "on_fixed_update" || hook == "on_update") {
		return
	}
	if err := s.engine.call(s.Module, s.mod, hook, append([]lua.LValue{s.self}, args...)...); err != nil {
		s.failed = true
	}
}

func (s *Script) newSelf() *lua.LTable {
	L := s.engine.vm
	self := L.NewTable()
	self.RawSetString("state", L.NewTable())
	L.SetFuncs(self, map[string]lua.LGFunction{
		"name": func(L *lua.LState) int {
			L.Push(lua.LString(s.Entity().Name()))
			return 1
		},
		"translation": func(L *lua.LState) int {
			var p mgl32.Vec2
			if t := ecs.Get[*component.Transform](s.Entity()); t != nil {
				p = t.Translation()
			}
			L.Push(lua.LNumber(p.X()))
			L.Push(lua.LNumber(p.Y()))
			return 2
		},
		"set_translation": func(L *lua.LState) int {
			x, y := L.CheckNumber(2), L.CheckNumber(3)
			if t := ecs.Get[*component.Transform](s.Entity()); t != nil {
				t.SetTranslation(mgl32.Vec2{float32(x), float32(y)})
			}
			return 0
		},
		"destroy": func(L *lua.LState) int {
			if e := s.Entity(); e != nil {
				e.Destroy()
			}
			return 0
		},
		"log": func(L *lua.LState) int {
			s.World().Log().Info("script", zap.String("module", s.Module), zap.String("msg", L.CheckString(2)))
			return 0
		},
	})
	return self
}

func (s *Script) ReadMethods() serial.Methods {
	return serial.Methods{
		{Key: "Module", Read: serial.Value(&s.Module)},
	}
}

func (s *Script) Write() *serial.Object {
	return serial.NewObject().Set("Module", s.Module)
}

func (s *Script) Clone() ecs.Component { return &Script{Module: s.Module} }

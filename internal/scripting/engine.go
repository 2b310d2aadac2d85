package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/serial"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for behavior scripts.
// Single-goroutine access only (game loop).
//
// Every scripts/<name>.lua file is a module: it returns a table of hook
// functions and is attached to entities by a Script component naming it.
type Engine struct {
	vm      *lua.LState
	log     *zap.Logger
	dir     string
	modules map[string]*lua.LTable
}

// NewEngine creates a Lua engine and loads every module in scriptsDir. A
// missing directory loads nothing.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log, dir: scriptsDir, modules: make(map[string]*lua.LTable)}
	if scriptsDir == "" {
		return e, nil
	}
	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		name := strings.TrimSuffix(entry.Name(), ".lua")
		if err := e.load(name, func() error { return e.vm.DoFile(path) }); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// LoadString loads a module from source, replacing any module of that name.
func (e *Engine) LoadString(name, src string) error {
	return e.load(name, func() error { return e.vm.DoString(src) })
}

func (e *Engine) load(name string, do func() error) error {
	top := e.vm.GetTop()
	if err := do(); err != nil {
		e.vm.SetTop(top)
		return err
	}
	var ret lua.LValue = lua.LNil
	if e.vm.GetTop() > top {
		ret = e.vm.Get(top + 1)
	}
	e.vm.SetTop(top)
	mod, ok := ret.(*lua.LTable)
	if !ok {
		return fmt.Errorf("module %q returned %s, want table", name, ret.Type())
	}
	e.modules[name] = mod
	return nil
}

// Reload drops every module and loads the scripts directory again. Scripts
// already attached keep the module table they resolved at init.
func (e *Engine) Reload() error {
	e.modules = make(map[string]*lua.LTable)
	if e.dir == "" {
		return nil
	}
	return e.loadDir(e.dir)
}

// Module returns the table a module returned.
func (e *Engine) Module(name string) (*lua.LTable, bool) {
	m, ok := e.modules[name]
	return m, ok
}

// Modules lists loaded module names, sorted.
func (e *Engine) Modules() []string {
	names := make([]string, 0, len(e.modules))
	for n := range e.modules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Provide makes the engine available to Script components in w.
func (e *Engine) Provide(w *ecs.World) { ecs.Provide(w, e) }

// call invokes mod[hook](args...) if the module defines it. Errors are
// logged and reported; the caller keeps going.
func (e *Engine) call(module string, mod *lua.LTable, hook string, args ...lua.LValue) error {
	fn, ok := mod.RawGetString(hook).(*lua.LFunction)
	if !ok {
		return nil
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, args...); err != nil {
		e.log.Error("lua hook error", zap.String("module", module), zap.String("hook", hook), zap.Error(err))
		return err
	}
	return nil
}

func (e *Engine) Name() string { return "ScriptEngine" }

// OnExit shuts the VM down with the system registry.
func (e *Engine) OnExit() { e.Close() }

func (e *Engine) DebugWindow() *serial.Object {
	return serial.NewObject().
		Set("Dir", e.dir).
		Set("Modules", e.Modules())
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}

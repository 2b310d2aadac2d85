package data

import (
	json "github.com/goccy/go-json"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/serial"
	"go.uber.org/zap"
)

// AssetReference is a named handle into the world's Library[T]. It resolves
// on Init and re-resolves on the next Init after the library is rebuilt.
type AssetReference[T comparable] struct {
	name     string
	asset    T
	resolved bool
	version  uint64
}

func (r *AssetReference[T]) Name() string     { return r.name }
func (r *AssetReference[T]) Get() T           { return r.asset }
func (r *AssetReference[T]) IsResolved() bool { return r.resolved }

func (r *AssetReference[T]) SetName(name string) {
	r.name = name
	r.drop()
}

// Init resolves the name against the Library[T] provided to w. An empty
// name stays unresolved without complaint; an unknown one is logged.
func (r *AssetReference[T]) Init(w *ecs.World) bool {
	lib, ok := ecs.Service[*Library[T]](w)
	if !ok {
		w.Log().Warn("asset reference", zap.String("asset", r.name), zap.String("reason", "no library"))
		r.drop()
		return false
	}
	if r.resolved && r.version == lib.Version() {
		return true
	}
	r.drop()
	if r.name == "" {
		return false
	}
	a, err := lib.Lookup(r.name)
	if err != nil {
		w.Log().Warn("asset reference", zap.Error(err))
		return false
	}
	r.asset, r.resolved, r.version = a, true, lib.Version()
	return true
}

// Set points the reference at a directly, taking its name from lib.
func (r *AssetReference[T]) Set(lib *Library[T], a T) bool {
	name, ok := lib.GetAssetName(a)
	if !ok {
		return false
	}
	r.name, r.asset, r.resolved, r.version = name, a, true, lib.Version()
	return true
}

func (r *AssetReference[T]) Exit()  { r.drop() }
func (r *AssetReference[T]) Reset() { r.drop() }

// ReadName reads the asset name; resolution waits for Init.
func (r *AssetReference[T]) ReadName() serial.ReadFunc {
	return func(rd *serial.Reader, data json.RawMessage) {
		var name string
		serial.Value(&name)(rd, data)
		r.SetName(name)
	}
}

func (r *AssetReference[T]) drop() {
	var zero T
	r.asset, r.resolved = zero, false
}

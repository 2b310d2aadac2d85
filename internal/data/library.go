// Package data holds the game's asset libraries: name-keyed tables of shared,
// immutable assets loaded from YAML manifests and prefab JSON files.
package data

import (
	"sort"

	"github.com/rotisserie/eris"
)

var ErrUnknownAssetName = eris.New("unknown asset name")

// Library owns every asset of one kind by name. Assets are shared and must
// not be mutated once added.
type Library[T comparable] struct {
	kind    string
	assets  map[string]T
	names   map[T]string
	version uint64
}

func NewLibrary[T comparable](kind string) *Library[T] {
	return &Library[T]{
		kind:   kind,
		assets: make(map[string]T),
		names:  make(map[T]string),
	}
}

func (l *Library[T]) Kind() string { return l.kind }
func (l *Library[T]) Len() int     { return len(l.assets) }

// Version increases on every Rebuild; references compare it to decide
// whether their cached asset is stale.
func (l *Library[T]) Version() uint64 { return l.version }

// GetAsset returns the asset stored under name.
func (l *Library[T]) GetAsset(name string) (T, bool) {
	a, ok := l.assets[name]
	return a, ok
}

// Lookup is GetAsset with an ErrUnknownAssetName error for a miss.
func (l *Library[T]) Lookup(name string) (T, error) {
	a, ok := l.assets[name]
	if !ok {
		return a, eris.Wrapf(ErrUnknownAssetName, "%s %q", l.kind, name)
	}
	return a, nil
}

// GetAssetName is the reverse lookup used when writing references.
func (l *Library[T]) GetAssetName(a T) (string, bool) {
	n, ok := l.names[a]
	return n, ok
}

// Add stores a under name, replacing any previous asset of that name.
func (l *Library[T]) Add(name string, a T) {
	if old, ok := l.assets[name]; ok {
		delete(l.names, old)
	}
	l.assets[name] = a
	l.names[a] = name
}

func (l *Library[T]) Remove(name string) bool {
	a, ok := l.assets[name]
	if !ok {
		return false
	}
	delete(l.assets, name)
	delete(l.names, a)
	return true
}

// Names returns every asset name, sorted.
func (l *Library[T]) Names() []string {
	names := make([]string, 0, len(l.assets))
	for n := range l.assets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (l *Library[T]) Clear() {
	clear(l.assets)
	clear(l.names)
}

// Rebuild replaces the whole library, as after an asset reload.
func (l *Library[T]) Rebuild(assets map[string]T) {
	l.Clear()
	for n, a := range assets {
		l.Add(n, a)
	}
	l.version++
}

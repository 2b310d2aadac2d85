package ecs

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
)

// registration pairs a serialized type name with its tag and constructor.
type registration struct {
	name string
	tag  Tag
	ctor func() Component
}

// factory maps stable type names, as they appear in JSON, to constructors.
// It is filled from init functions before main runs.
var factory = struct {
	sync.RWMutex
	byName map[string]registration
	byTag  map[Tag]registration
}{
	byName: make(map[string]registration),
	byTag:  make(map[Tag]registration),
}

// Register adds a component type to the factory. Registering the same name
// twice panics, like database/sql drivers.
func Register[T Component](name string, ctor func() T) {
	factory.Lock()
	defer factory.Unlock()
	if _, dup := factory.byName[name]; dup {
		panic(fmt.Sprintf("ecs: component type %q registered twice", name))
	}
	reg := registration{
		name: name,
		tag:  TagOf[T](),
		ctor: func() Component { return ctor() },
	}
	factory.byName[name] = reg
	factory.byTag[reg.tag] = reg
}

// Create returns a fresh detached component of the named type.
func Create(name string) (Component, error) {
	factory.RLock()
	reg, ok := factory.byName[name]
	factory.RUnlock()
	if !ok {
		return nil, eris.Wrapf(ErrUnknownComponentType, "%q", name)
	}
	return reg.ctor(), nil
}

// TagByName returns the tag registered under name.
func TagByName(name string) (Tag, bool) {
	factory.RLock()
	defer factory.RUnlock()
	reg, ok := factory.byName[name]
	return reg.tag, ok
}

// TypeName returns the serialized name of c's type, or its Go type name when
// it was never registered.
func TypeName(c Component) string {
	factory.RLock()
	reg, ok := factory.byTag[TagFor(c)]
	factory.RUnlock()
	if ok {
		return reg.name
	}
	t := reflect.TypeOf(c)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// RegisteredTypes lists every registered type name, sorted.
func RegisteredTypes() []string {
	factory.RLock()
	defer factory.RUnlock()
	names := make([]string, 0, len(factory.byName))
	for name := range factory.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package ecs

import (
	"reflect"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Tag identifies a component type. It is the xxhash of the type's package path
// and name, so it is stable across runs and builds.
type Tag uint64

var tagCache sync.Map // reflect.Type -> Tag

// TagOf returns the tag for component type T. Pointer types share the tag of
// their element type.
func TagOf[T any]() Tag {
	return tagOfType(reflect.TypeOf((*T)(nil)).Elem())
}

// TagFor returns the tag of c's dynamic type.
func TagFor(c Component) Tag {
	return tagOfType(reflect.TypeOf(c))
}

func tagOfType(t reflect.Type) Tag {
	if v, ok := tagCache.Load(t); ok {
		return v.(Tag)
	}
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	tag := Tag(xxhash.Sum64String(base.PkgPath() + "." + base.Name()))
	tagCache.Store(t, tag)
	return tag
}

package ecs

import (
	"sort"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/quarrygate/engine/internal/core/serial"
	"github.com/rotisserie/eris"
)

// PrefabSource produces detached copies of named prefab entities.
type PrefabSource interface {
	Instantiate(name string) (*Entity, error)
}

type prefabSourceKey struct{}

// WithPrefabs makes src available to entity read methods for "Archetype" keys.
func WithPrefabs(r *serial.Reader, src PrefabSource) *serial.Reader {
	return r.WithValue(prefabSourceKey{}, src)
}

// ReadMethods reads the entity document:
//
//	{ "name": str, "Archetype": str, "Components": [{ "<TypeName>": {...} }], "Children": [entity...] }
//
// Archetype is read before Components so inline components override the prefab.
func (e *Entity) ReadMethods() serial.Methods {
	return serial.Methods{
		{Key: "name", Read: serial.Func(e.SetName)},
		{Key: "Archetype", Read: e.readArchetype},
		{Key: "Components", Read: e.readComponents},
		{Key: "Children", Read: e.readChildren},
	}
}

// Write emits the fully expanded entity; prefab contents are inlined.
func (e *Entity) Write() *serial.Object {
	comps := make([]*serial.Object, 0, len(e.components))
	for _, c := range e.components {
		comps = append(comps, serial.NewObject().Set(TypeName(c), c.Write()))
	}
	o := serial.NewObject().
		Set("name", e.name).
		Set("Components", comps)
	if len(e.children) > 0 {
		o.Set("Children", serial.Array(e.children))
	}
	return o
}

func (e *Entity) readArchetype(r *serial.Reader, data json.RawMessage) {
	var name string
	serial.Value(&name)(r, data)
	if name == "" {
		return
	}
	src, _ := r.Value(prefabSourceKey{}).(PrefabSource)
	if src == nil {
		r.Error(eris.Errorf("archetype %q: no prefab library available", name))
		return
	}
	proto, err := src.Instantiate(name)
	if err != nil {
		r.Error(err)
		return
	}
	if e.name == "" {
		e.SetName(proto.name)
	}
	for _, c := range proto.components {
		c.base().entity = nil
		if err := e.Add(c); err != nil {
			r.Warn(err)
		}
	}
	for _, child := range proto.children {
		child.parent = nil
		e.AddChild(child)
	}
}

func (e *Entity) readComponents(r *serial.Reader, data json.RawMessage) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		r.Error(eris.Wrap(serial.ErrJSONTypeMismatch, "expected array of components"))
		return
	}
	for i, item := range items {
		r.Push("[" + strconv.Itoa(i) + "]")
		e.readComponent(r, item)
		r.Pop()
	}
}

// readComponent reads one {"TypeName": {...}} entry. A type already present
// on the entity, e.g. from its archetype, is read in place.
func (e *Entity) readComponent(r *serial.Reader, data json.RawMessage) {
	var byType map[string]json.RawMessage
	if err := json.Unmarshal(data, &byType); err != nil || byType == nil {
		r.Error(eris.Wrap(serial.ErrJSONTypeMismatch, "expected {\"TypeName\": {...}}"))
		return
	}
	names := make([]string, 0, len(byType))
	for name := range byType {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.Push(name)
		if tag, ok := TagByName(name); ok {
			if existing := e.byTag[tag]; existing != nil {
				r.Read(existing, byType[name])
				r.Pop()
				continue
			}
		}
		c, err := Create(name)
		if err != nil {
			r.Error(err)
			r.Pop()
			continue
		}
		r.Read(c, byType[name])
		if err := e.Add(c); err != nil {
			r.Error(err)
		}
		r.Pop()
	}
}

func (e *Entity) readChildren(r *serial.Reader, data json.RawMessage) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		r.Error(eris.Wrap(serial.ErrJSONTypeMismatch, "expected array of entities"))
		return
	}
	for i, item := range items {
		r.Push("[" + strconv.Itoa(i) + "]")
		child := NewEntity("")
		if r.Read(child, item) {
			e.AddChild(child)
		}
		r.Pop()
	}
}

// ReadEntity reads a detached entity from data.
func ReadEntity(r *serial.Reader, data []byte) *Entity {
	e := NewEntity("")
	r.Read(e, data)
	return e
}

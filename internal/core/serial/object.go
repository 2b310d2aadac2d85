package serial

import (
	"bytes"
	"reflect"

	json "github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// Object is a JSON object that remembers key insertion order, so that writes
// are deterministic and match the order of the read table.
type Object struct {
	keys   []string
	values map[string]any
}

func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// Set stores v under key and returns o for chaining. Serializable values are
// written immediately; nil pointers are written as null.
func (o *Object) Set(key string, v any) *Object {
	if isNil(v) {
		v = nil
	} else if s, ok := v.(Serializable); ok {
		v = s.Write()
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
	return o
}

func (o *Object) Get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o *Object) Keys() []string { return o.keys }

func (o *Object) Len() int { return len(o.keys) }

func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, eris.Wrap(err, "")
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, eris.Wrapf(err, "marshal %q", k)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Array writes every element of a slice of serializables.
func Array[T Serializable](items []T) []*Object {
	out := make([]*Object, 0, len(items))
	for _, it := range items {
		out = append(out, it.Write())
	}
	return out
}

// Marshal writes obj to compact JSON.
func Marshal(obj Serializable) ([]byte, error) {
	b, err := json.Marshal(obj.Write())
	if err != nil {
		return nil, eris.Wrap(err, "")
	}
	return b, nil
}

// MarshalIndent writes obj to indented JSON for files meant to be edited by hand.
func MarshalIndent(obj Serializable) ([]byte, error) {
	b, err := json.MarshalIndent(obj.Write(), "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "")
	}
	return b, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

package serial

import (
	"sort"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// Primitive lists the scalar kinds Value can read.
type Primitive interface {
	~bool | ~string |
		~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Value reads a primitive into dst. A value of the wrong kind leaves dst untouched.
func Value[T Primitive](dst *T) ReadFunc {
	return func(r *Reader, data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			r.Error(eris.Wrapf(ErrJSONTypeMismatch, "expected %T, got %s", v, kindOf(data)))
			return
		}
		*dst = v
	}
}

// Floats reads a fixed-length numeric vector into dst. The JSON array must
// have exactly len(dst) elements.
func Floats(dst []float32) ReadFunc {
	return func(r *Reader, data json.RawMessage) {
		var v []float32
		if err := json.Unmarshal(data, &v); err != nil {
			r.Error(eris.Wrapf(ErrJSONTypeMismatch, "expected number array, got %s", kindOf(data)))
			return
		}
		if len(v) != len(dst) {
			r.Error(eris.Wrapf(ErrJSONArraySizeMismatch, "expected %d elements, got %d", len(dst), len(v)))
			return
		}
		copy(dst, v)
	}
}

// Slice reads a JSON array into dst, resizing it to the array length and
// reading each element with elem.
func Slice[T any](dst *[]T, elem func(*T) ReadFunc) ReadFunc {
	return func(r *Reader, data json.RawMessage) {
		if kindOf(data) == "null" {
			*dst = nil
			return
		}
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			r.Error(eris.Wrapf(ErrJSONTypeMismatch, "expected array, got %s", kindOf(data)))
			return
		}
		out := make([]T, len(raws))
		for i, raw := range raws {
			r.Push("[" + strconv.Itoa(i) + "]")
			elem(&out[i])(r, raw)
			r.Pop()
		}
		*dst = out
	}
}

// Map reads a JSON object with arbitrary string keys into dst. Entries are
// read in sorted key order.
func Map[T any](dst *map[string]T, elem func(*T) ReadFunc) ReadFunc {
	return func(r *Reader, data json.RawMessage) {
		if kindOf(data) == "null" {
			*dst = nil
			return
		}
		var raws map[string]json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil || raws == nil {
			r.Error(eris.Wrapf(ErrJSONTypeMismatch, "expected object, got %s", kindOf(data)))
			return
		}
		keys := make([]string, 0, len(raws))
		for k := range raws {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]T, len(raws))
		for _, k := range keys {
			var v T
			r.Push(k)
			elem(&v)(r, raws[k])
			r.Pop()
			out[k] = v
		}
		*dst = out
	}
}

// Nested reads a JSON object into an existing serializable value.
func Nested(dst Serializable) ReadFunc {
	return func(r *Reader, data json.RawMessage) {
		r.Read(dst, data)
	}
}

// Pointer reads null as nil and anything else into a (possibly new) *T.
func Pointer[T any, PT interface {
	*T
	Serializable
}](dst *PT) ReadFunc {
	return func(r *Reader, data json.RawMessage) {
		if kindOf(data) == "null" {
			*dst = nil
			return
		}
		if *dst == nil {
			*dst = PT(new(T))
		}
		r.Read(*dst, data)
	}
}

// Func adapts a plain setter into a read method for a primitive value.
func Func[T Primitive](set func(T)) ReadFunc {
	return func(r *Reader, data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			r.Error(eris.Wrapf(ErrJSONTypeMismatch, "expected %T, got %s", v, kindOf(data)))
			return
		}
		set(v)
	}
}

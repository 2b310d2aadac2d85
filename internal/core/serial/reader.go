// Package serial maps domain objects to and from JSON through per-type tables
// of read methods and ordered writes.
package serial

import (
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ReadFunc consumes the JSON value stored under one key.
type ReadFunc func(r *Reader, data json.RawMessage)

// Method binds a JSON key to the function that reads it.
type Method struct {
	Key  string
	Read ReadFunc
}

// Methods is an ordered read table. Keys are consumed in table order.
type Methods []Method

// Serializable is implemented by every object that round-trips through JSON.
type Serializable interface {
	ReadMethods() Methods
	Write() *Object
}

// AfterLoader is notified once an object's JSON has been fully consumed.
type AfterLoader interface {
	AfterLoad()
}

// Reader walks a JSON document through read tables, tracking the current
// path so that every problem is reported with its location. Problems never
// abort a read: the offending field is skipped and the rest still loads.
type Reader struct {
	log    *zap.Logger
	path   []string
	issues []Issue
	values map[any]any
}

func NewReader(log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{log: log}
}

// WithValue attaches a lookup value available to nested read methods.
func (r *Reader) WithValue(key, value any) *Reader {
	if r.values == nil {
		r.values = make(map[any]any)
	}
	r.values[key] = value
	return r
}

func (r *Reader) Value(key any) any {
	return r.values[key]
}

func (r *Reader) Log() *zap.Logger { return r.log }

// Issues returns every warning and error recorded so far.
func (r *Reader) Issues() []Issue { return r.issues }

// HasErrors reports whether any error-severity issue was recorded.
func (r *Reader) HasErrors() bool {
	for _, i := range r.issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Path renders the current location, e.g. Entities[2].Components[0].Transform.scale.
func (r *Reader) Path() string {
	var b strings.Builder
	for i, p := range r.path {
		if i > 0 && !strings.HasPrefix(p, "[") {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	if b.Len() == 0 {
		return "$"
	}
	return b.String()
}

func (r *Reader) Push(segment string) { r.path = append(r.path, segment) }

func (r *Reader) Pop() {
	if len(r.path) > 0 {
		r.path = r.path[:len(r.path)-1]
	}
}

// Warn records a warning at the current path.
func (r *Reader) Warn(err error) {
	issue := Issue{Severity: SeverityWarning, Path: r.Path(), Err: err}
	r.issues = append(r.issues, issue)
	r.log.Warn("json read", zap.String("path", issue.Path), zap.Error(err))
}

// Error records an error at the current path.
func (r *Reader) Error(err error) {
	issue := Issue{Severity: SeverityError, Path: r.Path(), Err: err}
	r.issues = append(r.issues, issue)
	r.log.Error("json read", zap.String("path", issue.Path), zap.Error(err))
}

// Read fills obj from a JSON object. Keys are read in table order; keys the
// table does not know are reported and skipped; missing keys keep whatever
// obj already holds. AfterLoad fires once at the end. Returns false when data
// is not a JSON object at all.
func (r *Reader) Read(obj Serializable, data json.RawMessage) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		r.Error(eris.Wrapf(ErrJSONTypeMismatch, "expected object, got %s", kindOf(data)))
		return false
	}

	for _, m := range obj.ReadMethods() {
		raw, ok := fields[m.Key]
		if !ok {
			continue
		}
		delete(fields, m.Key)
		r.Push(m.Key)
		m.Read(r, raw)
		r.Pop()
	}

	if len(fields) > 0 {
		unknown := make([]string, 0, len(fields))
		for k := range fields {
			unknown = append(unknown, k)
		}
		sort.Strings(unknown)
		for _, k := range unknown {
			r.Push(k)
			r.Warn(eris.Wrapf(ErrUnknownJSONKey, "%q", k))
			r.Pop()
		}
	}

	if al, ok := obj.(AfterLoader); ok {
		al.AfterLoad()
	}
	return true
}

// ReadDocument is a convenience for reading a whole document with a fresh reader.
func ReadDocument(log *zap.Logger, obj Serializable, data []byte) []Issue {
	r := NewReader(log)
	r.Read(obj, data)
	return r.Issues()
}

// kindOf names the JSON kind of a raw value for error messages.
func kindOf(data json.RawMessage) string {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return "nothing"
	}
	switch s[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "bool"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

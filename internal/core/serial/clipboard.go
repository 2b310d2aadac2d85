package serial

import (
	json "github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/wI2L/jsondiff"
)

var ErrClipboardEmpty = eris.New("clipboard is empty")

// Clipboard holds a single serialized value.
type Clipboard struct {
	data json.RawMessage
}

var clipboard Clipboard

// DefaultClipboard returns the process-wide clipboard.
func DefaultClipboard() *Clipboard { return &clipboard }

// Copy replaces the clipboard contents with obj's serialized form.
func (c *Clipboard) Copy(obj Serializable) error {
	b, err := Marshal(obj)
	if err != nil {
		return err
	}
	c.data = b
	return nil
}

// Paste reads the clipboard contents into obj and returns the patch that
// describes what changed.
func (c *Clipboard) Paste(r *Reader, obj Serializable) (jsondiff.Patch, error) {
	if len(c.data) == 0 {
		return nil, eris.Wrap(ErrClipboardEmpty, "")
	}
	before, err := Marshal(obj)
	if err != nil {
		return nil, err
	}
	r.Read(obj, c.data)
	after, err := Marshal(obj)
	if err != nil {
		return nil, err
	}
	patch, err := jsondiff.CompareJSON(before, after)
	if err != nil {
		return nil, eris.Wrap(err, "")
	}
	return patch, nil
}

// Contents returns the raw clipboard JSON, nil when empty.
func (c *Clipboard) Contents() json.RawMessage { return c.data }

// Set stores raw JSON directly, e.g. text pasted from outside the process.
func (c *Clipboard) Set(data json.RawMessage) { c.data = append(json.RawMessage(nil), data...) }

func (c *Clipboard) Clear() { c.data = nil }

// Diff returns the patch that turns a's serialized form into b's.
func Diff(a, b Serializable) (jsondiff.Patch, error) {
	ab, err := Marshal(a)
	if err != nil {
		return nil, err
	}
	bb, err := Marshal(b)
	if err != nil {
		return nil, err
	}
	patch, err := jsondiff.CompareJSON(ab, bb)
	if err != nil {
		return nil, eris.Wrap(err, "")
	}
	return patch, nil
}

// Equal reports whether a and b serialize to equivalent JSON.
func Equal(a, b Serializable) (bool, error) {
	patch, err := Diff(a, b)
	if err != nil {
		return false, err
	}
	return len(patch) == 0, nil
}

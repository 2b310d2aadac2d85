package id

import (
	"slices"
	"sync/atomic"
)

// ID is a process-wide opaque identifier. Zero is never issued and means "unset".
type ID uint64

var counter atomic.Uint64

// Next returns a fresh ID. IDs are never reused within a run.
func Next() ID {
	return ID(counter.Add(1))
}

func (i ID) IsZero() bool { return i == 0 }

// Callbacks is a set of callbacks keyed by ID, invoked in registration order.
// The zero value is ready to use.
type Callbacks[F any] struct {
	keys []ID
	fns  map[ID]F
}

// Add registers fn under a fresh key and returns the key.
func (c *Callbacks[F]) Add(fn F) ID {
	key := Next()
	c.Set(key, fn)
	return key
}

// Set registers fn under a caller-provided key, replacing any previous entry
// without changing its position.
func (c *Callbacks[F]) Set(key ID, fn F) {
	if c.fns == nil {
		c.fns = make(map[ID]F)
	}
	if _, ok := c.fns[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.fns[key] = fn
}

// Remove drops the callback registered under key. Returns false if absent.
func (c *Callbacks[F]) Remove(key ID) bool {
	if _, ok := c.fns[key]; !ok {
		return false
	}
	delete(c.fns, key)
	if i := slices.Index(c.keys, key); i >= 0 {
		c.keys = slices.Delete(c.keys, i, i+1)
	}
	return true
}

func (c *Callbacks[F]) Has(key ID) bool {
	_, ok := c.fns[key]
	return ok
}

func (c *Callbacks[F]) Len() int { return len(c.keys) }

// Each calls visit for every callback in registration order. Callbacks added
// during the walk are not visited; callbacks removed during the walk are skipped.
func (c *Callbacks[F]) Each(visit func(F)) {
	if len(c.keys) == 0 {
		return
	}
	for _, key := range slices.Clone(c.keys) {
		if fn, ok := c.fns[key]; ok {
			visit(fn)
		}
	}
}

// Clear removes every callback.
func (c *Callbacks[F]) Clear() {
	c.keys = nil
	c.fns = nil
}

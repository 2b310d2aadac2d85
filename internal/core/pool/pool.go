// Package pool implements bounded resource counters such as health, mana or
// ore stock.
package pool

import (
	json "github.com/goccy/go-json"
	"github.com/quarrygate/engine/internal/core/id"
	"github.com/quarrygate/engine/internal/core/serial"
)

// Number is the set of value types a Pool can hold.
type Number interface {
	~int | ~float32
}

// ChangeFunc receives the previous and new current value.
type ChangeFunc[T Number] func(old, current T)

// Pool is a (current, maximum) pair kept within 0 <= current <= maximum.
// Every mutation clamps, and change callbacks fire only when the current
// value actually moved.
type Pool[T Number] struct {
	name      string
	current   T
	maximum   T
	callbacks id.Callbacks[ChangeFunc[T]]
}

// New returns a full pool.
func New[T Number](name string, maximum T) *Pool[T] {
	maximum = floor(maximum)
	return &Pool[T]{name: name, current: maximum, maximum: maximum}
}

func (p *Pool[T]) Name() string     { return p.name }
func (p *Pool[T]) Current() T       { return p.current }
func (p *Pool[T]) Maximum() T       { return p.maximum }
func (p *Pool[T]) IsEmpty() bool    { return p.current == 0 }
func (p *Pool[T]) IsFull() bool     { return p.current == p.maximum }
func (p *Pool[T]) SetName(n string) { p.name = n }

// Fraction returns current/maximum, or 0 for an empty range.
func (p *Pool[T]) Fraction() float32 {
	if p.maximum == 0 {
		return 0
	}
	return float32(p.current) / float32(p.maximum)
}

// Set assigns the current value, clamped to [0, maximum].
func (p *Pool[T]) Set(v T) {
	v = p.clamp(v)
	if v == p.current {
		return
	}
	old := p.current
	p.current = v
	p.callbacks.Each(func(fn ChangeFunc[T]) { fn(old, v) })
}

// SetMaximum changes the upper bound; the current value is clamped to it.
func (p *Pool[T]) SetMaximum(maximum T) {
	p.maximum = floor(maximum)
	p.Set(p.current)
}

func (p *Pool[T]) Add(v T) { p.Set(p.current + v) }
func (p *Pool[T]) Sub(v T) { p.Set(p.current - v) }
func (p *Pool[T]) Mul(v T) { p.Set(p.current * v) }

// Div divides the current value; division by zero is ignored.
func (p *Pool[T]) Div(v T) {
	if v == 0 {
		return
	}
	p.Set(p.current / v)
}

// Reset refills the pool to its maximum.
func (p *Pool[T]) Reset() { p.Set(p.maximum) }

// OnChange registers fn and returns the key to remove it with.
func (p *Pool[T]) OnChange(fn ChangeFunc[T]) id.ID { return p.callbacks.Add(fn) }

func (p *Pool[T]) RemoveOnChange(key id.ID) bool { return p.callbacks.Remove(key) }

func (p *Pool[T]) ReadMethods() serial.Methods {
	return serial.Methods{
		{Key: "BaseValue", Read: serial.Value(&p.maximum)},
		{Key: "CurrentValue", Read: serial.Value(&p.current)},
	}
}

// AfterLoad restores the invariant after a document wrote both fields
// directly. A missing CurrentValue leaves the pool as it was.
func (p *Pool[T]) AfterLoad() {
	p.maximum = floor(p.maximum)
	p.current = p.clamp(p.current)
}

func (p *Pool[T]) Write() *serial.Object {
	return serial.NewObject().
		Set("BaseValue", p.maximum).
		Set("CurrentValue", p.current)
}

// ReadFull reads BaseValue and, when CurrentValue is absent, starts the pool
// full. Use it for documents that only describe capacity.
func (p *Pool[T]) ReadFull() serial.ReadFunc {
	return func(r *serial.Reader, data json.RawMessage) {
		var fields map[string]json.RawMessage
		_ = json.Unmarshal(data, &fields)
		r.Read(p, data)
		if _, ok := fields["CurrentValue"]; !ok {
			p.current = p.maximum
		}
	}
}

func (p *Pool[T]) clamp(v T) T {
	if v > p.maximum {
		return p.maximum
	}
	return floor(v)
}

// floor maps negative values and NaN to 0.
func floor[T Number](v T) T {
	if v != v || v < 0 {
		return 0
	}
	return v
}

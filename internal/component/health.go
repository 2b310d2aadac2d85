package component

import (
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/event"
	"github.com/quarrygate/engine/internal/core/id"
	"github.com/quarrygate/engine/internal/core/pool"
	"github.com/quarrygate/engine/internal/core/serial"
)

// HealthDepleted is broadcast when a Health pool drops to zero.
type HealthDepleted struct {
	Entity *ecs.Entity
}

// Health is a hit-point pool.
type Health struct {
	ecs.Base
	hp  *pool.Pool[int]
	key id.ID
}

func NewHealth() *Health {
	return &Health{hp: pool.New("Health", 100)}
}

func (h *Health) Pool() *pool.Pool[int] { return h.hp }
func (h *Health) Current() int          { return h.hp.Current() }
func (h *Health) Damage(n int)          { h.hp.Sub(n) }
func (h *Health) Heal(n int)            { h.hp.Add(n) }

func (h *Health) OnInit(w *ecs.World) {
	h.key = h.hp.OnChange(func(old, current int) {
		if current == 0 && old > 0 {
			event.Broadcast(w.Events(), HealthDepleted{Entity: h.Entity()})
		}
	})
}

func (h *Health) OnExit() {
	h.hp.RemoveOnChange(h.key)
	h.key = 0
}

func (h *Health) ReadMethods() serial.Methods {
	return serial.Methods{{Key: "Health", Read: h.hp.ReadFull()}}
}

func (h *Health) Write() *serial.Object {
	return serial.NewObject().Set("Health", h.hp)
}

func (h *Health) Clone() ecs.Component {
	hp := pool.New(h.hp.Name(), h.hp.Maximum())
	hp.Set(h.hp.Current())
	return &Health{hp: hp}
}

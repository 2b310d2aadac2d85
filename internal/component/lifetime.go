package component

import (
	"time"

	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/serial"
)

// Lifetime destroys its entity once Duration of simulated time has passed.
// Projectiles and effects use it.
type Lifetime struct {
	ecs.Base
	Duration float32 // seconds
	elapsed  time.Duration
}

func NewLifetime() *Lifetime { return &Lifetime{Duration: 1} }

// Remaining is the simulated time left, never negative.
func (l *Lifetime) Remaining() time.Duration {
	d := seconds(l.Duration) - l.elapsed
	if d < 0 {
		return 0
	}
	return d
}

func (l *Lifetime) FixedUpdate() {
	if l.Entity().IsDestroyed() {
		return
	}
	l.elapsed += l.World().FixedStep()
	if l.elapsed >= seconds(l.Duration) {
		l.Entity().Destroy()
	}
}

func (l *Lifetime) ReadMethods() serial.Methods {
	return serial.Methods{{Key: "Duration", Read: serial.Value(&l.Duration)}}
}

func (l *Lifetime) Write() *serial.Object {
	return serial.NewObject().Set("Duration", l.Duration)
}

func (l *Lifetime) Clone() ecs.Component { return &Lifetime{Duration: l.Duration} }

func seconds(s float32) time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

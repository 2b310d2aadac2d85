package component

import (
	"math"
	"time"

	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/serial"
	"github.com/quarrygate/engine/internal/data"
)

// TransformAnimator plays a TransformAnimation on the entity's Transform on
// the variable clock. Animation is presentation only; it never runs inside the
// fixed step.
type TransformAnimator struct {
	ecs.Base
	Speed float32
	Loop  bool

	animation data.AssetReference[*data.TransformAnimation]
	transform ecs.ComponentReference[*Transform]
	time      float32
	playing   bool
}

func NewTransformAnimator() *TransformAnimator {
	return &TransformAnimator{Speed: 1, Loop: true, playing: true}
}

func (a *TransformAnimator) Time() float32     { return a.time }
func (a *TransformAnimator) IsPlaying() bool   { return a.playing }
func (a *TransformAnimator) Animation() string { return a.animation.Name() }

// Play restarts the named animation from its first keyframe.
func (a *TransformAnimator) Play(name string) {
	a.animation.SetName(name)
	a.time = 0
	a.playing = true
	if w := a.World(); w != nil {
		a.animation.Init(w)
	}
}

func (a *TransformAnimator) Stop() { a.playing = false }

func (a *TransformAnimator) OnInit(w *ecs.World) {
	a.transform.Init(a.Entity())
	a.animation.Init(w)
}

func (a *TransformAnimator) OnExit() {
	a.transform.Exit()
	a.animation.Exit()
}

func (a *TransformAnimator) Update(dt time.Duration) {
	anim := a.animation.Get()
	if !a.playing || anim == nil || !a.transform.IsConnected() {
		return
	}
	a.time += float32(dt.Seconds()) * a.Speed
	if d := anim.Duration(); a.time >= d {
		if a.Loop && d > 0 {
			a.time = float32(math.Mod(float64(a.time), float64(d)))
		} else {
			a.time = d
			a.playing = false
		}
	}
	pos, rot, scale := anim.Sample(a.time)
	t := a.transform.Get()
	t.SetTranslation(pos)
	t.SetRotation(rot)
	t.SetScale(scale)
}

func (a *TransformAnimator) ReadMethods() serial.Methods {
	return serial.Methods{
		{Key: "Animation", Read: a.animation.ReadName()},
		{Key: "Speed", Read: serial.Value(&a.Speed)},
		{Key: "Loop", Read: serial.Value(&a.Loop)},
	}
}

func (a *TransformAnimator) Write() *serial.Object {
	return serial.NewObject().
		Set("Animation", a.animation.Name()).
		Set("Speed", a.Speed).
		Set("Loop", a.Loop)
}

func (a *TransformAnimator) Clone() ecs.Component {
	c := NewTransformAnimator()
	c.Speed, c.Loop = a.Speed, a.Loop
	c.animation.SetName(a.animation.Name())
	return c
}

package component

import (
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/system"
)

func init() {
	ecs.Register("Transform", NewTransform)
	ecs.Register("Health", NewHealth)
	ecs.Register("Lifetime", NewLifetime)
	ecs.Register("TransformAnimator", NewTransformAnimator)
}

// Systems returns the behavior systems that drive this package's components.
func Systems(w *ecs.World) []system.System {
	return []system.System{
		system.NewBehaviorSystem[*Lifetime](w, "Lifetime"),
		system.NewBehaviorSystem[*TransformAnimator](w, "TransformAnimator").SetPhase(system.PhasePostUpdate),
	}
}

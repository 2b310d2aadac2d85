package physics

import (
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/system"
)

func init() {
	ecs.Register("CircleCollider", NewCircleCollider)
	ecs.Register("LineCollider", NewLineCollider)
	ecs.Register("TilemapCollider", NewTilemapCollider)
	ecs.Register("RigidBody", NewRigidBody)
	ecs.Register("StaticBody", NewStaticBody)
}

// Systems returns rigid body integration followed by collision detection.
func Systems(w *ecs.World) []system.System {
	return []system.System{
		system.NewBehaviorSystem[*RigidBody](w, "RigidBody").SetPhase(system.PhasePhysics),
		NewCollisionSystem(w),
	}
}

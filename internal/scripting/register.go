package scripting

import (
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/system"
)

func init() {
	ecs.Register("Script", NewScript)
}

// Systems provides eng to w and returns it with the Script behavior system.
func Systems(w *ecs.World, eng *Engine) []system.System {
	eng.Provide(w)
	return []system.System{
		eng,
		system.NewBehaviorSystem[*Script](w, "Script"),
	}
}

package event

// Engine-level event types. Gameplay events live next to the components that
// raise them.

// PauseChanged is broadcast whenever the simulation is paused or resumed.
type PauseChanged struct {
	Running bool
}

// SceneUnloaded is broadcast after the old scene's entities were torn down.
type SceneUnloaded struct {
	Name string
}

// SceneLoaded is broadcast after a scene's entities entered the world.
type SceneLoaded struct {
	Name string
}

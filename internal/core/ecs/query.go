package ecs

// Each calls fn for every live entity carrying a T, in insertion order.
func Each[T Component](w *World, fn func(*Entity, T)) {
	tag := TagOf[T]()
	for _, e := range w.entities.active {
		if c, ok := e.byTag[tag].(T); ok && !e.destroyed {
			fn(e, c)
		}
	}
}

// Each2 iterates over live entities that have both component A and B.
func Each2[A, B Component](w *World, fn func(*Entity, A, B)) {
	ta, tb := TagOf[A](), TagOf[B]()
	for _, e := range w.entities.active {
		if e.destroyed {
			continue
		}
		a, ok := e.byTag[ta].(A)
		if !ok {
			continue
		}
		if b, ok := e.byTag[tb].(B); ok {
			fn(e, a, b)
		}
	}
}

// Find returns the first live component of type T, useful for singletons such
// as a level's tilemap.
func Find[T Component](w *World) (T, bool) {
	tag := TagOf[T]()
	for _, e := range w.entities.active {
		if c, ok := e.byTag[tag].(T); ok && !e.destroyed {
			return c, true
		}
	}
	var zero T
	return zero, false
}

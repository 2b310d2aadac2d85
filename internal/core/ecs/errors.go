package ecs

import "github.com/rotisserie/eris"

var (
	ErrUnknownComponentType     = eris.New("unknown component type")
	ErrDuplicateTypeTag         = eris.New("component type already present on entity")
	ErrMissingRequiredComponent = eris.New("required component reference did not resolve")
	ErrInvariantViolation       = eris.New("invariant violation")
)

// Package interact is the proximity interaction core: the two-role protocol,
// the shared interactable bookkeeping, and the scanning agent that resolves a
// single best target per tick.
//
// Everything in this package is owned by one goroutine (the world loop). Nothing
// blocks and nothing locks.
package interact

import (
	"reflect"

	"interactworld.ai/internal/sim/geom"
)

// Interactable is anything that can accept an interaction.
//
// Implementations are compared by identity (==), so they must be comparable;
// pointer receivers are the norm.
type Interactable interface {
	// CanInteract reports whether i may interact right now. It must be free of
	// side effects: the resolver calls it on candidates it will not pick.
	CanInteract(i Interactor) bool
	// OnInteractionBegin opens an interaction for i. It re-validates and is a
	// no-op when i is not eligible or already engaged.
	OnInteractionBegin(i Interactor)
	// OnInteractionEnd closes the interaction for i. No-op when i was never engaged.
	OnInteractionEnd(i Interactor)
	// InteractionPrompt is display text for whoever currently targets this.
	InteractionPrompt() string
}

// Interactor is anything that can initiate interactions.
//
// Interactables key their engaged-set by interactor, so implementations must
// be comparable; pointer receivers are the norm.
type Interactor interface {
	Position() geom.Vec3
	Forward() geom.Vec3
	CurrentTarget() Interactable
	OnInteractionStarted(x Interactable)
	OnInteractionEnded(x Interactable)
}

// Layer is a category bitmask used to filter spatial queries.
type Layer uint32

const AllLayers Layer = ^Layer(0)

// Candidate is one hit of a nearby query.
type Candidate struct {
	Target Interactable
	Pos    geom.Vec3
}

// Query is the spatial collaborator. It returns every interactable whose
// position lies within radius of center and whose layer intersects mask.
// Result order is the enumeration order the resolver uses for tie-breaks.
type Query interface {
	Nearby(center geom.Vec3, radius float64, mask Layer) []Candidate
}

// isNil reports whether v is nil or an interface holding a nil pointer,
// map, slice, func or chan. Both count as an absent party.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// destroyable is implemented by interactables that can be torn down while
// still referenced by an agent.
type destroyable interface {
	Destroyed() bool
}

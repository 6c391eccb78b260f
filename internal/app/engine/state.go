// Package engine provides the crossfade engine that alternates two deck
// channels between a now-playing and a next-up track.
package engine

// State represents the engine state.
type State int

const (
	StateIdle          State = iota // No session has run yet
	StateRunning                    // Now playing on the active channel, next up preloaded
	StateTransitioning              // Crossfade or post-fade swap in progress
	StateStopped                    // Session ended by stop or failure
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTransitioning:
		return "transitioning"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Active reports whether a session is in progress.
func (s State) Active() bool {
	return s == StateRunning || s == StateTransitioning
}

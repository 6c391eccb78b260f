package engine

import (
	"time"

	"github.com/osa030/autodj/internal/app/deck"
	"github.com/osa030/autodj/internal/domain/track"
)

// Status is an immutable snapshot of the session.
// While a session is running and not transitioning, NowPlaying is bound to
// ActiveChannel and NextUp to the other channel. NextUp is nil while the
// replacement for a finished crossfade is being looked up.
type Status struct {
	State         State
	SessionID     string
	Source        string
	NowPlaying    *track.Track
	NextUp        *track.Track
	ActiveChannel deck.Channel
	MixInterval   time.Duration
	FadeDuration  time.Duration
	TargetEnergy  float64
	History       []int64
	Transitions   int
	LastError     string
}

// Running reports whether a session is in progress.
func (s Status) Running() bool {
	return s.State.Active()
}

// Transitioning reports whether the transition guard is held.
func (s Status) Transitioning() bool {
	return s.State == StateTransitioning
}

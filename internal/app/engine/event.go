package engine

import (
	"github.com/osa030/autodj/internal/domain/track"
)

// EventType represents an engine event type.
type EventType int

const (
	EventStarted           EventType = iota // Session started playing
	EventTransitionStarted                  // Crossfade began
	EventTrackChanged                       // Incoming track became now playing
	EventNextUpChanged                      // A new next-up track was preloaded
	EventStopped                            // Session ended
	EventError                              // A failure was reported
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventTransitionStarted:
		return "transition_started"
	case EventTrackChanged:
		return "track_changed"
	case EventNextUpChanged:
		return "next_up_changed"
	case EventStopped:
		return "stopped"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event represents an engine event.
type Event struct {
	Type    EventType
	Track   *track.Track // Track the event is about (nil for some events)
	Reason  string       // Trigger or cause, e.g. "interval", "track_end", "skip"
	Message string       // User-visible error message for EventError
	Status  Status       // Snapshot taken when the event was emitted
}

// Package controlv1 defines the messages of the engine control service.
// Messages travel as JSON over Connect (see Codec).
package controlv1

// Event types sent on the event stream. InitialState is sent once per
// subscription; the others mirror engine events.
const (
	EventTypeInitialState      = "initial_state"
	EventTypeStarted           = "started"
	EventTypeTransitionStarted = "transition_started"
	EventTypeTrackChanged      = "track_changed"
	EventTypeNextUpChanged     = "next_up_changed"
	EventTypeStopped           = "stopped"
	EventTypeError             = "error"
)

// Track is the wire form of a catalog track.
type Track struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	DurationSec float64 `json:"duration_sec"`
	BPM         float64 `json:"bpm"`
	Energy      float64 `json:"energy"`
}

// Status is the wire form of the engine status.
type Status struct {
	State          string  `json:"state"`
	SessionID      string  `json:"session_id,omitempty"`
	Source         string  `json:"source,omitempty"`
	NowPlaying     *Track  `json:"now_playing,omitempty"`
	NextUp         *Track  `json:"next_up,omitempty"`
	ActiveChannel  string  `json:"active_channel"`
	MixIntervalSec int32   `json:"mix_interval_sec"`
	FadeSec        int32   `json:"fade_sec"`
	TargetEnergy   float64 `json:"target_energy"`
	History        []int64 `json:"history,omitempty"`
	Transitions    int32   `json:"transitions"`
	LastError      string  `json:"last_error,omitempty"`
	Listeners      int32   `json:"listeners"`
}

type StartRequest struct{}

type StopRequest struct{}

type SkipRequest struct{}

type GetStatusRequest struct{}

type SetMixIntervalRequest struct {
	Seconds int32 `json:"seconds"`
}

type SetFadeDurationRequest struct {
	Seconds int32 `json:"seconds"`
}

type SetTargetEnergyRequest struct {
	Energy float64 `json:"energy"`
}

// StatusResponse is returned by every unary procedure and carries the status
// after the request was applied.
type StatusResponse struct {
	Status *Status `json:"status"`
}

type SubscribeEventsRequest struct{}

// Event is one message of the event stream.
type Event struct {
	SequenceNo uint64  `json:"sequence_no"`
	Type       string  `json:"type"`
	Track      *Track  `json:"track,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Message    string  `json:"message,omitempty"`
	Status     *Status `json:"status,omitempty"`
}

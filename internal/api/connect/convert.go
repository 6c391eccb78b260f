package connect

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	controlv1 "github.com/osa030/autodj/internal/api/controlv1"
	"github.com/osa030/autodj/internal/app/deck"
	"github.com/osa030/autodj/internal/app/engine"
	"github.com/osa030/autodj/internal/app/source"
	"github.com/osa030/autodj/internal/domain/track"
)

func toTrack(t *track.Track) *controlv1.Track {
	if t == nil {
		return nil
	}
	return &controlv1.Track{
		ID:          t.ID,
		Name:        t.Name,
		DurationSec: t.Duration.Seconds(),
		BPM:         t.BPM,
		Energy:      t.Energy,
	}
}

func toStatus(st engine.Status, listeners int) *controlv1.Status {
	return &controlv1.Status{
		State:          st.State.String(),
		SessionID:      st.SessionID,
		Source:         st.Source,
		NowPlaying:     toTrack(st.NowPlaying),
		NextUp:         toTrack(st.NextUp),
		ActiveChannel:  st.ActiveChannel.String(),
		MixIntervalSec: int32(st.MixInterval.Seconds()),
		FadeSec:        int32(st.FadeDuration.Seconds()),
		TargetEnergy:   st.TargetEnergy,
		History:        st.History,
		Transitions:    int32(st.Transitions),
		LastError:      st.LastError,
		Listeners:      int32(listeners),
	}
}

// toConnectError maps engine and source errors to Connect codes. The
// user-visible hint, if any, is appended to the message.
func toConnectError(err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, engine.ErrAlreadyRunning):
		code = connect.CodeAlreadyExists
	case errors.Is(err, engine.ErrOutOfRange):
		code = connect.CodeInvalidArgument
	case errors.Is(err, source.ErrRecommenderUnavailable), errors.Is(err, engine.ErrClosed):
		code = connect.CodeUnavailable
	case errors.Is(err, source.ErrInsufficientCatalog),
		errors.Is(err, deck.ErrPlaybackRejected),
		errors.Is(err, engine.ErrNotRunning),
		errors.Is(err, engine.ErrBusy),
		errors.Is(err, engine.ErrStopped):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	}

	msg := err.Error()
	if hint := errors.FlattenHints(err); hint != "" {
		msg = fmt.Sprintf("%s (%s)", msg, hint)
	}
	return connect.NewError(code, errors.New(msg))
}

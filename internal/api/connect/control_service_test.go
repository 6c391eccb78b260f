package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	controlv1 "github.com/osa030/autodj/internal/api/controlv1"
	"github.com/osa030/autodj/internal/api/controlv1/controlv1connect"
	"github.com/osa030/autodj/internal/app/deck"
	"github.com/osa030/autodj/internal/app/engine"
	"github.com/osa030/autodj/internal/app/notification"
	"github.com/osa030/autodj/internal/app/source"
	"github.com/osa030/autodj/internal/domain/track"
)

const testToken = "secret"

type fakeEngine struct {
	mu       sync.Mutex
	err      error
	calls    []string
	interval time.Duration
	fade     time.Duration
	energy   float64
	status   engine.Status
}

func (e *fakeEngine) record(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, name)
	return e.err
}

func (e *fakeEngine) Start(context.Context) error { return e.record("start") }
func (e *fakeEngine) Stop(context.Context) error  { return e.record("stop") }
func (e *fakeEngine) Skip(context.Context) error  { return e.record("skip") }

func (e *fakeEngine) SetMixInterval(_ context.Context, d time.Duration) error {
	e.mu.Lock()
	e.interval = d
	e.mu.Unlock()
	return e.record("interval")
}

func (e *fakeEngine) SetFadeDuration(_ context.Context, d time.Duration) error {
	e.mu.Lock()
	e.fade = d
	e.mu.Unlock()
	return e.record("fade")
}

func (e *fakeEngine) SetTargetEnergy(_ context.Context, v float64) error {
	e.mu.Lock()
	e.energy = v
	e.mu.Unlock()
	return e.record("energy")
}

func (e *fakeEngine) Status() engine.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *fakeEngine) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

type fixedListeners int

func (n fixedListeners) ListenerCount() int { return int(n) }

func newTestServer(t *testing.T) (*fakeEngine, *notification.Manager, *ControlService, string) {
	t.Helper()
	eng := &fakeEngine{status: engine.Status{
		State:         engine.StateRunning,
		SessionID:     "s-1",
		Source:        "playlist",
		NowPlaying:    &track.Track{ID: 1, Name: "a.mp3", BPM: 120, Energy: 0.5, Duration: 200 * time.Second},
		NextUp:        &track.Track{ID: 2, Name: "b.mp3"},
		ActiveChannel: deck.B,
		MixInterval:   70 * time.Second,
		FadeDuration:  10 * time.Second,
		TargetEnergy:  0.65,
		Transitions:   3,
	}}
	notifier := notification.NewManager()
	svc := NewControlService(eng, notifier, fixedListeners(2))

	mux := http.NewServeMux()
	path, handler := controlv1connect.NewControlServiceHandler(
		svc,
		connect.WithInterceptors(NewAdminAuthInterceptor(testToken)),
	)
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		notifier.Close()
		srv.Close()
	})
	return eng, notifier, svc, srv.URL
}

func newTestClient(url, token string) controlv1connect.ControlServiceClient {
	return controlv1connect.NewControlServiceClient(http.DefaultClient, url, WithAdminToken(token))
}

func TestControlService_Auth(t *testing.T) {
	_, _, _, url := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing token", token: ""},
		{name: "wrong token", token: "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(url, tt.token)
			_, err := client.GetStatus(ctx, connect.NewRequest(&controlv1.GetStatusRequest{}))
			require.Error(t, err)
			assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

			stream, err := client.SubscribeEvents(ctx, connect.NewRequest(&controlv1.SubscribeEventsRequest{}))
			if err == nil {
				defer stream.Close()
				assert.False(t, stream.Receive())
				err = stream.Err()
			}
			assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
		})
	}
}

func TestControlService_GetStatus(t *testing.T) {
	_, _, _, url := newTestServer(t)
	client := newTestClient(url, testToken)

	resp, err := client.GetStatus(context.Background(), connect.NewRequest(&controlv1.GetStatusRequest{}))
	require.NoError(t, err)

	assert.Equal(t, &controlv1.Status{
		State:          "running",
		SessionID:      "s-1",
		Source:         "playlist",
		NowPlaying:     &controlv1.Track{ID: 1, Name: "a.mp3", DurationSec: 200, BPM: 120, Energy: 0.5},
		NextUp:         &controlv1.Track{ID: 2, Name: "b.mp3"},
		ActiveChannel:  "B",
		MixIntervalSec: 70,
		FadeSec:        10,
		TargetEnergy:   0.65,
		Transitions:    3,
		Listeners:      2,
	}, resp.Msg.Status)
}

func TestControlService_Commands(t *testing.T) {
	eng, _, _, url := newTestServer(t)
	client := newTestClient(url, testToken)
	ctx := context.Background()

	_, err := client.Start(ctx, connect.NewRequest(&controlv1.StartRequest{}))
	require.NoError(t, err)
	_, err = client.Skip(ctx, connect.NewRequest(&controlv1.SkipRequest{}))
	require.NoError(t, err)
	_, err = client.SetMixInterval(ctx, connect.NewRequest(&controlv1.SetMixIntervalRequest{Seconds: 30}))
	require.NoError(t, err)
	_, err = client.SetFadeDuration(ctx, connect.NewRequest(&controlv1.SetFadeDurationRequest{Seconds: 6}))
	require.NoError(t, err)
	_, err = client.SetTargetEnergy(ctx, connect.NewRequest(&controlv1.SetTargetEnergyRequest{Energy: 0.9}))
	require.NoError(t, err)
	resp, err := client.Stop(ctx, connect.NewRequest(&controlv1.StopRequest{}))
	require.NoError(t, err)
	assert.Equal(t, "running", resp.Msg.Status.State)

	eng.mu.Lock()
	defer eng.mu.Unlock()
	assert.Equal(t, []string{"start", "skip", "interval", "fade", "energy", "stop"}, eng.calls)
	assert.Equal(t, 30*time.Second, eng.interval)
	assert.Equal(t, 6*time.Second, eng.fade)
	assert.InDelta(t, 0.9, eng.energy, 1e-9)
}

func TestControlService_ErrorCodes(t *testing.T) {
	eng, _, _, url := newTestServer(t)
	client := newTestClient(url, testToken)

	insufficient := errors.WithHint(
		errors.Mark(errors.New("got 1"), source.ErrInsufficientCatalog),
		"at least 2 analyzed tracks are required to start a set",
	)
	tests := []struct {
		name string
		err  error
		code connect.Code
	}{
		{name: "already running", err: engine.ErrAlreadyRunning, code: connect.CodeAlreadyExists},
		{name: "out of range", err: errors.Wrap(engine.ErrOutOfRange, "fade"), code: connect.CodeInvalidArgument},
		{name: "insufficient catalog", err: insufficient, code: connect.CodeFailedPrecondition},
		{name: "playback rejected", err: errors.Wrap(deck.ErrPlaybackRejected, "bind"), code: connect.CodeFailedPrecondition},
		{name: "stale reference", err: errors.Wrap(deck.ErrStaleReference, "410"), code: connect.CodeFailedPrecondition},
		{name: "not running", err: engine.ErrNotRunning, code: connect.CodeFailedPrecondition},
		{name: "busy", err: engine.ErrBusy, code: connect.CodeFailedPrecondition},
		{name: "recommender unavailable", err: errors.Mark(errors.New("timeout"), source.ErrRecommenderUnavailable), code: connect.CodeUnavailable},
		{name: "closed", err: engine.ErrClosed, code: connect.CodeUnavailable},
		{name: "other", err: errors.New("boom"), code: connect.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng.setErr(tt.err)
			_, err := client.Start(context.Background(), connect.NewRequest(&controlv1.StartRequest{}))
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
		})
	}

	eng.setErr(insufficient)
	_, err := client.Start(context.Background(), connect.NewRequest(&controlv1.StartRequest{}))
	var connectErr *connect.Error
	require.True(t, errors.As(err, &connectErr))
	assert.Contains(t, connectErr.Message(), "at least 2 analyzed tracks")
}

func TestControlService_SubscribeEvents(t *testing.T) {
	_, notifier, svc, url := newTestServer(t)
	client := newTestClient(url, testToken)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := client.SubscribeEvents(ctx, connect.NewRequest(&controlv1.SubscribeEventsRequest{}))
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Receive())
	initial := stream.Msg()
	assert.Equal(t, controlv1.EventTypeInitialState, initial.Type)
	assert.Equal(t, "s-1", initial.Status.SessionID)

	require.Eventually(t, func() bool { return notifier.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	notifier.Broadcast(svc.ConvertEvent(engine.Event{
		Type:   engine.EventTransitionStarted,
		Track:  &track.Track{ID: 2, Name: "b.mp3"},
		Reason: "skip",
		Status: engine.Status{State: engine.StateTransitioning},
	}))

	require.True(t, stream.Receive())
	ev := stream.Msg()
	assert.Equal(t, "transition_started", ev.Type)
	assert.Equal(t, "skip", ev.Reason)
	assert.Equal(t, int64(2), ev.Track.ID)
	assert.Equal(t, "transitioning", ev.Status.State)
	assert.Greater(t, ev.SequenceNo, initial.SequenceNo)

	notifier.Close()
	assert.False(t, stream.Receive())
	assert.NoError(t, stream.Err())
}

func TestControlService_SubscribeEventsInitialStateFirst(t *testing.T) {
	_, notifier, _, url := newTestServer(t)
	client := newTestClient(url, testToken)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			notifier.Broadcast(&controlv1.Event{Type: controlv1.EventTypeNextUpChanged})
			time.Sleep(time.Millisecond)
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := client.SubscribeEvents(ctx, connect.NewRequest(&controlv1.SubscribeEventsRequest{}))
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Receive())
	assert.Equal(t, controlv1.EventTypeInitialState, stream.Msg().Type)
	require.True(t, stream.Receive())
	assert.Equal(t, controlv1.EventTypeNextUpChanged, stream.Msg().Type)
}

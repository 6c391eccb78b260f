package connect

import (
	"context"
	"sync"
	"time"

	"connectrpc.com/connect"
	zlog "github.com/rs/zerolog/log"

	controlv1 "github.com/osa030/autodj/internal/api/controlv1"
	"github.com/osa030/autodj/internal/api/controlv1/controlv1connect"
	"github.com/osa030/autodj/internal/app/engine"
	"github.com/osa030/autodj/internal/app/notification"
)

// Engine is the engine API the service drives.
type Engine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Skip(ctx context.Context) error
	SetMixInterval(ctx context.Context, d time.Duration) error
	SetFadeDuration(ctx context.Context, d time.Duration) error
	SetTargetEnergy(ctx context.Context, v float64) error
	Status() engine.Status
}

// ListenerCounter reports the number of connected audio listeners.
type ListenerCounter interface {
	ListenerCount() int
}

// ControlService implements the ControlService RPC.
type ControlService struct {
	engine    Engine
	notifier  *notification.Manager
	listeners ListenerCounter
}

// NewControlService creates a new ControlService. listeners may be nil.
func NewControlService(eng Engine, notifier *notification.Manager, listeners ListenerCounter) *ControlService {
	return &ControlService{
		engine:    eng,
		notifier:  notifier,
		listeners: listeners,
	}
}

// Ensure ControlService implements the interface.
var _ controlv1connect.ControlServiceHandler = (*ControlService)(nil)

// Start starts a session and waits until it plays or fails to start.
func (s *ControlService) Start(
	ctx context.Context,
	req *connect.Request[controlv1.StartRequest],
) (*connect.Response[controlv1.StatusResponse], error) {
	return s.apply(s.engine.Start(ctx))
}

// Stop stops the session.
func (s *ControlService) Stop(
	ctx context.Context,
	req *connect.Request[controlv1.StopRequest],
) (*connect.Response[controlv1.StatusResponse], error) {
	return s.apply(s.engine.Stop(ctx))
}

// Skip crossfades to the next-up track now.
func (s *ControlService) Skip(
	ctx context.Context,
	req *connect.Request[controlv1.SkipRequest],
) (*connect.Response[controlv1.StatusResponse], error) {
	return s.apply(s.engine.Skip(ctx))
}

// SetMixInterval changes the interval between automatic transitions.
func (s *ControlService) SetMixInterval(
	ctx context.Context,
	req *connect.Request[controlv1.SetMixIntervalRequest],
) (*connect.Response[controlv1.StatusResponse], error) {
	d := time.Duration(req.Msg.Seconds) * time.Second
	return s.apply(s.engine.SetMixInterval(ctx, d))
}

// SetFadeDuration changes the crossfade length.
func (s *ControlService) SetFadeDuration(
	ctx context.Context,
	req *connect.Request[controlv1.SetFadeDurationRequest],
) (*connect.Response[controlv1.StatusResponse], error) {
	d := time.Duration(req.Msg.Seconds) * time.Second
	return s.apply(s.engine.SetFadeDuration(ctx, d))
}

// SetTargetEnergy changes the target energy.
func (s *ControlService) SetTargetEnergy(
	ctx context.Context,
	req *connect.Request[controlv1.SetTargetEnergyRequest],
) (*connect.Response[controlv1.StatusResponse], error) {
	return s.apply(s.engine.SetTargetEnergy(ctx, req.Msg.Energy))
}

// GetStatus returns the current engine status.
func (s *ControlService) GetStatus(
	ctx context.Context,
	req *connect.Request[controlv1.GetStatusRequest],
) (*connect.Response[controlv1.StatusResponse], error) {
	return s.apply(nil)
}

// SubscribeEvents sends the current state, then every engine event until the
// client disconnects or the notifier closes.
func (s *ControlService) SubscribeEvents(
	ctx context.Context,
	req *connect.Request[controlv1.SubscribeEventsRequest],
	stream *connect.ServerStream[controlv1.Event],
) error {
	adapter := &eventStreamAdapter{stream: stream, ready: make(chan struct{})}
	subscriptionID := s.notifier.Subscribe(adapter)
	defer s.notifier.Unsubscribe(subscriptionID)
	defer adapter.markReady()

	initial := &controlv1.Event{
		SequenceNo: s.notifier.NextSequenceNo(),
		Type:       controlv1.EventTypeInitialState,
		Status:     s.status(),
	}
	if err := s.notifier.Send(subscriptionID, initial); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-s.notifier.Done():
	}
	return nil
}

// eventStreamAdapter serializes sends, since a send that timed out in the
// notifier may still be running when the next event arrives. Broadcasts wait
// until the initial state has been sent.
type eventStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[controlv1.Event]
	ready  chan struct{}
	once   sync.Once
}

func (a *eventStreamAdapter) Send(ev *controlv1.Event) error {
	if ev.Type != controlv1.EventTypeInitialState {
		<-a.ready
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.stream.Send(ev)
	if ev.Type == controlv1.EventTypeInitialState {
		a.markReady()
	}
	return err
}

func (a *eventStreamAdapter) markReady() {
	a.once.Do(func() { close(a.ready) })
}

// ConvertEvent converts an engine event to its wire form.
func (s *ControlService) ConvertEvent(ev engine.Event) *controlv1.Event {
	return &controlv1.Event{
		Type:    ev.Type.String(),
		Track:   toTrack(ev.Track),
		Reason:  ev.Reason,
		Message: ev.Message,
		Status:  toStatus(ev.Status, s.listenerCount()),
	}
}

func (s *ControlService) apply(err error) (*connect.Response[controlv1.StatusResponse], error) {
	if err != nil {
		zlog.Debug().Msgf("connect: request failed: error=%v", err)
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&controlv1.StatusResponse{Status: s.status()}), nil
}

func (s *ControlService) status() *controlv1.Status {
	return toStatus(s.engine.Status(), s.listenerCount())
}

func (s *ControlService) listenerCount() int {
	if s.listeners == nil {
		return 0
	}
	return s.listeners.ListenerCount()
}

package engine

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/autodj/internal/app/deck"
	"github.com/osa030/autodj/internal/app/source"
	"github.com/osa030/autodj/internal/app/tempo"
	"github.com/osa030/autodj/internal/domain/track"
)

// Errors
var (
	ErrAlreadyRunning = errors.New("session already running")
	ErrNotRunning     = errors.New("session not running")
	ErrOutOfRange     = errors.New("value out of range")
	ErrStopped        = errors.New("start cancelled by stop")
	ErrBusy           = errors.New("transition already in progress")
	ErrClosed         = errors.New("engine closed")
)

// Setting bounds.
const (
	MinMixInterval      = 15 * time.Second
	MaxMixInterval      = 180 * time.Second
	MinFadeDuration     = 4 * time.Second
	MaxFadeDuration     = 20 * time.Second
	DefaultMixInterval  = 70 * time.Second
	DefaultFadeDuration = 10 * time.Second
	DefaultTargetEnergy = 0.65
	DefaultSettleMargin = 200 * time.Millisecond
)

// Decks is the two-channel player the engine drives.
type Decks interface {
	Load(ctx context.Context, trackID int64, streamURL string) (*deck.Media, error)
	Attach(ch deck.Channel, m *deck.Media)
	Play(ch deck.Channel) error
	Stop(ch deck.Channel) error
	Paused(ch deck.Channel) bool
	SetGain(ch deck.Channel, value float64)
	Crossfade(from, to deck.Channel, d time.Duration)
	SetPlaybackRate(ch deck.Channel, rate float64)
	Release()
	Ended() <-chan deck.Channel
}

// Streams resolves the stream URL of a catalog track.
type Streams interface {
	StreamURL(trackID int64) string
}

// Config holds engine configuration.
type Config struct {
	MixInterval  time.Duration
	FadeDuration time.Duration
	TargetEnergy float64
	SettleMargin time.Duration // Wait after the fade before the outgoing channel is reused
	Tempo        tempo.Calculator
}

// Engine runs crossfade sessions. All session state is owned by the goroutine
// executing Run; other goroutines talk to it through commands and read the
// published Status.
type Engine struct {
	decks     Decks
	streams   Streams
	newSource source.Factory
	tempo     tempo.Calculator
	settle    time.Duration

	cmds       chan command
	loopEvents chan any
	events     chan Event
	done       chan struct{}
	status     atomic.Pointer[Status]

	// Owned by the run loop
	ctx          context.Context
	state        State
	interval     time.Duration
	fade         time.Duration
	energy       float64
	sess         *session
	pending      *pendingStart
	epoch        uint64
	lookupSeq    uint64
	lookupCancel context.CancelFunc
	mixTimer     timer
	settleTimer  timer
	lastErr      string
}

type session struct {
	id          string
	src         source.Source
	now         *track.Track
	next        *track.Track
	active      deck.Channel
	transitions int
}

type pendingStart struct {
	id    string
	src   source.Source
	reply func(error)
}

type command struct {
	run   func(reply func(error))
	reply chan error
}

// Loop events posted by timers and lookup goroutines.
type (
	mixTimerFired    struct{ seq uint64 }
	settleTimerFired struct{ seq uint64 }
	primed           struct {
		epoch     uint64
		pair      source.Pair
		now, next *deck.Media
		err       error
	}
	advanced struct {
		epoch uint64
		next  track.Track
		media *deck.Media
		err   error
	}
	retargeted struct {
		epoch, seq uint64
		next       track.Track
		media      *deck.Media
		err        error
	}
)

// New creates a new engine. Run must be called for it to process requests.
func New(cfg Config, decks Decks, streams Streams, newSource source.Factory, clock Clock) *Engine {
	if cfg.MixInterval == 0 {
		cfg.MixInterval = DefaultMixInterval
	}
	if cfg.FadeDuration == 0 {
		cfg.FadeDuration = DefaultFadeDuration
	}
	if cfg.SettleMargin == 0 {
		cfg.SettleMargin = DefaultSettleMargin
	}
	if cfg.Tempo == (tempo.Calculator{}) {
		cfg.Tempo = tempo.Default()
	}
	if clock == nil {
		clock = WallClock{}
	}

	e := &Engine{
		decks:       decks,
		streams:     streams,
		newSource:   newSource,
		tempo:       cfg.Tempo,
		settle:      cfg.SettleMargin,
		cmds:        make(chan command),
		loopEvents:  make(chan any, 16),
		events:      make(chan Event, 64),
		done:        make(chan struct{}),
		ctx:         context.Background(),
		state:       StateIdle,
		interval:    cfg.MixInterval,
		fade:        cfg.FadeDuration,
		energy:      cfg.TargetEnergy,
		mixTimer:    timer{clock: clock},
		settleTimer: timer{clock: clock},
	}
	e.publish()
	return e
}

// Events returns the event channel.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Status returns the latest published snapshot.
func (e *Engine) Status() Status {
	return *e.status.Load()
}

// Run processes commands, timers and deck signals until ctx is done.
// A running session is stopped on return.
func (e *Engine) Run(ctx context.Context) {
	e.ctx = ctx
	defer close(e.done)

	zlog.Info().Msgf("engine: started: interval=%v fade=%v energy=%.2f", e.interval, e.fade, e.energy)
	for {
		select {
		case <-ctx.Done():
			e.stopSession("shutdown")
			e.publish()
			zlog.Info().Msg("engine: stopped")
			return
		case c := <-e.cmds:
			c.run(func(err error) {
				e.publish()
				c.reply <- err
			})
		case ev := <-e.loopEvents:
			e.handle(ev)
		case ch := <-e.decks.Ended():
			e.onEnded(ch)
		}
		e.publish()
	}
}

// Start primes the track source, binds now-playing to channel A and next-up
// to channel B, starts A and arms the mix timer. It returns once the session
// is running or has failed to start.
func (e *Engine) Start(ctx context.Context) error {
	return e.do(ctx, e.start)
}

// Stop ends the session. It can be called at any time, including during a
// crossfade or while a lookup is pending.
func (e *Engine) Stop(ctx context.Context) error {
	return e.call(ctx, func() error {
		e.stopSession("stop")
		return nil
	})
}

// Skip starts a transition immediately.
func (e *Engine) Skip(ctx context.Context) error {
	return e.call(ctx, func() error {
		return e.requestTransition("skip")
	})
}

// SetMixInterval changes the interval between automatic transitions. A
// running session re-arms its timer with the new interval.
func (e *Engine) SetMixInterval(ctx context.Context, d time.Duration) error {
	if d < MinMixInterval || d > MaxMixInterval {
		return errors.Wrapf(ErrOutOfRange, "mix interval %v not within [%v, %v]", d, MinMixInterval, MaxMixInterval)
	}
	return e.call(ctx, func() error {
		e.interval = d
		if e.state == StateRunning {
			e.armMixTimer()
		}
		zlog.Info().Msgf("engine: mix interval set: interval=%v", d)
		return nil
	})
}

// SetFadeDuration changes the crossfade length used by the next transition.
func (e *Engine) SetFadeDuration(ctx context.Context, d time.Duration) error {
	if d < MinFadeDuration || d > MaxFadeDuration {
		return errors.Wrapf(ErrOutOfRange, "fade duration %v not within [%v, %v]", d, MinFadeDuration, MaxFadeDuration)
	}
	return e.call(ctx, func() error {
		e.fade = d
		zlog.Info().Msgf("engine: fade duration set: fade=%v", d)
		return nil
	})
}

// SetTargetEnergy changes the target energy. Sources that select by energy
// replace the pending next-up track.
func (e *Engine) SetTargetEnergy(ctx context.Context, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return errors.Wrapf(ErrOutOfRange, "target energy %v not within [0, 1]", v)
	}
	return e.call(ctx, func() error {
		e.energy = v
		zlog.Info().Msgf("engine: target energy set: energy=%.2f", v)
		e.retarget()
		return nil
	})
}

func (e *Engine) do(ctx context.Context, run func(reply func(error))) error {
	c := command{run: run, reply: make(chan error, 1)}
	select {
	case e.cmds <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}
}

func (e *Engine) call(ctx context.Context, fn func() error) error {
	return e.do(ctx, func(reply func(error)) { reply(fn()) })
}

// post hands a loop event to the run loop. Media carried by events that can
// no longer be delivered is released.
func (e *Engine) post(ev any) {
	select {
	case e.loopEvents <- ev:
	case <-e.done:
		releaseMedia(ev)
	}
}

func (e *Engine) handle(ev any) {
	switch ev := ev.(type) {
	case mixTimerFired:
		e.onMixTimer(ev.seq)
	case settleTimerFired:
		e.onSettled(ev.seq)
	case primed:
		e.onPrimed(ev)
	case advanced:
		e.onAdvanced(ev)
	case retargeted:
		e.onRetargeted(ev)
	}
}

func (e *Engine) start(reply func(error)) {
	if e.state.Active() || e.pending != nil {
		reply(ErrAlreadyRunning)
		return
	}

	src, err := e.newSource()
	if err != nil {
		reply(errors.Wrap(err, "failed to create track source"))
		return
	}

	e.epoch++
	epoch := e.epoch
	ctx := e.newLookup()
	energy := e.energy
	e.pending = &pendingStart{id: uuid.NewString(), src: src, reply: reply}
	zlog.Info().Msgf("engine: starting session: id=%s source=%s", e.pending.id, src.Name())

	go func() {
		res := primed{epoch: epoch}
		res.pair, res.err = src.Prime(ctx, energy)
		if res.err == nil {
			res.now, res.err = e.load(ctx, res.pair.Now)
		}
		if res.err == nil {
			res.next, res.err = e.load(ctx, res.pair.Next)
		}
		e.post(res)
	}()
}

func (e *Engine) onPrimed(res primed) {
	if res.epoch != e.epoch || e.pending == nil {
		releaseMedia(res)
		return
	}
	p := e.pending
	e.pending = nil
	e.lookupDone()

	if res.err != nil {
		releaseMedia(res)
		e.reportError(res.err)
		p.reply(res.err)
		return
	}

	e.decks.Attach(deck.A, res.now)
	e.decks.Attach(deck.B, res.next)
	e.decks.SetGain(deck.A, 1)
	e.decks.SetGain(deck.B, 0)
	if err := e.decks.Play(deck.A); err != nil {
		e.resetDecks()
		e.reportError(err)
		p.reply(err)
		return
	}

	now, next := res.pair.Now, res.pair.Next
	e.sess = &session{
		id:     p.id,
		src:    p.src,
		now:    &now,
		next:   &next,
		active: deck.A,
	}
	e.state = StateRunning
	e.lastErr = ""
	e.armMixTimer()

	zlog.Info().Msgf("engine: session started: id=%s now=%s next=%s", p.id, now, next)
	e.emit(Event{Type: EventStarted, Track: &now})
	p.reply(nil)
}

// requestTransition is the single entry point for the interval timer,
// end-of-track and manual skips.
func (e *Engine) requestTransition(reason string) error {
	if e.state == StateTransitioning {
		zlog.Debug().Msgf("engine: transition already in progress: reason=%s", reason)
		return ErrBusy
	}
	if e.state != StateRunning || e.sess == nil {
		return ErrNotRunning
	}

	s := e.sess
	e.state = StateTransitioning
	e.mixTimer.stop()
	e.cancelLookup()

	from, to := s.active, s.active.Other()
	rate := e.tempo.ComputeRate(s.now.BPM, s.next.BPM)
	e.decks.SetPlaybackRate(to, rate)

	if e.decks.Paused(to) {
		if err := e.decks.Play(to); err != nil {
			e.state = StateRunning
			e.reportError(err)
			e.armMixTimer()
			return err
		}
	}

	e.decks.Crossfade(from, to, e.fade)
	e.settleTimer.arm(e.fade+e.settle, func(seq uint64) {
		e.post(settleTimerFired{seq: seq})
	})

	zlog.Info().Msgf("engine: transition started: reason=%s from=%s to=%s rate=%.3f fade=%v next=%s",
		reason, from, to, rate, e.fade, s.next)
	e.emit(Event{Type: EventTransitionStarted, Track: s.next, Reason: reason})
	return nil
}

func (e *Engine) onSettled(seq uint64) {
	if !e.settleTimer.current(seq) || e.state != StateTransitioning || e.sess == nil {
		return
	}
	e.settleTimer.fired()

	s := e.sess
	from := s.active
	if err := e.decks.Stop(from); err != nil {
		zlog.Warn().Msgf("engine: failed to stop outgoing channel: channel=%s error=%v", from, err)
	}
	s.active = from.Other()
	superseded := *s.now
	s.now, s.next = s.next, nil
	s.transitions++
	e.emit(Event{Type: EventTrackChanged, Track: s.now})

	epoch := e.epoch
	ctx := e.newLookup()
	src := s.src
	energy := e.energy
	go func() {
		res := advanced{epoch: epoch}
		res.next, res.err = src.Advance(ctx, superseded, energy)
		if res.err == nil {
			res.media, res.err = e.load(ctx, res.next)
		}
		e.post(res)
	}()
}

func (e *Engine) onAdvanced(res advanced) {
	if res.epoch != e.epoch || e.state != StateTransitioning || e.sess == nil || e.sess.next != nil {
		res.media.Close()
		return
	}
	e.lookupDone()

	if res.err != nil {
		res.media.Close()
		e.fail(res.err)
		return
	}

	s := e.sess
	e.decks.Attach(s.active.Other(), res.media)
	next := res.next
	s.next = &next
	e.state = StateRunning

	zlog.Info().Msgf("engine: transition complete: active=%s now=%s next=%s", s.active, s.now, s.next)
	e.emit(Event{Type: EventNextUpChanged, Track: s.next})

	if e.decks.Paused(s.active) {
		// now-playing finished while its successor was being looked up
		if err := e.requestTransition("track_end"); err != nil {
			zlog.Warn().Msgf("engine: transition after early end failed: error=%v", err)
		}
		return
	}
	e.armMixTimer()
}

func (e *Engine) retarget() {
	if e.state != StateRunning || e.sess == nil {
		return
	}
	r, ok := e.sess.src.(source.Retargeter)
	if !ok {
		return
	}

	ctx := e.newLookup()
	seq := e.lookupSeq
	epoch := e.epoch
	now := *e.sess.now
	energy := e.energy
	go func() {
		res := retargeted{epoch: epoch, seq: seq}
		res.next, res.err = r.Retarget(ctx, now, energy)
		if res.err == nil {
			res.media, res.err = e.load(ctx, res.next)
		}
		e.post(res)
	}()
}

func (e *Engine) onRetargeted(res retargeted) {
	if res.epoch != e.epoch || res.seq != e.lookupSeq || e.state != StateRunning || e.sess == nil {
		res.media.Close()
		return
	}
	e.lookupDone()

	if res.err != nil {
		res.media.Close()
		e.reportError(errors.Wrap(res.err, "next-up kept"))
		return
	}

	s := e.sess
	e.decks.Attach(s.active.Other(), res.media)
	next := res.next
	s.next = &next
	zlog.Info().Msgf("engine: next up replaced: energy=%.2f next=%s", e.energy, s.next)
	e.emit(Event{Type: EventNextUpChanged, Track: s.next, Reason: "target_energy"})
}

func (e *Engine) onMixTimer(seq uint64) {
	if !e.mixTimer.current(seq) {
		return
	}
	e.mixTimer.fired()
	if err := e.requestTransition("interval"); err != nil {
		zlog.Warn().Msgf("engine: scheduled transition failed: error=%v", err)
	}
}

func (e *Engine) onEnded(ch deck.Channel) {
	if e.state != StateRunning || e.sess == nil || ch != e.sess.active {
		zlog.Debug().Msgf("engine: end of media ignored: channel=%s state=%s", ch, e.state)
		return
	}
	if err := e.requestTransition("track_end"); err != nil {
		zlog.Warn().Msgf("engine: end-of-track transition failed: error=%v", err)
	}
}

func (e *Engine) armMixTimer() {
	e.mixTimer.arm(e.interval, func(seq uint64) {
		e.post(mixTimerFired{seq: seq})
	})
}

func (e *Engine) fail(err error) {
	e.reportError(err)
	e.stopSession("error")
}

// stopSession cancels timers and lookups, rewinds both channels, restores
// the idle gain posture and releases the transition guard.
func (e *Engine) stopSession(reason string) {
	wasActive := e.state.Active() || e.pending != nil
	if e.pending != nil {
		e.pending.reply(ErrStopped)
		e.pending = nil
	}

	e.epoch++
	e.cancelLookup()
	e.mixTimer.stop()
	e.settleTimer.stop()
	e.resetDecks()

	if !wasActive {
		return
	}
	id := ""
	if e.sess != nil {
		id = e.sess.id
	}
	e.sess = nil
	e.state = StateStopped

	zlog.Info().Msgf("engine: session stopped: id=%s reason=%s", id, reason)
	e.emit(Event{Type: EventStopped, Reason: reason})
}

func (e *Engine) resetDecks() {
	for _, ch := range []deck.Channel{deck.A, deck.B} {
		if err := e.decks.Stop(ch); err != nil {
			zlog.Warn().Msgf("engine: failed to rewind channel: channel=%s error=%v", ch, err)
		}
		e.decks.SetPlaybackRate(ch, 1.0)
	}
	e.decks.SetGain(deck.A, 1)
	e.decks.SetGain(deck.B, 0)
	e.decks.Release()
}

func (e *Engine) reportError(err error) {
	msg := errors.FlattenHints(err)
	if msg == "" {
		msg = err.Error()
	}
	e.lastErr = msg
	zlog.Error().Msgf("engine: %v", err)
	e.emit(Event{Type: EventError, Message: msg})
}

func (e *Engine) load(ctx context.Context, t track.Track) (*deck.Media, error) {
	return e.decks.Load(ctx, t.ID, e.streams.StreamURL(t.ID))
}

// newLookup cancels any pending lookup and returns the context for a new one.
func (e *Engine) newLookup() context.Context {
	e.cancelLookup()
	ctx, cancel := context.WithCancel(e.ctx)
	e.lookupCancel = cancel
	return ctx
}

func (e *Engine) cancelLookup() {
	e.lookupSeq++
	e.lookupDone()
}

func (e *Engine) lookupDone() {
	if e.lookupCancel != nil {
		e.lookupCancel()
		e.lookupCancel = nil
	}
}

func (e *Engine) emit(ev Event) {
	ev.Track = copyTrack(ev.Track)
	ev.Status = e.snapshot()
	select {
	case e.events <- ev:
	default:
		zlog.Warn().Msgf("engine: event dropped: type=%s", ev.Type)
	}
}

func (e *Engine) publish() {
	st := e.snapshot()
	e.status.Store(&st)
}

func (e *Engine) snapshot() Status {
	st := Status{
		State:        e.state,
		MixInterval:  e.interval,
		FadeDuration: e.fade,
		TargetEnergy: e.energy,
		LastError:    e.lastErr,
	}

	var src source.Source
	switch {
	case e.sess != nil:
		s := e.sess
		src = s.src
		st.SessionID = s.id
		st.ActiveChannel = s.active
		st.Transitions = s.transitions
		st.NowPlaying = copyTrack(s.now)
		st.NextUp = copyTrack(s.next)
	case e.pending != nil:
		src = e.pending.src
		st.SessionID = e.pending.id
	}
	if src != nil {
		st.Source = src.Name()
		if h, ok := src.(source.Historian); ok {
			st.History = h.History()
		}
	}
	return st
}

func copyTrack(t *track.Track) *track.Track {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func releaseMedia(ev any) {
	switch ev := ev.(type) {
	case primed:
		ev.now.Close()
		ev.next.Close()
	case advanced:
		ev.media.Close()
	case retargeted:
		ev.media.Close()
	}
}

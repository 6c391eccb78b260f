package engine

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/osa030/autodj/internal/app/deck"
	"github.com/osa030/autodj/internal/app/source"
	"github.com/osa030/autodj/internal/domain/track"
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		t.stopped = true
	}
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// Pending returns the delays of the timers still armed.
func (c *fakeClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.at-c.now)
		}
	}
	return out
}

type crossfade struct {
	from, to  deck.Channel
	d         time.Duration
	fromGain  float64
	toGain    float64
	toPlaying bool
}

// fakeDecks records what the engine asks of the audio side.
type fakeDecks struct {
	mu         sync.Mutex
	bound      [2]int64
	playing    [2]bool
	gain       [2]float64
	rate       [2]float64
	crossfades []crossfade
	loaded     []int64
	released   int
	playErr    map[deck.Channel]error
	loadErr    map[int64]error
	ended      chan deck.Channel
}

func newFakeDecks() *fakeDecks {
	return &fakeDecks{
		gain:    [2]float64{1, 0},
		rate:    [2]float64{1, 1},
		playErr: make(map[deck.Channel]error),
		loadErr: make(map[int64]error),
		ended:   make(chan deck.Channel, 4),
	}
}

func (d *fakeDecks) Load(ctx context.Context, trackID int64, _ string) (*deck.Media, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.loadErr[trackID]; err != nil {
		return nil, err
	}
	d.loaded = append(d.loaded, trackID)
	return &deck.Media{TrackID: trackID}, nil
}

func (d *fakeDecks) Attach(ch deck.Channel, m *deck.Media) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bound[ch] = m.TrackID
	d.playing[ch] = false
	d.rate[ch] = 1
}

func (d *fakeDecks) Play(ch deck.Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.playErr[ch]; err != nil {
		return err
	}
	d.playing[ch] = true
	return nil
}

func (d *fakeDecks) Stop(ch deck.Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing[ch] = false
	return nil
}

func (d *fakeDecks) Paused(ch deck.Channel) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.playing[ch]
}

func (d *fakeDecks) SetGain(ch deck.Channel, v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gain[ch] = v
}

func (d *fakeDecks) Crossfade(from, to deck.Channel, dur time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.crossfades = append(d.crossfades, crossfade{
		from: from, to: to, d: dur,
		fromGain: d.gain[from], toGain: d.gain[to], toPlaying: d.playing[to],
	})
	d.gain[from] = 0
	d.gain[to] = 1
}

func (d *fakeDecks) SetPlaybackRate(ch deck.Channel, rate float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rate[ch] = rate
}

func (d *fakeDecks) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bound = [2]int64{}
	d.released++
}

func (d *fakeDecks) Ended() <-chan deck.Channel {
	return d.ended
}

func (d *fakeDecks) snapshot() fakeDecks {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fakeDecks{
		bound:      d.bound,
		playing:    d.playing,
		gain:       d.gain,
		rate:       d.rate,
		crossfades: append([]crossfade(nil), d.crossfades...),
		loaded:     append([]int64(nil), d.loaded...),
		released:   d.released,
	}
}

func (d *fakeDecks) setPlayErr(ch deck.Channel, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playErr[ch] = err
}

type fakeStreams struct{}

func (fakeStreams) StreamURL(id int64) string {
	return "http://catalog/tracks/" + strconv.FormatInt(id, 10) + "/stream"
}

type fakeCatalog struct {
	tracks []track.Track
}

func (c *fakeCatalog) ListTracks(context.Context, bool) ([]track.Track, error) {
	return c.tracks, nil
}

// fakeRecommender hands out increasing ids and can be switched to fail or
// block.
type fakeRecommender struct {
	mu     sync.Mutex
	nextID int64
	err    error
	gate   chan struct{}
	calls  int
}

func (r *fakeRecommender) Next(ctx context.Context, _ *int64, energy float64, history []int64) (track.Track, error) {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return track.Track{}, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return track.Track{}, r.err
	}
	r.nextID++
	for contains(history, r.nextID) {
		r.nextID++
	}
	return track.Track{ID: r.nextID, Name: "rec", Analyzed: true, BPM: 120, Energy: energy}, nil
}

func (r *fakeRecommender) set(err error, gate chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.gate = gate
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func playlistTracks() []track.Track {
	return []track.Track{
		{ID: 3, Name: "c", Analyzed: true, BPM: 128, Energy: 0.7},
		{ID: 1, Name: "a", Analyzed: true, BPM: 120, Energy: 0.5},
		{ID: 2, Name: "b", Analyzed: true, BPM: 100, Energy: 0.6},
		{ID: 4, Name: "pending"},
	}
}

func playlistFactory(tracks []track.Track) source.Factory {
	return func() (source.Source, error) {
		return source.NewPlaylistSource(&fakeCatalog{tracks: tracks}, nil), nil
	}
}

func recommenderFactory(rec *fakeRecommender) source.Factory {
	return func() (source.Source, error) {
		return source.NewRecommenderSource(rec, nil, nil)
	}
}

type harness struct {
	engine *Engine
	decks  *fakeDecks
	clock  *fakeClock
}

func newHarness(t *testing.T, factory source.Factory) *harness {
	t.Helper()
	h := &harness{decks: newFakeDecks(), clock: &fakeClock{}}
	h.engine = New(Config{}, h.decks, fakeStreams{}, factory, h.clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.engine.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// sendEnded signals end of media on ch and returns once the run loop has
// handled it.
func (h *harness) sendEnded(t *testing.T, ch deck.Channel) {
	t.Helper()
	h.decks.ended <- ch
	require.Eventually(t, func() bool { return len(h.decks.ended) == 0 }, 2*time.Second, time.Millisecond)
	// commands are handled one at a time, so this returns after the signal
	require.NoError(t, h.engine.SetFadeDuration(context.Background(), h.engine.Status().FadeDuration))
}

func (h *harness) waitFor(t *testing.T, cond func(Status) bool) Status {
	t.Helper()
	var st Status
	require.Eventually(t, func() bool {
		st = h.engine.Status()
		return cond(st)
	}, 2*time.Second, 2*time.Millisecond)
	return st
}

func (h *harness) waitState(t *testing.T, state State) Status {
	t.Helper()
	return h.waitFor(t, func(s Status) bool { return s.State == state })
}

// completeTransition fires the interval timer and the settle timer and waits
// for the session to return to running.
func (h *harness) completeTransition(t *testing.T, transitions int) Status {
	t.Helper()
	h.clock.Advance(DefaultMixInterval)
	h.waitState(t, StateTransitioning)
	h.clock.Advance(DefaultFadeDuration + DefaultSettleMargin)
	return h.waitFor(t, func(s Status) bool {
		return s.State == StateRunning && s.Transitions == transitions
	})
}

func drainEvents(e *Engine) []EventType {
	var types []EventType
	for {
		select {
		case ev := <-e.Events():
			types = append(types, ev.Type)
		default:
			return types
		}
	}
}

var errRejected = errors.Wrap(deck.ErrPlaybackRejected, "autoplay blocked")

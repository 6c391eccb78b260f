// Package deck provides the two-channel audio deck the crossfade engine drives.
package deck

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	zlog "github.com/rs/zerolog/log"
)

var (
	// ErrPlaybackRejected is returned when a channel cannot start playing.
	ErrPlaybackRejected = errors.New("playback rejected")
	// ErrStaleReference is returned when the catalog no longer serves a track.
	// It is also an ErrPlaybackRejected.
	ErrStaleReference = errors.Mark(errors.New("catalog reference stale"), ErrPlaybackRejected)
)

// Config represents deck configuration.
type Config struct {
	SampleRate      int
	FrameDuration   time.Duration
	ResampleQuality int
	MasterGain      float64
}

// Pair owns the two playback channels and renders their mix. Gain automation
// runs inside the render path, one step per output sample.
type Pair struct {
	mu       sync.Mutex
	channels [2]*channel
	mixer    *beep.Mixer
	master   *effects.Gain
	opener   Opener

	sampleRate beep.SampleRate
	frameSize  int
	frameDur   time.Duration
	running    bool
	buf        [][2]float64

	ended chan Channel
}

// NewPair creates a deck pair in the idle posture: A at full gain, B silent.
func NewPair(cfg Config, opener Opener) *Pair {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 20 * time.Millisecond
	}
	if cfg.ResampleQuality <= 0 {
		cfg.ResampleQuality = 4
	}
	if cfg.MasterGain <= 0 {
		cfg.MasterGain = 1.0
	}

	sr := beep.SampleRate(cfg.SampleRate)
	p := &Pair{
		opener:     opener,
		sampleRate: sr,
		frameDur:   cfg.FrameDuration,
		frameSize:  sr.N(cfg.FrameDuration),
		ended:      make(chan Channel, 4),
	}
	p.channels[A] = newChannel(A, 1, cfg.ResampleQuality, sr, p.signalEnd)
	p.channels[B] = newChannel(B, 0, cfg.ResampleQuality, sr, p.signalEnd)
	p.buf = make([][2]float64, p.frameSize)

	p.mixer = &beep.Mixer{}
	p.mixer.Add(p.channels[A], p.channels[B])
	p.master = &effects.Gain{Streamer: p.mixer, Gain: cfg.MasterGain - 1}
	return p
}

// SampleRate returns the output sample rate.
func (p *Pair) SampleRate() int {
	return int(p.sampleRate)
}

// Media is a decoded track ready to be attached to a channel.
type Media struct {
	TrackID int64
	src     beep.StreamSeekCloser
	format  beep.Format
}

// Close releases media that was never attached.
func (m *Media) Close() {
	if m != nil && m.src != nil {
		m.src.Close()
	}
}

// Load fetches and decodes a track without touching any channel.
func (p *Pair) Load(ctx context.Context, trackID int64, streamURL string) (*Media, error) {
	src, format, err := p.opener.Open(ctx, streamURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load track %d", trackID)
	}
	if err := ctx.Err(); err != nil {
		src.Close()
		return nil, err
	}
	return &Media{TrackID: trackID, src: src, format: format}, nil
}

// Attach binds loaded media to a channel, paused at the beginning with a
// neutral playback rate. Any track previously bound is released.
func (p *Pair) Attach(ch Channel, m *Media) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[ch].load(m.TrackID, m.src, m.format)
	zlog.Debug().Msgf("deck: bound: channel=%s track_id=%d sample_rate=%d", ch, m.TrackID, m.format.SampleRate)
}

// Bind loads a track and attaches it to a channel.
func (p *Pair) Bind(ctx context.Context, ch Channel, trackID int64, streamURL string) error {
	m, err := p.Load(ctx, trackID, streamURL)
	if err != nil {
		return errors.Wrapf(err, "failed to bind channel %s", ch)
	}
	p.Attach(ch, m)
	return nil
}

// Play starts or resumes a channel.
func (p *Pair) Play(ch Channel) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return errors.Wrap(ErrPlaybackRejected, "audio output is not running")
	}
	c := p.channels[ch]
	if c.src == nil {
		return errors.Wrapf(ErrPlaybackRejected, "channel %s has no track", ch)
	}
	c.playing = true
	return nil
}

// Stop pauses a channel and rewinds it to the beginning.
func (p *Pair) Stop(ch Channel) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channels[ch].rewind(); err != nil {
		return errors.Wrapf(err, "failed to rewind channel %s", ch)
	}
	return nil
}

// Paused reports whether a channel is not currently playing.
func (p *Pair) Paused(ch Channel) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.channels[ch].playing
}

// TrackID returns the id of the track bound to a channel, 0 if none.
func (p *Pair) TrackID(ch Channel) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[ch].trackID
}

// Gain returns the current gain of a channel.
func (p *Pair) Gain(ch Channel) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[ch].gain
}

// SetGain cancels any pending automation and sets the gain immediately.
func (p *Pair) SetGain(ch Channel, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[ch].setGain(clamp01(value))
}

// RampGain cancels any pending automation and ramps linearly from the current
// gain to value over d.
func (p *Pair) RampGain(ch Channel, value float64, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[ch].rampTo(clamp01(value), d)
}

// Crossfade ramps channel from down to 0 and channel to up to 1 over d. Both ramps start at the same
// output sample, so gains that sum to 1 keep doing so.
func (p *Pair) Crossfade(from, to Channel, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[from].rampTo(0, d)
	p.channels[to].rampTo(1, d)
}

// SetPlaybackRate changes the speed of a channel immediately.
func (p *Pair) SetPlaybackRate(ch Channel, rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[ch].setRate(rate)
}

// PlaybackRate returns the playback rate of a channel.
func (p *Pair) PlaybackRate(ch Channel) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[ch].rate
}

// Ended delivers the channel whose track reached its end.
func (p *Pair) Ended() <-chan Channel {
	return p.ended
}

// Release unbinds both channels.
func (p *Pair) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[A].unload()
	p.channels[B].unload()
}

// Render mixes the next len(samples) output samples.
func (p *Pair) Render(samples [][2]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, _ := p.master.Stream(samples)
	for i := n; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}
}

// Run renders one frame per tick until ctx is done, sending interleaved
// 16-bit stereo PCM to out. Frames are dropped when out is full.
// Playback is rejected while Run is not active.
func (p *Pair) Run(ctx context.Context, out chan<- []int16) {
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()
	zlog.Info().Msgf("deck: render loop started: sample_rate=%d frame=%v", p.sampleRate, p.frameDur)

	defer func() {
		p.mu.Lock()
		p.running = false
		p.channels[A].playing = false
		p.channels[B].playing = false
		p.mu.Unlock()
		zlog.Info().Msg("deck: render loop stopped")
	}()

	ticker := time.NewTicker(p.frameDur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p.Render(p.buf)
		if out == nil {
			continue
		}
		frame := toPCM16(p.buf)
		select {
		case out <- frame:
		default:
		}
	}
}

func (p *Pair) signalEnd(ch Channel) {
	select {
	case p.ended <- ch:
	default:
		zlog.Warn().Msgf("deck: end signal dropped: channel=%s", ch)
	}
}

func toPCM16(samples [][2]float64) []int16 {
	pcm := make([]int16, len(samples)*2)
	for i, s := range samples {
		pcm[2*i] = int16(clamp(s[0], -1, 1) * 32767)
		pcm[2*i+1] = int16(clamp(s[1], -1, 1) * 32767)
	}
	return pcm
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

package deck

import (
	"time"

	"github.com/gopxl/beep/v2"
)

// Channel identifies one of the two playback channels.
type Channel int

const (
	A Channel = iota
	B
)

// Other returns the opposite channel.
func (c Channel) Other() Channel {
	if c == A {
		return B
	}
	return A
}

func (c Channel) String() string {
	if c == A {
		return "A"
	}
	return "B"
}

// ramp is a linear gain automation measured in output samples.
type ramp struct {
	from, to float64
	pos      int
	total    int
}

// channel is the streamer mixed for one deck. It never drains: an unbound,
// paused or finished channel renders silence so the mixer keeps it.
type channel struct {
	id        Channel
	trackID   int64
	src       beep.StreamSeekCloser
	format    beep.Format
	resampler *beep.Resampler
	quality   int
	outRate   beep.SampleRate

	rate    float64
	playing bool
	gain    float64
	ramp    *ramp
	onEnd   func(Channel)
}

func newChannel(id Channel, gain float64, quality int, outRate beep.SampleRate, onEnd func(Channel)) *channel {
	return &channel{
		id:      id,
		rate:    1.0,
		gain:    gain,
		quality: quality,
		outRate: outRate,
		onEnd:   onEnd,
	}
}

// load replaces the bound source. The channel ends up paused at position 0
// with a neutral playback rate.
func (c *channel) load(trackID int64, src beep.StreamSeekCloser, format beep.Format) {
	c.unload()
	c.trackID = trackID
	c.src = src
	c.format = format
	c.rate = 1.0
	c.playing = false
	c.rebuild()
}

func (c *channel) unload() {
	if c.src != nil {
		c.src.Close()
	}
	c.src = nil
	c.resampler = nil
	c.trackID = 0
	c.playing = false
}

// rebuild recreates the resampler so no buffered samples survive a seek.
func (c *channel) rebuild() {
	if c.src == nil {
		c.resampler = nil
		return
	}
	c.resampler = beep.ResampleRatio(c.quality, c.baseRatio()*c.rate, c.src)
}

func (c *channel) baseRatio() float64 {
	return float64(c.format.SampleRate) / float64(c.outRate)
}

func (c *channel) rewind() error {
	c.playing = false
	if c.src == nil {
		return nil
	}
	if err := c.src.Seek(0); err != nil {
		return err
	}
	c.rebuild()
	return nil
}

func (c *channel) setRate(rate float64) {
	c.rate = rate
	if c.resampler != nil {
		c.resampler.SetRatio(c.baseRatio() * rate)
	}
}

func (c *channel) setGain(v float64) {
	c.ramp = nil
	c.gain = v
}

func (c *channel) rampTo(v float64, d time.Duration) {
	n := c.outRate.N(d)
	if n <= 0 {
		c.setGain(v)
		return
	}
	c.ramp = &ramp{from: c.gain, to: v, total: n}
}

// step advances gain automation by one sample and returns the gain to apply.
func (c *channel) step() float64 {
	r := c.ramp
	if r == nil {
		return c.gain
	}
	r.pos++
	if r.pos >= r.total {
		c.gain = r.to
		c.ramp = nil
		return c.gain
	}
	c.gain = r.from + (r.to-r.from)*float64(r.pos)/float64(r.total)
	return c.gain
}

func (c *channel) Stream(samples [][2]float64) (int, bool) {
	n := 0
	if c.playing && c.resampler != nil {
		var ok bool
		n, ok = c.resampler.Stream(samples)
		if !ok || n < len(samples) {
			c.playing = false
			if c.onEnd != nil {
				c.onEnd(c.id)
			}
		}
	}
	for i := range samples {
		g := c.step()
		if i < n {
			samples[i][0] *= g
			samples[i][1] *= g
		} else {
			samples[i] = [2]float64{}
		}
	}
	return len(samples), true
}

func (c *channel) Err() error {
	if c.resampler != nil {
		return c.resampler.Err()
	}
	return nil
}

package engine

import (
	"context"
	"time"
)

// Clock schedules one-shot callbacks.
type Clock interface {
	// AfterFunc calls f once d has elapsed and returns a cancel function.
	AfterFunc(d time.Duration, f func()) (cancel func())
}

// WallClock fires timers by polling the wall clock, so a suspended host does
// not stretch the interval.
type WallClock struct {
	Resolution time.Duration
}

// AfterFunc implements Clock.
func (c WallClock) AfterFunc(d time.Duration, f func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	resolution := c.Resolution
	if resolution <= 0 {
		resolution = 100 * time.Millisecond
	}

	go func() {
		endTime := toWallTime(time.Now()).Add(d)
		ticker := time.NewTicker(resolution)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !toWallTime(time.Now()).Before(endTime) {
					f()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with the monotonic clock reading stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}

// timer is a cancellable one-shot timer whose firings carry a sequence
// number, so a firing that raced with its cancellation can be recognized.
type timer struct {
	clock  Clock
	seq    uint64
	cancel func()
}

// arm cancels any pending firing and schedules fire(seq) after d.
func (t *timer) arm(d time.Duration, fire func(seq uint64)) {
	t.stop()
	t.seq++
	seq := t.seq
	t.cancel = t.clock.AfterFunc(d, func() { fire(seq) })
}

// stop cancels the pending firing, if any.
func (t *timer) stop() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.seq++
}

// current reports whether seq belongs to the pending firing.
func (t *timer) current(seq uint64) bool {
	return t.cancel != nil && seq == t.seq
}

// fired clears the pending firing after it was handled.
func (t *timer) fired() {
	t.cancel = nil
}

// Package playlist provides the frozen Playlist domain entity.
package playlist

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/osa030/autodj/internal/domain/track"
)

// MinTracks is the smallest playlist that can keep two channels bound.
const MinTracks = 2

// ErrTooFewTracks is returned by Freeze when fewer than MinTracks qualify.
var ErrTooFewTracks = errors.New("playlist needs at least 2 eligible tracks")

// Playlist is an immutable, ascending-id snapshot of eligible tracks with a
// cyclic cursor. Catalog changes made after Freeze have no effect on it.
type Playlist struct {
	tracks []track.Track
	index  int
}

// Freeze builds a playlist from a catalog snapshot. Only eligible tracks are
// kept; the result is sorted ascending by ID.
func Freeze(snapshot []track.Track) (*Playlist, error) {
	tracks := make([]track.Track, 0, len(snapshot))
	for _, t := range snapshot {
		if t.Eligible() {
			tracks = append(tracks, t)
		}
	}
	return FromEligible(tracks)
}

// FromEligible builds a playlist from already filtered tracks, sorting them by ID.
// The slice is copied.
func FromEligible(eligible []track.Track) (*Playlist, error) {
	if len(eligible) < MinTracks {
		return nil, errors.Wrapf(ErrTooFewTracks, "got %d", len(eligible))
	}

	tracks := make([]track.Track, len(eligible))
	copy(tracks, eligible)
	sort.SliceStable(tracks, func(i, j int) bool {
		return tracks[i].ID < tracks[j].ID
	})

	return &Playlist{tracks: tracks}, nil
}

// Current returns the track at the cursor.
func (p *Playlist) Current() track.Track {
	return p.tracks[p.index]
}

// PeekNext returns the track after the cursor, wrapping around.
func (p *Playlist) PeekNext() track.Track {
	return p.tracks[(p.index+1)%len(p.tracks)]
}

// Advance moves the cursor forward by one, wrapping around.
func (p *Playlist) Advance() {
	p.index = (p.index + 1) % len(p.tracks)
}

// Index returns the cursor position.
func (p *Playlist) Index() int {
	return p.index
}

// Len returns the number of tracks in the playlist.
func (p *Playlist) Len() int {
	return len(p.tracks)
}

// TrackIDs returns all track IDs in playlist order.
func (p *Playlist) TrackIDs() []int64 {
	return track.IDs(p.tracks)
}

// TotalDuration returns the total analyzed duration in seconds.
func (p *Playlist) TotalDuration() int64 {
	var total int64
	for _, t := range p.tracks {
		total += int64(t.Duration.Seconds())
	}
	return total
}

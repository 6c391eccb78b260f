package playlist

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/autodj/internal/domain/track"
)

func eligible(ids ...int64) []track.Track {
	tracks := make([]track.Track, len(ids))
	for i, id := range ids {
		tracks[i] = track.Track{ID: id, Analyzed: true}
	}
	return tracks
}

func TestFreeze_FiltersAndSorts(t *testing.T) {
	snapshot := []track.Track{
		{ID: 9, Analyzed: true},
		{ID: 2, Analyzed: true},
		{ID: 5, Analyzed: false},
		{ID: 7, Analyzed: true, Deleted: true},
		{ID: 4, Analyzed: true},
	}

	p, err := Freeze(snapshot)
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 4, 9}, p.TrackIDs())
	assert.Equal(t, int64(2), p.Current().ID)
	assert.Equal(t, int64(4), p.PeekNext().ID)
}

func TestFreeze_TooFewTracks(t *testing.T) {
	tests := []struct {
		name     string
		snapshot []track.Track
	}{
		{name: "empty catalog", snapshot: nil},
		{name: "one eligible", snapshot: eligible(1)},
		{name: "two tracks but one deleted", snapshot: []track.Track{
			{ID: 1, Analyzed: true},
			{ID: 2, Analyzed: true, Deleted: true},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Freeze(tt.snapshot)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, ErrTooFewTracks))
		})
	}
}

func TestPlaylist_CyclicAdvance(t *testing.T) {
	p, err := Freeze(eligible(30, 10, 20))
	require.NoError(t, err)

	first := p.Current()
	visited := []int64{first.ID}
	for i := 0; i < p.Len(); i++ {
		p.Advance()
		visited = append(visited, p.Current().ID)
	}

	// strictly ascending, wrapping once
	assert.Equal(t, []int64{10, 20, 30, 10}, visited)
	assert.Equal(t, first, p.Current())
	assert.Equal(t, 0, p.Index())
}

func TestPlaylist_PeekNextWraps(t *testing.T) {
	p, err := Freeze(eligible(1, 2))
	require.NoError(t, err)

	p.Advance()
	assert.Equal(t, int64(2), p.Current().ID)
	assert.Equal(t, int64(1), p.PeekNext().ID)
}

func TestPlaylist_SnapshotIsImmutable(t *testing.T) {
	snapshot := eligible(1, 2, 3)
	p, err := Freeze(snapshot)
	require.NoError(t, err)

	// mutating the catalog snapshot afterwards has no effect
	snapshot[0].Deleted = true
	snapshot[1].ID = 99

	assert.Equal(t, []int64{1, 2, 3}, p.TrackIDs())
	assert.False(t, p.Current().Deleted)
}

func TestPlaylist_TotalDuration(t *testing.T) {
	tracks := eligible(1, 2)
	tracks[0].Duration = 2 * time.Minute
	tracks[1].Duration = 3*time.Minute + 30*time.Second

	p, err := Freeze(tracks)
	require.NoError(t, err)
	assert.Equal(t, int64(330), p.TotalDuration())
}

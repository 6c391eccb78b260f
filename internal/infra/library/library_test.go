package library

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/autodj/internal/domain/track"
)

const schema = `CREATE TABLE tracks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	original_name TEXT NOT NULL,
	mime TEXT,
	duration REAL,
	bpm REAL,
	energy REAL,
	analyzed INTEGER DEFAULT 0,
	deleted INTEGER DEFAULT 0
)`

type row struct {
	bpm, energy, duration any
	analyzed, deleted     int
}

func newTestLibrary(t *testing.T, rows []row) *Library {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "app.db")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)
	for i, r := range rows {
		_, err = db.Exec(
			`INSERT INTO tracks (filename, original_name, mime, duration, bpm, energy, analyzed, deleted) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			"f"+string(rune('a'+i))+".mp3", "Track "+string(rune('A'+i)), "audio/mpeg",
			r.duration, r.bpm, r.energy, r.analyzed, r.deleted,
		)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	lib, err := Open(Config{DBPath: dbPath, AudioDir: filepath.Join(dir, "audio")})
	require.NoError(t, err)
	t.Cleanup(func() { lib.Close() })
	return lib
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestLibrary_ListTracks(t *testing.T) {
	lib := newTestLibrary(t, []row{
		{bpm: 120.0, energy: 0.5, duration: 180.0, analyzed: 1},
		{bpm: nil, energy: nil, duration: nil, analyzed: 0},
		{bpm: 128.0, energy: 0.7, duration: 200.0, analyzed: 1, deleted: 1},
	})
	ctx := context.Background()

	active, err := lib.ListTracks(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, []int64{2, 1}, track.IDs(active))

	assert.False(t, active[0].Analyzed)
	assert.Zero(t, active[0].BPM)
	assert.Equal(t, "Track A", active[1].Name)
	assert.Equal(t, "fa.mp3", active[1].Filename)
	assert.Equal(t, 3*time.Minute, active[1].Duration)
	assert.True(t, active[1].Eligible())

	all, err := lib.ListTracks(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Deleted)
}

func TestLibrary_StreamURL(t *testing.T) {
	lib := newTestLibrary(t, []row{{bpm: 120.0, energy: 0.5, duration: 180.0, analyzed: 1}})

	u := lib.StreamURL(1)
	assert.True(t, strings.HasPrefix(u, "file://"))
	assert.True(t, strings.HasSuffix(u, "/audio/fa.mp3"))

	missing := lib.StreamURL(42)
	assert.True(t, strings.HasSuffix(missing, "/audio/missing"))
}

func TestRank(t *testing.T) {
	current := track.Track{ID: 1, BPM: 120, Energy: 0.6}
	candidates := []track.Track{
		{ID: 1, BPM: 120, Energy: 0.65},
		{ID: 2, BPM: 121, Energy: 0.65, Duration: 4 * time.Minute},
		{ID: 3, BPM: 170, Energy: 0.65, Duration: 4 * time.Minute},
		{ID: 4, BPM: 121, Energy: 0.05, Duration: 4 * time.Minute},
		{ID: 5, BPM: 121, Energy: 0.65, Duration: 4 * time.Minute},
	}
	currentID := int64(1)

	ranked := Rank(candidates, &current, &currentID, 0.65, []int64{5}, nil)
	require.Len(t, ranked, 3)
	assert.Equal(t, []int64{2, 4, 3}, []int64{ranked[0].Track.ID, ranked[1].Track.ID, ranked[2].Track.ID})

	// energy 2.0 + bpm 2*exp(-(1/6)^2) + duration 0.2
	assert.InDelta(t, 2.0+1.9452+0.2, ranked[0].Score, 0.001)
}

func TestRank_WithoutCurrent(t *testing.T) {
	candidates := []track.Track{
		{ID: 1, BPM: 0, Energy: 0.2},
		{ID: 2, BPM: 90, Energy: 0.9},
	}
	ranked := Rank(candidates, nil, nil, 1.0, nil, nil)
	require.Len(t, ranked, 2)
	assert.Equal(t, int64(2), ranked[0].Track.ID)
	assert.InDelta(t, 1.8, ranked[0].Score, 0.0001)
}

func TestRecommender_Next(t *testing.T) {
	lib := newTestLibrary(t, []row{
		{bpm: 120.0, energy: 0.5, duration: 180.0, analyzed: 1},
		{bpm: 122.0, energy: 0.6, duration: 200.0, analyzed: 1},
		{bpm: 124.0, energy: 0.7, duration: 210.0, analyzed: 1, deleted: 1},
		{bpm: nil, energy: nil, duration: nil, analyzed: 0},
	})
	rec := NewRecommender(lib)
	ctx := context.Background()

	t.Run("excludes current and history", func(t *testing.T) {
		current := int64(1)
		for i := 0; i < 10; i++ {
			got, err := rec.Next(ctx, &current, 0.65, nil)
			require.NoError(t, err)
			assert.Equal(t, int64(2), got.ID)
		}
	})

	t.Run("seed call picks an eligible track", func(t *testing.T) {
		got, err := rec.Next(ctx, nil, 0.65, nil)
		require.NoError(t, err)
		assert.Contains(t, []int64{1, 2}, got.ID)
	})

	t.Run("nothing left", func(t *testing.T) {
		current := int64(1)
		_, err := rec.Next(ctx, &current, 0.65, []int64{2})
		assert.ErrorIs(t, err, ErrNoCandidates)
	})

	t.Run("unknown current id", func(t *testing.T) {
		current := int64(99)
		got, err := rec.Next(ctx, &current, 0.65, []int64{1})
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.ID)
	})
}

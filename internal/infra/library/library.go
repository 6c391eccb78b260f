// Package library reads the catalog's SQLite database directly, for hosts that
// run the engine next to the catalog's data directory.
package library

import (
	"context"
	"database/sql"
	"net/url"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/osa030/autodj/internal/domain/track"
)

// Library is a read-only view of the catalog's tracks table.
type Library struct {
	db       *sql.DB
	audioDir string
}

// Config represents library configuration.
type Config struct {
	DBPath   string // e.g. data/app.db
	AudioDir string // e.g. data/audio
}

// Open opens the catalog database.
func Open(cfg Config) (*Library, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("library database path is required")
	}

	audioDir, err := filepath.Abs(cfg.AudioDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve audio directory")
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	zlog.Info().Msgf("library: opened catalog database: path=%s audio_dir=%s", cfg.DBPath, audioDir)
	return &Library{db: db, audioDir: audioDir}, nil
}

// Close closes the database.
func (l *Library) Close() error {
	return l.db.Close()
}

const selectTracks = `SELECT id, filename, original_name, mime, duration, bpm, energy, analyzed, deleted FROM tracks`

// ListTracks returns tracks newest first, like the catalog service does.
func (l *Library) ListTracks(ctx context.Context, includeDeleted bool) ([]track.Track, error) {
	query := selectTracks
	if !includeDeleted {
		query += ` WHERE COALESCE(deleted, 0) = 0`
	}
	query += ` ORDER BY id DESC`

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tracks")
	}
	defer rows.Close()

	tracks := make([]track.Track, 0)
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read tracks")
	}
	return tracks, nil
}

// StreamURL returns a file URI for the stored audio of a track.
// Tracks unknown to the database resolve to a path that cannot be opened.
func (l *Library) StreamURL(trackID int64) string {
	var filename string
	err := l.db.QueryRow(`SELECT filename FROM tracks WHERE id = ?`, trackID).Scan(&filename)
	if err != nil {
		zlog.Warn().Msgf("library: stream lookup failed: track_id=%d error=%v", trackID, err)
		filename = "missing"
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(l.audioDir, filename))}
	return u.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(s scanner) (track.Track, error) {
	var (
		t                     track.Track
		mime                  sql.NullString
		duration, bpm, energy sql.NullFloat64
		analyzed, deleted     sql.NullInt64
	)
	if err := s.Scan(&t.ID, &t.Filename, &t.Name, &mime, &duration, &bpm, &energy, &analyzed, &deleted); err != nil {
		return track.Track{}, errors.Wrap(err, "failed to scan track")
	}
	t.Mime = mime.String
	t.Duration = time.Duration(duration.Float64 * float64(time.Second))
	t.BPM = bpm.Float64
	t.Energy = energy.Float64
	t.Analyzed = analyzed.Int64 != 0
	t.Deleted = deleted.Int64 != 0
	return t, nil
}

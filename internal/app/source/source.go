// Package source provides the track-selection policies a session draws from.
package source

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/autodj/internal/domain/track"
)

var (
	// ErrInsufficientCatalog is returned when fewer than two eligible tracks exist.
	ErrInsufficientCatalog = errors.New("insufficient catalog")
	// ErrRecommenderUnavailable is returned when the recommender cannot supply a track.
	ErrRecommenderUnavailable = errors.New("recommender unavailable")
)

// Pair is the first now-playing/next-up pair of a session.
type Pair struct {
	Now  track.Track
	Next track.Track
}

// Source is a track-selection policy. A Source is created per session and
// discarded on stop.
type Source interface {
	// Name returns the source name (used in config).
	Name() string
	// Prime selects the first two tracks of the session.
	Prime(ctx context.Context, targetEnergy float64) (Pair, error)
	// Advance is called once per completed transition with the track that was
	// just superseded, and returns the new next-up track.
	Advance(ctx context.Context, superseded track.Track, targetEnergy float64) (track.Track, error)
}

// Retargeter is implemented by sources whose next-up depends on the target
// energy, so a new target can replace the pending next-up.
type Retargeter interface {
	Retarget(ctx context.Context, nowPlaying track.Track, targetEnergy float64) (track.Track, error)
}

// Historian is implemented by sources that keep a per-session history.
type Historian interface {
	History() []int64
}

// Catalog lists the tracks of the catalog.
type Catalog interface {
	ListTracks(ctx context.Context, includeDeleted bool) ([]track.Track, error)
}

// Recommender returns the next track given the session state.
type Recommender interface {
	Next(ctx context.Context, currentID *int64, targetEnergy float64, history []int64) (track.Track, error)
}

// Factory creates a fresh Source for each session.
type Factory func() (Source, error)

func insufficient(err error) error {
	return errors.WithHint(
		errors.Mark(err, ErrInsufficientCatalog),
		"at least 2 analyzed tracks are required to start a set",
	)
}

func unavailable(err error) error {
	return errors.WithHint(
		errors.Mark(err, ErrRecommenderUnavailable),
		"the recommendation service did not return a track",
	)
}

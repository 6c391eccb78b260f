package source

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/autodj/internal/app/filter"
	"github.com/osa030/autodj/internal/domain/playlist"
	"github.com/osa030/autodj/internal/domain/track"
)

// PlaylistSource plays a frozen, id-sorted snapshot of the catalog in a loop.
// The snapshot is taken at Prime and never re-evaluated.
type PlaylistSource struct {
	catalog  Catalog
	chain    *filter.Chain
	playlist *playlist.Playlist
}

// NewPlaylistSource creates a new PlaylistSource.
func NewPlaylistSource(catalog Catalog, chain *filter.Chain) *PlaylistSource {
	if chain == nil {
		chain = filter.NewEligibilityChain()
	}
	return &PlaylistSource{catalog: catalog, chain: chain}
}

// Name returns the source name.
func (s *PlaylistSource) Name() string {
	return "playlist"
}

// Prime freezes the playlist and returns its first two tracks.
func (s *PlaylistSource) Prime(ctx context.Context, _ float64) (Pair, error) {
	tracks, err := s.catalog.ListTracks(ctx, false)
	if err != nil {
		return Pair{}, errors.Wrap(err, "failed to list catalog tracks")
	}

	eligible := s.chain.Apply(ctx, tracks)
	pl, err := playlist.FromEligible(eligible)
	if err != nil {
		if errors.Is(err, playlist.ErrTooFewTracks) {
			return Pair{}, insufficient(err)
		}
		return Pair{}, err
	}
	s.playlist = pl

	zlog.Info().Msgf("source: playlist frozen: tracks=%d listed=%d total_sec=%d", pl.Len(), len(tracks), pl.TotalDuration())
	return Pair{Now: pl.Current(), Next: pl.PeekNext()}, nil
}

// Advance moves the playlist forward and returns the track after the new current one.
func (s *PlaylistSource) Advance(_ context.Context, _ track.Track, _ float64) (track.Track, error) {
	if s.playlist == nil {
		return track.Track{}, insufficient(errors.New("playlist not primed"))
	}
	s.playlist.Advance()
	return s.playlist.PeekNext(), nil
}

// Playlist returns the frozen playlist, or nil before Prime.
func (s *PlaylistSource) Playlist() *playlist.Playlist {
	return s.playlist
}

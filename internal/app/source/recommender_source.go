package source

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/autodj/internal/app/filter"
	"github.com/osa030/autodj/internal/domain/track"
)

// RecommenderSourceConfig represents settings of the recommender source.
type RecommenderSourceConfig struct {
	// LookupTimeoutSec bounds a single recommendation request.
	LookupTimeoutSec int `yaml:"lookup_timeout_sec" mapstructure:"lookup_timeout_sec" default:"15" validate:"gte=1,lte=120"`
	// HistoryWindow limits how many recent ids are sent with a request (0 = all).
	HistoryWindow int `yaml:"history_window" mapstructure:"history_window" default:"0" validate:"gte=0"`
}

// RecommenderSource asks a recommendation service for every next-up track,
// passing the session history so recent tracks are avoided.
type RecommenderSource struct {
	recommender Recommender
	chain       *filter.Chain
	config      *RecommenderSourceConfig

	mu      sync.Mutex
	history []int64
	nextUp  int64 // id of the pending next-up, 0 before Prime
}

// NewRecommenderSource creates a new RecommenderSource. Recommended tracks
// rejected by chain make the lookup fail.
func NewRecommenderSource(recommender Recommender, chain *filter.Chain, settings map[string]any) (*RecommenderSource, error) {
	if recommender == nil {
		return nil, errors.New("recommender is required")
	}
	if chain == nil {
		chain = filter.NewEligibilityChain()
	}

	var config RecommenderSourceConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	return &RecommenderSource{
		recommender: recommender,
		chain:       chain,
		config:      &config,
		history:     make([]int64, 0),
	}, nil
}

// Name returns the source name.
func (s *RecommenderSource) Name() string {
	return "recommender"
}

// Prime seeds the session: the first track is requested without a current
// track, the second with the first as current.
func (s *RecommenderSource) Prime(ctx context.Context, targetEnergy float64) (Pair, error) {
	now, err := s.lookup(ctx, nil, targetEnergy)
	if err != nil {
		return Pair{}, err
	}
	s.record(now.ID)

	next, err := s.lookup(ctx, &now.ID, targetEnergy)
	if err != nil {
		return Pair{}, err
	}
	if next.ID == now.ID {
		return Pair{}, insufficient(errors.Newf("recommender returned track %d twice", now.ID))
	}
	s.record(next.ID)
	return Pair{Now: now, Next: next}, nil
}

// Advance requests the next-up track using the superseded track as current.
// The previous next-up is now playing and may not be returned again.
func (s *RecommenderSource) Advance(ctx context.Context, superseded track.Track, targetEnergy float64) (track.Track, error) {
	s.mu.Lock()
	playing := s.nextUp
	s.mu.Unlock()

	t, err := s.lookup(ctx, &superseded.ID, targetEnergy)
	if err != nil {
		return track.Track{}, err
	}
	if playing != 0 && t.ID == playing {
		return track.Track{}, unavailable(errors.Newf("recommended track %d is already playing", t.ID))
	}
	s.record(t.ID)
	return t, nil
}

// Retarget requests a replacement next-up for a new target energy. Receiving
// the pending next-up again leaves the history unchanged.
func (s *RecommenderSource) Retarget(ctx context.Context, nowPlaying track.Track, targetEnergy float64) (track.Track, error) {
	t, err := s.lookup(ctx, &nowPlaying.ID, targetEnergy)
	if err != nil {
		return track.Track{}, err
	}
	if t.ID == nowPlaying.ID {
		return track.Track{}, unavailable(errors.Newf("recommended track %d is already playing", t.ID))
	}

	s.mu.Lock()
	same := t.ID == s.nextUp
	s.mu.Unlock()
	if !same {
		s.record(t.ID)
	}
	return t, nil
}

// History returns a copy of the ids received so far, in order.
func (s *RecommenderSource) History() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

func (s *RecommenderSource) lookup(ctx context.Context, currentID *int64, targetEnergy float64) (track.Track, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.config.LookupTimeoutSec)*time.Second)
	defer cancel()

	t, err := s.recommender.Next(ctx, currentID, targetEnergy, s.window())
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return track.Track{}, err
		}
		return track.Track{}, unavailable(errors.Wrap(err, "recommendation failed"))
	}
	if result := s.chain.Execute(ctx, t); !result.Accepted {
		return track.Track{}, unavailable(errors.Newf("recommended track %d rejected: %s", t.ID, result.Code))
	}
	return t, nil
}

// record appends id to the history and makes it the pending next-up.
func (s *RecommenderSource) record(id int64) {
	s.mu.Lock()
	s.history = append(s.history, id)
	s.nextUp = id
	size := len(s.history)
	s.mu.Unlock()

	zlog.Debug().Msgf("source: recommended track_id=%d history=%d", id, size)
}

// window returns the history ids sent with a request.
func (s *RecommenderSource) window() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.history
	if n := s.config.HistoryWindow; n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return slices.Clone(h)
}

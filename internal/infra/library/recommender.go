package library

import (
	"context"
	"database/sql"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/autodj/internal/domain/track"
)

// ErrNoCandidates is returned when every eligible track is excluded.
var ErrNoCandidates = errors.New("no eligible track outside history")

// topK is the size of the pool the final pick is drawn from.
const topK = 5

// ScoredTrack represents a candidate with its score.
type ScoredTrack struct {
	Track track.Track
	Score float64
}

// Recommender picks the next track from the local database, scoring energy
// closeness, BPM proximity to the current track and a small duration bonus.
type Recommender struct {
	lib *Library

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRecommender creates a recommender over the library.
func NewRecommender(lib *Library) *Recommender {
	seed := uint64(time.Now().UnixNano())
	return &Recommender{
		lib: lib,
		rng: rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

// Next returns a track close to targetEnergy and to the current track's tempo,
// never the current track or one already in history.
func (r *Recommender) Next(ctx context.Context, currentID *int64, targetEnergy float64, history []int64) (track.Track, error) {
	rows, err := r.lib.db.QueryContext(ctx, selectTracks+` WHERE analyzed = 1 AND COALESCE(deleted, 0) = 0`)
	if err != nil {
		return track.Track{}, errors.Wrap(err, "failed to query candidates")
	}
	defer rows.Close()

	var candidates []track.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return track.Track{}, err
		}
		candidates = append(candidates, t)
	}
	if err := rows.Err(); err != nil {
		return track.Track{}, errors.Wrap(err, "failed to read candidates")
	}

	var current *track.Track
	if currentID != nil {
		row := r.lib.db.QueryRowContext(ctx, selectTracks+` WHERE id = ?`, *currentID)
		t, err := scanTrack(row)
		switch {
		case err == nil:
			current = &t
		case errors.Is(err, sql.ErrNoRows):
			// current track purged; score without tempo proximity
		default:
			return track.Track{}, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ranked := Rank(candidates, current, currentID, targetEnergy, history, func() float64 {
		return r.rng.Float64()*0.1 - 0.05
	})
	if len(ranked) == 0 {
		return track.Track{}, ErrNoCandidates
	}

	k := min(topK, len(ranked))
	chosen := ranked[r.rng.IntN(k)]
	zlog.Debug().Msgf("library: recommended track=%s score=%.3f pool=%d", chosen.Track, chosen.Score, k)
	return chosen.Track, nil
}

// Rank scores candidates and returns them best first. The current track and
// anything in history are dropped. jitter adds a small random term per track.
func Rank(candidates []track.Track, current *track.Track, currentID *int64, targetEnergy float64, history []int64, jitter func() float64) []ScoredTrack {
	excluded := make(map[int64]bool, len(history)+1)
	for _, id := range history {
		excluded[id] = true
	}
	if currentID != nil {
		excluded[*currentID] = true
	}

	scored := make([]ScoredTrack, 0, len(candidates))
	for _, t := range candidates {
		if excluded[t.ID] {
			continue
		}

		s := 2.0 * (1.0 - math.Abs(t.Energy-targetEnergy))

		if current != nil && current.BPM > 0 && t.BPM > 0 {
			diff := math.Abs(t.BPM - current.BPM)
			s += 2.0 * math.Exp(-math.Pow(diff/6.0, 2))
		}

		if t.Duration > 0 {
			s += 0.2 * math.Min(t.Duration.Seconds()/240.0, 1.0)
		}

		if jitter != nil {
			s += jitter()
		}
		scored = append(scored, ScoredTrack{Track: t, Score: s})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

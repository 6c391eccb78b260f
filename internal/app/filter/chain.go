package filter

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/autodj/internal/domain/track"
	"github.com/osa030/autodj/internal/infra/config"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// NewEligibilityChain creates a chain holding the filters every session applies:
// the track must be analyzed and must not be in the trash.
func NewEligibilityChain() *Chain {
	c := NewChain()
	c.Add(&AnalyzedFilter{})
	c.Add(&NotDeletedFilter{})
	return c
}

// NewChainFromConfig creates the eligibility chain followed by every enabled
// optional filter, in name order.
func NewChainFromConfig(cfg *config.Config) (*Chain, error) {
	c := NewEligibilityChain()
	if cfg == nil {
		return c, nil
	}

	names := make([]string, 0, len(cfg.Filters))
	for name := range cfg.Filters {
		if cfg.IsFilterEnabled(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if name == "analyzed_filter" || name == "not_deleted_filter" {
			continue
		}
		factory, ok := registry[name]
		if !ok {
			return nil, errors.Newf("unknown filter: %s", name)
		}
		f := factory()
		if err := f.ValidateConfig(cfg.FilterSettings(name)); err != nil {
			return nil, errors.Wrapf(err, "filter %s", name)
		}
		c.Add(f)
		zlog.Info().Msgf("filter: enabled: name=%s", name)
	}
	return c, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the track.
func (c *Chain) Execute(ctx context.Context, t track.Track) Result {
	for _, f := range c.filters {
		result := f.Check(ctx, t)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Apply returns the tracks accepted by every filter, preserving order.
func (c *Chain) Apply(ctx context.Context, tracks []track.Track) []track.Track {
	accepted := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if c.Execute(ctx, t).Accepted {
			accepted = append(accepted, t)
		}
	}
	return accepted
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}

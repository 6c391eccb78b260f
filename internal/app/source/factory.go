package source

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/autodj/internal/app/filter"
	"github.com/osa030/autodj/internal/infra/config"
)

// NewFactoryFromConfig returns a factory creating the configured source type.
// Settings are validated once here so a bad config fails at startup.
func NewFactoryFromConfig(cfg config.SourceConfig, catalog Catalog, recommender Recommender, chain *filter.Chain) (Factory, error) {
	if chain == nil {
		chain = filter.NewEligibilityChain()
	}
	zlog.Debug().Msgf("creating track source: type=%s settings=%+v", cfg.Type, cfg.Settings)

	switch cfg.Type {
	case "playlist", "":
		if catalog == nil {
			return nil, errors.New("playlist source requires a catalog")
		}
		zlog.Info().Msgf("registered track source: type=playlist filters=%d", len(chain.Filters()))
		return func() (Source, error) {
			return NewPlaylistSource(catalog, chain), nil
		}, nil

	case "recommender":
		if _, err := NewRecommenderSource(recommender, chain, cfg.Settings); err != nil {
			return nil, errors.Wrap(err, "failed to create recommender source")
		}
		zlog.Info().Msgf("registered track source: type=recommender filters=%d", len(chain.Filters()))
		return func() (Source, error) {
			return NewRecommenderSource(recommender, chain, cfg.Settings)
		}, nil

	default:
		return nil, errors.Newf("unsupported source type: %s", cfg.Type)
	}
}

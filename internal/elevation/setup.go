package elevation

import (
	"github.com/rs/zerolog/log"

	"github.com/stuartshay/route-analyzer/internal/config"
)

// NewFromConfig builds the OpenTopoData backfiller described by cfg. The
// cache is Redis-backed when cfg.RedisAddr is set and in-process otherwise.
// It returns a nil Backfiller when backfill is disabled. The returned close
// function releases the cache store and is never nil.
func NewFromConfig(cfg *config.Config) (*Backfiller, func() error, error) {
	noop := func() error { return nil }
	if !cfg.BackfillEnabled {
		return nil, noop, nil
	}

	var (
		store   Store = NewMemoryStore()
		closeFn       = noop
	)
	if cfg.RedisAddr != "" {
		redisStore, err := NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, noop, err
		}
		store = redisStore
		closeFn = redisStore.Close
		log.Info().Str("addr", cfg.RedisAddr).Msg("Elevation cache backed by Redis")
	}

	provider := NewOpenTopoDataClient(cfg.ElevationURL, cfg.ElevationDataset, cfg.ElevationTimeout)
	backfiller := NewBackfiller(provider, NewCache(store, cfg.CacheTTL), Options{
		ChunkSize: cfg.BackfillChunkSize,
		Delay:     cfg.BackfillDelay,
	})

	return backfiller, closeFn, nil
}

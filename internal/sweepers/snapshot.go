package sweepers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/matmarket/procure-service/internal/catalog"
)

// SnapshotSweeper periodically refreshes the snapshots of the configured
// regions so hot regions never serve a stale catalog while traffic is low.
type SnapshotSweeper struct {
	cache    *catalog.Cache
	regions  []string
	logger   *zerolog.Logger
	interval time.Duration
	stopChan chan struct{}
}

// NewSnapshotSweeper creates a sweeper that keeps the given regions warm.
func NewSnapshotSweeper(cache *catalog.Cache, regions []string, logger *zerolog.Logger, interval time.Duration) *SnapshotSweeper {
	return &SnapshotSweeper{
		cache:    cache,
		regions:  regions,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic refresh sweep
func (s *SnapshotSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Strs("regions", s.regions).
		Msg("Starting snapshot sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Snapshot sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Snapshot sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			s.RefreshAll(ctx)
		}
	}
}

// Stop signals the sweeper to stop
func (s *SnapshotSweeper) Stop() {
	close(s.stopChan)
}

// RefreshAll reloads every configured region. A failing region is logged
// and skipped; the next tick retries it.
func (s *SnapshotSweeper) RefreshAll(ctx context.Context) {
	for _, region := range s.regions {
		if err := s.cache.Refresh(ctx, region); err != nil {
			s.logger.Error().Err(err).Str("region", region).Msg("Failed to refresh snapshot")
			continue
		}
		s.logger.Debug().Str("region", region).Msg("Snapshot refreshed")
	}
}

package catalog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Loader fetches a fresh Snapshot for a region from the upstream catalog
// (Postgres in production, a price sheet in the CLI).
type Loader interface {
	LoadSnapshot(ctx context.Context, region string) (*Snapshot, error)
}

// CacheConfig holds the tunables of the snapshot cache.
type CacheConfig struct {
	// TTL is how long a snapshot may be served before it is considered
	// stale and reloaded. The catalog is treated as stale after a few
	// minutes; consumers always recompute from a fresh snapshot.
	TTL time.Duration

	// LoadTimeout bounds a single upstream load.
	LoadTimeout time.Duration

	// WarmupConcurrency limits concurrent region loads during warmup.
	WarmupConcurrency int
}

// DefaultCacheConfig returns the default cache configuration.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		TTL:               3 * time.Minute,
		LoadTimeout:       15 * time.Second,
		WarmupConcurrency: 3,
	}
}

// Cache is a TTL'd per-region snapshot cache. Snapshots are immutable and
// swapped atomically, so readers never block on a reload and two concurrent
// computations can safely share one snapshot.
type Cache struct {
	regionsMu sync.RWMutex
	regions   map[string]*regionEntry
	sf        loadGroup

	loader  Loader
	config  *CacheConfig
	breaker *Breaker
	gate    *WarmupGate
	metrics *Metrics
	logger  zerolog.Logger

	warmupSem *semaphore.Weighted
}

type regionEntry struct {
	snapshot atomic.Pointer[Snapshot]
}

// loadGroup deduplicates concurrent loads of the same region. A custom
// group instead of x/sync/singleflight so loads run on a dedicated load
// context rather than the first caller's request context.
type loadGroup struct {
	mu    sync.Mutex
	calls map[string]*loadCall
}

type loadCall struct {
	wg   sync.WaitGroup
	snap *Snapshot
	err  error
}

// NewCache creates a snapshot cache backed by the given loader.
func NewCache(loader Loader, config *CacheConfig) *Cache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	logger := log.With().Str("component", "catalog_cache").Logger()

	return &Cache{
		regions:   make(map[string]*regionEntry),
		loader:    loader,
		config:    config,
		breaker:   NewBreaker("catalog_loader", DefaultBreakerConfig(), logger),
		gate:      NewWarmupGate(logger),
		metrics:   NewMetrics(),
		logger:    logger,
		warmupSem: semaphore.NewWeighted(int64(config.WarmupConcurrency)),
	}
}

// Snapshot returns a fresh snapshot for the region, reloading it when the
// cached one is missing or older than the TTL.
func (c *Cache) Snapshot(ctx context.Context, region string) (*Snapshot, error) {
	if region == "" {
		return nil, fmt.Errorf("catalog: region must be non-empty")
	}

	if snap := c.cached(region); snap != nil && !snap.Stale(time.Now(), c.config.TTL) {
		c.metrics.RecordHit(region)
		c.metrics.RecordSnapshot(region, snap.Age(time.Now()).Seconds(), snap.EstimatedSizeBytes(), snap.ShopCount())
		return snap, nil
	}

	c.metrics.RecordMiss(region)
	return c.load(ctx, region)
}

// Refresh forces a reload of the region's snapshot regardless of age.
func (c *Cache) Refresh(ctx context.Context, region string) error {
	_, err := c.load(ctx, region)
	return err
}

// Warmup loads snapshots for the given regions ahead of traffic, bounded by
// WarmupConcurrency, then opens the warmup gate. A failed region is logged
// and reported but does not block the gate: partial warmup still serves the
// regions that loaded.
func (c *Cache) Warmup(ctx context.Context, regions []string) error {
	c.logger.Info().Int("regions", len(regions)).Msg("Starting catalog warmup")

	var wg sync.WaitGroup
	errCh := make(chan error, len(regions))

	for _, region := range regions {
		if err := c.warmupSem.Acquire(ctx, 1); err != nil {
			c.logger.Warn().Err(err).Str("region", region).Msg("Failed to acquire warmup slot")
			continue
		}

		wg.Add(1)
		go func(region string) {
			defer c.warmupSem.Release(1)
			defer wg.Done()

			loadCtx, cancel := context.WithTimeout(context.Background(), c.config.LoadTimeout)
			defer cancel()

			if _, err := c.load(loadCtx, region); err != nil {
				c.logger.Error().Err(err).Str("region", region).Msg("Failed to warm region")
				errCh <- fmt.Errorf("region %s: %w", region, err)
			} else {
				c.logger.Info().Str("region", region).Msg("Warmed region snapshot")
			}
		}(region)
	}

	wg.Wait()
	close(errCh)
	c.gate.Ready()

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// WaitReady blocks until warmup completes or ctx is cancelled.
func (c *Cache) WaitReady(ctx context.Context) bool {
	return c.gate.Wait(ctx)
}

// IsHealthy reports whether the cache can serve requests: warmup finished
// and the loader breaker is not open.
func (c *Cache) IsHealthy(ctx context.Context) bool {
	return c.gate.IsReady() && c.breaker.State() != BreakerOpen
}

// Freshness describes the state of one region's cached snapshot.
type Freshness struct {
	Region   string
	TakenAt  time.Time
	Age      time.Duration
	Stale    bool
	Shops    int
	Listings int
}

// FreshnessReport returns the freshness of every cached region.
func (c *Cache) FreshnessReport() []Freshness {
	c.regionsMu.RLock()
	defer c.regionsMu.RUnlock()

	now := time.Now()
	report := make([]Freshness, 0, len(c.regions))
	for region, entry := range c.regions {
		snap := entry.snapshot.Load()
		if snap == nil {
			continue
		}
		report = append(report, Freshness{
			Region:   region,
			TakenAt:  snap.TakenAt,
			Age:      snap.Age(now),
			Stale:    snap.Stale(now, c.config.TTL),
			Shops:    snap.ShopCount(),
			Listings: snap.ListingCount(),
		})
	}
	return report
}

func (c *Cache) cached(region string) *Snapshot {
	c.regionsMu.RLock()
	entry, ok := c.regions[region]
	c.regionsMu.RUnlock()
	if !ok {
		return nil
	}
	return entry.snapshot.Load()
}

// load fetches a snapshot through the breaker and the load group.
func (c *Cache) load(ctx context.Context, region string) (*Snapshot, error) {
	if !c.breaker.Allow() {
		return nil, fmt.Errorf("catalog: loader circuit open for region %s", region)
	}

	snap, err := c.sf.do(region, func() (*Snapshot, error) {
		// Dedicated load context: cancelling one caller must not fail
		// the load for everyone sharing it.
		loadCtx, cancel := context.WithTimeout(context.Background(), c.config.LoadTimeout)
		defer cancel()

		start := time.Now()
		snap, err := c.loader.LoadSnapshot(loadCtx, region)
		c.metrics.RecordLoad(region, time.Since(start).Seconds(), err == nil)
		if err != nil {
			c.breaker.RecordFailure(err)
			return nil, err
		}
		c.breaker.RecordSuccess()

		c.regionsMu.Lock()
		entry, ok := c.regions[region]
		if !ok {
			entry = &regionEntry{}
			c.regions[region] = entry
		}
		c.regionsMu.Unlock()

		entry.snapshot.Store(snap)
		c.metrics.RecordSnapshot(region, 0, snap.EstimatedSizeBytes(), snap.ShopCount())

		c.logger.Info().
			Str("region", region).
			Int("shops", snap.ShopCount()).
			Int("listings", snap.ListingCount()).
			Dur("took", time.Since(start)).
			Msg("Loaded catalog snapshot")
		return snap, nil
	})

	if err != nil {
		return nil, fmt.Errorf("catalog: load region %s: %w", region, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return snap, nil
}

func (g *loadGroup) do(key string, fn func() (*Snapshot, error)) (*Snapshot, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*loadCall)
	}
	if call, ok := g.calls[key]; ok {
		g.mu.Unlock()
		call.wg.Wait()
		return call.snap, call.err
	}

	call := &loadCall{}
	call.wg.Add(1)
	g.calls[key] = call
	g.mu.Unlock()

	call.snap, call.err = fn()
	call.wg.Done()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()

	return call.snap, call.err
}

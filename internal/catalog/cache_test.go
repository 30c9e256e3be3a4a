package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoader is a controllable Loader for cache tests.
type fakeLoader struct {
	mu       sync.Mutex
	loads    map[string]int
	err      error
	delay    time.Duration
	snapshot func(region string) *Snapshot
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		loads: make(map[string]int),
		snapshot: func(region string) *Snapshot {
			shops := []*Shop{{ID: "shop-a", Name: "A"}}
			listings := []*ShopListing{{ShopID: "shop-a", VariantID: "brick-std", UnitPrice: 100, InStock: true}}
			return NewSnapshot(region, time.Now(), shops, listings)
		},
	}
}

func (f *fakeLoader) LoadSnapshot(ctx context.Context, region string) (*Snapshot, error) {
	f.mu.Lock()
	f.loads[region]++
	err := f.err
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return f.snapshot(region), nil
}

func (f *fakeLoader) loadCount(region string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[region]
}

func (f *fakeLoader) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func TestCacheServesCachedSnapshotWithinTTL(t *testing.T) {
	loader := newFakeLoader()
	cache := NewCache(loader, &CacheConfig{TTL: time.Minute, LoadTimeout: time.Second, WarmupConcurrency: 1})

	first, err := cache.Snapshot(context.Background(), "north")
	require.NoError(t, err)

	second, err := cache.Snapshot(context.Background(), "north")
	require.NoError(t, err)

	// Same snapshot instance, one upstream load.
	assert.Same(t, first, second)
	assert.Equal(t, 1, loader.loadCount("north"))
}

func TestCacheReloadsStaleSnapshot(t *testing.T) {
	loader := newFakeLoader()
	// Zero TTL: every snapshot is immediately stale.
	cache := NewCache(loader, &CacheConfig{TTL: 0, LoadTimeout: time.Second, WarmupConcurrency: 1})

	_, err := cache.Snapshot(context.Background(), "north")
	require.NoError(t, err)
	_, err = cache.Snapshot(context.Background(), "north")
	require.NoError(t, err)

	assert.Equal(t, 2, loader.loadCount("north"))
}

func TestCacheRegionsAreIndependent(t *testing.T) {
	loader := newFakeLoader()
	cache := NewCache(loader, &CacheConfig{TTL: time.Minute, LoadTimeout: time.Second, WarmupConcurrency: 1})

	north, err := cache.Snapshot(context.Background(), "north")
	require.NoError(t, err)
	south, err := cache.Snapshot(context.Background(), "south")
	require.NoError(t, err)

	assert.Equal(t, "north", north.Region)
	assert.Equal(t, "south", south.Region)
	assert.Equal(t, 1, loader.loadCount("north"))
	assert.Equal(t, 1, loader.loadCount("south"))
}

func TestCacheRejectsEmptyRegion(t *testing.T) {
	cache := NewCache(newFakeLoader(), nil)
	_, err := cache.Snapshot(context.Background(), "")
	assert.Error(t, err)
}

// TestCacheDeduplicatesConcurrentLoads verifies the load group collapses a
// burst of concurrent misses into one upstream load.
func TestCacheDeduplicatesConcurrentLoads(t *testing.T) {
	loader := newFakeLoader()
	loader.delay = 50 * time.Millisecond
	cache := NewCache(loader, &CacheConfig{TTL: time.Minute, LoadTimeout: time.Second, WarmupConcurrency: 1})

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Snapshot(context.Background(), "north"); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, loader.loadCount("north"))
}

func TestCacheLoadError(t *testing.T) {
	loader := newFakeLoader()
	loader.setErr(errors.New("connection refused"))
	cache := NewCache(loader, &CacheConfig{TTL: time.Minute, LoadTimeout: time.Second, WarmupConcurrency: 1})

	_, err := cache.Snapshot(context.Background(), "north")
	assert.Error(t, err)
}

// TestCacheBreakerOpensAfterRepeatedFailures verifies requests fail fast
// once the loader breaker opens, without hitting the upstream.
func TestCacheBreakerOpensAfterRepeatedFailures(t *testing.T) {
	loader := newFakeLoader()
	loader.setErr(errors.New("connection refused"))
	cache := NewCache(loader, &CacheConfig{TTL: time.Minute, LoadTimeout: time.Second, WarmupConcurrency: 1})

	for i := 0; i < DefaultBreakerConfig().MaxFailures; i++ {
		_, err := cache.Snapshot(context.Background(), "north")
		require.Error(t, err)
	}
	loadsBeforeOpen := loader.loadCount("north")

	// Breaker is open now: further requests do not reach the loader.
	_, err := cache.Snapshot(context.Background(), "north")
	assert.Error(t, err)
	assert.Equal(t, loadsBeforeOpen, loader.loadCount("north"))
	assert.False(t, cache.IsHealthy(context.Background()))
}

func TestCacheWarmup(t *testing.T) {
	loader := newFakeLoader()
	cache := NewCache(loader, &CacheConfig{TTL: time.Minute, LoadTimeout: time.Second, WarmupConcurrency: 2})

	require.False(t, cache.IsHealthy(context.Background()))

	err := cache.Warmup(context.Background(), []string{"north", "south"})
	require.NoError(t, err)

	assert.True(t, cache.IsHealthy(context.Background()))
	assert.True(t, cache.WaitReady(context.Background()))
	assert.Equal(t, 1, loader.loadCount("north"))
	assert.Equal(t, 1, loader.loadCount("south"))

	// Warmed regions serve from cache.
	_, err = cache.Snapshot(context.Background(), "north")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.loadCount("north"))
}

// TestCacheWarmupPartialFailure verifies a failed region reports an error
// but still opens the gate so healthy regions serve.
func TestCacheWarmupPartialFailure(t *testing.T) {
	loader := newFakeLoader()
	loader.setErr(errors.New("connection refused"))
	cache := NewCache(loader, &CacheConfig{TTL: time.Minute, LoadTimeout: time.Second, WarmupConcurrency: 2})

	err := cache.Warmup(context.Background(), []string{"north"})
	assert.Error(t, err)
	assert.True(t, cache.WaitReady(context.Background()))
}

func TestCacheFreshnessReport(t *testing.T) {
	loader := newFakeLoader()
	cache := NewCache(loader, &CacheConfig{TTL: time.Minute, LoadTimeout: time.Second, WarmupConcurrency: 1})

	assert.Empty(t, cache.FreshnessReport())

	_, err := cache.Snapshot(context.Background(), "north")
	require.NoError(t, err)

	report := cache.FreshnessReport()
	require.Len(t, report, 1)
	assert.Equal(t, "north", report[0].Region)
	assert.False(t, report[0].Stale)
	assert.Equal(t, 1, report[0].Shops)
	assert.Equal(t, 1, report[0].Listings)
}

// TestCacheRefreshForcesReload verifies Refresh bypasses the TTL.
func TestCacheRefreshForcesReload(t *testing.T) {
	loader := newFakeLoader()
	cache := NewCache(loader, &CacheConfig{TTL: time.Hour, LoadTimeout: time.Second, WarmupConcurrency: 1})

	_, err := cache.Snapshot(context.Background(), "north")
	require.NoError(t, err)
	require.NoError(t, cache.Refresh(context.Background(), "north"))

	assert.Equal(t, 2, loader.loadCount("north"))
}

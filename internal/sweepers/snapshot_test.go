package sweepers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matmarket/procure-service/internal/catalog"
)

type fakeLoader struct {
	mu    sync.Mutex
	loads map[string]int
	fail  map[string]bool
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{loads: make(map[string]int), fail: make(map[string]bool)}
}

func (f *fakeLoader) LoadSnapshot(ctx context.Context, region string) (*catalog.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads[region]++
	if f.fail[region] {
		return nil, errors.New("region unavailable")
	}
	return catalog.NewSnapshot(region, time.Now(), nil, nil), nil
}

func (f *fakeLoader) loadCount(region string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[region]
}

func TestRefreshAllReloadsEveryRegion(t *testing.T) {
	loader := newFakeLoader()
	cache := catalog.NewCache(loader, nil)
	logger := zerolog.Nop()

	sweeper := NewSnapshotSweeper(cache, []string{"zagreb", "split"}, &logger, time.Minute)
	sweeper.RefreshAll(context.Background())

	assert.Equal(t, 1, loader.loadCount("zagreb"))
	assert.Equal(t, 1, loader.loadCount("split"))

	sweeper.RefreshAll(context.Background())
	assert.Equal(t, 2, loader.loadCount("zagreb"))
}

func TestRefreshAllContinuesPastFailures(t *testing.T) {
	loader := newFakeLoader()
	loader.fail["zagreb"] = true
	cache := catalog.NewCache(loader, nil)
	logger := zerolog.Nop()

	sweeper := NewSnapshotSweeper(cache, []string{"zagreb", "split"}, &logger, time.Minute)
	sweeper.RefreshAll(context.Background())

	// The failing region doesn't stop the sweep
	assert.Equal(t, 1, loader.loadCount("split"))

	snap, err := cache.Snapshot(context.Background(), "split")
	require.NoError(t, err)
	assert.Equal(t, "split", snap.Region)
}

func TestSweeperStops(t *testing.T) {
	loader := newFakeLoader()
	cache := catalog.NewCache(loader, nil)
	logger := zerolog.Nop()

	sweeper := NewSnapshotSweeper(cache, []string{"zagreb"}, &logger, time.Hour)

	done := make(chan struct{})
	go func() {
		sweeper.Start(context.Background())
		close(done)
	}()

	sweeper.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

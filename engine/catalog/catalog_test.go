package catalog

import (
	"sync"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	timer "github.com/xiaonanln/goTimer"
	"golang.org/x/net/context"

	"github.com/holoverse/holoworld/engine/config"
	"github.com/holoverse/holoworld/engine/netutil"
	"github.com/holoverse/holoworld/engine/post"
	"github.com/holoverse/holoworld/engine/scene"
)

type fakeFetcher struct {
	sync.Mutex
	manifest []byte
	bundle   []byte
	fails    int // remaining bundle fetches to fail
	calls    int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.Lock()
	defer f.Unlock()

	if url == "http://assets.test/manifest" {
		if f.manifest == nil {
			return nil, errors.New("manifest unavailable")
		}
		return f.manifest, nil
	}

	f.calls += 1
	if f.fails > 0 {
		f.fails -= 1
		return nil, errors.New("bundle fetch refused")
	}
	return f.bundle, nil
}

func (f *fakeFetcher) bundleCalls() int {
	f.Lock()
	defer f.Unlock()
	return f.calls
}

func packManifest(t *testing.T, m map[string]string) []byte {
	data, err := netutil.MSG_PACKER.PackMsg(m, nil)
	if err != nil {
		t.Fatalf("pack manifest: %v", err)
	}
	return data
}

func newTestConfig() *config.CatalogConfig {
	return &config.CatalogConfig{
		URL:              "http://assets.test/manifest",
		FetchTimeout:     time.Second,
		KeyPrefix:        "space_",
		AttemptTimeout:   time.Second,
		RetryBackoff:     time.Millisecond,
		MaxAttempts:      5,
		ProgressInterval: time.Millisecond,
	}
}

func drive(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for condition")
		}
		timer.Tick()
		post.Tick()
		time.Sleep(time.Millisecond)
	}
}

func loadManifest(t *testing.T, ld *Loader) {
	done := false
	ld.LoadCatalog(func(err error) {
		assert.Equal(t, nil, err)
		done = true
	})
	drive(t, func() bool { return done })
}

func TestLoadAssetRetriesThenSucceeds(t *testing.T) {
	fetcher := &fakeFetcher{
		manifest: packManifest(t, map[string]string{"space_demo": "http://assets.test/space_demo"}),
		bundle:   []byte("bundle-bytes"),
		fails:    2,
	}
	sub := scene.NewSimSubstrate()
	ld := NewLoader(newTestConfig(), fetcher, sub)
	defer ld.Close()

	loadManifest(t, ld)
	assert.Equal(t, true, ld.HasManifest())

	completes, fails := 0, 0
	ld.AddListener("space_demo", Listener{
		OnComplete: func(h *AssetHandle) { completes += 1 },
		OnFailed:   func(h *AssetHandle, reason string) { fails += 1 },
	})

	h := ld.LoadAsset("space_demo")
	assert.Equal(t, AssetLoading, h.State)

	drive(t, func() bool { return ld.IsLoaded("space_demo") })

	assert.Equal(t, 2, h.RetryCount)
	assert.Equal(t, float64(1), h.Progress)
	assert.Equal(t, 1, completes)
	assert.Equal(t, 0, fails)
	assert.Equal(t, 3, fetcher.bundleCalls())
	assert.NotEqual(t, nil, ld.GetWorldInstance("space_demo"))
	assert.NotEqual(t, nil, ld.GetWorldInstance("space_demo").Root)
}

func TestLoadAssetFailsAfterMaxAttempts(t *testing.T) {
	fetcher := &fakeFetcher{
		manifest: packManifest(t, map[string]string{"space_demo": "http://assets.test/space_demo"}),
		fails:    1000,
	}
	cfg := newTestConfig()
	cfg.MaxAttempts = 3
	ld := NewLoader(cfg, fetcher, scene.NewSimSubstrate())
	defer ld.Close()

	loadManifest(t, ld)

	fails := 0
	ld.AddListener("space_demo", Listener{
		OnFailed: func(h *AssetHandle, reason string) { fails += 1 },
	})

	h := ld.LoadAsset("space_demo")
	drive(t, func() bool { return h.State == AssetFailed })

	assert.Equal(t, 3, h.RetryCount)
	assert.Equal(t, 1, fails)
	assert.Equal(t, (*WorldInstance)(nil), ld.GetWorldInstance("space_demo"))

	// terminal state sticks, no further attempts scheduled
	for i := 0; i < 20; i++ {
		timer.Tick()
		post.Tick()
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 3, fetcher.bundleCalls())

	// reloading a failed key returns the same terminal handle
	assert.Equal(t, h, ld.LoadAsset("space_demo"))
	assert.Equal(t, AssetFailed, h.State)
}

func TestLoadAssetIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{
		manifest: packManifest(t, map[string]string{"space_demo": "http://assets.test/space_demo"}),
		bundle:   []byte("bundle-bytes"),
		fails:    1,
	}
	ld := NewLoader(newTestConfig(), fetcher, scene.NewSimSubstrate())
	defer ld.Close()

	loadManifest(t, ld)

	h1 := ld.LoadAsset("space_demo")
	h2 := ld.LoadAsset("space_demo")
	assert.Equal(t, h1, h2)

	drive(t, func() bool { return ld.IsLoaded("space_demo") })

	h3 := ld.LoadAsset("space_demo")
	assert.Equal(t, h1, h3)
	assert.Equal(t, AssetLoaded, h3.State)
}

func TestManifestFailureFallsBackToLocal(t *testing.T) {
	fetcher := &fakeFetcher{} // nil manifest, every manifest fetch errors
	sub := scene.NewSimSubstrate()
	sub.Prepare("space_demo", 3, 1)
	ld := NewLoader(newTestConfig(), fetcher, sub)
	defer ld.Close()

	var manifestErr error
	done := false
	ld.LoadCatalog(func(err error) {
		manifestErr = err
		done = true
	})
	drive(t, func() bool { return done })

	assert.NotEqual(t, nil, manifestErr)
	assert.Equal(t, false, ld.HasManifest())

	// key resolves through the local substrate, load succeeds without fetching
	h := ld.LoadAsset("space_demo")
	assert.Equal(t, AssetLoaded, h.State)
	assert.Equal(t, 0, h.RetryCount)
	assert.Equal(t, 0, fetcher.bundleCalls())

	world := ld.GetWorldInstance("space_demo")
	assert.NotEqual(t, nil, world)
	assert.Equal(t, 3, world.Root.ChildCount())
	assert.Equal(t, 1, world.Root.ColliderCount())
}

func TestProgressEventsWhileLoading(t *testing.T) {
	release := make(chan struct{})
	fetcher := &blockingFetcher{release: release, data: []byte("bundle-bytes")}
	cfg := newTestConfig()
	ld := NewLoader(cfg, fetcher, scene.NewSimSubstrate())
	defer ld.Close()

	// route the key through the manifest so the attempt goes to the fetcher
	ld.manifest = map[string]string{"space_demo": "http://assets.test/space_demo"}

	var fractions []float64
	ld.AddListener("space_demo", Listener{
		OnProgress: func(fraction float64) { fractions = append(fractions, fraction) },
	})

	h := ld.LoadAsset("space_demo")
	drive(t, func() bool { return len(fractions) >= 3 })
	close(release)
	drive(t, func() bool { return ld.IsLoaded("space_demo") })

	// monotonic and capped below 1 until completion
	for i := 1; i < len(fractions)-1; i++ {
		if fractions[i] < fractions[i-1] {
			t.Fatalf("progress went backwards: %v", fractions)
		}
		if fractions[i] > 0.95 {
			t.Fatalf("progress exceeded cap before completion: %v", fractions)
		}
	}
	assert.Equal(t, float64(1), fractions[len(fractions)-1])
	assert.Equal(t, float64(1), h.Progress)
}

func TestAddListenerAfterTerminalState(t *testing.T) {
	fetcher := &fakeFetcher{
		manifest: packManifest(t, map[string]string{"space_demo": "http://assets.test/space_demo"}),
		bundle:   []byte("bundle-bytes"),
	}
	ld := NewLoader(newTestConfig(), fetcher, scene.NewSimSubstrate())
	defer ld.Close()

	loadManifest(t, ld)
	ld.LoadAsset("space_demo")
	drive(t, func() bool { return ld.IsLoaded("space_demo") })

	completes := 0
	ld.AddListener("space_demo", Listener{
		OnComplete: func(h *AssetHandle) { completes += 1 },
	})
	drive(t, func() bool { return completes == 1 })
}

type blockingFetcher struct {
	release chan struct{}
	data    []byte
}

func (f *blockingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	select {
	case <-f.release:
		return f.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

package session

import (
	"sync"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	timer "github.com/xiaonanln/goTimer"
	"golang.org/x/net/context"

	"github.com/holoverse/holoworld/engine/catalog"
	"github.com/holoverse/holoworld/engine/config"
	"github.com/holoverse/holoworld/engine/netutil"
	"github.com/holoverse/holoworld/engine/post"
	"github.com/holoverse/holoworld/engine/scene"
)

type stubFetcher struct {
	sync.Mutex
	manifest    []byte
	bundle      []byte
	bundleErr   error
	release     chan struct{} // non-nil blocks bundle fetches until closed
	bundleCalls int
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.Lock()
	if url == "http://assets.test/manifest" {
		defer f.Unlock()
		if f.manifest == nil {
			return nil, errors.New("manifest unavailable")
		}
		return f.manifest, nil
	}

	f.bundleCalls += 1
	release := f.release
	f.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.Lock()
	defer f.Unlock()
	if f.bundleErr != nil {
		return nil, f.bundleErr
	}
	return f.bundle, nil
}

func (f *stubFetcher) calls() int {
	f.Lock()
	defer f.Unlock()
	return f.bundleCalls
}

func packManifest(t *testing.T, m map[string]string) []byte {
	data, err := netutil.MSG_PACKER.PackMsg(m, nil)
	if err != nil {
		t.Fatalf("pack manifest: %v", err)
	}
	return data
}

func newCatalogConfig() *config.CatalogConfig {
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

func newSessionConfig() *config.SessionConfig {
	return &config.SessionConfig{
		WorldTimeout: time.Second,
		TotalTimeout: 5 * time.Second,
		MaxRetries:   10,
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

func goodFetcher(t *testing.T) *stubFetcher {
	return &stubFetcher{
		manifest: packManifest(t, map[string]string{"space_demo": "http://assets.test/space_demo"}),
		bundle:   []byte("bundle-bytes"),
	}
}

func TestJoinReachesReady(t *testing.T) {
	fetcher := goodFetcher(t)
	loader := catalog.NewLoader(newCatalogConfig(), fetcher, scene.NewSimSubstrate())
	defer loader.Close()

	var states []State
	var readyWorld *catalog.WorldInstance
	o := NewOrchestrator(newSessionConfig(), loader, Callbacks{
		OnStateChange: func(old, new State) { states = append(states, new) },
		OnReady:       func(world *catalog.WorldInstance) { readyWorld = world },
	})
	assert.Equal(t, StateInit, o.State())

	o.Join("demo")
	drive(t, func() bool { return o.State().IsTerminal() })

	assert.Equal(t, StateReady, o.State())
	assert.Equal(t, []State{StateWaitingForCatalog, StateLoadingWorld, StateReady}, states)
	assert.Equal(t, 0, o.RetryCount())
	assert.NotEqual(t, nil, readyWorld)
	assert.Equal(t, "space_demo", readyWorld.ID)
}

func TestJoinWithWorldAlreadyLoaded(t *testing.T) {
	fetcher := goodFetcher(t)
	loader := catalog.NewLoader(newCatalogConfig(), fetcher, scene.NewSimSubstrate())
	defer loader.Close()

	// the manifest must be in place before preloading, or the loader falls
	// back to local resolution and the bundle is never fetched
	catalogDone := false
	loader.LoadCatalog(func(err error) {
		assert.Equal(t, nil, err)
		catalogDone = true
	})
	drive(t, func() bool { return catalogDone })

	loader.LoadAsset("space_demo")
	drive(t, func() bool { return loader.IsLoaded("space_demo") })
	assert.Equal(t, 1, fetcher.calls())

	o := NewOrchestrator(newSessionConfig(), loader, Callbacks{})
	o.Join("demo")
	drive(t, func() bool { return o.State().IsTerminal() })

	// the loaded world is picked up without triggering another load
	assert.Equal(t, StateReady, o.State())
	assert.Equal(t, 1, fetcher.calls())
}

func TestWorldStepRetryThenReady(t *testing.T) {
	release := make(chan struct{})
	fetcher := goodFetcher(t)
	fetcher.release = release
	loader := catalog.NewLoader(newCatalogConfig(), fetcher, scene.NewSimSubstrate())
	defer loader.Close()

	cfg := newSessionConfig()
	cfg.WorldTimeout = 3 * time.Millisecond
	o := NewOrchestrator(cfg, loader, Callbacks{})
	o.Join("demo")

	drive(t, func() bool { return o.RetryCount() >= 2 })
	close(release)
	drive(t, func() bool { return o.State().IsTerminal() })

	assert.Equal(t, StateReady, o.State())
	// retrying never duplicates the in-flight load
	assert.Equal(t, 1, fetcher.calls())
}

func TestWorldRetriesExhausted(t *testing.T) {
	fetcher := goodFetcher(t)
	fetcher.release = make(chan struct{}) // never released
	loader := catalog.NewLoader(newCatalogConfig(), fetcher, scene.NewSimSubstrate())
	defer loader.Close()

	cfg := newSessionConfig()
	cfg.WorldTimeout = 2 * time.Millisecond
	cfg.MaxRetries = 2
	failures := 0
	o := NewOrchestrator(cfg, loader, Callbacks{
		OnFailed: func(reason string) { failures += 1 },
	})
	o.Join("demo")
	drive(t, func() bool { return o.State().IsTerminal() })

	assert.Equal(t, StateFailed, o.State())
	assert.Equal(t, 2, o.RetryCount())
	assert.Equal(t, 1, failures)
}

func TestTotalTimeout(t *testing.T) {
	fetcher := goodFetcher(t)
	fetcher.release = make(chan struct{}) // never released
	loader := catalog.NewLoader(newCatalogConfig(), fetcher, scene.NewSimSubstrate())
	defer loader.Close()

	cfg := newSessionConfig()
	cfg.TotalTimeout = 10 * time.Millisecond
	timeouts := 0
	o := NewOrchestrator(cfg, loader, Callbacks{
		OnTimedOut: func(reason string) { timeouts += 1 },
	})
	o.Join("demo")
	drive(t, func() bool { return o.State().IsTerminal() })

	assert.Equal(t, StateTimedOut, o.State())
	assert.Equal(t, 1, timeouts)
}

func TestWorldLoadFailureFailsSession(t *testing.T) {
	fetcher := goodFetcher(t)
	fetcher.bundleErr = errors.New("bundle fetch refused")
	catCfg := newCatalogConfig()
	catCfg.MaxAttempts = 2
	loader := catalog.NewLoader(catCfg, fetcher, scene.NewSimSubstrate())
	defer loader.Close()

	var failReason string
	o := NewOrchestrator(newSessionConfig(), loader, Callbacks{
		OnFailed: func(reason string) { failReason = reason },
	})
	o.Join("demo")
	drive(t, func() bool { return o.State().IsTerminal() })

	assert.Equal(t, StateFailed, o.State())
	assert.NotEqual(t, "", failReason)
}

func TestETAFromProgressRate(t *testing.T) {
	loader := catalog.NewLoader(newCatalogConfig(), goodFetcher(t), scene.NewSimSubstrate())
	defer loader.Close()

	var progresses []Progress
	o := NewOrchestrator(newSessionConfig(), loader, Callbacks{
		OnProgress: func(p Progress) { progresses = append(progresses, p) },
	})
	o.state = StateLoadingWorld

	o.noteProgress(0.2)
	assert.Equal(t, time.Duration(0), o.ETA()) // single sample, no rate yet
	time.Sleep(10 * time.Millisecond)
	o.noteProgress(0.4)

	if o.ETA() <= 0 {
		t.Fatalf("expected positive ETA, got %s", o.ETA())
	}
	assert.Equal(t, 2, len(progresses))
	assert.Equal(t, 0.4, progresses[1].Fraction)
	assert.Equal(t, o.ETA(), progresses[1].ETA)
}

func TestJoinIgnoredWhenNotInit(t *testing.T) {
	loader := catalog.NewLoader(newCatalogConfig(), goodFetcher(t), scene.NewSimSubstrate())
	defer loader.Close()

	o := NewOrchestrator(newSessionConfig(), loader, Callbacks{})
	o.Join("demo")
	drive(t, func() bool { return o.State().IsTerminal() })
	assert.Equal(t, StateReady, o.State())

	o.Join("other")
	assert.Equal(t, StateReady, o.State())
	assert.Equal(t, "demo", o.spaceID)
}

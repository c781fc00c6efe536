package spawn

import (
	"sync"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	timer "github.com/xiaonanln/goTimer"
	"golang.org/x/net/context"

	"github.com/holoverse/holoworld/engine/catalog"
	"github.com/holoverse/holoworld/engine/common"
	"github.com/holoverse/holoworld/engine/config"
	"github.com/holoverse/holoworld/engine/entity"
	"github.com/holoverse/holoworld/engine/entity/entitytest"
	"github.com/holoverse/holoworld/engine/netutil"
	"github.com/holoverse/holoworld/engine/post"
	"github.com/holoverse/holoworld/engine/scene"
)

type testPlayer struct {
	entity.Entity
}

func (p *testPlayer) DescribeEntityType(desc *entity.EntityTypeDesc) {
	desc.SetUseAOI(true, 100)
	desc.DefineAttr("playerName", "AllClients")
}

func (p *testPlayer) OnClientDisconnected() {
	p.Destroy()
}

type gateFetcher struct {
	sync.Mutex
	manifest []byte
	bundle   []byte
	release  chan struct{}
}

func (f *gateFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.Lock()
	manifest, release := f.manifest, f.release
	f.Unlock()

	if url == "http://assets.test/manifest" {
		return manifest, nil
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.bundle, nil
}

type fixture struct {
	fetcher *gateFetcher
	sub     *scene.SimSubstrate
	loader  *catalog.Loader
	caller  *entitytest.RecordingCaller
	manager *entity.Manager
	space   *entity.Space
	co      *Coordinator
	spawns  []*entity.Entity
}

func newFixture(t *testing.T, cfg *config.SpawnConfig) *fixture {
	manifest, err := netutil.MSG_PACKER.PackMsg(map[string]string{"space_demo": "http://assets.test/space_demo"}, nil)
	if err != nil {
		t.Fatalf("pack manifest: %v", err)
	}

	f := &fixture{
		fetcher: &gateFetcher{manifest: manifest, bundle: []byte("bundle-bytes")},
		sub:     scene.NewSimSubstrate(),
		caller:  entitytest.NewRecordingCaller(),
	}
	f.sub.Prepare("space_demo", 2, 1)

	catCfg := &config.CatalogConfig{
		URL:              "http://assets.test/manifest",
		FetchTimeout:     time.Second,
		KeyPrefix:        "space_",
		AttemptTimeout:   time.Second,
		RetryBackoff:     time.Millisecond,
		MaxAttempts:      5,
		ProgressInterval: time.Millisecond,
	}
	f.loader = catalog.NewLoader(catCfg, f.fetcher, f.sub)

	f.manager = entity.NewManager(f.caller)
	f.manager.RegisterEntity("testPlayer", &testPlayer{})
	f.space = entity.NewSpace(f.manager, 0, 100)

	f.co = NewCoordinator(cfg, f.loader, f.sub, f.manager, f.space, f.caller,
		"testPlayer", "space_demo", func(e *entity.Entity, req Request) {
			f.spawns = append(f.spawns, e)
		})

	done := false
	f.loader.LoadCatalog(func(err error) { done = true })
	f.drive(t, func() bool { return done })
	return f
}

func (f *fixture) drive(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for condition")
		}
		timer.Tick()
		post.Tick()
		f.sub.Step()
		time.Sleep(time.Millisecond)
	}
}

func newSpawnConfig() *config.SpawnConfig {
	return &config.SpawnConfig{
		ReadyChecks:        10,
		ReadyCheckInterval: time.Millisecond,
		SettleSteps:        3,
		SettleDelay:        time.Millisecond,
	}
}

func TestSpawnDeferredUntilWorldReady(t *testing.T) {
	f := newFixture(t, newSpawnConfig())
	defer f.loader.Close()
	release := make(chan struct{})
	f.fetcher.release = release

	clientid := common.GenClientID()
	f.co.RequestSpawn(Request{ClientID: clientid, OwnerID: "owner1"})

	// nothing spawns while the world bundle is still in flight
	assert.Equal(t, 1, f.co.PendingCount())
	assert.Equal(t, 0, f.space.GetEntityCount())

	close(release)
	f.drive(t, func() bool { return len(f.spawns) == 1 })

	assert.Equal(t, 0, f.co.PendingCount())
	assert.Equal(t, 1, f.space.CountEntities("testPlayer"))
	assert.Equal(t, true, f.loader.GetWorldInstance("space_demo").VerifiedReady)
	assert.Equal(t, true, f.co.IsSpawned(clientid))

	// the spawned entity owns its client connection; the observer refresh
	// after spawn must not resend (or tear down) the entity on it
	e := f.spawns[0]
	assert.Equal(t, e, f.manager.GetEntityByClient(clientid))
	assert.Equal(t, 1, f.caller.CountKind(clientid, "create"))
	assert.Equal(t, 0, f.caller.CountKind(clientid, "destroy"))
}

func TestNoDuplicateSpawn(t *testing.T) {
	f := newFixture(t, newSpawnConfig())
	defer f.loader.Close()

	clientid := common.GenClientID()
	f.co.RequestSpawn(Request{ClientID: clientid, OwnerID: "owner1"})
	f.co.RequestSpawn(Request{ClientID: clientid, OwnerID: "owner1"})
	f.drive(t, func() bool { return len(f.spawns) == 1 })

	f.co.RequestSpawn(Request{ClientID: clientid, OwnerID: "owner1"})
	for i := 0; i < 20; i++ {
		timer.Tick()
		post.Tick()
		f.sub.Step()
		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, 1, len(f.spawns))
	assert.Equal(t, 1, f.space.CountEntities("testPlayer"))
}

func TestReadinessFailOpen(t *testing.T) {
	cfg := newSpawnConfig()
	cfg.ReadyChecks = 3
	f := newFixture(t, cfg)
	defer f.loader.Close()
	f.sub.Prepare("space_demo", 0, 0) // world root with no structure

	clientid := common.GenClientID()
	f.co.RequestSpawn(Request{ClientID: clientid, OwnerID: "owner1"})
	f.drive(t, func() bool { return len(f.spawns) == 1 })

	// readiness checks exhausted, spawn proceeds anyway
	assert.Equal(t, false, f.loader.GetWorldInstance("space_demo").VerifiedReady)
	assert.Equal(t, 1, f.space.CountEntities("testPlayer"))
}

func TestRespawnAfterDisconnect(t *testing.T) {
	f := newFixture(t, newSpawnConfig())
	defer f.loader.Close()

	clientid := common.GenClientID()
	f.co.RequestSpawn(Request{ClientID: clientid, OwnerID: "owner1"})
	f.drive(t, func() bool { return len(f.spawns) == 1 })

	f.co.OnClientDisconnected(clientid)
	assert.Equal(t, false, f.co.IsSpawned(clientid))
	assert.Equal(t, 0, f.space.CountEntities("testPlayer"))
	assert.Equal(t, true, f.spawns[0].IsDestroyed())

	// the same connection id may spawn again after reconnecting
	f.co.RequestSpawn(Request{ClientID: clientid, OwnerID: "owner1"})
	f.drive(t, func() bool { return len(f.spawns) == 2 })
	assert.Equal(t, 1, f.space.CountEntities("testPlayer"))
}

func TestDisconnectWhileDeferredCancelsSpawn(t *testing.T) {
	f := newFixture(t, newSpawnConfig())
	defer f.loader.Close()
	release := make(chan struct{})
	f.fetcher.release = release

	clientid := common.GenClientID()
	other := common.GenClientID()
	f.co.RequestSpawn(Request{ClientID: clientid, OwnerID: "owner1"})
	f.co.RequestSpawn(Request{ClientID: other, OwnerID: "owner2"})
	f.co.OnClientDisconnected(clientid)

	close(release)
	f.drive(t, func() bool { return len(f.spawns) == 1 })

	assert.Equal(t, "owner2", f.spawns[0].Attrs.GetStr("ownerId"))
}

package avatar

import (
	"sync"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	timer "github.com/xiaonanln/goTimer"
	"golang.org/x/net/context"

	"github.com/holoverse/holoworld/engine/config"
	"github.com/holoverse/holoworld/engine/entity"
	"github.com/holoverse/holoworld/engine/entity/entitytest"
	"github.com/holoverse/holoworld/engine/post"
	"github.com/holoverse/holoworld/engine/scene"
)

type syncPlayer struct {
	entity.Entity
}

func (p *syncPlayer) DescribeEntityType(desc *entity.EntityTypeDesc) {
	desc.DefineAttr("avatarUrl", "AllClients")
}

type countingFetcher struct {
	sync.Mutex
	fails   int
	block   chan struct{}
	fetched []string
}

func (f *countingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.Lock()
	f.fetched = append(f.fetched, url)
	fail := f.fails > 0
	if fail {
		f.fails -= 1
	}
	block := f.block
	f.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("avatar fetch refused")
	}
	return []byte("avatar-bytes"), nil
}

func (f *countingFetcher) calls() int {
	f.Lock()
	defer f.Unlock()
	return len(f.fetched)
}

func newAvatarConfig() *config.AvatarConfig {
	return &config.AvatarConfig{
		DefaultURL:       "",
		URLWaitTimeout:   5 * time.Millisecond,
		URLPollInterval:  time.Millisecond,
		MaxRetries:       3,
		RetryDelay:       time.Millisecond,
		LoadTimeout:      time.Second,
		AttachOffsetY:    0.5,
		BaselineY:        0,
		NameTagHeight:    2.2,
		SelfHealInterval: 5 * time.Millisecond,
	}
}

type fixture struct {
	sub     *scene.SimSubstrate
	fetcher *countingFetcher
	manager *entity.Manager
	space   *entity.Space
	e       *entity.Entity
	rig     scene.Handle
	sync    *Sync
}

func newFixture(t *testing.T, cfg *config.AvatarConfig, isOwner bool) *fixture {
	f := &fixture{
		sub:     scene.NewSimSubstrate(),
		fetcher: &countingFetcher{},
		manager: entity.NewManager(entitytest.NewRecordingCaller()),
	}
	f.manager.RegisterEntity("syncPlayer", &syncPlayer{})
	f.space = entity.NewSpace(f.manager, 0, 100)
	f.e = f.manager.CreateEntity("syncPlayer", f.space, scene.Vector3{})

	f.sub.Prepare("player_rig", 1, 1)
	rig, err := f.sub.Instantiate("player_rig", nil)
	if err != nil {
		t.Fatalf("instantiate rig: %v", err)
	}
	f.rig = rig

	f.sync = New(cfg, f.fetcher, f.sub, f.e, f.rig, isOwner)
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

func TestLoadRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t, newAvatarConfig(), true)
	f.fetcher.fails = 2

	completions := 0
	f.sync.OnLoadComplete(func(success bool) {
		assert.Equal(t, true, success)
		completions += 1
	})

	f.sync.Start()
	f.e.Attrs.SetStr("avatarUrl", "https://avatars.test/alice.vrm")
	f.drive(t, func() bool { return f.sync.State() == StateReady })

	assert.Equal(t, 2, f.sync.RetryCount())
	assert.Equal(t, 1, completions)
	assert.Equal(t, 3, f.fetcher.calls())
	assert.Equal(t, true, f.sync.IsVisible())
	assert.Equal(t, true, f.sync.Handle().Active())
}

func TestRemoteFirstRevealSnapsToBaseline(t *testing.T) {
	f := newFixture(t, newAvatarConfig(), false)
	f.rig.SetPositionY(5)

	hiddenAtComplete := false
	first := true
	f.sync.OnLoadComplete(func(success bool) {
		if first {
			hiddenAtComplete = !f.sync.IsVisible()
			first = false
		}
	})

	// the URL replicated before the watcher started; it must not be missed
	f.e.Attrs.SetStr("avatarUrl", "https://avatars.test/bob.vrm")
	f.sync.Start()
	f.drive(t, func() bool { return f.sync.IsVisible() })

	// avatar stayed hidden through the snap and re-verify step
	assert.Equal(t, true, hiddenAtComplete)
	assert.Equal(t, scene.Coord(0), f.rig.PositionY())
	assert.Equal(t, true, f.sync.Handle().Active())
	assert.Equal(t, true, f.sync.NameTag().Active())

	// an avatar change later never snaps or hides again
	f.rig.SetPositionY(3)
	f.e.Attrs.SetStr("avatarUrl", "https://avatars.test/bob-v2.vrm")
	f.drive(t, func() bool { return f.sync.State() == StateReady && f.sync.Handle().Key() == "https://avatars.test/bob-v2.vrm" })

	assert.Equal(t, scene.Coord(3), f.rig.PositionY())
	assert.Equal(t, true, f.sync.IsVisible())
}

func TestURLNeverArrives(t *testing.T) {
	f := newFixture(t, newAvatarConfig(), false) // no default avatar
	f.sync.Start()

	for i := 0; i < 30; i++ {
		timer.Tick()
		post.Tick()
		f.sub.Step()
		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, StateAwaitingURL, f.sync.State())
	assert.Equal(t, 0, f.fetcher.calls())
	assert.Equal(t, false, f.sync.IsVisible())
}

func TestDefaultAvatarFallback(t *testing.T) {
	cfg := newAvatarConfig()
	cfg.DefaultURL = "local://default_avatar"
	f := newFixture(t, cfg, false)
	f.sync.Start()

	f.drive(t, func() bool { return f.sync.State() == StateReady })
	assert.Equal(t, "local://default_avatar", f.sync.Handle().Key())

	// the real URL arriving later replaces the default
	f.e.Attrs.SetStr("avatarUrl", "https://avatars.test/cara.vrm")
	f.drive(t, func() bool { return f.sync.Handle().Key() == "https://avatars.test/cara.vrm" })
}

func TestRetriesExhaustedStillFiresLoadComplete(t *testing.T) {
	cfg := newAvatarConfig()
	cfg.MaxRetries = 2
	f := newFixture(t, cfg, true)
	f.fetcher.fails = 1000

	completions, successes := 0, 0
	f.sync.OnLoadComplete(func(success bool) {
		completions += 1
		if success {
			successes += 1
		}
	})

	f.sync.Start()
	f.e.Attrs.SetStr("avatarUrl", "https://avatars.test/alice.vrm")
	f.drive(t, func() bool { return f.sync.State() == StateFailed })

	assert.Equal(t, 1, completions)
	assert.Equal(t, 0, successes)
	assert.Equal(t, 2, f.sync.RetryCount())
	assert.Equal(t, 3, f.fetcher.calls())
	assert.Equal(t, false, f.sync.IsVisible())
}

func TestTriggerDroppedWhileLoadInFlight(t *testing.T) {
	f := newFixture(t, newAvatarConfig(), true)
	block := make(chan struct{})
	f.fetcher.block = block

	f.sync.Start()
	f.e.Attrs.SetStr("avatarUrl", "https://avatars.test/alice.vrm")
	f.e.Attrs.SetStr("avatarUrl", "https://avatars.test/alice-v2.vrm") // in flight, dropped

	close(block)
	f.drive(t, func() bool { return f.sync.State() == StateReady })

	assert.Equal(t, 1, f.fetcher.calls())
	assert.Equal(t, "https://avatars.test/alice.vrm", f.sync.Handle().Key())
}

func TestIdenticalURLNotReloaded(t *testing.T) {
	f := newFixture(t, newAvatarConfig(), true)
	f.sync.Start()
	f.e.Attrs.SetStr("avatarUrl", "https://avatars.test/alice.vrm")
	f.drive(t, func() bool { return f.sync.State() == StateReady })
	calls := f.fetcher.calls()

	f.e.Attrs.SetStr("avatarUrl", "https://avatars.test/alice.vrm")
	for i := 0; i < 10; i++ {
		timer.Tick()
		post.Tick()
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, calls, f.fetcher.calls())
}

func TestSelfHealRestoresVisibility(t *testing.T) {
	f := newFixture(t, newAvatarConfig(), true)
	f.sync.Start()
	f.e.Attrs.SetStr("avatarUrl", "https://avatars.test/alice.vrm")
	f.drive(t, func() bool { return f.sync.IsVisible() })

	// something external disabled the avatar; the next heal tick re-asserts it
	f.sync.Handle().SetActive(false)
	f.drive(t, func() bool { return f.sync.Handle().Active() })
	assert.Equal(t, true, f.sync.NameTag().Active())
}

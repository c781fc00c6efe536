package spawn

import (
	timer "github.com/xiaonanln/goTimer"

	"github.com/holoverse/holoworld/engine/catalog"
	"github.com/holoverse/holoworld/engine/common"
	"github.com/holoverse/holoworld/engine/config"
	"github.com/holoverse/holoworld/engine/entity"
	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/hwutils"
	"github.com/holoverse/holoworld/engine/scene"
)

// Request asks for one entity spawn on behalf of a client connection
type Request struct {
	ClientID common.ClientID
	OwnerID  string
	Pos      scene.Vector3
	Attrs    map[string]interface{}
}

// Coordinator spawns one entity per client connection into a space, deferring
// all spawns until the space's world asset is loaded, structurally verified
// and physics-settled. All methods must be called on the main loop.
type Coordinator struct {
	cfg        *config.SpawnConfig
	loader     *catalog.Loader
	substrate  scene.Substrate
	manager    *entity.Manager
	space      *entity.Space
	caller     entity.ClientCaller
	entityType string
	worldKey   string

	spawned   common.ClientIDSet // connections that already got their entity
	pending   []Request
	ready     bool
	preparing bool
	onSpawned func(e *entity.Entity, req Request)
}

// NewCoordinator creates a spawn coordinator for the space whose world is the
// given asset key. onSpawned runs after each entity is spawned and announced,
// and may be nil.
func NewCoordinator(cfg *config.SpawnConfig, loader *catalog.Loader, substrate scene.Substrate,
	manager *entity.Manager, space *entity.Space, caller entity.ClientCaller,
	entityType string, worldKey string, onSpawned func(e *entity.Entity, req Request)) *Coordinator {

	return &Coordinator{
		cfg:        cfg,
		loader:     loader,
		substrate:  substrate,
		manager:    manager,
		space:      space,
		caller:     caller,
		entityType: entityType,
		worldKey:   worldKey,
		spawned:    common.ClientIDSet{},
		onSpawned:  onSpawned,
	}
}

// IsSpawned returns if the connection already has its entity
func (co *Coordinator) IsSpawned(clientid common.ClientID) bool {
	return co.spawned.Contains(clientid)
}

// PendingCount returns the number of deferred spawn requests
func (co *Coordinator) PendingCount() int {
	return len(co.pending)
}

// RequestSpawn spawns the connection's entity, or defers the spawn until the
// world is ready. At most one entity is ever spawned per connection;
// duplicate requests are dropped.
func (co *Coordinator) RequestSpawn(req Request) {
	if co.spawned.Contains(req.ClientID) {
		hwlog.Warnf("spawn: duplicate request for client %s dropped", req.ClientID)
		return
	}
	co.spawned.Add(req.ClientID)

	if co.ready {
		co.spawnNow(req)
		return
	}

	co.pending = append(co.pending, req)
	co.prepareWorld()
}

// OnClientDisconnected releases the connection: its entity is destroyed and a
// future reconnect may spawn again
func (co *Coordinator) OnClientDisconnected(clientid common.ClientID) {
	co.spawned.Del(clientid)

	for i, req := range co.pending {
		if req.ClientID == clientid {
			co.pending = append(co.pending[:i], co.pending[i+1:]...)
			break
		}
	}

	co.manager.OnClientDisconnected(clientid)
}

// prepareWorld runs the one-time readiness sequence: wait for the world asset,
// verify its structure, then let physics settle
func (co *Coordinator) prepareWorld() {
	if co.preparing || co.ready {
		return
	}
	co.preparing = true

	if co.loader.IsLoaded(co.worldKey) {
		co.verifyWorld()
		return
	}

	co.loader.AddListener(co.worldKey, catalog.Listener{
		OnComplete: func(h *catalog.AssetHandle) {
			co.verifyWorld()
		},
		OnFailed: func(h *catalog.AssetHandle, reason string) {
			hwlog.Errorf("spawn: world %s failed to load, dropping %d pending spawns: %s", co.worldKey, len(co.pending), reason)
			for _, req := range co.pending {
				co.spawned.Del(req.ClientID)
			}
			co.pending = nil
			co.preparing = false
		},
	})
	co.loader.LoadAsset(co.worldKey)
}

// verifyWorld polls the world root for structural readiness: at least one
// child and one collider. Exhausting the checks is non-fatal; spawning
// proceeds with a warning rather than stranding the pending connections.
func (co *Coordinator) verifyWorld() {
	world := co.loader.GetWorldInstance(co.worldKey)
	checksLeft := co.cfg.ReadyChecks

	var poll *timer.Timer
	poll = timer.AddTimer(co.cfg.ReadyCheckInterval, func() {
		if world.Root.ChildCount() > 0 && world.Root.ColliderCount() >= 1 {
			poll.Cancel()
			world.VerifiedReady = true
			co.settleWorld()
			return
		}

		checksLeft -= 1
		if checksLeft <= 0 {
			poll.Cancel()
			hwlog.Warnf("spawn: world %s never became structurally ready (children=%d, colliders=%d), spawning anyway",
				co.worldKey, world.Root.ChildCount(), world.Root.ColliderCount())
			co.settleWorld()
		}
	})
}

// settleWorld waits a few physics steps plus a fixed delay before the first
// spawns so freshly instantiated geometry has collision in place
func (co *Coordinator) settleWorld() {
	co.substrate.AfterPhysicsSteps(co.cfg.SettleSteps, func() {
		timer.AddCallback(co.cfg.SettleDelay, func() {
			co.ready = true
			pending := co.pending
			co.pending = nil
			hwlog.Infof("spawn: world %s settled, spawning %d pending entities", co.worldKey, len(pending))
			for _, req := range pending {
				co.spawnNow(req)
			}
		})
	})
}

func (co *Coordinator) spawnNow(req Request) {
	// the connection may have dropped while the spawn was deferred
	if !co.spawned.Contains(req.ClientID) {
		return
	}

	attrs := map[string]interface{}{"ownerId": req.OwnerID}
	for k, v := range req.Attrs {
		attrs[k] = v
	}

	e := co.manager.CreateEntityWithData(co.entityType, co.space, req.Pos, attrs)
	e.SetClient(entity.MakeGameClient(req.ClientID, co.caller))
	co.space.RefreshObservers(e)

	hwlog.Infof("spawn: %s spawned for client %s (owner %s)", e, req.ClientID, req.OwnerID)
	if co.onSpawned != nil {
		hwutils.RunPanicless(func() { co.onSpawned(e, req) })
	}
}

package identity

import (
	timer "github.com/xiaonanln/goTimer"

	"github.com/holoverse/holoworld/engine/common"
	"github.com/holoverse/holoworld/engine/config"
	"github.com/holoverse/holoworld/engine/entity"
	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/hwutils"
	"github.com/holoverse/holoworld/engine/registry"
)

// NameStore persists owner names across sessions. Satisfied by
// registry.Registry; nil disables persistence.
type NameStore interface {
	Get(key string, callback registry.GetCallback)
	Put(key string, val string, callback registry.PutCallback)
}

// Protocol maintains the authoritative entity-to-name registry. Owners submit
// their name after spawning; if none arrives within the submit window the
// entity falls back to a generated default. Name changes broadcast to every
// client, and each new joiner gets a targeted backfill of all existing names.
// All methods must be called on the main loop.
type Protocol struct {
	cfg     *config.IdentityConfig
	store   NameStore
	manager *entity.Manager

	names     map[common.EntityID]string
	waiters   map[common.EntityID]*timer.Timer
	broadcast func(e *entity.Entity, name string)
	onName    func(e *entity.Entity, name string)
}

// NewProtocol creates the identity protocol. store may be nil. broadcast fans
// a newly applied name out to all clients; nil falls back to calling
// BroadcastName on every client observing the entity. onName runs after a name
// is applied to an entity (after attrs and broadcasts) and may be nil.
func NewProtocol(cfg *config.IdentityConfig, store NameStore, manager *entity.Manager,
	broadcast func(e *entity.Entity, name string), onName func(e *entity.Entity, name string)) *Protocol {

	return &Protocol{
		cfg:       cfg,
		store:     store,
		manager:   manager,
		names:     map[common.EntityID]string{},
		waiters:   map[common.EntityID]*timer.Timer{},
		broadcast: broadcast,
		onName:    onName,
	}
}

// GetName returns the entity's display name, or ""
func (p *Protocol) GetName(entityID common.EntityID) string {
	return p.names[entityID]
}

// OnEntitySpawned starts the naming flow for a freshly spawned entity and
// backfills every existing name to its client
func (p *Protocol) OnEntitySpawned(e *entity.Entity) {
	if _, ok := p.waiters[e.ID]; ok || p.names[e.ID] != "" {
		return
	}

	p.backfillTo(e)

	ownerID := e.Attrs.GetStr("ownerId")
	p.waiters[e.ID] = e.AddCallback(p.cfg.SubmitTimeout, func() {
		delete(p.waiters, e.ID)
		if p.names[e.ID] != "" {
			return
		}
		name := p.cfg.DefaultNamePrefix + ownerID
		hwlog.Infof("identity: %s got no submitted name, defaulting to %s", e, name)
		p.applyName(e, name)
	})

	if p.store != nil {
		p.store.Get(nameKey(ownerID), func(val string, err error) {
			if err != nil {
				hwlog.Warnf("identity: stored name lookup for %s failed: %v", ownerID, err)
				return
			}
			if val == "" || e.IsDestroyed() || p.names[e.ID] != "" {
				return
			}
			p.applyName(e, val)
		})
	}
}

// SubmitName applies the owner-submitted name to its entity. Repeated
// submissions of the same name are no-ops.
func (p *Protocol) SubmitName(e *entity.Entity, name string) {
	if name == "" || p.names[e.ID] == name {
		return
	}
	p.applyName(e, name)

	if p.store != nil {
		ownerID := e.Attrs.GetStr("ownerId")
		p.store.Put(nameKey(ownerID), name, func(err error) {
			if err != nil {
				hwlog.Warnf("identity: persisting name of %s failed: %v", ownerID, err)
			}
		})
	}
}

// OnEntityDestroyed drops the entity from the registry
func (p *Protocol) OnEntityDestroyed(e *entity.Entity) {
	delete(p.names, e.ID)
	delete(p.waiters, e.ID)
}

// applyName records the name, replicates it and broadcasts the change.
// Applying the current name again changes nothing.
func (p *Protocol) applyName(e *entity.Entity, name string) {
	if p.names[e.ID] == name {
		return
	}
	p.names[e.ID] = name

	if t, ok := p.waiters[e.ID]; ok {
		e.CancelTimer(t)
		delete(p.waiters, e.ID)
	}

	e.Attrs.SetStr("playerName", name)
	if p.broadcast != nil {
		p.broadcast(e, name)
	} else {
		e.CallAllClients("BroadcastName", string(e.ID), name)
	}

	if p.onName != nil {
		hwutils.RunPanicless(func() { p.onName(e, name) })
	}
}

// backfillTo sends the new joiner one targeted message per already-named
// entity, so late joiners see every existing name tag
func (p *Protocol) backfillTo(e *entity.Entity) {
	p.manager.TraverseByType(e.TypeName, func(other *entity.Entity) {
		if other == e {
			return
		}
		name := p.names[other.ID]
		if name == "" {
			return
		}
		e.CallClient("BackfillName", string(other.ID), name)
	})
}

func nameKey(ownerID string) string {
	return "name:" + ownerID
}

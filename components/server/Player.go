package main

import (
	"github.com/holoverse/holoworld/engine/avatar"
	"github.com/holoverse/holoworld/engine/config"
	"github.com/holoverse/holoworld/engine/entity"
	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/scene"
)

const (
	_PLAYER_AOI_DISTANCE = 100
	_PLAYER_RIG_KEY      = "player_rig"
)

// Player is the entity type for connected clients
type Player struct {
	entity.Entity

	rig        scene.Handle
	avatarSync *avatar.Sync
}

// DescribeEntityType defines the Player replicated attributes
func (p *Player) DescribeEntityType(desc *entity.EntityTypeDesc) {
	desc.SetUseAOI(true, _PLAYER_AOI_DISTANCE)
	desc.DefineAttr("playerName", "AllClients")
	desc.DefineAttr("avatarUrl", "AllClients")
	desc.DefineAttr("ownerId", "AllClients")
}

// OnCreated is called when Player entity is created
func (p *Player) OnCreated() {
	rig, err := server.substrate.Instantiate(_PLAYER_RIG_KEY, nil)
	if err != nil {
		hwlog.Errorf("%s: instantiate rig failed: %v", p, err)
	} else {
		p.rig = rig
	}

	p.avatarSync = avatar.New(config.GetAvatar(), server.fetcher, server.substrate, &p.Entity, p.rig, false)
	p.avatarSync.Start()
}

// OnClientDisconnected is called when the client disconnects
func (p *Player) OnClientDisconnected() {
	p.Destroy()
}

// OnDestroy is called when Player entity is destroyed
func (p *Player) OnDestroy() {
	server.identity.OnEntityDestroyed(&p.Entity)
	if p.avatarSync != nil {
		p.avatarSync.Stop()
		if h := p.avatarSync.Handle(); h != nil && !h.IsDestroyed() {
			h.Destroy()
		}
		if tag := p.avatarSync.NameTag(); tag != nil && !tag.IsDestroyed() {
			tag.Destroy()
		}
	}
	if p.rig != nil && !p.rig.IsDestroyed() {
		p.rig.Destroy()
	}
}

// SubmitName_Client is called by the client to set its display name
func (p *Player) SubmitName_Client(name string) {
	server.identity.SubmitName(&p.Entity, name)
}

// SetAvatarUrl_Client is called by the client to set its avatar bundle URL
func (p *Player) SetAvatarUrl_Client(url string) {
	if url == "" || p.Attrs.GetStr("avatarUrl") == url {
		return
	}
	p.Attrs.SetStr("avatarUrl", url)
}

// Move_Client is called by the client to move the player
func (p *Player) Move_Client(x, y, z float32) {
	pos := scene.Vector3{X: scene.Coord(x), Y: scene.Coord(y), Z: scene.Coord(z)}
	p.Space.Move(&p.Entity, pos)
}

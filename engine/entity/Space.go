package entity

import (
	"fmt"

	"github.com/xiaonanln/go-aoi"

	"github.com/holoverse/holoworld/engine/common"
	"github.com/holoverse/holoworld/engine/hwutils"
	"github.com/holoverse/holoworld/engine/scene"
)

// Space is a shared area of entities, with interest management among them
type Space struct {
	ID       common.EntityID
	Kind     int
	entities EntitySet
	aoiMgr   aoi.AOIManager
	manager  *Manager
}

// NewSpace creates a space managed by the entity manager
func NewSpace(manager *Manager, kind int, aoiDistance scene.Coord) *Space {
	return &Space{
		ID:       common.GenEntityID(),
		Kind:     kind,
		entities: EntitySet{},
		aoiMgr:   aoi.NewXZListAOIManager(aoi.Coord(aoiDistance)),
		manager:  manager,
	}
}

func (space *Space) String() string {
	if space == nil {
		return "Space<nil>"
	}
	return fmt.Sprintf("Space<%d|%s>", space.Kind, space.ID)
}

func (space *Space) enter(entity *Entity, pos scene.Vector3) {
	entity.Space = space
	entity.Position = pos
	space.entities.Add(entity)

	if entity.typeDesc.useAOI {
		space.aoiMgr.Enter(&entity.aoi, aoi.Coord(pos.X), aoi.Coord(pos.Z))
	}

	hwutils.RunPanicless(entity.I.OnEnterSpace)
}

func (space *Space) leave(entity *Entity) {
	if entity.Space != space {
		return
	}

	if entity.typeDesc.useAOI {
		space.aoiMgr.Leave(&entity.aoi)
	}

	space.entities.Del(entity)
	entity.Space = nil

	hwutils.RunPanicless(func() {
		entity.I.OnLeaveSpace(space)
	})
}

// Move moves the entity to the new position, adjusting interest relations
func (space *Space) Move(entity *Entity, newPos scene.Vector3) {
	entity.Position = newPos
	if entity.typeDesc.useAOI {
		space.aoiMgr.Moved(&entity.aoi, aoi.Coord(newPos.X), aoi.Coord(newPos.Z))
	}
}

// RefreshObservers tears down and recreates the entity on every observing
// neighbor's client, forcing the observers back to a consistent view. The
// entity's own client is untouched: it received its create when the client
// was attached, and destroy/create churn would reset its local state.
func (space *Space) RefreshObservers(entity *Entity) {
	if entity.Space != space {
		return
	}

	for other := range space.entities {
		if other == entity || other.client == nil {
			continue
		}
		if other.Neighbors.Contains(entity) {
			other.client.sendDestroyEntity(entity)
			other.client.sendCreateEntity(entity, false)
		}
	}
}

// CountEntities returns the number of entities of the type in the space
func (space *Space) CountEntities(typeName string) int {
	count := 0
	for entity := range space.entities {
		if entity.TypeName == typeName {
			count += 1
		}
	}
	return count
}

// GetEntityCount returns the number of entities in the space
func (space *Space) GetEntityCount() int {
	return len(space.entities)
}

// ForEachEntity visits all entities in the space
func (space *Space) ForEachEntity(f func(e *Entity)) {
	for entity := range space.entities {
		f(entity)
	}
}

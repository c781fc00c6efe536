package common

import (
	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/uuid"
)

// ENTITYID_LENGTH is the length of Entity IDs
const ENTITYID_LENGTH = uuid.UUID_LENGTH

// EntityID is the ID of a networked entity
type EntityID string

// IsNil returns if EntityID is nil
func (id EntityID) IsNil() bool {
	return id == ""
}

// GenEntityID generates a new EntityID
func GenEntityID() EntityID {
	return EntityID(uuid.GenUUID())
}

// MustEntityID assures a string to be EntityID
func MustEntityID(id string) EntityID {
	if len(id) != ENTITYID_LENGTH {
		hwlog.Panicf("%s of len %d is not a valid entity ID (len=%d)", id, len(id), ENTITYID_LENGTH)
	}
	return EntityID(id)
}

// CLIENTID_LENGTH is the length of Client IDs
const CLIENTID_LENGTH = uuid.UUID_LENGTH

// ClientID is the ID of a connected client peer
type ClientID string

// GenClientID generates a new ClientID
func GenClientID() ClientID {
	return ClientID(uuid.GenUUID())
}

// IsNil returns if ClientID is nil
func (id ClientID) IsNil() bool {
	return id == ""
}

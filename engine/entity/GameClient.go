package entity

import (
	"fmt"

	"github.com/holoverse/holoworld/engine/common"
)

// ClientCaller delivers server-to-client traffic for connected peers.
// The gate implements it for real connections; tests provide recorders.
type ClientCaller interface {
	SendCreateEntityOnClient(clientid common.ClientID, typeName string, entityid common.EntityID, isPlayer bool, x, y, z, yaw float32, attrs map[string]interface{})
	SendDestroyEntityOnClient(clientid common.ClientID, typeName string, entityid common.EntityID)
	SendNotifyAttrChangeOnClient(clientid common.ClientID, entityid common.EntityID, key string, val interface{})
	SendNotifyAttrDelOnClient(clientid common.ClientID, entityid common.EntityID, key string)
	SendCallEntityMethodOnClient(clientid common.ClientID, entityid common.EntityID, method string, args []interface{})
}

// GameClient represents the game client of entity
//
// Each entity can have at most one GameClient, and GameClient can be given to other entities
type GameClient struct {
	clientid common.ClientID
	caller   ClientCaller
}

// MakeGameClient creates a GameClient object using client ID and caller
func MakeGameClient(clientid common.ClientID, caller ClientCaller) *GameClient {
	return &GameClient{
		clientid: clientid,
		caller:   caller,
	}
}

// ClientID returns the client ID of the GameClient
func (client *GameClient) ClientID() common.ClientID {
	if client == nil {
		return ""
	}
	return client.clientid
}

func (client *GameClient) String() string {
	if client == nil {
		return "GameClient<nil>"
	}
	return fmt.Sprintf("GameClient<%s>", client.clientid)
}

func (client *GameClient) sendCreateEntity(entity *Entity, isPlayer bool) {
	if client == nil {
		return
	}

	var clientData map[string]interface{}
	if !isPlayer {
		clientData = entity.getAllClientData()
	} else {
		clientData = entity.getClientData()
	}

	pos := entity.Position
	client.caller.SendCreateEntityOnClient(client.clientid, entity.TypeName, entity.ID, isPlayer,
		float32(pos.X), float32(pos.Y), float32(pos.Z), entity.Yaw, clientData)
}

func (client *GameClient) sendDestroyEntity(entity *Entity) {
	if client == nil {
		return
	}
	client.caller.SendDestroyEntityOnClient(client.clientid, entity.TypeName, entity.ID)
}

func (client *GameClient) sendNotifyAttrChange(entityID common.EntityID, key string, val interface{}) {
	if client == nil {
		return
	}
	client.caller.SendNotifyAttrChangeOnClient(client.clientid, entityID, key, val)
}

func (client *GameClient) sendNotifyAttrDel(entityID common.EntityID, key string) {
	if client == nil {
		return
	}
	client.caller.SendNotifyAttrDelOnClient(client.clientid, entityID, key)
}

func (client *GameClient) call(entityID common.EntityID, method string, args []interface{}) {
	if client == nil {
		return
	}
	client.caller.SendCallEntityMethodOnClient(client.clientid, entityID, method, args)
}

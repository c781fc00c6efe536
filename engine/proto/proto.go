package proto

import (
	"github.com/holoverse/holoworld/engine/common"
	"github.com/holoverse/holoworld/engine/netutil"
)

// MsgType is the type of message types
type MsgType uint16

const (
	// MT_INVALID is the invalid message type
	MT_INVALID = iota
	// MT_CLIENT_HELLO is sent by client right after connecting to announce itself
	MT_CLIENT_HELLO
	// MT_SET_CLIENT_CLIENTID tells the client its assigned client ID
	MT_SET_CLIENT_CLIENTID
	// MT_CALL_ENTITY_METHOD_FROM_CLIENT is a message type for client-initiated entity calls
	MT_CALL_ENTITY_METHOD_FROM_CLIENT
	// MT_CREATE_ENTITY_ON_CLIENT message type
	MT_CREATE_ENTITY_ON_CLIENT
	// MT_DESTROY_ENTITY_ON_CLIENT message type
	MT_DESTROY_ENTITY_ON_CLIENT
	// MT_NOTIFY_ATTR_CHANGE_ON_CLIENT message type
	MT_NOTIFY_ATTR_CHANGE_ON_CLIENT
	// MT_NOTIFY_ATTR_DEL_ON_CLIENT message type
	MT_NOTIFY_ATTR_DEL_ON_CLIENT
	// MT_CALL_ENTITY_METHOD_ON_CLIENT message type
	MT_CALL_ENTITY_METHOD_ON_CLIENT
	// MT_HEARTBEAT_FROM_CLIENT is sent by client to notify the gate that it is alive
	MT_HEARTBEAT_FROM_CLIENT
)

// Message is the envelope of every packet exchanged between gate and client
type Message struct {
	Type    MsgType
	Payload []byte
}

// ClientHello is the first message a client sends after connecting
type ClientHello struct {
	OwnerID string
}

// SetClientClientID tells the client the ID assigned by the gate
type SetClientClientID struct {
	ClientID common.ClientID
}

// CreateEntityOnClient instructs the client to construct an entity view
type CreateEntityOnClient struct {
	TypeName string
	EntityID common.EntityID
	IsPlayer bool
	X        float32
	Y        float32
	Z        float32
	Yaw      float32
	Attrs    map[string]interface{}
}

// DestroyEntityOnClient instructs the client to drop an entity view
type DestroyEntityOnClient struct {
	TypeName string
	EntityID common.EntityID
}

// NotifyAttrChangeOnClient replicates a single attribute change
type NotifyAttrChangeOnClient struct {
	EntityID common.EntityID
	Key      string
	Val      interface{}
}

// NotifyAttrDelOnClient replicates a single attribute removal
type NotifyAttrDelOnClient struct {
	EntityID common.EntityID
	Key      string
}

// CallEntityMethodOnClient calls a client-side entity method
type CallEntityMethodOnClient struct {
	EntityID common.EntityID
	Method   string
	Args     [][]byte
}

// CallEntityMethodFromClient calls a server-side entity method on behalf of the client
type CallEntityMethodFromClient struct {
	EntityID common.EntityID
	Method   string
	Args     [][]byte
}

// PackMessage packs a typed message into an envelope ready for the wire
func PackMessage(msgtype MsgType, msg interface{}) (*Message, error) {
	payload, err := netutil.MSG_PACKER.PackMsg(msg, nil)
	if err != nil {
		return nil, err
	}
	return &Message{Type: msgtype, Payload: payload}, nil
}

// UnpackPayload unpacks the envelope payload into the typed message
func (m *Message) UnpackPayload(msg interface{}) error {
	return netutil.MSG_PACKER.UnpackMsg(m.Payload, msg)
}

// PackArgs packs each call argument independently in MessagePack format
func PackArgs(args []interface{}) ([][]byte, error) {
	packed := make([][]byte, len(args))
	for i, arg := range args {
		data, err := netutil.MSG_PACKER.PackMsg(arg, nil)
		if err != nil {
			return nil, err
		}
		packed[i] = data
	}
	return packed, nil
}

// UnpackArgs unpacks packed call arguments to plain values
func UnpackArgs(packed [][]byte) ([]interface{}, error) {
	args := make([]interface{}, len(packed))
	for i, data := range packed {
		var arg interface{}
		if err := netutil.MSG_PACKER.UnpackMsg(data, &arg); err != nil {
			return nil, err
		}
		args[i] = arg
	}
	return args, nil
}

package proto

import (
	"net"

	"github.com/xiaonanln/pktconn"

	"github.com/holoverse/holoworld/engine/common"
	"github.com/holoverse/holoworld/engine/netutil"
)

// HoloConnection is the connection for exchanging holoworld messages between gate and client
type HoloConnection struct {
	packetConn *netutil.PacketConnection
}

// NewHoloConnection creates a HoloConnection using the network connection
func NewHoloConnection(conn netutil.Connection, tag interface{}) *HoloConnection {
	return &HoloConnection{
		packetConn: netutil.NewPacketConnection(conn, tag),
	}
}

// SendSetClientClientID sends the assigned client ID to the client
func (hc *HoloConnection) SendSetClientClientID(clientid common.ClientID) error {
	return hc.sendMessage(MT_SET_CLIENT_CLIENTID, &SetClientClientID{ClientID: clientid})
}

// SendCreateEntityOnClient sends MT_CREATE_ENTITY_ON_CLIENT message
func (hc *HoloConnection) SendCreateEntityOnClient(typeName string, entityid common.EntityID, isPlayer bool, x, y, z, yaw float32, attrs map[string]interface{}) error {
	return hc.sendMessage(MT_CREATE_ENTITY_ON_CLIENT, &CreateEntityOnClient{
		TypeName: typeName,
		EntityID: entityid,
		IsPlayer: isPlayer,
		X:        x,
		Y:        y,
		Z:        z,
		Yaw:      yaw,
		Attrs:    attrs,
	})
}

// SendDestroyEntityOnClient sends MT_DESTROY_ENTITY_ON_CLIENT message
func (hc *HoloConnection) SendDestroyEntityOnClient(typeName string, entityid common.EntityID) error {
	return hc.sendMessage(MT_DESTROY_ENTITY_ON_CLIENT, &DestroyEntityOnClient{
		TypeName: typeName,
		EntityID: entityid,
	})
}

// SendNotifyAttrChangeOnClient sends MT_NOTIFY_ATTR_CHANGE_ON_CLIENT message
func (hc *HoloConnection) SendNotifyAttrChangeOnClient(entityid common.EntityID, key string, val interface{}) error {
	return hc.sendMessage(MT_NOTIFY_ATTR_CHANGE_ON_CLIENT, &NotifyAttrChangeOnClient{
		EntityID: entityid,
		Key:      key,
		Val:      val,
	})
}

// SendNotifyAttrDelOnClient sends MT_NOTIFY_ATTR_DEL_ON_CLIENT message
func (hc *HoloConnection) SendNotifyAttrDelOnClient(entityid common.EntityID, key string) error {
	return hc.sendMessage(MT_NOTIFY_ATTR_DEL_ON_CLIENT, &NotifyAttrDelOnClient{
		EntityID: entityid,
		Key:      key,
	})
}

// SendCallEntityMethodOnClient sends MT_CALL_ENTITY_METHOD_ON_CLIENT message
func (hc *HoloConnection) SendCallEntityMethodOnClient(entityid common.EntityID, method string, args []interface{}) error {
	packedArgs, err := PackArgs(args)
	if err != nil {
		return err
	}
	return hc.sendMessage(MT_CALL_ENTITY_METHOD_ON_CLIENT, &CallEntityMethodOnClient{
		EntityID: entityid,
		Method:   method,
		Args:     packedArgs,
	})
}

// SendCallEntityMethodFromClient sends MT_CALL_ENTITY_METHOD_FROM_CLIENT message
func (hc *HoloConnection) SendCallEntityMethodFromClient(entityid common.EntityID, method string, args []interface{}) error {
	packedArgs, err := PackArgs(args)
	if err != nil {
		return err
	}
	return hc.sendMessage(MT_CALL_ENTITY_METHOD_FROM_CLIENT, &CallEntityMethodFromClient{
		EntityID: entityid,
		Method:   method,
		Args:     packedArgs,
	})
}

// SendClientHello sends MT_CLIENT_HELLO message
func (hc *HoloConnection) SendClientHello(ownerID string) error {
	return hc.sendMessage(MT_CLIENT_HELLO, &ClientHello{OwnerID: ownerID})
}

func (hc *HoloConnection) sendMessage(msgtype MsgType, msg interface{}) error {
	envelope, err := PackMessage(msgtype, msg)
	if err != nil {
		return err
	}
	return hc.packetConn.SendMsg(envelope)
}

// RecvChan receives raw packets to the channel
func (hc *HoloConnection) RecvChan(recvChan chan *pktconn.Packet) error {
	return hc.packetConn.RecvChan(recvChan)
}

// UnpackMessage decodes the envelope carried by a received packet
func UnpackMessage(packet *pktconn.Packet) (*Message, error) {
	var msg Message
	if err := netutil.MSG_PACKER.UnpackMsg(packet.Payload(), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Close closes the underlying connection
func (hc *HoloConnection) Close() error {
	return hc.packetConn.Close()
}

// RemoteAddr returns the remote address
func (hc *HoloConnection) RemoteAddr() net.Addr {
	return hc.packetConn.RemoteAddr()
}

// LocalAddr returns the local address
func (hc *HoloConnection) LocalAddr() net.Addr {
	return hc.packetConn.LocalAddr()
}

func (hc *HoloConnection) String() string {
	return hc.packetConn.String()
}

package netutil

import (
	"fmt"
	"net"

	"github.com/xiaonanln/pktconn"
	"golang.org/x/net/context"
)

// PacketConnection is a connection that send and receive data packets upon a network stream connection
type PacketConnection pktconn.PacketConn

// NewPacketConnection creates a packet connection based on network connection
func NewPacketConnection(conn Connection, tag interface{}) *PacketConnection {
	config := pktconn.DefaultConfig()
	config.Tag = tag
	return (*PacketConnection)(pktconn.NewPacketConnWithConfig(context.TODO(), conn, config))
}

// NewPacket allocates a new packet (usually for sending)
func (pc *PacketConnection) NewPacket() *pktconn.Packet {
	return pktconn.NewPacket()
}

// SendPacket send packets to remote
func (pc *PacketConnection) SendPacket(packet *pktconn.Packet) {
	(*pktconn.PacketConn)(pc).Send(packet)
}

// SendMsg packs the message and sends it as a single packet
func (pc *PacketConnection) SendMsg(msg interface{}) error {
	buf, err := MSG_PACKER.PackMsg(msg, nil)
	if err != nil {
		return err
	}

	packet := pktconn.NewPacket()
	packet.WriteBytes(buf)
	(*pktconn.PacketConn)(pc).Send(packet)
	return nil
}

// RecvChan receives packets to the channel
func (pc *PacketConnection) RecvChan(recvChan chan *pktconn.Packet) error {
	return (*pktconn.PacketConn)(pc).RecvChan(recvChan)
}

// Close the connection
func (pc *PacketConnection) Close() error {
	return (*pktconn.PacketConn)(pc).Close()
}

// RemoteAddr return the remote address
func (pc *PacketConnection) RemoteAddr() net.Addr {
	return (*pktconn.PacketConn)(pc).RemoteAddr()
}

// LocalAddr returns the local address
func (pc *PacketConnection) LocalAddr() net.Addr {
	return (*pktconn.PacketConn)(pc).LocalAddr()
}

func (pc *PacketConnection) String() string {
	return fmt.Sprintf("[%s >>> %s]", pc.LocalAddr(), pc.RemoteAddr())
}

package main

import (
	"fmt"
	"net"
	"time"

	"github.com/xiaonanln/netconnutil"
	"github.com/xiaonanln/pktconn"

	"github.com/holoverse/holoworld/engine/common"
	"github.com/holoverse/holoworld/engine/config"
	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/netutil"
	"github.com/holoverse/holoworld/engine/post"
	"github.com/holoverse/holoworld/engine/proto"
)

const (
	_CLIENT_PROXY_READ_BUFFER_SIZE  = 16384
	_CLIENT_PROXY_WRITE_BUFFER_SIZE = 16384
	_CLIENT_PROXY_SET_TCP_NO_DELAY  = true
	_CLIENT_PROXY_RECV_CHAN_SIZE    = 100
)

// ClientProxy is a game client connection managed by the gate
type ClientProxy struct {
	*proto.HoloConnection
	clientid      common.ClientID
	filterProps   map[string]string
	heartbeatTime time.Time
	ownerEntityID common.EntityID // owner entity's ID
}

func newClientProxy(_conn net.Conn, cfg *config.GateConfig) *ClientProxy {
	_conn = netconnutil.NewNoTempErrorConn(_conn)
	var conn netutil.Connection = netutil.NetConn{Conn: _conn}
	if cfg.CompressConnection {
		conn = netconnutil.NewSnappyConn(conn)
	}
	conn = netconnutil.NewBufferedConn(conn, _CLIENT_PROXY_READ_BUFFER_SIZE, _CLIENT_PROXY_WRITE_BUFFER_SIZE)
	clientProxy := &ClientProxy{
		clientid:      common.GenClientID(), // each client has its unique clientid
		filterProps:   map[string]string{},
		heartbeatTime: time.Now(),
	}
	clientProxy.HoloConnection = proto.NewHoloConnection(conn, clientProxy)
	return clientProxy
}

func (cp *ClientProxy) String() string {
	return fmt.Sprintf("ClientProxy<%s@%s>", cp.clientid, cp.RemoteAddr())
}

func (cp *ClientProxy) serve(gs *GateService) {
	defer func() {
		cp.Close()
		// tell the gate service that this client is down
		post.Post(func() {
			gs.onClientProxyClose(cp)
		})

		if err := recover(); err != nil && !netutil.IsConnectionError(err.(error)) {
			hwlog.TraceError("%s error: %s", cp, err.(error))
		} else {
			hwlog.Debugf("%s disconnected", cp)
		}
	}()

	recvChan := make(chan *pktconn.Packet, _CLIENT_PROXY_RECV_CHAN_SIZE)
	go func() {
		err := cp.RecvChan(recvChan)
		if err != nil && !netutil.IsConnectionError(err) {
			hwlog.TraceError("%s recv error: %s", cp, err)
		}
		close(recvChan)
	}()

	for packet := range recvChan {
		gs.packetQueue <- clientPacket{cp: cp, packet: packet}
	}
}

package main

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/pktconn"
	kcp "github.com/xtaci/kcp-go"
	"golang.org/x/net/websocket"

	"github.com/holoverse/holoworld/engine/common"
	"github.com/holoverse/holoworld/engine/config"
	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/hwutils"
	"github.com/holoverse/holoworld/engine/netutil"
)

const (
	_PACKET_QUEUE_SIZE = 10000
)

type clientPacket struct {
	cp     *ClientProxy
	packet *pktconn.Packet
}

// GateService accepts client connections and pumps their packets to the game loop
type GateService struct {
	listenAddr        string
	clientProxies     map[common.ClientID]*ClientProxy
	clientProxiesLock sync.RWMutex
	filterTrees       map[string]*_FilterTree
	filterTreesLock   sync.Mutex
	packetQueue       chan clientPacket

	terminating xnsyncutil.AtomicBool
	terminated  *xnsyncutil.OneTimeCond
}

func newGateService() *GateService {
	return &GateService{
		clientProxies: map[common.ClientID]*ClientProxy{},
		filterTrees:   map[string]*_FilterTree{},
		packetQueue:   make(chan clientPacket, _PACKET_QUEUE_SIZE),
		terminated:    xnsyncutil.NewOneTimeCond(),
	}
}

func (gs *GateService) run() {
	cfg := config.GetGate()
	hwlog.Infof("Compress connection: %v", cfg.CompressConnection)

	gs.listenAddr = fmt.Sprintf("%s:%d", cfg.Ip, cfg.Port)
	go netutil.ServeTCPForever(gs.listenAddr, gs)
	go gs.serveKCP(gs.listenAddr)
	if cfg.WebsocketPort != 0 {
		go gs.serveWebsocket(fmt.Sprintf("%s:%d", cfg.Ip, cfg.WebsocketPort))
	}
}

func (gs *GateService) String() string {
	return fmt.Sprintf("GateService<%s>", gs.listenAddr)
}

// ServeTCPConnection handles TCP connections from clients
func (gs *GateService) ServeTCPConnection(conn net.Conn) {
	tcpConn := conn.(*net.TCPConn)
	tcpConn.SetWriteBuffer(_CLIENT_PROXY_WRITE_BUFFER_SIZE)
	tcpConn.SetReadBuffer(_CLIENT_PROXY_READ_BUFFER_SIZE)
	tcpConn.SetNoDelay(_CLIENT_PROXY_SET_TCP_NO_DELAY)

	gs.handleClientConnection(conn)
}

func (gs *GateService) serveKCP(addr string) {
	kcpListener, err := kcp.ListenWithOptions(addr, nil, 10, 3)
	if err != nil {
		hwlog.Panic(err)
	}

	hwlog.Infof("Listening on KCP: %s ...", addr)

	hwutils.RepeatUntilPanicless(func() {
		for {
			conn, err := kcpListener.AcceptKCP()
			if err != nil {
				hwlog.Panic(err)
			}
			go gs.handleKCPConn(conn)
		}
	})
}

func (gs *GateService) handleKCPConn(conn *kcp.UDPSession) {
	hwlog.Infof("KCP connection from %s", conn.RemoteAddr())

	conn.SetReadBuffer(_CLIENT_PROXY_READ_BUFFER_SIZE)
	conn.SetWriteBuffer(_CLIENT_PROXY_WRITE_BUFFER_SIZE)
	// turn on turbo mode according to https://github.com/skywind3000/kcp/blob/master/README.en.md#protocol-configuration
	conn.SetStreamMode(true)
	conn.SetWriteDelay(true)
	conn.SetNoDelay(1, 10, 2, 1)
	gs.handleClientConnection(conn)
}

func (gs *GateService) serveWebsocket(addr string) {
	hwlog.Infof("Listening on websocket: %s ...", addr)
	mux := http.NewServeMux()
	mux.Handle("/ws", websocket.Handler(gs.handleWebsocketConn))
	hwutils.RepeatUntilPanicless(func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			hwlog.Panic(err)
		}
	})
}

func (gs *GateService) handleWebsocketConn(wsConn *websocket.Conn) {
	hwlog.Debugf("WebSocket connection: %s", wsConn.RemoteAddr())
	wsConn.PayloadType = websocket.BinaryFrame
	gs.handleClientConnection(wsConn)
}

func (gs *GateService) handleClientConnection(netconn net.Conn) {
	if gs.terminating.Load() {
		// server terminating, not accepting more connections
		netconn.Close()
		return
	}

	cfg := config.GetGate()
	cp := newClientProxy(netconn, cfg)

	gs.clientProxiesLock.Lock()
	gs.clientProxies[cp.clientid] = cp
	gs.clientProxiesLock.Unlock()

	if err := cp.SendSetClientClientID(cp.clientid); err != nil {
		// conn is broken; serve notices and cleans up
		hwlog.Errorf("%s: send client ID to %s failed: %v", gs, cp, err)
	}

	hwlog.Debugf("%s: client %s connected", gs, cp)
	cp.serve(gs)
}

func (gs *GateService) onClientProxyClose(cp *ClientProxy) {
	// clear filter props while the proxy is still registered
	gs.ClearClientFilterProps(cp.clientid)

	gs.clientProxiesLock.Lock()
	delete(gs.clientProxies, cp.clientid)
	gs.clientProxiesLock.Unlock()

	server.onClientDisconnected(cp)
	hwlog.Debugf("%s: client %s disconnected", gs, cp)
}

func (gs *GateService) getClientProxy(clientid common.ClientID) *ClientProxy {
	gs.clientProxiesLock.RLock()
	cp := gs.clientProxies[clientid]
	gs.clientProxiesLock.RUnlock()
	return cp
}

// SetClientFilterProp sets a filter prop of the client, so that it can be
// targeted by CallFilteredClients
func (gs *GateService) SetClientFilterProp(clientid common.ClientID, key, val string) {
	cp := gs.getClientProxy(clientid)
	if cp == nil {
		return
	}

	gs.filterTreesLock.Lock()
	ft, ok := gs.filterTrees[key]
	if !ok {
		ft = newFilterTree()
		gs.filterTrees[key] = ft
	}

	oldVal, ok := cp.filterProps[key]
	if ok {
		ft.Remove(clientid, oldVal)
	}
	cp.filterProps[key] = val
	ft.Insert(clientid, val)
	gs.filterTreesLock.Unlock()
}

// ClearClientFilterProps removes all filter props of the client
func (gs *GateService) ClearClientFilterProps(clientid common.ClientID) {
	cp := gs.getClientProxy(clientid)
	if cp == nil {
		return
	}

	gs.filterTreesLock.Lock()
	for key, val := range cp.filterProps {
		ft, ok := gs.filterTrees[key]
		if !ok {
			continue
		}
		ft.Remove(clientid, val)
	}
	cp.filterProps = map[string]string{}
	gs.filterTreesLock.Unlock()
}

// CallFilteredClients calls a client-side method on every client whose filter
// prop matches op against val
func (gs *GateService) CallFilteredClients(key string, op FilterOp, val string, method string, args []interface{}) {
	gs.filterTreesLock.Lock()
	gs.clientProxiesLock.RLock()

	ft := gs.filterTrees[key]
	if ft != nil {
		ft.Visit(op, val, func(clientid common.ClientID) {
			cp := gs.clientProxies[clientid]
			if cp == nil {
				return
			}
			if err := cp.SendCallEntityMethodOnClient(cp.ownerEntityID, method, args); err != nil {
				hwlog.Errorf("%s: call filtered client %s failed: %v", gs, cp, err)
			}
		})
	}

	gs.clientProxiesLock.RUnlock()
	gs.filterTreesLock.Unlock()
}

// SendCreateEntityOnClient implements the entity.ClientCaller interface
func (gs *GateService) SendCreateEntityOnClient(clientid common.ClientID, typeName string, entityid common.EntityID, isPlayer bool, x, y, z, yaw float32, attrs map[string]interface{}) {
	cp := gs.getClientProxy(clientid)
	if cp == nil {
		return
	}
	if err := cp.SendCreateEntityOnClient(typeName, entityid, isPlayer, x, y, z, yaw, attrs); err != nil {
		hwlog.Errorf("%s: send create entity to %s failed: %v", gs, cp, err)
	}
}

// SendDestroyEntityOnClient implements the entity.ClientCaller interface
func (gs *GateService) SendDestroyEntityOnClient(clientid common.ClientID, typeName string, entityid common.EntityID) {
	cp := gs.getClientProxy(clientid)
	if cp == nil {
		return
	}
	if err := cp.SendDestroyEntityOnClient(typeName, entityid); err != nil {
		hwlog.Errorf("%s: send destroy entity to %s failed: %v", gs, cp, err)
	}
}

// SendNotifyAttrChangeOnClient implements the entity.ClientCaller interface
func (gs *GateService) SendNotifyAttrChangeOnClient(clientid common.ClientID, entityid common.EntityID, key string, val interface{}) {
	cp := gs.getClientProxy(clientid)
	if cp == nil {
		return
	}
	if err := cp.SendNotifyAttrChangeOnClient(entityid, key, val); err != nil {
		hwlog.Errorf("%s: send attr change to %s failed: %v", gs, cp, err)
	}
}

// SendNotifyAttrDelOnClient implements the entity.ClientCaller interface
func (gs *GateService) SendNotifyAttrDelOnClient(clientid common.ClientID, entityid common.EntityID, key string) {
	cp := gs.getClientProxy(clientid)
	if cp == nil {
		return
	}
	if err := cp.SendNotifyAttrDelOnClient(entityid, key); err != nil {
		hwlog.Errorf("%s: send attr del to %s failed: %v", gs, cp, err)
	}
}

// SendCallEntityMethodOnClient implements the entity.ClientCaller interface
func (gs *GateService) SendCallEntityMethodOnClient(clientid common.ClientID, entityid common.EntityID, method string, args []interface{}) {
	cp := gs.getClientProxy(clientid)
	if cp == nil {
		return
	}
	if err := cp.SendCallEntityMethodOnClient(entityid, method, args); err != nil {
		hwlog.Errorf("%s: call client method on %s failed: %v", gs, cp, err)
	}
}

// checkClientHeartbeats closes clients that stopped sending heartbeats
func (gs *GateService) checkClientHeartbeats() {
	cfg := config.GetGate()
	if cfg.HeartbeatCheckInterval <= 0 {
		return
	}

	now := time.Now()
	gs.clientProxiesLock.RLock()
	for _, cp := range gs.clientProxies {
		if now.Sub(cp.heartbeatTime) > cfg.HeartbeatCheckInterval*2 {
			hwlog.Infof("%s: client %s heartbeat timeout, closing", gs, cp)
			cp.Close()
		}
	}
	gs.clientProxiesLock.RUnlock()
}

func (gs *GateService) terminate() {
	gs.terminating.Store(true)

	gs.clientProxiesLock.RLock()
	for _, cp := range gs.clientProxies { // close all connected clients when terminating
		cp.Close()
	}
	gs.clientProxiesLock.RUnlock()

	gs.terminated.Signal()
}

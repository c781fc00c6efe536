package main

import (
	"time"

	timer "github.com/xiaonanln/goTimer"
	"github.com/xiaonanln/pktconn"

	"github.com/holoverse/holoworld/engine/config"
	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/hwutils"
	"github.com/holoverse/holoworld/engine/opmon"
	"github.com/holoverse/holoworld/engine/post"
	"github.com/holoverse/holoworld/engine/proto"
	"github.com/holoverse/holoworld/engine/scene"
	"github.com/holoverse/holoworld/engine/spawn"
)

type gameState int

const (
	rsRunning gameState = iota
	rsTerminating
	rsTerminated
)

// GameService runs the main loop: all entity, spawn, session and avatar logic
// executes on this goroutine
type GameService struct {
	gate      *GateService
	substrate *scene.SimSubstrate
	runState  gameState
}

func newGameService(gate *GateService, substrate *scene.SimSubstrate) *GameService {
	return &GameService{
		gate:      gate,
		substrate: substrate,
	}
}

func (gs *GameService) run() {
	cfg := config.GetServer()
	hwlog.Infof("Read server config: \n%s", config.DumpPretty(cfg))
	gs.runState = rsRunning

	ticker := time.Tick(cfg.TickInterval)
	hwutils.RepeatUntilPanicless(func() {
		for {
			select {
			case item := <-gs.gate.packetQueue:
				op := opmon.StartOperation("GameServiceHandlePacket")
				gs.handleClientPacket(item.cp, item.packet)
				op.Finish(time.Millisecond * 100)
			case <-ticker:
				timer.Tick()
				gs.substrate.Step()
			}

			// after handling packets or firing timers, check the posted functions
			post.Tick()

			if gs.runState == rsTerminating {
				gs.doTerminate()
			}
		}
	})
}

func (gs *GameService) handleClientPacket(cp *ClientProxy, packet *pktconn.Packet) {
	msg, err := proto.UnpackMessage(packet)
	if err != nil {
		hwlog.Errorf("%s: invalid packet from %s: %v", gs, cp, err)
		cp.Close()
		return
	}

	switch msg.Type {
	case proto.MT_CLIENT_HELLO:
		gs.handleClientHello(cp, msg)
	case proto.MT_HEARTBEAT_FROM_CLIENT:
		cp.heartbeatTime = time.Now()
	case proto.MT_CALL_ENTITY_METHOD_FROM_CLIENT:
		gs.handleCallEntityMethod(cp, msg)
	default:
		hwlog.Errorf("%s: unknown message type %d from %s", gs, msg.Type, cp)
	}
}

func (gs *GameService) handleClientHello(cp *ClientProxy, msg *proto.Message) {
	var hello proto.ClientHello
	if err := msg.UnpackPayload(&hello); err != nil {
		hwlog.Errorf("%s: bad hello from %s: %v", gs, cp, err)
		cp.Close()
		return
	}

	hwlog.Infof("%s: client %s hello, owner %s", gs, cp, hello.OwnerID)
	cp.heartbeatTime = time.Now()
	server.spawner.RequestSpawn(spawn.Request{
		ClientID: cp.clientid,
		OwnerID:  hello.OwnerID,
		Pos:      scene.Vector3{},
	})
}

func (gs *GameService) handleCallEntityMethod(cp *ClientProxy, msg *proto.Message) {
	var call proto.CallEntityMethodFromClient
	if err := msg.UnpackPayload(&call); err != nil {
		hwlog.Errorf("%s: bad entity call from %s: %v", gs, cp, err)
		return
	}

	server.manager.OnCallEntityMethodFromClient(call.EntityID, call.Method, call.Args, cp.clientid)
}

func (gs *GameService) String() string {
	return "GameService"
}

func (gs *GameService) terminate() {
	// flip the flag from outside the loop; the loop notices after the
	// current iteration
	post.Post(func() {
		gs.runState = rsTerminating
	})
}

func (gs *GameService) doTerminate() {
	gs.runState = rsTerminated
	server.onGameTerminated()
}

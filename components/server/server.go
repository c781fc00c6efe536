package main

import (
	"flag"
	"math/rand"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	timer "github.com/xiaonanln/goTimer"
	"golang.org/x/net/context"

	"github.com/holoverse/holoworld/engine/binutil"
	"github.com/holoverse/holoworld/engine/catalog"
	"github.com/holoverse/holoworld/engine/config"
	"github.com/holoverse/holoworld/engine/entity"
	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/identity"
	"github.com/holoverse/holoworld/engine/loadmon"
	"github.com/holoverse/holoworld/engine/post"
	"github.com/holoverse/holoworld/engine/registry"
	"github.com/holoverse/holoworld/engine/scene"
	"github.com/holoverse/holoworld/engine/session"
	"github.com/holoverse/holoworld/engine/spawn"
)

const (
	_LOAD_MONITOR_INTERVAL = 10 * time.Second
)

var (
	args struct {
		configFile      string
		logLevel        string
		runInDaemonMode bool
	}
	server     *Server
	signalChan = make(chan os.Signal, 1)
)

// Server glues the gate, the game loop and the world runtime together
type Server struct {
	gate      *GateService
	game      *GameService
	substrate *scene.SimSubstrate
	fetcher   catalog.Fetcher
	loader    *catalog.Loader
	manager   *entity.Manager
	space     *entity.Space
	spawner   *spawn.Coordinator
	identity  *identity.Protocol
	session   *session.Orchestrator
	registry  *registry.Registry
	loadMon   *loadmon.Monitor
}

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.BoolVar(&args.runInDaemonMode, "d", false, "run in daemon mode")
	flag.Parse()
}

func main() {
	rand.Seed(time.Now().UnixNano())
	parseArgs()

	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize()
		defer daemoncontext.Release()
	}

	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}

	serverCfg := config.GetServer()
	if serverCfg.GoMaxProcs > 0 {
		hwlog.Infof("SET GOMAXPROCS = %d", serverCfg.GoMaxProcs)
		runtime.GOMAXPROCS(serverCfg.GoMaxProcs)
	}
	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = serverCfg.LogLevel
	}
	binutil.SetupHWLog("server", logLevel, serverCfg.LogFile, serverCfg.LogStderr)

	server = newServer(serverCfg)
	binutil.SetupHTTPServer(serverCfg.HTTPIp, serverCfg.HTTPPort, server.gate.handleWebsocketConn)

	setupSignals()
	server.run(serverCfg)
}

func newServer(serverCfg *config.ServerConfig) *Server {
	gate := newGateService()
	substrate := scene.NewSimSubstrate()
	fetcher := catalog.NewHTTPFetcher()
	loader := catalog.NewLoader(config.GetCatalog(), fetcher, substrate)
	worldKey := loader.WorldKey(serverCfg.SpaceID)

	// local templates for the player rig and the fallback world
	substrate.Prepare(_PLAYER_RIG_KEY, 1, 1)
	substrate.Prepare(worldKey, 2, 1)

	manager := entity.NewManager(gate)
	manager.RegisterEntity("Player", &Player{})
	space := entity.NewSpace(manager, 0, _PLAYER_AOI_DISTANCE)

	reg := registry.NewRegistry(config.GetRegistry())
	var store identity.NameStore
	if reg != nil {
		store = reg
	}

	s := &Server{
		gate:      gate,
		substrate: substrate,
		fetcher:   fetcher,
		loader:    loader,
		manager:   manager,
		space:     space,
		registry:  reg,
		loadMon:   loadmon.NewMonitor(_LOAD_MONITOR_INTERVAL),
	}

	s.identity = identity.NewProtocol(config.GetIdentity(), store, manager, s.broadcastName, s.onEntityNamed)
	s.spawner = spawn.NewCoordinator(config.GetSpawn(), loader, substrate, manager, space, gate,
		"Player", worldKey, s.onEntitySpawned)
	s.session = session.NewOrchestrator(config.GetSession(), loader, session.Callbacks{
		OnStateChange: func(old, new session.State) {
			hwlog.Infof("join session: %s -> %s", old, new)
		},
		OnProgress: func(p session.Progress) {
			hwlog.Debugf("join session: world %.0f%% loaded, ETA %s", p.Fraction*100, p.ETA)
		},
		OnReady: func(world *catalog.WorldInstance) {
			hwlog.Infof("join session ready: world %s", world.ID)
		},
		OnTimedOut: func(reason string) {
			hwlog.Errorf("join session timed out: %s", reason)
		},
		OnFailed: func(reason string) {
			hwlog.Errorf("join session failed: %s", reason)
		},
	})
	s.game = newGameService(gate, substrate)
	return s
}

func (s *Server) run(serverCfg *config.ServerConfig) {
	s.loadMon.Start(context.Background())
	s.gate.run()

	heartbeatInterval := config.GetGate().HeartbeatCheckInterval
	if heartbeatInterval > 0 {
		timer.AddTimer(heartbeatInterval, s.gate.checkClientHeartbeats)
	}

	// kick off the join session once the game loop is ticking; the session
	// fetches the catalog itself before loading the world
	post.Post(func() {
		s.session.Join(serverCfg.SpaceID)
	})

	s.game.run()
}

// onEntitySpawned runs on the main loop after each player entity is spawned
func (s *Server) onEntitySpawned(e *entity.Entity, req spawn.Request) {
	s.identity.OnEntitySpawned(e)

	s.gate.SetClientFilterProp(req.ClientID, "space", config.GetServer().SpaceID)
	if cp := s.gate.getClientProxy(req.ClientID); cp != nil {
		cp.ownerEntityID = e.ID
	}
}

// broadcastName fans a name change out through the gate to every client whose
// filter props put it in this server's space
func (s *Server) broadcastName(e *entity.Entity, name string) {
	s.gate.CallFilteredClients("space", FilterEQ, config.GetServer().SpaceID,
		"BroadcastName", []interface{}{string(e.ID), name})
}

// onEntityNamed runs on the main loop after a name is applied to an entity
func (s *Server) onEntityNamed(e *entity.Entity, name string) {
	if p, ok := e.I.(*Player); ok && p.avatarSync != nil {
		p.avatarSync.SetNameText(name)
	}
}

func (s *Server) onClientDisconnected(cp *ClientProxy) {
	s.spawner.OnClientDisconnected(cp.clientid)
}

func (s *Server) onGameTerminated() {
	if s.registry != nil {
		s.registry.Close()
		s.registry.WaitTerminated()
	}
	s.loader.Close()
	hwlog.Infof("Server terminated gracefully.")
	os.Exit(0)
}

func setupSignals() {
	hwlog.Infof("Setup signals ...")
	signal.Ignore(syscall.Signal(10), syscall.Signal(12), syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			sig := <-signalChan
			if sig == syscall.SIGINT || sig == syscall.SIGTERM {
				hwlog.Infof("Terminating server ...")
				server.gate.terminate()
				server.gate.terminated.Wait()
				server.game.terminate()
			} else {
				hwlog.Errorf("unexpected signal: %s", sig)
			}
		}
	}()
}

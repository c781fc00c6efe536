package config

import (
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"

	"github.com/holoverse/holoworld/engine/common"
	"github.com/holoverse/holoworld/engine/hwlog"
)

const (
	_DEFAULT_CONFIG_FILE = "holoworld.ini"
	_DEFAULT_HTTP_IP     = "127.0.0.1"
	_DEFAULT_LOG_LEVEL   = "debug"
)

var (
	configFilePath = _DEFAULT_CONFIG_FILE
	worldConfig    *WorldConfig
	configLock     sync.Mutex
)

// ServerConfig defines fields of the space server config
type ServerConfig struct {
	SpaceID      string
	LogFile      string
	LogStderr    bool
	LogLevel     string
	HTTPIp       string
	HTTPPort     int
	GoMaxProcs   int
	TickInterval time.Duration
}

// GateConfig defines fields of the client gateway config
type GateConfig struct {
	Ip                     string
	Port                   int
	WebsocketPort          int
	CompressConnection     bool
	HeartbeatCheckInterval time.Duration
}

// CatalogConfig defines fields of the asset catalog loader config
type CatalogConfig struct {
	URL              string
	FetchTimeout     time.Duration
	KeyPrefix        string
	AttemptTimeout   time.Duration
	RetryBackoff     time.Duration
	MaxAttempts      int
	ProgressInterval time.Duration
}

// SessionConfig defines fields of the join orchestrator config
type SessionConfig struct {
	WorldTimeout time.Duration
	TotalTimeout time.Duration
	MaxRetries   int
}

// SpawnConfig defines fields of the entity spawn coordinator config
type SpawnConfig struct {
	ReadyChecks        int
	ReadyCheckInterval time.Duration
	SettleSteps        int
	SettleDelay        time.Duration
}

// AvatarConfig defines fields of the avatar sync config
type AvatarConfig struct {
	DefaultURL       string
	URLWaitTimeout   time.Duration
	URLPollInterval  time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	LoadTimeout      time.Duration
	AttachOffsetY    float64
	BaselineY        float64
	NameTagHeight    float64
	SelfHealInterval time.Duration
}

// IdentityConfig defines fields of the identity sync config
type IdentityConfig struct {
	SubmitTimeout     time.Duration
	DefaultNamePrefix string
}

// RegistryConfig defines fields of the registry KV store config
type RegistryConfig struct {
	Type       string // mongodb, redis, redis_cluster, or empty to disable
	Url        string // connection URL (mongodb, redis)
	DB         string // database name (mongodb) or index (redis)
	Collection string // collection name (mongodb)
	StartNodes common.StringSet
}

// WorldConfig defines the total config file structure
type WorldConfig struct {
	Server   ServerConfig
	Gate     GateConfig
	Catalog  CatalogConfig
	Session  SessionConfig
	Spawn    SpawnConfig
	Avatar   AvatarConfig
	Identity IdentityConfig
	Registry RegistryConfig
}

// SetConfigFile sets the config file path (holoworld.ini by default)
func SetConfigFile(f string) {
	configFilePath = f
	worldConfig = nil
}

// GetConfigDir returns the directory of holoworld.ini
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the total config
func Get() *WorldConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if worldConfig == nil {
		worldConfig = readWorldConfig()
	}
	return worldConfig
}

// Reload forces the server to reload the whole config
func Reload() *WorldConfig {
	configLock.Lock()
	worldConfig = nil
	configLock.Unlock()

	return Get()
}

// GetServer gets the space server config
func GetServer() *ServerConfig {
	return &Get().Server
}

// GetGate gets the gateway config
func GetGate() *GateConfig {
	return &Get().Gate
}

// GetCatalog gets the catalog loader config
func GetCatalog() *CatalogConfig {
	return &Get().Catalog
}

// GetSession gets the join orchestrator config
func GetSession() *SessionConfig {
	return &Get().Session
}

// GetSpawn gets the spawn coordinator config
func GetSpawn() *SpawnConfig {
	return &Get().Spawn
}

// GetAvatar gets the avatar sync config
func GetAvatar() *AvatarConfig {
	return &Get().Avatar
}

// GetIdentity gets the identity sync config
func GetIdentity() *IdentityConfig {
	return &Get().Identity
}

// GetRegistry gets the registry KV store config
func GetRegistry() *RegistryConfig {
	return &Get().Registry
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

func readWorldConfig() *WorldConfig {
	config := WorldConfig{}
	hwlog.Infof("Using config file: %s", configFilePath)
	iniFile, err := ini.Load(configFilePath)
	checkConfigError(err, "")

	setServerDefaults(&config.Server)
	setGateDefaults(&config.Gate)
	setCatalogDefaults(&config.Catalog)
	setSessionDefaults(&config.Session)
	setSpawnDefaults(&config.Spawn)
	setAvatarDefaults(&config.Avatar)
	setIdentityDefaults(&config.Identity)
	config.Registry.StartNodes = common.StringSet{}

	for _, sec := range iniFile.Sections() {
		secName := strings.ToLower(sec.Name())
		if secName == "default" {
			continue
		}

		if secName == "server" {
			readServerConfig(sec, &config.Server)
		} else if secName == "gate" {
			readGateConfig(sec, &config.Gate)
		} else if secName == "catalog" {
			readCatalogConfig(sec, &config.Catalog)
		} else if secName == "session" {
			readSessionConfig(sec, &config.Session)
		} else if secName == "spawn" {
			readSpawnConfig(sec, &config.Spawn)
		} else if secName == "avatar" {
			readAvatarConfig(sec, &config.Avatar)
		} else if secName == "identity" {
			readIdentityConfig(sec, &config.Identity)
		} else if secName == "registry" {
			readRegistryConfig(sec, &config.Registry)
		} else {
			hwlog.Errorf("unknown section: %s", secName)
		}
	}

	validateConfig(&config)
	return &config
}

func setServerDefaults(sc *ServerConfig) {
	sc.SpaceID = "default"
	sc.LogFile = "server.log"
	sc.LogStderr = true
	sc.LogLevel = _DEFAULT_LOG_LEVEL
	sc.HTTPIp = _DEFAULT_HTTP_IP
	sc.HTTPPort = 0 // pprof not enabled by default
	sc.GoMaxProcs = 0
	sc.TickInterval = time.Millisecond * 10
}

func readServerConfig(sec *ini.Section, sc *ServerConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "space_id" {
			sc.SpaceID = key.MustString(sc.SpaceID)
		} else if name == "log_file" {
			sc.LogFile = key.MustString(sc.LogFile)
		} else if name == "log_stderr" {
			sc.LogStderr = key.MustBool(sc.LogStderr)
		} else if name == "log_level" {
			sc.LogLevel = key.MustString(sc.LogLevel)
		} else if name == "http_ip" {
			sc.HTTPIp = key.MustString(sc.HTTPIp)
		} else if name == "http_port" {
			sc.HTTPPort = key.MustInt(sc.HTTPPort)
		} else if name == "gomaxprocs" {
			sc.GoMaxProcs = key.MustInt(sc.GoMaxProcs)
		} else if name == "tick_interval_ms" {
			sc.TickInterval = time.Millisecond * time.Duration(key.MustInt(10))
		} else {
			hwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func setGateDefaults(gc *GateConfig) {
	gc.Ip = "0.0.0.0"
	gc.Port = 14001
	gc.WebsocketPort = 0 // websocket not enabled by default
	gc.CompressConnection = false
	gc.HeartbeatCheckInterval = 0
}

func readGateConfig(sec *ini.Section, gc *GateConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "ip" {
			gc.Ip = key.MustString(gc.Ip)
		} else if name == "port" {
			gc.Port = key.MustInt(gc.Port)
		} else if name == "websocket_port" {
			gc.WebsocketPort = key.MustInt(gc.WebsocketPort)
		} else if name == "compress_connection" {
			gc.CompressConnection = key.MustBool(gc.CompressConnection)
		} else if name == "heartbeat_check_interval" {
			gc.HeartbeatCheckInterval = time.Second * time.Duration(key.MustInt(0))
		} else {
			hwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func setCatalogDefaults(cc *CatalogConfig) {
	cc.URL = ""
	cc.FetchTimeout = time.Second * 10
	cc.KeyPrefix = "space_"
	cc.AttemptTimeout = time.Second * 5
	cc.RetryBackoff = time.Second * 2
	cc.MaxAttempts = 5
	cc.ProgressInterval = time.Millisecond * 200
}

func readCatalogConfig(sec *ini.Section, cc *CatalogConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "url" {
			cc.URL = key.MustString(cc.URL)
		} else if name == "fetch_timeout" {
			cc.FetchTimeout = time.Second * time.Duration(key.MustInt(10))
		} else if name == "key_prefix" {
			cc.KeyPrefix = key.MustString(cc.KeyPrefix)
		} else if name == "attempt_timeout" {
			cc.AttemptTimeout = time.Second * time.Duration(key.MustInt(5))
		} else if name == "retry_backoff" {
			cc.RetryBackoff = time.Second * time.Duration(key.MustInt(2))
		} else if name == "max_attempts" {
			cc.MaxAttempts = key.MustInt(cc.MaxAttempts)
		} else if name == "progress_interval_ms" {
			cc.ProgressInterval = time.Millisecond * time.Duration(key.MustInt(200))
		} else {
			hwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func setSessionDefaults(sc *SessionConfig) {
	sc.WorldTimeout = time.Second * 20
	sc.TotalTimeout = time.Second * 60
	sc.MaxRetries = 10
}

func readSessionConfig(sec *ini.Section, sc *SessionConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "world_timeout" {
			sc.WorldTimeout = time.Second * time.Duration(key.MustInt(20))
		} else if name == "total_timeout" {
			sc.TotalTimeout = time.Second * time.Duration(key.MustInt(60))
		} else if name == "max_retries" {
			sc.MaxRetries = key.MustInt(sc.MaxRetries)
		} else {
			hwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func setSpawnDefaults(sc *SpawnConfig) {
	sc.ReadyChecks = 10
	sc.ReadyCheckInterval = time.Millisecond * 200
	sc.SettleSteps = 3
	sc.SettleDelay = time.Millisecond * 500
}

func readSpawnConfig(sec *ini.Section, sc *SpawnConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "ready_checks" {
			sc.ReadyChecks = key.MustInt(sc.ReadyChecks)
		} else if name == "ready_check_interval_ms" {
			sc.ReadyCheckInterval = time.Millisecond * time.Duration(key.MustInt(200))
		} else if name == "settle_steps" {
			sc.SettleSteps = key.MustInt(sc.SettleSteps)
		} else if name == "settle_delay_ms" {
			sc.SettleDelay = time.Millisecond * time.Duration(key.MustInt(500))
		} else {
			hwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func setAvatarDefaults(ac *AvatarConfig) {
	ac.DefaultURL = ""
	ac.URLWaitTimeout = time.Second * 10
	ac.URLPollInterval = time.Millisecond * 200
	ac.MaxRetries = 3
	ac.RetryDelay = time.Second * 2
	ac.LoadTimeout = time.Second * 15
	ac.AttachOffsetY = 0
	ac.BaselineY = 0
	ac.NameTagHeight = 1.9
	ac.SelfHealInterval = time.Second
}

func readAvatarConfig(sec *ini.Section, ac *AvatarConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "default_url" {
			ac.DefaultURL = key.MustString(ac.DefaultURL)
		} else if name == "url_wait_timeout" {
			ac.URLWaitTimeout = time.Second * time.Duration(key.MustInt(10))
		} else if name == "url_poll_interval_ms" {
			ac.URLPollInterval = time.Millisecond * time.Duration(key.MustInt(200))
		} else if name == "max_retries" {
			ac.MaxRetries = key.MustInt(ac.MaxRetries)
		} else if name == "retry_delay" {
			ac.RetryDelay = time.Second * time.Duration(key.MustInt(2))
		} else if name == "load_timeout" {
			ac.LoadTimeout = time.Second * time.Duration(key.MustInt(15))
		} else if name == "attach_offset_y" {
			ac.AttachOffsetY = key.MustFloat64(ac.AttachOffsetY)
		} else if name == "baseline_y" {
			ac.BaselineY = key.MustFloat64(ac.BaselineY)
		} else if name == "name_tag_height" {
			ac.NameTagHeight = key.MustFloat64(ac.NameTagHeight)
		} else if name == "self_heal_interval_ms" {
			ac.SelfHealInterval = time.Millisecond * time.Duration(key.MustInt(1000))
		} else {
			hwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func setIdentityDefaults(ic *IdentityConfig) {
	ic.SubmitTimeout = time.Second * 10
	ic.DefaultNamePrefix = "Player_"
}

func readIdentityConfig(sec *ini.Section, ic *IdentityConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "submit_timeout" {
			ic.SubmitTimeout = time.Second * time.Duration(key.MustInt(10))
		} else if name == "default_name_prefix" {
			ic.DefaultNamePrefix = key.MustString(ic.DefaultNamePrefix)
		} else {
			hwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readRegistryConfig(sec *ini.Section, config *RegistryConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "type" {
			config.Type = key.MustString(config.Type)
		} else if name == "url" {
			config.Url = key.MustString(config.Url)
		} else if name == "db" {
			config.DB = key.MustString(config.DB)
		} else if name == "collection" {
			config.Collection = key.MustString(config.Collection)
		} else if strings.HasPrefix(name, "start_nodes_") {
			config.StartNodes.Add(key.MustString(""))
		} else {
			hwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}

	if config.Type == "redis" {
		if config.DB == "" {
			config.DB = "0"
		}
	}

	validateRegistryConfig(config)
}

func validateRegistryConfig(config *RegistryConfig) {
	if config.Type == "" {
		// registry not enabled, it's OK
	} else if config.Type == "mongodb" {
		// must set DB and Collection for mongodb
		if config.Url == "" || config.DB == "" || config.Collection == "" {
			fmt.Fprintf(hwlog.GetOutput(), "%s\n", DumpPretty(config))
			hwlog.Panicf("invalid %s registry config above", config.Type)
		}
	} else if config.Type == "redis" {
		if config.Url == "" {
			fmt.Fprintf(hwlog.GetOutput(), "%s\n", DumpPretty(config))
			hwlog.Panicf("invalid %s registry config above", config.Type)
		}
		_, err := strconv.Atoi(config.DB) // make sure db is integer for redis
		if err != nil {
			hwlog.Panic(errors.Wrap(err, "redis db must be integer"))
		}
	} else if config.Type == "redis_cluster" {
		if len(config.StartNodes) == 0 {
			hwlog.Panicf("must have at least 1 start_nodes for [registry].redis_cluster")
		}
		for s := range config.StartNodes {
			if s == "" {
				hwlog.Panicf("start_nodes must not be empty")
			}
		}
	} else {
		hwlog.Panicf("unknown registry type: %s", config.Type)
	}
}

func checkConfigError(err error, msg string) {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		hwlog.Panicf("read config error: %s", msg)
	}
}

func validateConfig(config *WorldConfig) {
	if config.Server.SpaceID == "" {
		hwlog.Panicf("space_id is not set in server config")
	}
	if config.Catalog.MaxAttempts <= 0 {
		hwlog.Panicf("[catalog] max_attempts must be positive")
	}
	if config.Session.MaxRetries <= 0 {
		hwlog.Panicf("[session] max_retries must be positive")
	}
	if config.Spawn.ReadyChecks <= 0 {
		hwlog.Panicf("[spawn] ready_checks must be positive")
	}
	if config.Avatar.MaxRetries < 0 {
		hwlog.Panicf("[avatar] max_retries must not be negative")
	}
}

package config

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/bmizerany/assert"

	"github.com/holoverse/holoworld/engine/hwlog"
)

func init() {
	SetConfigFile("../../holoworld.ini.sample")
}

func TestLoad(t *testing.T) {
	config := Get()
	if config == nil {
		t.FailNow()
	}
	if config.Server.SpaceID == "" {
		t.Errorf("space id not found")
	}
	if config.Gate.Port == 0 {
		t.Errorf("gate port not found")
	}

	hwlog.Infof("read config: %v", config)
}

func TestReload(t *testing.T) {
	Get()
	config := Reload()
	hwlog.Debugf("config: \n%s", DumpPretty(config))
}

func TestCatalogDefaults(t *testing.T) {
	cfg := GetCatalog()
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, time.Second*5, cfg.AttemptTimeout)
	assert.Equal(t, time.Second*2, cfg.RetryBackoff)
	assert.Equal(t, "space_", cfg.KeyPrefix)
}

func TestSessionConfig(t *testing.T) {
	cfg := GetSession()
	assert.Equal(t, time.Second*20, cfg.WorldTimeout)
	assert.Equal(t, time.Second*60, cfg.TotalTimeout)
	assert.Equal(t, 10, cfg.MaxRetries)
}

func TestSpawnConfig(t *testing.T) {
	cfg := GetSpawn()
	assert.Equal(t, 10, cfg.ReadyChecks)
	assert.Equal(t, time.Millisecond*200, cfg.ReadyCheckInterval)
	assert.Equal(t, 3, cfg.SettleSteps)
}

func TestAvatarConfig(t *testing.T) {
	cfg := GetAvatar()
	assert.Equal(t, time.Second*10, cfg.URLWaitTimeout)
	assert.Equal(t, time.Millisecond*200, cfg.URLPollInterval)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second*2, cfg.RetryDelay)
}

func TestIdentityConfig(t *testing.T) {
	cfg := GetIdentity()
	assert.Equal(t, "Player_", cfg.DefaultNamePrefix)
}

func TestGetRegistry(t *testing.T) {
	cfg := GetRegistry()
	assert.T(t, cfg != nil, "registry config is nil")
	fmt.Fprintf(os.Stderr, "%s\n", DumpPretty(cfg))
}

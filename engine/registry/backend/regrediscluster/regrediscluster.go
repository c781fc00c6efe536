package regrediscluster

import (
	"io"
	"time"

	"github.com/chasex/redis-go-cluster"
	"github.com/pkg/errors"

	"github.com/holoverse/holoworld/engine/registry/types"
)

const (
	keyPrefix = "_NR_"
)

type redisClusterRegistry struct {
	c redis.Cluster
}

// OpenRedisClusterRegistry opens a Redis cluster as registry backend
func OpenRedisClusterRegistry(startNodes []string) (regtypes.RegistryEngine, error) {
	c, err := redis.NewCluster(&redis.Options{
		StartNodes:   startNodes,
		ConnTimeout:  10 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		KeepAlive:    1,
		AliveTime:    10 * time.Minute,
	})
	if err != nil {
		return nil, errors.Wrap(err, "redis cluster dial failed")
	}

	return &redisClusterRegistry{
		c: c,
	}, nil
}

func (db *redisClusterRegistry) Get(key string) (val string, err error) {
	r, err := db.c.Do("GET", keyPrefix+key)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}
	return string(r.([]byte)), err
}

func (db *redisClusterRegistry) Put(key string, val string) error {
	_, err := db.c.Do("SET", keyPrefix+key, val)
	return err
}

// Find is not supported on redis cluster because keys are sharded among nodes
func (db *redisClusterRegistry) Find(beginKey string, endKey string) (regtypes.Iterator, error) {
	return nil, errors.Errorf("find %s ~ %s: range queries are not supported by redis_cluster registry", beginKey, endKey)
}

// Close is a no-op: redis.Cluster keeps its node connections internally and
// exposes no close
func (db *redisClusterRegistry) Close() {
}

func (db *redisClusterRegistry) IsConnectionError(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

package registry

import (
	"io"
	"strconv"
	"time"

	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"

	"github.com/holoverse/holoworld/engine/config"
	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/hwutils"
	"github.com/holoverse/holoworld/engine/opmon"
	"github.com/holoverse/holoworld/engine/post"
	"github.com/holoverse/holoworld/engine/registry/backend/regmongodb"
	"github.com/holoverse/holoworld/engine/registry/backend/regredis"
	"github.com/holoverse/holoworld/engine/registry/backend/regrediscluster"
	"github.com/holoverse/holoworld/engine/registry/types"
)

// GetCallback is called when a get operation completes
type GetCallback func(val string, err error)

// PutCallback is called when a put operation completes
type PutCallback func(err error)

// GetRangeCallback is called when a range query completes
type GetRangeCallback func(items []regtypes.Item, err error)

// Registry is the persistent owner-name registry, backed by a storage engine
// chosen by configuration. All operations are asynchronous: callbacks run on
// the main loop via post.
type Registry struct {
	cfg        *config.RegistryConfig
	engine     regtypes.RegistryEngine
	opQueue    *xnsyncutil.SyncQueue
	terminated *xnsyncutil.OneTimeCond

	recentWarnedQueueLen int
}

type getReq struct {
	key      string
	callback GetCallback
}

type putReq struct {
	key      string
	val      string
	callback PutCallback
}

type getRangeReq struct {
	beginKey string
	endKey   string
	callback GetRangeCallback
}

// NewRegistry creates the registry and starts its operation routine.
// Returns nil if no registry backend is configured.
func NewRegistry(cfg *config.RegistryConfig) *Registry {
	if cfg.Type == "" {
		return nil
	}

	hwlog.Infof("Registry initializing, config:\n%s", config.DumpPretty(cfg))
	reg := &Registry{
		cfg:        cfg,
		opQueue:    xnsyncutil.NewSyncQueue(),
		terminated: xnsyncutil.NewOneTimeCond(),
	}

	reg.assureEngineReady()

	go reg.registryRoutine()
	return reg
}

func (reg *Registry) assureEngineReady() (err error) {
	if reg.engine != nil { // connection is valid
		return
	}

	cfg := reg.cfg
	if cfg.Type == "mongodb" {
		reg.engine, err = regmongodb.OpenMongoRegistry(cfg.Url, cfg.DB, cfg.Collection)
	} else if cfg.Type == "redis" {
		var dbindex int
		if dbindex, err = strconv.Atoi(cfg.DB); err == nil {
			reg.engine, err = regredis.OpenRedisRegistry(cfg.Url, dbindex)
		}
	} else if cfg.Type == "redis_cluster" {
		reg.engine, err = regrediscluster.OpenRedisClusterRegistry(cfg.StartNodes.ToList())
	} else {
		hwlog.Fatalf("Registry type %s is not implemented", cfg.Type)
	}
	return
}

// Get retrieves the value of the key, asynchronously
func (reg *Registry) Get(key string, callback GetCallback) {
	reg.opQueue.Push(&getReq{
		key, callback,
	})
	reg.checkOperationQueueLen()
}

// Put puts the value of the key, asynchronously
func (reg *Registry) Put(key string, val string, callback PutCallback) {
	reg.opQueue.Push(&putReq{
		key, val, callback,
	})
	reg.checkOperationQueueLen()
}

// GetRange retrieves all items in the key range [beginKey, endKey), asynchronously
func (reg *Registry) GetRange(beginKey string, endKey string, callback GetRangeCallback) {
	reg.opQueue.Push(&getRangeReq{
		beginKey, endKey, callback,
	})
	reg.checkOperationQueueLen()
}

// NextLargerKey returns the next string that is larger than key, but smaller
// than any other keys > key
func NextLargerKey(key string) string {
	return hwutils.NextLargerKey(key)
}

// Close closes the registry operation queue
func (reg *Registry) Close() {
	reg.opQueue.Close()
}

// WaitTerminated waits until the registry routine is terminated
func (reg *Registry) WaitTerminated() {
	reg.terminated.Wait()
}

func (reg *Registry) checkOperationQueueLen() {
	qlen := reg.opQueue.Len()
	if qlen > 100 && qlen%100 == 0 && reg.recentWarnedQueueLen != qlen {
		hwlog.Warnf("Registry operation queue length = %d", qlen)
		reg.recentWarnedQueueLen = qlen
	}
}

func (reg *Registry) registryRoutine() {
	for {
		err := reg.assureEngineReady()
		if err != nil {
			hwlog.Errorf("Registry engine is not ready: %s", err)
			time.Sleep(time.Second)
			continue
		}

		req := reg.opQueue.Pop()
		if req == nil { // queue is closed, returning nil
			reg.engine.Close()
			break
		}

		var op *opmon.Operation
		if getReq, ok := req.(*getReq); ok {
			op = opmon.StartOperation("registry.get")
			reg.handleGetReq(getReq)
		} else if putReq, ok := req.(*putReq); ok {
			op = opmon.StartOperation("registry.put")
			reg.handlePutReq(putReq)
		} else if getRangeReq, ok := req.(*getRangeReq); ok {
			op = opmon.StartOperation("registry.getRange")
			reg.handleGetRangeReq(getRangeReq)
		}
		op.Finish(time.Millisecond * 100)
	}

	reg.terminated.Signal()
}

func (reg *Registry) handleGetReq(getReq *getReq) {
	val, err := reg.engine.Get(getReq.key)
	if getReq.callback != nil {
		post.Post(func() {
			getReq.callback(val, err)
		})
	}

	if err != nil && reg.engine.IsConnectionError(err) {
		reg.engine.Close()
		reg.engine = nil
	}
}

func (reg *Registry) handlePutReq(putReq *putReq) {
	err := reg.engine.Put(putReq.key, putReq.val)
	if putReq.callback != nil {
		post.Post(func() {
			putReq.callback(err)
		})
	}

	if err != nil && reg.engine.IsConnectionError(err) {
		reg.engine.Close()
		reg.engine = nil
	}
}

func (reg *Registry) handleGetRangeReq(getRangeReq *getRangeReq) {
	it, err := reg.engine.Find(getRangeReq.beginKey, getRangeReq.endKey)
	if err != nil {
		if getRangeReq.callback != nil {
			post.Post(func() {
				getRangeReq.callback(nil, err)
			})
		}
		return
	}

	var items []regtypes.Item
	for {
		item, err := it.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			if getRangeReq.callback != nil {
				post.Post(func() {
					getRangeReq.callback(nil, err)
				})
			}
			return
		}

		items = append(items, item)
	}

	if getRangeReq.callback != nil {
		post.Post(func() {
			getRangeReq.callback(items, nil)
		})
	}
}

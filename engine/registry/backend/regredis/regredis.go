package regredis

import (
	"io"

	"github.com/garyburd/redigo/redis"
	"github.com/petar/GoLLRB/llrb"
	"github.com/pkg/errors"

	"github.com/holoverse/holoworld/engine/registry/types"
)

const (
	keyPrefix = "_NR_"
)

type redisRegistry struct {
	c       redis.Conn
	keyTree *llrb.LLRB
}

type keyTreeItem struct {
	key string
}

func (ki keyTreeItem) Less(other llrb.Item) bool {
	return ki.key < other.(keyTreeItem).key
}

// OpenRedisRegistry opens Redis as registry backend
func OpenRedisRegistry(host string, dbindex int) (regtypes.RegistryEngine, error) {
	c, err := redis.Dial("tcp", host)
	if err != nil {
		return nil, errors.Wrap(err, "redis dial failed")
	}

	db := &redisRegistry{
		c:       c,
		keyTree: llrb.New(),
	}
	if err := db.initialize(dbindex); err != nil {
		return nil, errors.Wrap(err, "redis registry initialize failed")
	}

	return db, nil
}

func (db *redisRegistry) initialize(dbindex int) error {
	if dbindex >= 0 {
		if _, err := db.c.Do("SELECT", dbindex); err != nil {
			return err
		}
	}

	keyMatch := keyPrefix + "*"
	r, err := redis.Values(db.c.Do("SCAN", "0", "MATCH", keyMatch, "COUNT", 10000))
	if err != nil {
		return err
	}
	for {
		nextCursor := r[0]
		keys, err := redis.Strings(r[1], nil)
		if err != nil {
			return err
		}
		for _, key := range keys {
			key := key[len(keyPrefix):]
			db.keyTree.ReplaceOrInsert(keyTreeItem{key})
		}

		if db.isZeroCursor(nextCursor) {
			break
		}
		r, err = redis.Values(db.c.Do("SCAN", nextCursor, "MATCH", keyMatch, "COUNT", 10000))
		if err != nil {
			return err
		}
	}
	return nil
}

func (db *redisRegistry) isZeroCursor(c interface{}) bool {
	return string(c.([]byte)) == "0"
}

func (db *redisRegistry) Get(key string) (val string, err error) {
	r, err := db.c.Do("GET", keyPrefix+key)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}
	return string(r.([]byte)), err
}

func (db *redisRegistry) Put(key string, val string) error {
	_, err := db.c.Do("SET", keyPrefix+key, val)
	if err == nil {
		db.keyTree.ReplaceOrInsert(keyTreeItem{key})
	}
	return err
}

type redisRegistryIterator struct {
	db       *redisRegistry
	leftKeys []string
}

func (it *redisRegistryIterator) Next() (regtypes.Item, error) {
	if len(it.leftKeys) == 0 {
		return regtypes.Item{}, io.EOF
	}

	key := it.leftKeys[0]
	it.leftKeys = it.leftKeys[1:]
	val, err := it.db.Get(key)
	if err != nil {
		return regtypes.Item{}, err
	}

	return regtypes.Item{Key: key, Val: val}, nil
}

func (db *redisRegistry) Find(beginKey string, endKey string) (regtypes.Iterator, error) {
	keys := []string{} // retrieve all keys in the range, ordered
	db.keyTree.AscendRange(keyTreeItem{beginKey}, keyTreeItem{endKey}, func(it llrb.Item) bool {
		keys = append(keys, it.(keyTreeItem).key)
		return true
	})

	return &redisRegistryIterator{
		db:       db,
		leftKeys: keys,
	}, nil
}

func (db *redisRegistry) Close() {
	db.c.Close()
}

func (db *redisRegistry) IsConnectionError(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

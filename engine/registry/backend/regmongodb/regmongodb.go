package regmongodb

import (
	"io"

	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"

	"github.com/holoverse/holoworld/engine/hwlog"
	"github.com/holoverse/holoworld/engine/registry/types"
)

const (
	_DEFAULT_DB_NAME = "holoworld"
	_VAL_KEY         = "_"
)

type mongoRegistry struct {
	s *mgo.Session
	c *mgo.Collection
}

// OpenMongoRegistry opens mongodb as registry backend
func OpenMongoRegistry(url string, dbname string, collectionName string) (regtypes.RegistryEngine, error) {
	hwlog.Debugf("Connecting MongoDB ...")
	session, err := mgo.Dial(url)
	if err != nil {
		return nil, err
	}

	session.SetMode(mgo.Monotonic, true)
	if dbname == "" {
		// if db is not specified, use default
		dbname = _DEFAULT_DB_NAME
	}
	db := session.DB(dbname)
	c := db.C(collectionName)
	return &mongoRegistry{
		s: session,
		c: c,
	}, nil
}

func (reg *mongoRegistry) Put(key string, val string) error {
	_, err := reg.c.UpsertId(key, map[string]string{
		_VAL_KEY: val,
	})
	return err
}

func (reg *mongoRegistry) Get(key string) (val string, err error) {
	q := reg.c.FindId(key)
	var doc map[string]string
	err = q.One(&doc)
	if err != nil {
		if err == mgo.ErrNotFound {
			err = nil
		}
		return
	}
	val = doc[_VAL_KEY]
	return
}

type mongoRegistryIterator struct {
	it *mgo.Iter
}

func (it *mongoRegistryIterator) Next() (regtypes.Item, error) {
	var doc map[string]string
	ok := it.it.Next(&doc)
	if ok {
		return regtypes.Item{
			Key: doc["_id"],
			Val: doc[_VAL_KEY],
		}, nil
	}

	err := it.it.Close()
	if err != nil {
		return regtypes.Item{}, err
	}
	return regtypes.Item{}, io.EOF
}

func (reg *mongoRegistry) Find(beginKey string, endKey string) (regtypes.Iterator, error) {
	q := reg.c.Find(bson.M{"_id": bson.M{"$gte": beginKey, "$lt": endKey}})
	it := q.Iter()
	return &mongoRegistryIterator{
		it: it,
	}, nil
}

func (reg *mongoRegistry) Close() {
	reg.s.Close()
}

func (reg *mongoRegistry) IsConnectionError(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

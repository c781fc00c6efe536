package regtypes

// RegistryEngine defines the interface of a name registry storage backend
type RegistryEngine interface {
	Get(key string) (val string, err error)
	Put(key string, val string) (err error)
	Find(beginKey string, endKey string) (Iterator, error)
	Close()
	IsConnectionError(err error) bool
}

// Iterator is the interface for iterators over registry entries
//
// Next should return the next item with error=nil whenever it has a next item,
// otherwise it returns Item{}, io.EOF. When failed, it returns Item{}, error.
type Iterator interface {
	Next() (Item, error)
}

// Item is the type of registry entries
type Item struct {
	Key string
	Val string
}

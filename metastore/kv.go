package metastore

// The catalog's durable record of all descriptors is a small fixed schema
// of record kinds stored in an embedded key value store. Get and Item
// return io.EOF for missing keys and exhausted iterators.

type Iterator interface {
	Item(fn func(key, val []byte) error) error
	Close()
}

type Updater interface {
	Get(key []byte, fn func(val []byte) error) error
	Set(key, val []byte) error
	Delete(key []byte) error
	Commit() error
	Rollback()
}

type KV interface {
	Iterate(minKey []byte) (Iterator, error)
	Get(key []byte, fn func(val []byte) error) error
	Updater() (Updater, error)
	Close() error
}

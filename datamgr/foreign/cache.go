package foreign

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/gzwplato/omniscidb/chunk"
)

// chunkCache is the local read-through cache of foreign chunks. It is an
// eviction target, never a durable write path.
type chunkCache struct {
	db *leveldb.DB
}

func openChunkCache(dir string) (*chunkCache, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, errors.Wrap(err, "foreign: open chunk cache")
	}
	return &chunkCache{db: db}, nil
}

// cacheKey encodes each key component as 4 big endian bytes so that
// lexicographic byte order matches chunk key order and table prefixes are
// byte prefixes.
func cacheKey(key chunk.Key) []byte {
	b := make([]byte, 4*len(key))
	for idx, id := range key {
		binary.BigEndian.PutUint32(b[4*idx:], uint32(id))
	}
	return b
}

func (cc *chunkCache) get(key chunk.Key) ([]byte, bool, error) {
	data, err := cc.db.Get(cacheKey(key), nil)
	if err == ldberrors.ErrNotFound {
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.Wrapf(err, "foreign: cache get %s", key)
	}
	return data, true, nil
}

func (cc *chunkCache) put(key chunk.Key, data []byte) error {
	err := cc.db.Put(cacheKey(key), data, nil)
	if err != nil {
		return errors.Wrapf(err, "foreign: cache put %s", key)
	}
	return nil
}

func (cc *chunkCache) deletePrefix(prefix chunk.Key) error {
	it := cc.db.NewIterator(util.BytesPrefix(cacheKey(prefix)), nil)
	defer it.Release()

	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte{}, it.Key()...))
	}
	if err := it.Error(); err != nil {
		return errors.Wrapf(err, "foreign: cache scan %s", prefix)
	}
	err := cc.db.Write(batch, nil)
	if err != nil {
		return errors.Wrapf(err, "foreign: cache delete %s", prefix)
	}
	return nil
}

func (cc *chunkCache) close() error {
	return cc.db.Close()
}

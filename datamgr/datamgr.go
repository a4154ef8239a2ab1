package datamgr

import (
	"errors"
	"fmt"

	"github.com/gzwplato/omniscidb/chunk"
)

type MgrType int

const (
	PersistentMgr MgrType = iota + 1
	GlobalFileMgr
	ForeignStorageMgr
)

func (mt MgrType) String() string {
	switch mt {
	case PersistentMgr:
		return "PersistentStorageMgr"
	case GlobalFileMgr:
		return "GlobalFileMgr"
	case ForeignStorageMgr:
		return "ForeignStorageMgr"
	}
	return fmt.Sprintf("<mgr %d>", int(mt))
}

var (
	// ErrChunkNotFound means the chunk does not exist in the backend that
	// owns its key; it is a hard failure, never an empty result.
	ErrChunkNotFound = errors.New("datamgr: chunk not found")
)

// ForeignSourceError means a foreign backed chunk was temporarily
// unreachable; query execution can distinguish it from data that does not
// exist. Retry policy belongs to the data wrapper, not this layer.
type ForeignSourceError struct {
	Key chunk.Key
	Err error
}

func (e *ForeignSourceError) Error() string {
	return fmt.Sprintf("datamgr: foreign source for chunk %s: %s", e.Key, e.Err)
}

func (e *ForeignSourceError) Unwrap() error {
	return e.Err
}

// BufferMgr is the buffer manager contract: uniform addressing of chunk
// storage by ChunkKey, implemented by the storage tiering manager and its
// two backends.
type BufferMgr interface {
	CreateBuffer(key chunk.Key, pageSize, initialSize int) (*chunk.Buffer, error)
	GetBuffer(key chunk.Key, numBytes int) (*chunk.Buffer, error)
	FetchBuffer(key chunk.Key, dst *chunk.Buffer, numBytes int) error
	PutBuffer(key chunk.Key, src *chunk.Buffer, numBytes int) (*chunk.Buffer, error)
	DeleteBuffer(key chunk.Key, purge bool) error
	DeleteBuffersWithPrefix(prefix chunk.Key, purge bool) error
	IsBufferOnDevice(key chunk.Key) (bool, error)

	ChunkMetadata() ([]chunk.MetadataEntry, error)
	ChunkMetadataForKeyPrefix(prefix chunk.Key) ([]chunk.MetadataEntry, error)

	Checkpoint() error
	CheckpointTable(dbID, tableID int) error

	Alloc(numBytes int) (*chunk.Buffer, error)
	Free(buf *chunk.Buffer)

	MaxSize() int64
	InUseSize() int64
	Allocated() int64
	IsAllocationCapped() bool
	NumChunks() int

	RemoveTableRelatedDS(dbID, tableID int) error
	MgrType() MgrType
}

package datamgr

import (
	"github.com/gzwplato/omniscidb/chunk"
)

// Classifier decides whether a chunk key belongs to foreign storage; the
// catalog derives it from table metadata.
type Classifier func(key chunk.Key) bool

// PersistentStorage routes every buffer operation to the disk backend or
// the foreign storage backend based solely on the chunk key. Size
// accounting reflects the persistent side only.
type PersistentStorage struct {
	disk      BufferMgr
	foreign   BufferMgr
	isForeign Classifier
}

// NewPersistentStorage wires the two backends together. foreign may be
// nil when foreign storage is disabled; every key then routes to disk.
func NewPersistentStorage(disk, foreign BufferMgr, isForeign Classifier) *PersistentStorage {
	return &PersistentStorage{
		disk:      disk,
		foreign:   foreign,
		isForeign: isForeign,
	}
}

func (ps *PersistentStorage) mgr(key chunk.Key) BufferMgr {
	if ps.foreign != nil && ps.isForeign != nil && ps.isForeign(key) {
		return ps.foreign
	}
	return ps.disk
}

// DiskMgr exposes the persistent backend; the catalog uses it for table
// epochs.
func (ps *PersistentStorage) DiskMgr() BufferMgr {
	return ps.disk
}

func (ps *PersistentStorage) ForeignMgr() BufferMgr {
	return ps.foreign
}

func (ps *PersistentStorage) CreateBuffer(key chunk.Key, pageSize,
	initialSize int) (*chunk.Buffer, error) {

	return ps.mgr(key).CreateBuffer(key, pageSize, initialSize)
}

func (ps *PersistentStorage) GetBuffer(key chunk.Key, numBytes int) (*chunk.Buffer, error) {
	return ps.mgr(key).GetBuffer(key, numBytes)
}

func (ps *PersistentStorage) FetchBuffer(key chunk.Key, dst *chunk.Buffer,
	numBytes int) error {

	return ps.mgr(key).FetchBuffer(key, dst, numBytes)
}

func (ps *PersistentStorage) PutBuffer(key chunk.Key, src *chunk.Buffer,
	numBytes int) (*chunk.Buffer, error) {

	return ps.mgr(key).PutBuffer(key, src, numBytes)
}

func (ps *PersistentStorage) DeleteBuffer(key chunk.Key, purge bool) error {
	return ps.mgr(key).DeleteBuffer(key, purge)
}

func (ps *PersistentStorage) DeleteBuffersWithPrefix(prefix chunk.Key, purge bool) error {
	return ps.mgr(prefix).DeleteBuffersWithPrefix(prefix, purge)
}

func (ps *PersistentStorage) IsBufferOnDevice(key chunk.Key) (bool, error) {
	return ps.mgr(key).IsBufferOnDevice(key)
}

func (ps *PersistentStorage) ChunkMetadata() ([]chunk.MetadataEntry, error) {
	entries, err := ps.disk.ChunkMetadata()
	if err != nil {
		return nil, err
	}
	if ps.foreign != nil {
		ents, err := ps.foreign.ChunkMetadata()
		if err != nil {
			return nil, err
		}
		entries = append(entries, ents...)
	}
	return entries, nil
}

func (ps *PersistentStorage) ChunkMetadataForKeyPrefix(prefix chunk.Key) ([]chunk.MetadataEntry,
	error) {

	return ps.mgr(prefix).ChunkMetadataForKeyPrefix(prefix)
}

// Checkpoints only cover the persistent side; foreign chunks have no
// durable state here.
func (ps *PersistentStorage) Checkpoint() error {
	return ps.disk.Checkpoint()
}

func (ps *PersistentStorage) CheckpointTable(dbID, tableID int) error {
	if ps.foreign != nil && ps.isForeign != nil &&
		ps.isForeign(chunk.TableKey(dbID, tableID)) {

		return nil
	}
	return ps.disk.CheckpointTable(dbID, tableID)
}

func (ps *PersistentStorage) Alloc(numBytes int) (*chunk.Buffer, error) {
	return ps.disk.Alloc(numBytes)
}

func (ps *PersistentStorage) Free(buf *chunk.Buffer) {
	ps.disk.Free(buf)
}

func (ps *PersistentStorage) MaxSize() int64 {
	return ps.disk.MaxSize()
}

func (ps *PersistentStorage) InUseSize() int64 {
	return ps.disk.InUseSize()
}

func (ps *PersistentStorage) Allocated() int64 {
	return ps.disk.Allocated()
}

func (ps *PersistentStorage) IsAllocationCapped() bool {
	return ps.disk.IsAllocationCapped()
}

func (ps *PersistentStorage) NumChunks() int {
	return ps.disk.NumChunks()
}

// RemoveTableRelatedDS cascades to both backends: a dropped table must
// leave no state behind on either side.
func (ps *PersistentStorage) RemoveTableRelatedDS(dbID, tableID int) error {
	if ps.foreign != nil {
		err := ps.foreign.RemoveTableRelatedDS(dbID, tableID)
		if err != nil {
			return err
		}
	}
	return ps.disk.RemoveTableRelatedDS(dbID, tableID)
}

func (ps *PersistentStorage) MgrType() MgrType {
	return PersistentMgr
}

package foreign

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/gzwplato/omniscidb/chunk"
	"github.com/gzwplato/omniscidb/datamgr"
	"github.com/gzwplato/omniscidb/flags"
	"github.com/gzwplato/omniscidb/schema"
)

// StorageMgr serves chunks of foreign tables by delegating to per table
// data wrappers. It is a read only backend: all mutation entry points are
// unreachable and panic.
type StorageMgr struct {
	flgs        flags.Flags
	provider    TableProvider
	makeWrapper MakeWrapper

	wrapperMutex sync.Mutex
	wrappers     map[string]DataWrapper

	tempMutex sync.Mutex
	temp      map[string]ChunkBuffer

	cache *chunkCache
}

// NewStorageMgr creates a foreign storage manager. cacheDir may be empty
// to run without the local chunk cache.
func NewStorageMgr(cacheDir string, flgs flags.Flags, provider TableProvider,
	makeWrapper MakeWrapper) (*StorageMgr, error) {

	sm := &StorageMgr{
		flgs:        flgs,
		provider:    provider,
		makeWrapper: makeWrapper,
		wrappers:    map[string]DataWrapper{},
		temp:        map[string]ChunkBuffer{},
	}
	if cacheDir != "" {
		cache, err := openChunkCache(cacheDir)
		if err != nil {
			return nil, err
		}
		sm.cache = cache
	}
	return sm, nil
}

func (sm *StorageMgr) Close() error {
	if sm.cache != nil {
		return sm.cache.close()
	}
	return nil
}

func (sm *StorageMgr) checkS3Enabled(svr *schema.ForeignServer) error {
	if svr.Options[schema.StorageTypeKey] == schema.S3StorageType &&
		!sm.flgs.GetFlag(flags.EnableS3FSI) {

		return errors.Errorf("foreign: server %s requires S3 support which is disabled",
			svr.Name)
	}
	return nil
}

// wrapper returns the data wrapper for a table, creating it on first use.
func (sm *StorageMgr) wrapper(dbID, tableID int) (DataWrapper, error) {
	if !sm.flgs.GetFlag(flags.EnableFSI) {
		return nil, errors.New("foreign: foreign storage interface is disabled")
	}

	sm.wrapperMutex.Lock()
	defer sm.wrapperMutex.Unlock()

	tblKey := chunk.TableKey(dbID, tableID).String()
	if dw, ok := sm.wrappers[tblKey]; ok {
		return dw, nil
	}

	info, err := sm.provider(dbID, tableID)
	if err != nil {
		return nil, err
	}
	if info == nil || !info.Table.IsForeign() {
		return nil, errors.Errorf("foreign: table %d.%d is not a foreign table",
			dbID, tableID)
	}
	err = sm.checkS3Enabled(info.Server)
	if err != nil {
		return nil, err
	}

	dw, err := sm.makeWrapper(dbID, info)
	if err != nil {
		return nil, err
	}
	sm.wrappers[tblKey] = dw
	log.WithFields(log.Fields{
		"db":      dbID,
		"table":   info.Table.Name,
		"wrapper": info.Server.DataWrapper,
	}).Debug("created foreign data wrapper")
	return dw, nil
}

func (sm *StorageMgr) takeTemp(key chunk.Key) (*chunk.Buffer, bool) {
	sm.tempMutex.Lock()
	defer sm.tempMutex.Unlock()

	cb, ok := sm.temp[key.String()]
	if !ok {
		return nil, false
	}
	delete(sm.temp, key.String())
	return cb.Buffer, true
}

func (sm *StorageMgr) clearTempForTable(dbID, tableID int) {
	sm.tempMutex.Lock()
	defer sm.tempMutex.Unlock()

	prefix := chunk.TableKey(dbID, tableID)
	for s, cb := range sm.temp {
		if cb.Key.HasPrefix(prefix) {
			delete(sm.temp, s)
		}
	}
}

// fragmentBuffers pairs every chunk of the requested chunk's fragment
// with a buffer; the requested chunk gets dst, the rest get scratch
// buffers that are parked for later fetches of the same fragment.
func (sm *StorageMgr) fragmentBuffers(dw DataWrapper, key chunk.Key,
	dst *chunk.Buffer) ([]ChunkBuffer, error) {

	entries, err := dw.ChunkMetadata()
	if err != nil {
		return nil, &datamgr.ForeignSourceError{Key: key.Copy(), Err: err}
	}

	var buffers []ChunkBuffer
	found := false
	for _, ent := range entries {
		if ent.Key.Fragment() != key.Fragment() {
			continue
		}
		if ent.Key.Equal(key) {
			dst.Reset()
			buffers = append(buffers, ChunkBuffer{Key: ent.Key, Buffer: dst})
			found = true
		} else {
			buffers = append(buffers,
				ChunkBuffer{Key: ent.Key, Buffer: chunk.NewBuffer(0)})
		}
	}
	if !found {
		return nil, errors.Wrapf(datamgr.ErrChunkNotFound, "foreign: chunk %s", key)
	}
	return buffers, nil
}

func (sm *StorageMgr) FetchBuffer(key chunk.Key, dst *chunk.Buffer, numBytes int) error {
	if buf, ok := sm.takeTemp(key); ok {
		dst.Reset()
		return buf.CopyTo(dst, numBytes)
	}
	if sm.cache != nil {
		data, ok, err := sm.cache.get(key)
		if err != nil {
			return err
		}
		if ok {
			cached := chunk.NewBuffer(0)
			cached.SetData(data)
			dst.Reset()
			return cached.CopyTo(dst, numBytes)
		}
	}

	dw, err := sm.wrapper(key.Database(), key.Table())
	if err != nil {
		return err
	}

	// Fetches move fragment by fragment; scratch chunks from a previous
	// fragment of this table will not be asked for again.
	sm.clearTempForTable(key.Database(), key.Table())

	buffers, err := sm.fragmentBuffers(dw, key, dst)
	if err != nil {
		return err
	}
	err = dw.PopulateChunkBuffers(buffers)
	if err != nil {
		return &datamgr.ForeignSourceError{Key: key.Copy(), Err: err}
	}

	sm.tempMutex.Lock()
	for _, cb := range buffers {
		if cb.Buffer != dst {
			sm.temp[cb.Key.String()] = cb
		}
	}
	sm.tempMutex.Unlock()

	if sm.cache != nil {
		err = sm.cache.put(key, dst.Data())
		if err != nil {
			log.WithField("chunk", key).Warnf("chunk cache put failed: %s", err)
		}
	}
	return nil
}

func (sm *StorageMgr) ChunkMetadata() ([]chunk.MetadataEntry, error) {
	sm.wrapperMutex.Lock()
	wrappers := make([]DataWrapper, 0, len(sm.wrappers))
	for _, dw := range sm.wrappers {
		wrappers = append(wrappers, dw)
	}
	sm.wrapperMutex.Unlock()

	var entries []chunk.MetadataEntry
	for _, dw := range wrappers {
		ents, err := dw.ChunkMetadata()
		if err != nil {
			return nil, err
		}
		entries = append(entries, ents...)
	}
	return entries, nil
}

func (sm *StorageMgr) ChunkMetadataForKeyPrefix(prefix chunk.Key) ([]chunk.MetadataEntry,
	error) {

	dw, err := sm.wrapper(prefix.Database(), prefix.Table())
	if err != nil {
		return nil, err
	}
	ents, err := dw.ChunkMetadata()
	if err != nil {
		return nil, &datamgr.ForeignSourceError{Key: prefix.Copy(), Err: err}
	}

	var entries []chunk.MetadataEntry
	for _, ent := range ents {
		if ent.Key.HasPrefix(prefix) {
			entries = append(entries, ent)
		}
	}
	return entries, nil
}

func (sm *StorageMgr) IsBufferOnDevice(key chunk.Key) (bool, error) {
	sm.tempMutex.Lock()
	_, ok := sm.temp[key.String()]
	sm.tempMutex.Unlock()
	if ok {
		return true, nil
	}
	if sm.cache != nil {
		_, ok, err := sm.cache.get(key)
		if err != nil {
			return false, err
		}
		return ok, nil
	}
	return false, nil
}

func (sm *StorageMgr) RemoveTableRelatedDS(dbID, tableID int) error {
	sm.wrapperMutex.Lock()
	delete(sm.wrappers, chunk.TableKey(dbID, tableID).String())
	sm.wrapperMutex.Unlock()

	sm.clearTempForTable(dbID, tableID)

	if sm.cache != nil {
		return sm.cache.deletePrefix(chunk.TableKey(dbID, tableID))
	}
	return nil
}

func (sm *StorageMgr) MgrType() datamgr.MgrType {
	return datamgr.ForeignStorageMgr
}

// Foreign tables are read only; the entry points below must never be
// routed here.

func (sm *StorageMgr) CreateBuffer(key chunk.Key, pageSize,
	initialSize int) (*chunk.Buffer, error) {

	panic(fmt.Sprintf("foreign: CreateBuffer called for chunk %s", key))
}

func (sm *StorageMgr) GetBuffer(key chunk.Key, numBytes int) (*chunk.Buffer, error) {
	panic(fmt.Sprintf("foreign: GetBuffer called for chunk %s", key))
}

func (sm *StorageMgr) PutBuffer(key chunk.Key, src *chunk.Buffer,
	numBytes int) (*chunk.Buffer, error) {

	panic(fmt.Sprintf("foreign: PutBuffer called for chunk %s", key))
}

func (sm *StorageMgr) DeleteBuffer(key chunk.Key, purge bool) error {
	panic(fmt.Sprintf("foreign: DeleteBuffer called for chunk %s", key))
}

func (sm *StorageMgr) DeleteBuffersWithPrefix(prefix chunk.Key, purge bool) error {
	panic(fmt.Sprintf("foreign: DeleteBuffersWithPrefix called for prefix %s", prefix))
}

func (sm *StorageMgr) Checkpoint() error {
	panic("foreign: Checkpoint called on foreign storage manager")
}

func (sm *StorageMgr) CheckpointTable(dbID, tableID int) error {
	panic(fmt.Sprintf("foreign: CheckpointTable called for table %d.%d", dbID, tableID))
}

func (sm *StorageMgr) Alloc(numBytes int) (*chunk.Buffer, error) {
	panic("foreign: Alloc called on foreign storage manager")
}

func (sm *StorageMgr) Free(buf *chunk.Buffer) {
	panic("foreign: Free called on foreign storage manager")
}

func (sm *StorageMgr) MaxSize() int64 {
	return 0
}

func (sm *StorageMgr) InUseSize() int64 {
	return 0
}

func (sm *StorageMgr) Allocated() int64 {
	return 0
}

func (sm *StorageMgr) IsAllocationCapped() bool {
	return false
}

func (sm *StorageMgr) NumChunks() int {
	sm.tempMutex.Lock()
	defer sm.tempMutex.Unlock()
	return len(sm.temp)
}

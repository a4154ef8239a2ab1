// Package filemgr is the local persistent file manager: durable chunk
// storage on local media with epoch tracking and checkpointing. Chunk
// data lives in one snappy compressed file per chunk under a per-table
// directory; a per-table manifest records chunk metadata and the table
// epoch so the directory layout can be rebuilt from ids alone.
package filemgr

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/google/btree"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/gzwplato/omniscidb/chunk"
	"github.com/gzwplato/omniscidb/datamgr"
)

const manifestName = "manifest.json"

type chunkItem struct {
	key chunk.Key
	md  chunk.Metadata
	buf *chunk.Buffer // nil until resident
}

func (ci chunkItem) Less(item btree.Item) bool {
	return ci.key.Compare(item.(chunkItem).key) < 0
}

type manifest struct {
	Epoch  int32
	Chunks []chunk.MetadataEntry
}

type FileMgr struct {
	dataDir string
	maxSize int64

	mutex  sync.Mutex
	index  *btree.BTree
	epochs map[string]int32 // per table directory
}

func NewFileMgr(dataDir string, maxSize int64) (*FileMgr, error) {
	err := os.MkdirAll(dataDir, 0755)
	if err != nil {
		return nil, errors.Wrap(err, "filemgr: data directory")
	}

	fm := &FileMgr{
		dataDir: dataDir,
		maxSize: maxSize,
		index:   btree.New(16),
		epochs:  map[string]int32{},
	}

	err = fm.openExisting()
	if err != nil {
		return nil, err
	}
	return fm, nil
}

// TableDir is the directory holding all chunks of one table, derived
// deterministically from the table's ids.
func TableDir(dataDir string, dbID, tableID int) string {
	return filepath.Join(dataDir, fmt.Sprintf("table_%d_%d", dbID, tableID))
}

func chunkFileName(key chunk.Key) string {
	parts := make([]string, 0, len(key)-2)
	for _, id := range key[2:] {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return "chunk_" + strings.Join(parts, "_") + ".snp"
}

func (fm *FileMgr) tableDir(dbID, tableID int) string {
	return TableDir(fm.dataDir, dbID, tableID)
}

func (fm *FileMgr) chunkPath(key chunk.Key) string {
	return filepath.Join(fm.tableDir(key.Database(), key.Table()), chunkFileName(key))
}

func (fm *FileMgr) openExisting() error {
	fis, err := ioutil.ReadDir(fm.dataDir)
	if err != nil {
		return errors.Wrap(err, "filemgr: scan data directory")
	}

	for _, fi := range fis {
		if !fi.IsDir() || !strings.HasPrefix(fi.Name(), "table_") {
			continue
		}

		b, err := ioutil.ReadFile(filepath.Join(fm.dataDir, fi.Name(), manifestName))
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return errors.Wrapf(err, "filemgr: manifest for %s", fi.Name())
		}

		var man manifest
		err = json.Unmarshal(b, &man)
		if err != nil {
			return errors.Wrapf(err, "filemgr: decode manifest for %s", fi.Name())
		}

		fm.epochs[fi.Name()] = man.Epoch
		for _, ent := range man.Chunks {
			fm.index.ReplaceOrInsert(chunkItem{
				key: ent.Key,
				md:  ent.Metadata,
			})
		}
	}
	return nil
}

func (fm *FileMgr) CreateBuffer(key chunk.Key, pageSize, initialSize int) (*chunk.Buffer,
	error) {

	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	if fm.index.Has(chunkItem{key: key}) {
		return nil, fmt.Errorf("filemgr: chunk %s already exists", key)
	}

	buf := chunk.NewBuffer(initialSize)
	buf.SetDirty(true)
	fm.index.ReplaceOrInsert(chunkItem{
		key: key.Copy(),
		buf: buf,
	})
	return buf, nil
}

func (fm *FileMgr) loadLocked(ci chunkItem) (*chunk.Buffer, error) {
	if ci.buf != nil {
		return ci.buf, nil
	}

	b, err := ioutil.ReadFile(fm.chunkPath(ci.key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(datamgr.ErrChunkNotFound, "filemgr: chunk %s", ci.key)
		}
		return nil, errors.Wrapf(err, "filemgr: read chunk %s", ci.key)
	}
	data, err := snappy.Decode(nil, b)
	if err != nil {
		return nil, errors.Wrapf(err, "filemgr: decode chunk %s", ci.key)
	}

	buf := chunk.NewBufferWith(data)
	buf.SetEpoch(fm.epochs[fmt.Sprintf("table_%d_%d", ci.key.Database(), ci.key.Table())])
	ci.buf = buf
	fm.index.ReplaceOrInsert(ci)
	return buf, nil
}

func (fm *FileMgr) GetBuffer(key chunk.Key, numBytes int) (*chunk.Buffer, error) {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	item := fm.index.Get(chunkItem{key: key})
	if item == nil {
		return nil, errors.Wrapf(datamgr.ErrChunkNotFound, "filemgr: chunk %s", key)
	}
	return fm.loadLocked(item.(chunkItem))
}

func (fm *FileMgr) FetchBuffer(key chunk.Key, dst *chunk.Buffer, numBytes int) error {
	buf, err := fm.GetBuffer(key, numBytes)
	if err != nil {
		return err
	}
	return buf.CopyTo(dst, numBytes)
}

func (fm *FileMgr) PutBuffer(key chunk.Key, src *chunk.Buffer, numBytes int) (*chunk.Buffer,
	error) {

	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	var buf *chunk.Buffer
	item := fm.index.Get(chunkItem{key: key})
	if item == nil {
		buf = chunk.NewBuffer(src.Size())
	} else {
		ci := item.(chunkItem)
		if ci.buf == nil {
			ci.buf = chunk.NewBuffer(src.Size())
		}
		buf = ci.buf
	}

	err := src.CopyTo(buf, numBytes)
	if err != nil {
		return nil, err
	}
	fm.index.ReplaceOrInsert(chunkItem{
		key: key.Copy(),
		md: chunk.Metadata{
			NumBytes: buf.Size(),
		},
		buf: buf,
	})
	return buf, nil
}

func (fm *FileMgr) deleteLocked(ci chunkItem, purge bool) error {
	fm.index.Delete(ci)
	if purge {
		err := os.Remove(fm.chunkPath(ci.key))
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "filemgr: purge chunk %s", ci.key)
		}
	}
	return nil
}

func (fm *FileMgr) DeleteBuffer(key chunk.Key, purge bool) error {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	item := fm.index.Get(chunkItem{key: key})
	if item == nil {
		return errors.Wrapf(datamgr.ErrChunkNotFound, "filemgr: chunk %s", key)
	}
	return fm.deleteLocked(item.(chunkItem), purge)
}

func (fm *FileMgr) itemsWithPrefix(prefix chunk.Key) []chunkItem {
	var items []chunkItem
	fm.index.AscendGreaterOrEqual(chunkItem{key: prefix},
		func(item btree.Item) bool {
			ci := item.(chunkItem)
			if !ci.key.HasPrefix(prefix) {
				return false
			}
			items = append(items, ci)
			return true
		})
	return items
}

func (fm *FileMgr) DeleteBuffersWithPrefix(prefix chunk.Key, purge bool) error {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	for _, ci := range fm.itemsWithPrefix(prefix) {
		err := fm.deleteLocked(ci, purge)
		if err != nil {
			return err
		}
	}
	return nil
}

func (fm *FileMgr) IsBufferOnDevice(key chunk.Key) (bool, error) {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	return fm.index.Has(chunkItem{key: key}), nil
}

func (fm *FileMgr) ChunkMetadata() ([]chunk.MetadataEntry, error) {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	var entries []chunk.MetadataEntry
	fm.index.Ascend(
		func(item btree.Item) bool {
			ci := item.(chunkItem)
			entries = append(entries, chunk.MetadataEntry{Key: ci.key, Metadata: ci.md})
			return true
		})
	return entries, nil
}

func (fm *FileMgr) ChunkMetadataForKeyPrefix(prefix chunk.Key) ([]chunk.MetadataEntry,
	error) {

	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	var entries []chunk.MetadataEntry
	for _, ci := range fm.itemsWithPrefix(prefix) {
		entries = append(entries, chunk.MetadataEntry{Key: ci.key, Metadata: ci.md})
	}
	return entries, nil
}

func (fm *FileMgr) checkpointLocked(match func(key chunk.Key) bool) error {
	dirty := map[string][]chunkItem{}
	fm.index.Ascend(
		func(item btree.Item) bool {
			ci := item.(chunkItem)
			if match(ci.key) {
				dir := fmt.Sprintf("table_%d_%d", ci.key.Database(), ci.key.Table())
				dirty[dir] = append(dirty[dir], ci)
			}
			return true
		})

	for dir, items := range dirty {
		path := filepath.Join(fm.dataDir, dir)
		err := os.MkdirAll(path, 0755)
		if err != nil {
			return errors.Wrap(err, "filemgr: checkpoint")
		}

		var man manifest
		for _, ci := range items {
			if ci.buf != nil && ci.buf.Dirty() {
				err = ioutil.WriteFile(fm.chunkPath(ci.key),
					snappy.Encode(nil, ci.buf.Data()), 0644)
				if err != nil {
					return errors.Wrapf(err, "filemgr: write chunk %s", ci.key)
				}
				ci.buf.SetDirty(false)
				ci.md.NumBytes = ci.buf.Size()
				fm.index.ReplaceOrInsert(ci)
			}
			man.Chunks = append(man.Chunks,
				chunk.MetadataEntry{Key: ci.key, Metadata: ci.md})
		}

		fm.epochs[dir] += 1
		man.Epoch = fm.epochs[dir]
		b, err := json.Marshal(&man)
		if err != nil {
			return errors.Wrap(err, "filemgr: encode manifest")
		}
		err = ioutil.WriteFile(filepath.Join(path, manifestName), b, 0644)
		if err != nil {
			return errors.Wrap(err, "filemgr: write manifest")
		}

		log.WithFields(log.Fields{
			"table": dir,
			"epoch": man.Epoch,
		}).Debug("filemgr checkpoint")
	}
	return nil
}

func (fm *FileMgr) Checkpoint() error {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	return fm.checkpointLocked(func(key chunk.Key) bool { return true })
}

func (fm *FileMgr) CheckpointTable(dbID, tableID int) error {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	prefix := chunk.TableKey(dbID, tableID)
	return fm.checkpointLocked(func(key chunk.Key) bool { return key.HasPrefix(prefix) })
}

// Epoch returns the checkpoint epoch of a table; zero if the table was
// never checkpointed.
func (fm *FileMgr) Epoch(dbID, tableID int) int32 {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	return fm.epochs[fmt.Sprintf("table_%d_%d", dbID, tableID)]
}

func (fm *FileMgr) SetEpoch(dbID, tableID int, epoch int32) {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	fm.epochs[fmt.Sprintf("table_%d_%d", dbID, tableID)] = epoch
}

func (fm *FileMgr) Alloc(numBytes int) (*chunk.Buffer, error) {
	return chunk.NewBuffer(numBytes), nil
}

func (fm *FileMgr) Free(buf *chunk.Buffer) {
	buf.Reset()
}

func (fm *FileMgr) MaxSize() int64 {
	return fm.maxSize
}

func (fm *FileMgr) InUseSize() int64 {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	var size int64
	fm.index.Ascend(
		func(item btree.Item) bool {
			ci := item.(chunkItem)
			if ci.buf != nil {
				size += int64(ci.buf.Size())
			}
			return true
		})
	return size
}

func (fm *FileMgr) Allocated() int64 {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	var size int64
	fm.index.Ascend(
		func(item btree.Item) bool {
			ci := item.(chunkItem)
			if ci.buf != nil {
				size += int64(ci.buf.Size())
			} else {
				size += int64(ci.md.NumBytes)
			}
			return true
		})
	return size
}

func (fm *FileMgr) IsAllocationCapped() bool {
	return fm.maxSize > 0 && fm.Allocated() >= fm.maxSize
}

func (fm *FileMgr) NumChunks() int {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	return fm.index.Len()
}

func (fm *FileMgr) RemoveTableRelatedDS(dbID, tableID int) error {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	prefix := chunk.TableKey(dbID, tableID)
	for _, ci := range fm.itemsWithPrefix(prefix) {
		fm.index.Delete(ci)
	}
	delete(fm.epochs, fmt.Sprintf("table_%d_%d", dbID, tableID))

	err := os.RemoveAll(fm.tableDir(dbID, tableID))
	if err != nil {
		return errors.Wrapf(err, "filemgr: remove table %d.%d", dbID, tableID)
	}
	return nil
}

func (fm *FileMgr) MgrType() datamgr.MgrType {
	return datamgr.GlobalFileMgr
}

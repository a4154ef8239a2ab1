package foreign_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/gzwplato/omniscidb/chunk"
	"github.com/gzwplato/omniscidb/datamgr"
	"github.com/gzwplato/omniscidb/datamgr/foreign"
	"github.com/gzwplato/omniscidb/flags"
	"github.com/gzwplato/omniscidb/schema"
	"github.com/gzwplato/omniscidb/testutil"
)

func testStorageMgr(t *testing.T, name, cacheDir string,
	flgs flags.Flags) (*foreign.StorageMgr, string) {

	t.Helper()

	dir := filepath.Join("testdata", name)
	testutil.CleanDir(t, dir, ".gitignore")
	writeCSVFile(t, dir, "sensors.csv", sensorsCSV)

	provider := func(dbID, tableID int) (*foreign.TableInfo, error) {
		if dbID == 1 && tableID == 100 {
			return sensorsInfo(dir, nil), nil
		}
		return nil, nil
	}

	sm, err := foreign.NewStorageMgr(cacheDir, flgs, provider, foreign.MakeDataWrapper)
	require.NoError(t, err)
	return sm, dir
}

func TestFetchBuffer(t *testing.T) {
	sm, _ := testStorageMgr(t, "fetch", "", flags.Default())
	defer sm.Close()

	dst := chunk.NewBuffer(0)
	require.NoError(t, sm.FetchBuffer(chunk.MakeKey(1, 100, 1, 0), dst, 0))
	vals, err := chunk.DecodeFixedLength(dst.Data(), 4)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, vals)

	// The other chunks of the fragment were fetched along and parked.
	require.Equal(t, 2, sm.NumChunks())
	on, err := sm.IsBufferOnDevice(chunk.MakeKey(1, 100, 2, 0))
	require.NoError(t, err)
	require.True(t, on)

	// A parked chunk is served from memory and consumed.
	dst = chunk.NewBuffer(0)
	require.NoError(t, sm.FetchBuffer(chunk.MakeKey(1, 100, 2, 0), dst, 0))
	vals, err = chunk.DecodeFixedLength(dst.Data(), 4)
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1}, vals)
	require.Equal(t, 1, sm.NumChunks())

	// Moving to another fragment drops leftover parked chunks of the
	// table.
	dst = chunk.NewBuffer(0)
	require.NoError(t, sm.FetchBuffer(chunk.MakeKey(1, 100, 1, 2), dst, 0))
	vals, err = chunk.DecodeFixedLength(dst.Data(), 4)
	require.NoError(t, err)
	require.Equal(t, []int64{5}, vals)
	require.Equal(t, 2, sm.NumChunks())

	err = sm.FetchBuffer(chunk.MakeKey(1, 100, 1, 9), chunk.NewBuffer(0), 0)
	require.True(t, errors.Is(err, datamgr.ErrChunkNotFound))
}

type countingWrapper struct {
	foreign.DataWrapper
	populates *int
}

func (cw *countingWrapper) PopulateChunkBuffers(buffers []foreign.ChunkBuffer) error {
	*cw.populates += 1
	return cw.DataWrapper.PopulateChunkBuffers(buffers)
}

func TestCacheReadThrough(t *testing.T) {
	dir := filepath.Join("testdata", "cache_hit")
	testutil.CleanDir(t, dir, ".gitignore")
	writeCSVFile(t, dir, "sensors.csv", sensorsCSV)

	populates := 0
	makeWrapper := func(dbID int, info *foreign.TableInfo) (foreign.DataWrapper, error) {
		dw, err := foreign.MakeDataWrapper(dbID, info)
		if err != nil {
			return nil, err
		}
		return &countingWrapper{DataWrapper: dw, populates: &populates}, nil
	}
	provider := func(dbID, tableID int) (*foreign.TableInfo, error) {
		return sensorsInfo(dir, nil), nil
	}

	sm, err := foreign.NewStorageMgr(filepath.Join(dir, "chunks"), flags.Default(),
		provider, makeWrapper)
	require.NoError(t, err)

	key := chunk.MakeKey(1, 100, 1, 0)
	dst := chunk.NewBuffer(0)
	require.NoError(t, sm.FetchBuffer(key, dst, 0))
	require.Equal(t, 1, populates)
	want := append([]byte(nil), dst.Data()...)

	// The second fetch of the same chunk hits the cache; the wrapper is
	// not consulted again.
	dst = chunk.NewBuffer(0)
	require.NoError(t, sm.FetchBuffer(key, dst, 0))
	require.Equal(t, 1, populates)
	require.Equal(t, want, dst.Data())
	require.NoError(t, sm.Close())

	// The cache survives a restart and serves the chunk with the source
	// gone.
	require.NoError(t, os.Remove(filepath.Join(dir, "sensors.csv")))
	sm2, err := foreign.NewStorageMgr(filepath.Join(dir, "chunks"), flags.Default(),
		provider, makeWrapper)
	require.NoError(t, err)
	defer sm2.Close()

	dst = chunk.NewBuffer(0)
	require.NoError(t, sm2.FetchBuffer(key, dst, 0))
	require.Equal(t, 1, populates)
	require.Equal(t, want, dst.Data())

	// Partial fetches work the same off the cache as off a parked buffer.
	dst = chunk.NewBuffer(0)
	require.NoError(t, sm2.FetchBuffer(key, dst, 4))
	require.Equal(t, want[:4], dst.Data())

	// Chunks that never made it into the cache cannot be served anymore.
	err = sm2.FetchBuffer(chunk.MakeKey(1, 100, 3, 1), chunk.NewBuffer(0), 0)
	require.Error(t, err)
}

type failingWrapper struct {
	err error
}

func (fw *failingWrapper) ChunkMetadata() ([]chunk.MetadataEntry, error) {
	return nil, fw.err
}

func (fw *failingWrapper) PopulateChunkBuffers(buffers []foreign.ChunkBuffer) error {
	return fw.err
}

func (fw *failingWrapper) IsRestored() bool {
	return false
}

func TestForeignSourceError(t *testing.T) {
	dir := filepath.Join("testdata", "source_error")
	testutil.CleanDir(t, dir, ".gitignore")

	provider := func(dbID, tableID int) (*foreign.TableInfo, error) {
		return sensorsInfo(dir, nil), nil
	}
	makeWrapper := func(dbID int, info *foreign.TableInfo) (foreign.DataWrapper, error) {
		return &failingWrapper{err: errors.New("connection refused")}, nil
	}

	sm, err := foreign.NewStorageMgr("", flags.Default(), provider, makeWrapper)
	require.NoError(t, err)
	defer sm.Close()

	key := chunk.MakeKey(1, 100, 1, 0)
	err = sm.FetchBuffer(key, chunk.NewBuffer(0), 0)
	require.Error(t, err)

	// A source failure is distinguishable from a chunk that does not
	// exist.
	var fse *datamgr.ForeignSourceError
	require.True(t, errors.As(err, &fse))
	require.Equal(t, key, fse.Key)
	require.False(t, errors.Is(err, datamgr.ErrChunkNotFound))

	_, err = sm.ChunkMetadataForKeyPrefix(chunk.TableKey(1, 100))
	require.True(t, errors.As(err, &fse))
}

func TestFSIDisabled(t *testing.T) {
	flgs := flags.Default()
	flgs[flags.EnableFSI] = false

	sm, _ := testStorageMgr(t, "fsi_disabled", "", flgs)
	defer sm.Close()

	err := sm.FetchBuffer(chunk.MakeKey(1, 100, 1, 0), chunk.NewBuffer(0), 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "disabled")
}

func TestS3Disabled(t *testing.T) {
	dir := filepath.Join("testdata", "s3_disabled")
	testutil.CleanDir(t, dir, ".gitignore")
	writeCSVFile(t, dir, "sensors.csv", sensorsCSV)

	provider := func(dbID, tableID int) (*foreign.TableInfo, error) {
		info := sensorsInfo(dir, nil)
		info.Server.Options[schema.StorageTypeKey] = schema.S3StorageType
		return info, nil
	}

	sm, err := foreign.NewStorageMgr("", flags.Default(), provider,
		foreign.MakeDataWrapper)
	require.NoError(t, err)
	defer sm.Close()

	err = sm.FetchBuffer(chunk.MakeKey(1, 100, 1, 0), chunk.NewBuffer(0), 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "S3")

	flgs := flags.Default()
	flgs[flags.EnableS3FSI] = true
	sm2, err := foreign.NewStorageMgr("", flgs, provider, foreign.MakeDataWrapper)
	require.NoError(t, err)
	defer sm2.Close()

	require.NoError(t, sm2.FetchBuffer(chunk.MakeKey(1, 100, 1, 0), chunk.NewBuffer(0), 0))
}

func TestNotForeignTable(t *testing.T) {
	sm, err := foreign.NewStorageMgr("", flags.Default(),
		func(dbID, tableID int) (*foreign.TableInfo, error) {
			return nil, nil
		}, foreign.MakeDataWrapper)
	require.NoError(t, err)
	defer sm.Close()

	err = sm.FetchBuffer(chunk.MakeKey(1, 2, 3, 0), chunk.NewBuffer(0), 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a foreign table")
}

func TestChunkMetadataPrefix(t *testing.T) {
	sm, _ := testStorageMgr(t, "metadata_prefix", "", flags.Default())
	defer sm.Close()

	entries, err := sm.ChunkMetadataForKeyPrefix(chunk.TableKey(1, 100))
	require.NoError(t, err)
	require.Len(t, entries, 9)

	entries, err = sm.ChunkMetadataForKeyPrefix(chunk.MakeKey(1, 100, 2))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, ent := range entries {
		require.Equal(t, 2, ent.Key.Column())
	}

	entries, err = sm.ChunkMetadata()
	require.NoError(t, err)
	require.Len(t, entries, 9)
}

func TestRemoveTableRelatedDS(t *testing.T) {
	sm, _ := testStorageMgr(t, "remove_table", "", flags.Default())
	defer sm.Close()

	require.NoError(t, sm.FetchBuffer(chunk.MakeKey(1, 100, 1, 0), chunk.NewBuffer(0), 0))
	require.Equal(t, 2, sm.NumChunks())

	require.NoError(t, sm.RemoveTableRelatedDS(1, 100))
	require.Equal(t, 0, sm.NumChunks())

	on, err := sm.IsBufferOnDevice(chunk.MakeKey(1, 100, 2, 0))
	require.NoError(t, err)
	require.False(t, on)
}

func TestReadOnlyPanics(t *testing.T) {
	sm, _ := testStorageMgr(t, "read_only", "", flags.Default())
	defer sm.Close()

	key := chunk.MakeKey(1, 100, 1, 0)
	require.Panics(t, func() { sm.CreateBuffer(key, 0, 0) })
	require.Panics(t, func() { sm.GetBuffer(key, 0) })
	require.Panics(t, func() { sm.PutBuffer(key, chunk.NewBuffer(0), 0) })
	require.Panics(t, func() { sm.DeleteBuffer(key, true) })
	require.Panics(t, func() { sm.DeleteBuffersWithPrefix(chunk.TableKey(1, 100), true) })
	require.Panics(t, func() { sm.Checkpoint() })
	require.Panics(t, func() { sm.CheckpointTable(1, 100) })
	require.Panics(t, func() { sm.Alloc(8) })
	require.Panics(t, func() { sm.Free(chunk.NewBuffer(0)) })

	require.Equal(t, datamgr.ForeignStorageMgr, sm.MgrType())
	require.Equal(t, int64(0), sm.MaxSize())
	require.Equal(t, int64(0), sm.InUseSize())
	require.Equal(t, int64(0), sm.Allocated())
	require.False(t, sm.IsAllocationCapped())
}

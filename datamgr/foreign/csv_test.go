package foreign_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gzwplato/omniscidb/chunk"
	"github.com/gzwplato/omniscidb/datamgr/foreign"
	"github.com/gzwplato/omniscidb/schema"
	"github.com/gzwplato/omniscidb/testutil"
)

func writeCSVFile(t *testing.T, dir, name, contents string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, name), []byte(contents), 0644))
}

func sensorsInfo(dir string, opts map[string]string) *foreign.TableInfo {
	options := map[string]string{schema.FilePathKey: "sensors.csv"}
	for nam, val := range opts {
		options[nam] = val
	}
	return &foreign.TableInfo{
		Table: &schema.TableDescriptor{
			TableID:      100,
			Name:         "sensors",
			NColumns:     4,
			FragmentSize: 2,
			StorageType:  schema.StorageForeign,
			Options:      options,
		},
		Columns: []schema.ColumnDescriptor{
			{TableID: 100, ColumnID: 1, Name: "id",
				Type: schema.SQLType{Type: schema.Integer, NotNull: true}},
			{TableID: 100, ColumnID: 2, Name: "site",
				Type: schema.SQLType{Type: schema.Text, Encoding: schema.EncodingDict}},
			{TableID: 100, ColumnID: 3, Name: "active",
				Type: schema.SQLType{Type: schema.Boolean}},
			{TableID: 100, ColumnID: 4, Name: "rowid",
				Type:     schema.SQLType{Type: schema.BigInt},
				IsSystem: true, IsVirtual: true},
		},
		Server: &schema.ForeignServer{
			Name:        "local_csv",
			DataWrapper: schema.DataWrapperCSV,
			Options: map[string]string{
				schema.StorageTypeKey: schema.LocalStorageType,
				schema.BasePathKey:    dir,
			},
		},
	}
}

const sensorsCSV = `id,site,active
1,lab,true
2,field,false
3,lab,
4,field,true
5,roof,true
`

func TestCSVMetadata(t *testing.T) {
	dir := filepath.Join("testdata", "csv_metadata")
	testutil.CleanDir(t, dir, ".gitignore")
	writeCSVFile(t, dir, "sensors.csv", sensorsCSV)

	dw, err := foreign.NewCSVWrapper(1, sensorsInfo(dir, nil))
	require.NoError(t, err)
	require.False(t, dw.IsRestored())

	entries, err := dw.ChunkMetadata()
	require.NoError(t, err)

	// Five rows at a fragment size of two is three fragments of three
	// data columns each; rowid is virtual and has no chunks.
	require.Len(t, entries, 9)

	byKey := map[string]chunk.Metadata{}
	for _, ent := range entries {
		byKey[ent.Key.String()] = ent.Metadata
	}

	md, ok := byKey[chunk.MakeKey(1, 100, 1, 0).String()]
	require.True(t, ok)
	require.Equal(t, 2, md.NumElements)
	require.Equal(t, 8, md.NumBytes)
	require.Equal(t, int64(1), md.Stats.Min)
	require.Equal(t, int64(2), md.Stats.Max)
	require.False(t, md.Stats.HasNulls)

	// The last fragment holds the one leftover row.
	md, ok = byKey[chunk.MakeKey(1, 100, 1, 2).String()]
	require.True(t, ok)
	require.Equal(t, 1, md.NumElements)
	require.Equal(t, int64(5), md.Stats.Min)

	// Row three has an empty boolean.
	md, ok = byKey[chunk.MakeKey(1, 100, 3, 1).String()]
	require.True(t, ok)
	require.True(t, md.Stats.HasNulls)
}

func TestCSVPopulate(t *testing.T) {
	dir := filepath.Join("testdata", "csv_populate")
	testutil.CleanDir(t, dir, ".gitignore")
	writeCSVFile(t, dir, "sensors.csv", sensorsCSV)

	dw, err := foreign.NewCSVWrapper(1, sensorsInfo(dir, nil))
	require.NoError(t, err)

	buffers := []foreign.ChunkBuffer{
		{Key: chunk.MakeKey(1, 100, 1, 0), Buffer: chunk.NewBuffer(0)},
		{Key: chunk.MakeKey(1, 100, 2, 0), Buffer: chunk.NewBuffer(0)},
	}
	require.NoError(t, dw.PopulateChunkBuffers(buffers))
	require.True(t, dw.IsRestored())

	vals, err := chunk.DecodeFixedLength(buffers[0].Buffer.Data(), 4)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, vals)

	// Text ids are assigned in order of appearance across the table.
	vals, err = chunk.DecodeFixedLength(buffers[1].Buffer.Data(), 4)
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1}, vals)

	err = dw.PopulateChunkBuffers([]foreign.ChunkBuffer{
		{Key: chunk.MakeKey(1, 100, 1, 9), Buffer: chunk.NewBuffer(0)},
	})
	require.Error(t, err)
}

type fakeDict struct {
	ids  map[string]int32
	next int32
}

func (fd *fakeDict) GetOrAdd(s string) int32 {
	id, ok := fd.ids[s]
	if !ok {
		id = fd.next
		fd.next += 1
		fd.ids[s] = id
	}
	return id
}

func (fd *fakeDict) GetString(id int32) (string, bool) {
	for s, sid := range fd.ids {
		if sid == id {
			return s, true
		}
	}
	return "", false
}

func (fd *fakeDict) Close() error {
	return nil
}

func TestCSVDictClient(t *testing.T) {
	dir := filepath.Join("testdata", "csv_dict")
	testutil.CleanDir(t, dir, ".gitignore")
	writeCSVFile(t, dir, "sensors.csv", sensorsCSV)

	fd := &fakeDict{ids: map[string]int32{"lab": 7, "field": 11}, next: 20}
	info := sensorsInfo(dir, nil)
	info.Dicts = map[int]schema.DictClient{2: fd}

	dw, err := foreign.NewCSVWrapper(1, info)
	require.NoError(t, err)

	buffers := []foreign.ChunkBuffer{
		{Key: chunk.MakeKey(1, 100, 2, 0), Buffer: chunk.NewBuffer(0)},
		{Key: chunk.MakeKey(1, 100, 2, 2), Buffer: chunk.NewBuffer(0)},
	}
	require.NoError(t, dw.PopulateChunkBuffers(buffers))

	vals, err := chunk.DecodeFixedLength(buffers[0].Buffer.Data(), 4)
	require.NoError(t, err)
	require.Equal(t, []int64{7, 11}, vals)

	// "roof" is new to the dictionary.
	vals, err = chunk.DecodeFixedLength(buffers[1].Buffer.Data(), 4)
	require.NoError(t, err)
	require.Equal(t, []int64{20}, vals)
}

func TestCSVOptions(t *testing.T) {
	dir := filepath.Join("testdata", "csv_options")
	testutil.CleanDir(t, dir, ".gitignore")
	writeCSVFile(t, dir, "sensors.csv", "10;lab;true\n20;field;false\n")

	info := sensorsInfo(dir, map[string]string{
		schema.DelimiterKey: ";",
		schema.HeaderKey:    "false",
	})
	dw, err := foreign.NewCSVWrapper(1, info)
	require.NoError(t, err)

	buffers := []foreign.ChunkBuffer{
		{Key: chunk.MakeKey(1, 100, 1, 0), Buffer: chunk.NewBuffer(0)},
	}
	require.NoError(t, dw.PopulateChunkBuffers(buffers))

	vals, err := chunk.DecodeFixedLength(buffers[0].Buffer.Data(), 4)
	require.NoError(t, err)
	require.Equal(t, []int64{10, 20}, vals)

	info = sensorsInfo(dir, map[string]string{schema.HeaderKey: "maybe"})
	_, err = foreign.NewCSVWrapper(1, info)
	require.Error(t, err)

	info = sensorsInfo(dir, nil)
	delete(info.Table.Options, schema.FilePathKey)
	_, err = foreign.NewCSVWrapper(1, info)
	require.Error(t, err)
}

func TestCSVErrors(t *testing.T) {
	dir := filepath.Join("testdata", "csv_errors")
	testutil.CleanDir(t, dir, ".gitignore")

	// Missing file surfaces on first metadata access, not on creation.
	dw, err := foreign.NewCSVWrapper(1, sensorsInfo(dir, nil))
	require.NoError(t, err)
	_, err = dw.ChunkMetadata()
	require.Error(t, err)

	// NULL in a NOT NULL column.
	writeCSVFile(t, dir, "sensors.csv", "id,site,active\n,lab,true\n")
	dw, err = foreign.NewCSVWrapper(1, sensorsInfo(dir, nil))
	require.NoError(t, err)
	_, err = dw.ChunkMetadata()
	require.Error(t, err)
	require.Contains(t, err.Error(), "NOT NULL")
}

func TestMakeDataWrapper(t *testing.T) {
	dir := filepath.Join("testdata", "csv_make")
	testutil.CleanDir(t, dir, ".gitignore")

	info := sensorsInfo(dir, nil)
	dw, err := foreign.MakeDataWrapper(1, info)
	require.NoError(t, err)
	require.NotNil(t, dw)

	info.Server.DataWrapper = schema.DataWrapperParquet
	_, err = foreign.MakeDataWrapper(1, info)
	require.Error(t, err)
}

package metastore_test

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gzwplato/omniscidb/metastore"
	"github.com/gzwplato/omniscidb/schema"
	"github.com/gzwplato/omniscidb/testutil"
)

func testStore(t *testing.T, st metastore.Store) {
	t.Helper()

	ver, err := st.Version()
	require.NoError(t, err)
	require.Equal(t, 0, ver)

	require.NoError(t, st.SetVersion(5))
	ver, err = st.Version()
	require.NoError(t, err)
	require.Equal(t, 5, ver)

	td := schema.TableDescriptor{
		TableID:      1,
		Name:         "sensors",
		NColumns:     2,
		FragmentSize: 32000000,
	}
	cols := []schema.ColumnDescriptor{
		{TableID: 1, ColumnID: 1, Name: "id", Type: schema.SQLType{Type: schema.Integer}},
		{TableID: 1, ColumnID: 2, Name: "name",
			Type: schema.SQLType{Type: schema.Text, Encoding: schema.EncodingDict, CompParam: 1}},
	}
	dicts := []schema.DictDescriptor{
		{Ref: schema.DictRef{DBID: 1, DictID: 1}, Name: "sensors_name", NBits: 32, RefCount: 1},
	}
	require.NoError(t, st.CreateTable(&td, cols, dicts))

	tds, err := st.Tables()
	require.NoError(t, err)
	require.Len(t, tds, 1)
	require.Equal(t, td, tds[0])

	cds, err := st.Columns()
	require.NoError(t, err)
	require.Len(t, cds, 2)
	require.Equal(t, cols, cds)

	dds, err := st.Dictionaries()
	require.NoError(t, err)
	require.Len(t, dds, 1)
	require.Equal(t, 1, dds[0].RefCount)

	td.Name = "renamed"
	require.NoError(t, st.UpdateTable(&td))
	tds, err = st.Tables()
	require.NoError(t, err)
	require.Equal(t, "renamed", tds[0].Name)

	cd := schema.ColumnDescriptor{TableID: 1, ColumnID: 3, Name: "reading",
		Type: schema.SQLType{Type: schema.Double}}
	require.NoError(t, st.AddColumn(&cd))
	cds, err = st.Columns()
	require.NoError(t, err)
	require.Len(t, cds, 3)

	require.NoError(t, st.DropColumn(1, 3))
	cds, err = st.Columns()
	require.NoError(t, err)
	require.Len(t, cds, 2)

	require.NoError(t, st.SetLogicalToPhysical(1, []int{2, 3}))
	m, err := st.LogicalToPhysical()
	require.NoError(t, err)
	require.Equal(t, map[int][]int{1: {2, 3}}, m)
	require.NoError(t, st.DeleteLogicalToPhysical(1))

	fs := schema.ForeignServer{
		ID:          1,
		Name:        "omnisci_local_csv",
		DataWrapper: schema.DataWrapperCSV,
		Options:     map[string]string{schema.StorageTypeKey: schema.LocalStorageType},
	}
	require.NoError(t, st.InsertForeignServer(&fs))
	found, err := st.ForeignServerByName("omnisci_local_csv")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, fs.Options, found.Options)
	missing, err := st.ForeignServerByName("no_such_server")
	require.Equal(t, io.EOF, err)
	require.Nil(t, missing)

	require.NoError(t, st.DropTable(1))
	tds, err = st.Tables()
	require.NoError(t, err)
	require.Len(t, tds, 0)
	cds, err = st.Columns()
	require.NoError(t, err)
	require.Len(t, cds, 0)

	// Dropping an already dropped table must not fail.
	require.NoError(t, st.DropTable(1))

	require.NoError(t, st.Close())
}

func TestMemoryStore(t *testing.T) {
	st, err := metastore.NewMemoryStore()
	require.NoError(t, err)
	testStore(t, st)
}

func TestBBoltStore(t *testing.T) {
	dataDir := filepath.Join("testdata", "bbolt_store")
	testutil.CleanDir(t, dataDir, ".gitignore")

	st, err := metastore.NewBBoltStore(dataDir, "omnisci")
	require.NoError(t, err)
	testStore(t, st)
}

func TestBadgerStore(t *testing.T) {
	dataDir := filepath.Join("testdata", "badger_store")
	testutil.CleanDir(t, dataDir, ".gitignore")

	st, err := metastore.NewBadgerStore(dataDir,
		testutil.StoreLogger(t, filepath.Join("testdata", "badger_store.log")))
	require.NoError(t, err)
	testStore(t, st)
}

func TestPebbleStore(t *testing.T) {
	dataDir := filepath.Join("testdata", "pebble_store")
	testutil.CleanDir(t, dataDir, ".gitignore")

	st, err := metastore.NewPebbleStore(dataDir,
		testutil.StoreLogger(t, filepath.Join("testdata", "pebble_store.log")))
	require.NoError(t, err)
	testStore(t, st)
}

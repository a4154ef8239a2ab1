package schema

import (
	"fmt"
	"time"
)

// StorageType values for TableDescriptor; an empty storage type means the
// table is served by the local persistent file manager.
const (
	StorageLocal   = ""
	StorageForeign = "FOREIGN_TABLE"
)

// DBMetadata identifies the database a catalog manages.
type DBMetadata struct {
	ID      int
	Name    string
	OwnerID int
}

// TableDescriptor describes one table. A sharded table is one logical
// descriptor plus one physical descriptor per shard.
type TableDescriptor struct {
	TableID      int
	Name         string
	OwnerID      int
	NColumns     int
	IsView       bool
	ViewSQL      string
	FragmentSize int
	MaxRows      int64
	StorageType  string

	// Sharding; ShardColumnID is zero for unsharded tables. NShards is set
	// on the logical table, Shard on each physical table.
	NShards       int
	Shard         int
	ShardColumnID int

	// ForeignServerID links a foreign table to its server definition.
	ForeignServerID int

	// Options are per-table key/value options (foreign tables use them for
	// file paths and formats).
	Options map[string]string
}

func (td *TableDescriptor) IsForeign() bool {
	return td.StorageType == StorageForeign
}

func (td *TableDescriptor) Copy() *TableDescriptor {
	ntd := *td
	if td.Options != nil {
		ntd.Options = make(map[string]string, len(td.Options))
		for nam, val := range td.Options {
			ntd.Options[nam] = val
		}
	}
	return &ntd
}

// ColumnDescriptor describes one column of one table. The column id is
// stable across renames.
type ColumnDescriptor struct {
	TableID     int
	ColumnID    int
	Name        string
	Type        SQLType
	IsSystem    bool
	IsVirtual   bool
	IsGeoPhys   bool
	VirtualExpr string
	Default     string
}

func (cd *ColumnDescriptor) Copy() *ColumnDescriptor {
	ncd := *cd
	return &ncd
}

// DictRef identifies a string dictionary process-wide.
type DictRef struct {
	DBID   int
	DictID int
}

func (dr DictRef) String() string {
	return fmt.Sprintf("DB_%d_DICT_%d", dr.DBID, dr.DictID)
}

// DictClient is a handle to a loaded string dictionary; the dictionary
// service itself is an external collaborator.
type DictClient interface {
	GetOrAdd(s string) int32
	GetString(id int32) (string, bool)
	Close() error
}

// DictDescriptor tracks one string dictionary and the number of columns
// referencing it.
type DictDescriptor struct {
	Ref      DictRef
	Name     string
	NBits    int
	IsShared bool
	RefCount int
	Folder   string

	// Client is set once the dictionary has been loaded; nil otherwise.
	Client DictClient `json:"-"`
}

func (dd *DictDescriptor) Copy() *DictDescriptor {
	ndd := *dd
	return &ndd
}

// DashboardDescriptor is a user-owned named JSON view state.
type DashboardDescriptor struct {
	ID         int
	Name       string
	UserID     int
	State      string
	ImageHash  string
	Metadata   string
	UpdateTime time.Time
}

func (dd *DashboardDescriptor) Copy() *DashboardDescriptor {
	ndd := *dd
	return &ndd
}

// LinkDescriptor is a shareable link to a view state, addressed by a short
// hash of its contents.
type LinkDescriptor struct {
	LinkID     int
	UserID     int
	Link       string
	ViewState  string
	Metadata   string
	UpdateTime time.Time
}

func (ld *LinkDescriptor) Copy() *LinkDescriptor {
	nld := *ld
	return &nld
}

// Data wrapper types known to the foreign storage manager.
const (
	DataWrapperCSV     = "OMNISCI_CSV"
	DataWrapperParquet = "OMNISCI_PARQUET"
)

// Foreign server option keys.
const (
	StorageTypeKey   = "STORAGE_TYPE"
	BasePathKey      = "BASE_PATH"
	LocalStorageType = "LOCAL_FILE"
	S3StorageType    = "AWS_S3"
)

// Foreign table option keys.
const (
	FilePathKey  = "FILE_PATH"
	DelimiterKey = "DELIMITER"
	HeaderKey    = "HEADER"
)

// ForeignServer names an external storage endpoint usable by foreign
// tables.
type ForeignServer struct {
	ID           int
	Name         string
	DataWrapper  string
	OwnerUserID  int
	Options      map[string]string
	CreationTime time.Time
}

func (fs *ForeignServer) Copy() *ForeignServer {
	nfs := *fs
	if fs.Options != nil {
		nfs.Options = make(map[string]string, len(fs.Options))
		for nam, val := range fs.Options {
			nfs.Options[nam] = val
		}
	}
	return &nfs
}

// SharedDictionaryDef declares that a column shares the string dictionary
// of another column, either a sibling in the same CREATE TABLE or a column
// of an existing table.
type SharedDictionaryDef struct {
	Column        string
	ForeignTable  string
	ForeignColumn string
}

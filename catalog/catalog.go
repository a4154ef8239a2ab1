package catalog

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gzwplato/omniscidb/chunk"
	"github.com/gzwplato/omniscidb/datamgr"
	"github.com/gzwplato/omniscidb/datamgr/filemgr"
	"github.com/gzwplato/omniscidb/datamgr/foreign"
	"github.com/gzwplato/omniscidb/flags"
	"github.com/gzwplato/omniscidb/metastore"
	"github.com/gzwplato/omniscidb/schema"
)

// Catalog is the schema authority for one database: an in-memory cache of
// all descriptors keyed multiple ways, backed by a metadata store. The
// maps are mutated only under the write lock and never diverge from the
// store for committed operations.
type Catalog struct {
	db      schema.DBMetadata
	dataDir string
	store   metastore.Store
	dataMgr datamgr.BufferMgr
	fileMgr *filemgr.FileMgr
	flgs    flags.Flags

	mutex      ownedRWMutex
	storeMutex sync.Mutex

	tableByName map[string]*schema.TableDescriptor
	tableByID   map[int]*schema.TableDescriptor
	columnsByID map[int]map[int]*schema.ColumnDescriptor
	columnNames map[int]map[string]*schema.ColumnDescriptor
	dicts       map[int]*schema.DictDescriptor
	dashByID    map[int]*schema.DashboardDescriptor
	dashByName  map[string]*schema.DashboardDescriptor
	linkByID    map[int]*schema.LinkDescriptor
	linkByStr   map[string]*schema.LinkDescriptor
	svrByName   map[string]*schema.ForeignServer
	svrByID     map[int]*schema.ForeignServer
	logToPhys   map[int][]int

	nextTableID int
	nextDictID  int
	nextDashID  int
	nextLinkID  int
	nextSvrID   int

	staged []columnRoll
}

// New builds a catalog over st, runs any pending schema migrations, and
// loads the descriptor cache. A migration failure is fatal to the caller:
// the catalog refuses to serve a database it cannot bring to the current
// schema version. dm and fm may be nil for metadata-only use.
func New(db schema.DBMetadata, dataDir string, st metastore.Store,
	dm datamgr.BufferMgr, fm *filemgr.FileMgr, flgs flags.Flags) (*Catalog, error) {

	c := &Catalog{
		db:      db,
		dataDir: dataDir,
		store:   st,
		dataMgr: dm,
		fileMgr: fm,
		flgs:    flgs,
	}

	err := c.migrate()
	if err != nil {
		return nil, fmt.Errorf("catalog: migrate %s: %s", db.Name, err)
	}
	err = c.buildMaps()
	if err != nil {
		return nil, fmt.Errorf("catalog: load %s: %s", db.Name, err)
	}
	return c, nil
}

func (c *Catalog) buildMaps() error {
	c.tableByName = map[string]*schema.TableDescriptor{}
	c.tableByID = map[int]*schema.TableDescriptor{}
	c.columnsByID = map[int]map[int]*schema.ColumnDescriptor{}
	c.columnNames = map[int]map[string]*schema.ColumnDescriptor{}
	c.dicts = map[int]*schema.DictDescriptor{}
	c.dashByID = map[int]*schema.DashboardDescriptor{}
	c.dashByName = map[string]*schema.DashboardDescriptor{}
	c.linkByID = map[int]*schema.LinkDescriptor{}
	c.linkByStr = map[string]*schema.LinkDescriptor{}
	c.svrByName = map[string]*schema.ForeignServer{}
	c.svrByID = map[int]*schema.ForeignServer{}
	c.logToPhys = map[int][]int{}
	c.nextTableID = 1
	c.nextDictID = 1
	c.nextDashID = 1
	c.nextLinkID = 1
	c.nextSvrID = 1

	tbls, err := c.store.Tables()
	if err != nil {
		return err
	}
	for idx := range tbls {
		td := &tbls[idx]
		c.tableByName[td.Name] = td
		c.tableByID[td.TableID] = td
		c.columnsByID[td.TableID] = map[int]*schema.ColumnDescriptor{}
		c.columnNames[td.TableID] = map[string]*schema.ColumnDescriptor{}
		if td.TableID >= c.nextTableID {
			c.nextTableID = td.TableID + 1
		}
	}

	cols, err := c.store.Columns()
	if err != nil {
		return err
	}
	for idx := range cols {
		cd := &cols[idx]
		if c.columnsByID[cd.TableID] == nil {
			return fmt.Errorf("column %s belongs to unknown table %d", cd.Name,
				cd.TableID)
		}
		c.columnsByID[cd.TableID][cd.ColumnID] = cd
		c.columnNames[cd.TableID][cd.Name] = cd
	}

	dds, err := c.store.Dictionaries()
	if err != nil {
		return err
	}
	for idx := range dds {
		dd := &dds[idx]
		c.dicts[dd.Ref.DictID] = dd
		if dd.Ref.DictID >= c.nextDictID {
			c.nextDictID = dd.Ref.DictID + 1
		}
	}

	dashes, err := c.store.Dashboards()
	if err != nil {
		return err
	}
	for idx := range dashes {
		dd := &dashes[idx]
		c.dashByID[dd.ID] = dd
		c.dashByName[dashKey(dd.UserID, dd.Name)] = dd
		if dd.ID >= c.nextDashID {
			c.nextDashID = dd.ID + 1
		}
	}

	links, err := c.store.Links()
	if err != nil {
		return err
	}
	for idx := range links {
		ld := &links[idx]
		c.linkByID[ld.LinkID] = ld
		c.linkByStr[ld.Link] = ld
		if ld.LinkID >= c.nextLinkID {
			c.nextLinkID = ld.LinkID + 1
		}
	}

	svrs, err := c.store.ForeignServers()
	if err != nil {
		return err
	}
	for idx := range svrs {
		fs := &svrs[idx]
		c.svrByName[fs.Name] = fs
		c.svrByID[fs.ID] = fs
		if fs.ID >= c.nextSvrID {
			c.nextSvrID = fs.ID + 1
		}
	}

	ltp, err := c.store.LogicalToPhysical()
	if err != nil {
		return err
	}
	c.logToPhys = ltp
	return nil
}

func (c *Catalog) Close() error {
	for _, dd := range c.dicts {
		if dd.Client != nil {
			dd.Client.Close()
		}
	}
	return c.store.Close()
}

func (c *Catalog) DBMetadata() schema.DBMetadata {
	return c.db
}

func (c *Catalog) DataDir() string {
	return c.dataDir
}

// TableByName returns a snapshot of the named table's descriptor or nil.
func (c *Catalog) TableByName(name string) *schema.TableDescriptor {
	defer c.mutex.rlock()()

	td, ok := c.tableByName[name]
	if !ok {
		return nil
	}
	return td.Copy()
}

func (c *Catalog) TableByID(tableID int) *schema.TableDescriptor {
	defer c.mutex.rlock()()

	td, ok := c.tableByID[tableID]
	if !ok {
		return nil
	}
	return td.Copy()
}

// Tables returns all table descriptors ordered by name.
func (c *Catalog) Tables() []*schema.TableDescriptor {
	defer c.mutex.rlock()()

	tbls := make([]*schema.TableDescriptor, 0, len(c.tableByName))
	for _, td := range c.tableByName {
		tbls = append(tbls, td.Copy())
	}
	sort.Slice(tbls, func(i, j int) bool {
		return tbls[i].Name < tbls[j].Name
	})
	return tbls
}

// ColumnByName looks up a column on an existing table; asking about a
// table that does not exist is a programming error.
func (c *Catalog) ColumnByName(tableID int, name string) *schema.ColumnDescriptor {
	defer c.mutex.rlock()()

	cols, ok := c.columnNames[tableID]
	if !ok {
		panic(fmt.Sprintf("catalog: column lookup on unknown table %d", tableID))
	}
	cd, ok := cols[name]
	if !ok {
		return nil
	}
	return cd.Copy()
}

func (c *Catalog) ColumnByID(tableID, columnID int) *schema.ColumnDescriptor {
	defer c.mutex.rlock()()

	cols, ok := c.columnsByID[tableID]
	if !ok {
		panic(fmt.Sprintf("catalog: column lookup on unknown table %d", tableID))
	}
	cd, ok := cols[columnID]
	if !ok {
		return nil
	}
	return cd.Copy()
}

func (c *Catalog) columnsInOrder(tableID int) []*schema.ColumnDescriptor {
	cols := make([]*schema.ColumnDescriptor, 0, len(c.columnsByID[tableID]))
	for _, cd := range c.columnsByID[tableID] {
		cols = append(cols, cd)
	}
	sort.Slice(cols, func(i, j int) bool {
		return cols[i].ColumnID < cols[j].ColumnID
	})
	return cols
}

// Columns returns a table's columns in column id order, optionally
// including system, virtual, and geo physical columns.
func (c *Catalog) Columns(tableID int, system, virtual, physical bool) []*schema.ColumnDescriptor {
	defer c.mutex.rlock()()

	if _, ok := c.columnsByID[tableID]; !ok {
		panic(fmt.Sprintf("catalog: column lookup on unknown table %d", tableID))
	}

	var cols []*schema.ColumnDescriptor
	for _, cd := range c.columnsInOrder(tableID) {
		if cd.IsSystem && !system {
			continue
		}
		if cd.IsVirtual && !virtual {
			continue
		}
		if cd.IsGeoPhys && !physical {
			continue
		}
		cols = append(cols, cd.Copy())
	}
	return cols
}

func (c *Catalog) Dictionary(dictID int) *schema.DictDescriptor {
	defer c.mutex.rlock()()

	dd, ok := c.dicts[dictID]
	if !ok {
		return nil
	}
	return dd.Copy()
}

// PhysicalTables returns the physical shard table ids of a logical table,
// or nil when the table is unsharded.
func (c *Catalog) PhysicalTables(logicalID int) []int {
	defer c.mutex.rlock()()

	ids := c.logToPhys[logicalID]
	if ids == nil {
		return nil
	}
	nids := make([]int, len(ids))
	copy(nids, ids)
	return nids
}

// IsForeignStorage classifies a chunk key by the storage type of its
// table; it backs the data manager's routing predicate.
func (c *Catalog) IsForeignStorage(key chunk.Key) bool {
	if key.Database() != c.db.ID {
		return false
	}

	defer c.mutex.rlock()()
	td, ok := c.tableByID[key.Table()]
	return ok && td.IsForeign()
}

// ForeignTableInfo supplies the foreign storage manager with everything
// it needs about one foreign table; nil for unknown or local tables.
func (c *Catalog) ForeignTableInfo(dbID, tableID int) (*foreign.TableInfo, error) {
	if dbID != c.db.ID {
		return nil, nil
	}

	defer c.mutex.rlock()()

	td, ok := c.tableByID[tableID]
	if !ok || !td.IsForeign() {
		return nil, nil
	}
	svr, ok := c.svrByID[td.ForeignServerID]
	if !ok {
		return nil, fmt.Errorf("catalog: table %s references unknown foreign server %d",
			td.Name, td.ForeignServerID)
	}

	info := foreign.TableInfo{
		Table:  td.Copy(),
		Server: svr.Copy(),
		Dicts:  map[int]schema.DictClient{},
	}
	for _, cd := range c.columnsInOrder(tableID) {
		info.Columns = append(info.Columns, *cd.Copy())
		if cd.Type.Encoding == schema.EncodingDict {
			if dd, ok := c.dicts[cd.Type.CompParam]; ok && dd.Client != nil {
				info.Dicts[cd.ColumnID] = dd.Client
			}
		}
	}
	return &info, nil
}

// TableDataDirectories lists the on-disk data directories of a table,
// one per physical shard. The layout is derived from ids alone so it can
// be rebuilt from catalog metadata.
func (c *Catalog) TableDataDirectories(td *schema.TableDescriptor) []string {
	var dirs []string
	physIDs := c.PhysicalTables(td.TableID)
	if physIDs == nil {
		physIDs = []int{td.TableID}
	}
	for _, id := range physIDs {
		dirs = append(dirs, filemgr.TableDir(c.dataDir, c.db.ID, id))
	}
	return dirs
}

// ColumnDictDirectory returns the dictionary folder of a dictionary
// encoded column, or empty.
func (c *Catalog) ColumnDictDirectory(cd *schema.ColumnDescriptor) string {
	if cd.Type.Encoding != schema.EncodingDict || cd.Type.CompParam <= 0 {
		return ""
	}

	defer c.mutex.rlock()()
	dd, ok := c.dicts[cd.Type.CompParam]
	if !ok {
		return ""
	}
	return dd.Folder
}

func dictFolder(dataDir string, ref schema.DictRef) string {
	return filepath.Join(dataDir, ref.String())
}

// TableEpoch reports the checkpoint epoch of a table's persistent data.
func (c *Catalog) TableEpoch(tableID int) int32 {
	if c.fileMgr == nil {
		return 0
	}
	return c.fileMgr.Epoch(c.db.ID, tableID)
}

func (c *Catalog) SetTableEpoch(tableID int, epoch int32) {
	if c.fileMgr != nil {
		c.fileMgr.SetEpoch(c.db.ID, tableID, epoch)
	}
}

// CheckpointTable checkpoints a logical table and every physical shard
// behind it.
func (c *Catalog) CheckpointTable(tableID int) error {
	physIDs := c.PhysicalTables(tableID)
	if physIDs == nil {
		physIDs = []int{tableID}
	}
	for _, id := range physIDs {
		err := c.dataMgr.CheckpointTable(c.db.ID, id)
		if err != nil {
			return err
		}
	}
	return nil
}

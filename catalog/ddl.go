package catalog

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/gzwplato/omniscidb/chunk"
	"github.com/gzwplato/omniscidb/flags"
	"github.com/gzwplato/omniscidb/schema"
)

const shardTag = "_shard_#"

// SystemColumns are appended to every non-view table: a virtual rowid and
// a deleted-rows indicator for local tables.
const (
	RowIDColumn   = "rowid"
	DeletedColumn = "$deleted$"
)

func systemColumns(td *schema.TableDescriptor) []schema.ColumnDescriptor {
	if td.IsView {
		return nil
	}

	cols := []schema.ColumnDescriptor{
		{
			Name:        RowIDColumn,
			Type:        schema.SQLType{Type: schema.BigInt, NotNull: true},
			IsVirtual:   true,
			VirtualExpr: RowIDColumn,
		},
	}
	if !td.IsForeign() {
		cols = append(cols, schema.ColumnDescriptor{
			Name:     DeletedColumn,
			Type:     schema.SQLType{Type: schema.Boolean},
			IsSystem: true,
		})
	}
	return cols
}

type geoPhysical struct {
	suffix string
	typ    schema.DataType
}

func geoPhysicalColumns(t schema.DataType) []geoPhysical {
	coords := geoPhysical{"coords", schema.Double}
	bounds := geoPhysical{"bounds", schema.Double}
	ringSizes := geoPhysical{"ring_sizes", schema.Integer}
	polyRings := geoPhysical{"poly_rings", schema.Integer}

	switch t {
	case schema.Point:
		return []geoPhysical{coords}
	case schema.LineString:
		return []geoPhysical{coords, bounds}
	case schema.Polygon:
		return []geoPhysical{coords, ringSizes, bounds}
	case schema.MultiPolygon:
		return []geoPhysical{coords, ringSizes, polyRings, bounds}
	}
	return nil
}

// expandGeoColumns inserts the physical sub-columns of each geo column
// directly after it, in the order the storage layer expects them.
func expandGeoColumns(cols []schema.ColumnDescriptor) []schema.ColumnDescriptor {
	var out []schema.ColumnDescriptor
	for _, cd := range cols {
		out = append(out, cd)
		for _, gp := range geoPhysicalColumns(cd.Type.Type) {
			out = append(out, schema.ColumnDescriptor{
				Name:      cd.Name + "_" + gp.suffix,
				Type:      schema.SQLType{Type: gp.typ},
				IsGeoPhys: true,
			})
		}
	}
	return out
}

func findSharedDef(shared []schema.SharedDictionaryDef,
	name string) *schema.SharedDictionaryDef {

	for idx := range shared {
		if shared[idx].Column == name {
			return &shared[idx]
		}
	}
	return nil
}

// CreateTable creates a table or view: validates the name, expands geo
// columns, resolves dictionaries, persists everything atomically, and
// only then publishes the descriptors into the cache.
func (c *Catalog) CreateTable(td *schema.TableDescriptor, cols []schema.ColumnDescriptor,
	shared []schema.SharedDictionaryDef) error {

	c.mutex.lock()
	defer c.mutex.unlock()

	return c.createTableLocked(td, cols, shared)
}

func (c *Catalog) createTableLocked(td *schema.TableDescriptor,
	cols []schema.ColumnDescriptor, shared []schema.SharedDictionaryDef) error {

	if _, ok := c.tableByName[td.Name]; ok {
		return fmt.Errorf("catalog: table %s already exists", td.Name)
	}
	if td.IsForeign() {
		if !c.flgs.GetFlag(flags.EnableFSI) {
			return fmt.Errorf("catalog: foreign storage interface is disabled")
		}
		if _, ok := c.svrByID[td.ForeignServerID]; !ok {
			return fmt.Errorf("catalog: table %s: unknown foreign server %d", td.Name,
				td.ForeignServerID)
		}
	}

	cols = expandGeoColumns(cols)
	cols = append(cols, systemColumns(td)...)

	td.TableID = c.nextTableID
	td.NColumns = len(cols)
	for idx := range cols {
		cols[idx].TableID = td.TableID
		cols[idx].ColumnID = idx + 1
	}

	firstNewDictID := c.nextDictID
	newDicts, err := c.resolveDictionaries(td, cols, shared)
	if err != nil {
		c.rollbackDictionaries(cols, firstNewDictID)
		return err
	}

	c.storeMutex.Lock()
	err = c.store.CreateTable(td, cols, newDicts)
	c.storeMutex.Unlock()
	if err != nil {
		c.rollbackDictionaries(cols, firstNewDictID)
		return err
	}

	c.nextTableID++
	c.publishTableLocked(td, cols, newDicts)
	log.WithFields(log.Fields{
		"db":    c.db.Name,
		"table": td.Name,
		"id":    td.TableID,
	}).Info("created table")
	return nil
}

func (c *Catalog) publishTableLocked(td *schema.TableDescriptor,
	cols []schema.ColumnDescriptor, newDicts []schema.DictDescriptor) {

	c.tableByName[td.Name] = td
	c.tableByID[td.TableID] = td
	c.columnsByID[td.TableID] = map[int]*schema.ColumnDescriptor{}
	c.columnNames[td.TableID] = map[string]*schema.ColumnDescriptor{}
	for idx := range cols {
		cd := &cols[idx]
		c.columnsByID[td.TableID][cd.ColumnID] = cd
		c.columnNames[td.TableID][cd.Name] = cd
	}
	for idx := range newDicts {
		dd := newDicts[idx]
		c.dicts[dd.Ref.DictID] = &dd
	}
}

// CreateShardedTable creates one logical table plus NShards physical
// tables named with the shard tag; the physical tables share the logical
// table's dictionaries.
func (c *Catalog) CreateShardedTable(td *schema.TableDescriptor,
	cols []schema.ColumnDescriptor, shared []schema.SharedDictionaryDef) error {

	// The shard column must name a declared column, before geo and system
	// column expansion.
	if td.NShards <= 0 || td.ShardColumnID <= 0 || td.ShardColumnID > len(cols) {
		return fmt.Errorf("catalog: table %s: invalid shard definition", td.Name)
	}

	c.mutex.lock()
	defer c.mutex.unlock()

	err := c.createTableLocked(td, cols, shared)
	if err != nil {
		return err
	}

	physIDs := make([]int, 0, td.NShards)
	for shard := 0; shard < td.NShards; shard++ {
		ptd := td.Copy()
		ptd.Name = fmt.Sprintf("%s%s%d", td.Name, shardTag, shard+1)
		ptd.Shard = shard
		ptd.TableID = c.nextTableID

		// Physical shards carry the logical table's column set and share
		// its dictionaries.
		pcols := make([]schema.ColumnDescriptor, 0, td.NColumns)
		for _, cd := range c.columnsInOrder(td.TableID) {
			pcd := *cd.Copy()
			pcd.TableID = ptd.TableID
			pcols = append(pcols, pcd)
		}

		c.storeMutex.Lock()
		err = c.store.CreateTable(ptd, pcols, nil)
		c.storeMutex.Unlock()
		if err != nil {
			c.logToPhys[td.TableID] = physIDs
			c.dropTableLocked(td, true)
			return err
		}
		c.nextTableID++
		c.publishTableLocked(ptd, pcols, nil)
		physIDs = append(physIDs, ptd.TableID)
	}

	c.logToPhys[td.TableID] = physIDs
	c.storeMutex.Lock()
	err = c.store.SetLogicalToPhysical(td.TableID, physIDs)
	c.storeMutex.Unlock()
	if err != nil {
		c.dropTableLocked(td, true)
		return err
	}
	return nil
}

// DropTable removes a table's data, descriptors, and store rows, and
// releases dictionaries whose reference count reaches zero.
func (c *Catalog) DropTable(name string) error {
	c.mutex.lock()
	defer c.mutex.unlock()

	td, ok := c.tableByName[name]
	if !ok {
		return fmt.Errorf("catalog: table %s does not exist", name)
	}
	return c.dropTableLocked(td, false)
}

// dropTableLocked with isOnError set tolerates partially constructed
// tables: missing descriptors and store rows are skipped, not errors.
func (c *Catalog) dropTableLocked(td *schema.TableDescriptor, isOnError bool) error {
	ids := append([]int{}, c.logToPhys[td.TableID]...)
	ids = append(ids, td.TableID)

	for _, id := range ids {
		ptd, ok := c.tableByID[id]
		if !ok {
			if isOnError {
				continue
			}
			return fmt.Errorf("catalog: table %d does not exist", id)
		}

		if c.dataMgr != nil && !ptd.IsView {
			err := c.dataMgr.RemoveTableRelatedDS(c.db.ID, id)
			if err != nil && !isOnError {
				return err
			}
		}

		// Physical shards share the logical table's dictionaries, so only
		// the logical descriptor releases references.
		if id == td.TableID {
			for _, cd := range c.columnsInOrder(id) {
				if cd.Type.Encoding != schema.EncodingDict || cd.Type.CompParam <= 0 {
					continue
				}
				err := c.releaseDictionaryLocked(cd.Type.CompParam, isOnError)
				if err != nil {
					return err
				}
			}
		}

		c.storeMutex.Lock()
		err := c.store.DropTable(id)
		c.storeMutex.Unlock()
		if err != nil && !isOnError {
			return err
		}

		delete(c.tableByName, ptd.Name)
		delete(c.tableByID, id)
		delete(c.columnsByID, id)
		delete(c.columnNames, id)
	}

	if _, ok := c.logToPhys[td.TableID]; ok {
		c.storeMutex.Lock()
		err := c.store.DeleteLogicalToPhysical(td.TableID)
		c.storeMutex.Unlock()
		if err != nil && !isOnError {
			return err
		}
		delete(c.logToPhys, td.TableID)
	}

	log.WithFields(log.Fields{
		"db":    c.db.Name,
		"table": td.Name,
	}).Info("dropped table")
	return nil
}

// TruncateTable removes all chunk data of a table and resets its epoch;
// the descriptors are untouched.
func (c *Catalog) TruncateTable(name string) error {
	c.mutex.lock()
	defer c.mutex.unlock()

	td, ok := c.tableByName[name]
	if !ok {
		return fmt.Errorf("catalog: table %s does not exist", name)
	}
	if td.IsView || td.IsForeign() {
		return fmt.Errorf("catalog: table %s cannot be truncated", name)
	}

	ids := append([]int{}, c.logToPhys[td.TableID]...)
	ids = append(ids, td.TableID)
	for _, id := range ids {
		if c.dataMgr != nil {
			err := c.dataMgr.RemoveTableRelatedDS(c.db.ID, id)
			if err != nil {
				return err
			}
		}
		c.SetTableEpoch(id, 0)
	}
	return nil
}

func (c *Catalog) RenameTable(oldName, newName string) error {
	c.mutex.lock()
	defer c.mutex.unlock()

	td, ok := c.tableByName[oldName]
	if !ok {
		return fmt.Errorf("catalog: table %s does not exist", oldName)
	}
	if _, ok := c.tableByName[newName]; ok {
		return fmt.Errorf("catalog: table %s already exists", newName)
	}

	ntd := td.Copy()
	ntd.Name = newName
	c.storeMutex.Lock()
	err := c.store.UpdateTable(ntd)
	c.storeMutex.Unlock()
	if err != nil {
		return err
	}

	delete(c.tableByName, oldName)
	td.Name = newName
	c.tableByName[newName] = td
	return nil
}

func (c *Catalog) RenameColumn(tableName, oldName, newName string) error {
	c.mutex.lock()
	defer c.mutex.unlock()

	td, ok := c.tableByName[tableName]
	if !ok {
		return fmt.Errorf("catalog: table %s does not exist", tableName)
	}
	cd, ok := c.columnNames[td.TableID][oldName]
	if !ok {
		return fmt.Errorf("catalog: column %s.%s does not exist", tableName, oldName)
	}
	if _, ok := c.columnNames[td.TableID][newName]; ok {
		return fmt.Errorf("catalog: column %s.%s already exists", tableName, newName)
	}

	ncd := cd.Copy()
	ncd.Name = newName
	c.storeMutex.Lock()
	err := c.store.UpdateColumn(ncd)
	c.storeMutex.Unlock()
	if err != nil {
		return err
	}

	delete(c.columnNames[td.TableID], oldName)
	cd.Name = newName
	c.columnNames[td.TableID][newName] = cd
	return nil
}

type columnRoll struct {
	tableID int
	old     *schema.ColumnDescriptor
	new     *schema.ColumnDescriptor
}

// AddColumn stages a new column: it is persisted and published
// immediately, but remains rollable until Roll is called. Geo columns
// bring their physical sub-columns along and dictionary encoded columns
// get a fresh dictionary, the same as at table creation.
func (c *Catalog) AddColumn(tableName string, cd schema.ColumnDescriptor) error {
	c.mutex.lock()
	defer c.mutex.unlock()

	td, ok := c.tableByName[tableName]
	if !ok {
		return fmt.Errorf("catalog: table %s does not exist", tableName)
	}

	ncols := expandGeoColumns([]schema.ColumnDescriptor{cd})
	for idx := range ncols {
		if _, ok := c.columnNames[td.TableID][ncols[idx].Name]; ok {
			return fmt.Errorf("catalog: column %s.%s already exists", tableName,
				ncols[idx].Name)
		}
	}

	maxID := 0
	for id := range c.columnsByID[td.TableID] {
		if id > maxID {
			maxID = id
		}
	}
	for idx := range ncols {
		ncols[idx].TableID = td.TableID
		ncols[idx].ColumnID = maxID + 1 + idx
	}

	firstNewDictID := c.nextDictID
	newDicts, err := c.resolveDictionaries(td, ncols, nil)
	if err != nil {
		c.rollbackDictionaries(ncols, firstNewDictID)
		return err
	}

	ntd := td.Copy()
	ntd.NColumns = td.NColumns + len(ncols)
	c.storeMutex.Lock()
	for idx := range newDicts {
		err = c.store.InsertDictionary(&newDicts[idx])
		if err != nil {
			break
		}
	}
	for idx := 0; err == nil && idx < len(ncols); idx++ {
		err = c.store.AddColumn(&ncols[idx])
	}
	if err == nil {
		err = c.store.UpdateTable(ntd)
	}
	if err != nil {
		for idx := range newDicts {
			c.store.DeleteDictionary(newDicts[idx].Ref.DictID)
		}
	}
	c.storeMutex.Unlock()
	if err != nil {
		c.rollbackDictionaries(ncols, firstNewDictID)
		return err
	}

	td.NColumns += len(ncols)
	for idx := range ncols {
		ncd := &ncols[idx]
		c.columnsByID[td.TableID][ncd.ColumnID] = ncd
		c.columnNames[td.TableID][ncd.Name] = ncd
		c.staged = append(c.staged, columnRoll{tableID: td.TableID, new: ncd})
	}
	for idx := range newDicts {
		dd := newDicts[idx]
		c.dicts[dd.Ref.DictID] = &dd
	}
	return nil
}

// DropColumn stages removal of a column; the chunk data survives until
// Roll(true).
func (c *Catalog) DropColumn(tableName, colName string) error {
	c.mutex.lock()
	defer c.mutex.unlock()

	td, ok := c.tableByName[tableName]
	if !ok {
		return fmt.Errorf("catalog: table %s does not exist", tableName)
	}
	cd, ok := c.columnNames[td.TableID][colName]
	if !ok {
		return fmt.Errorf("catalog: column %s.%s does not exist", tableName, colName)
	}
	if cd.IsSystem || cd.IsVirtual {
		return fmt.Errorf("catalog: column %s.%s cannot be dropped", tableName, colName)
	}

	ntd := td.Copy()
	ntd.NColumns = td.NColumns - 1
	c.storeMutex.Lock()
	err := c.store.DropColumn(td.TableID, cd.ColumnID)
	if err == nil {
		err = c.store.UpdateTable(ntd)
	}
	c.storeMutex.Unlock()
	if err != nil {
		return err
	}

	td.NColumns--
	delete(c.columnsByID[td.TableID], cd.ColumnID)
	delete(c.columnNames[td.TableID], cd.Name)
	c.staged = append(c.staged, columnRoll{tableID: td.TableID, old: cd})
	return nil
}

// Roll completes or abandons all staged column changes. forward commits:
// dropped columns lose their chunk data. Not forward restores the
// descriptors exactly as they were before the staged changes.
func (c *Catalog) Roll(forward bool) error {
	c.mutex.lock()
	defer c.mutex.unlock()

	staged := c.staged
	c.staged = nil

	if forward {
		for _, cr := range staged {
			if cr.old != nil && c.dataMgr != nil {
				key := chunk.MakeKey(c.db.ID, cr.tableID, cr.old.ColumnID)
				err := c.dataMgr.DeleteBuffersWithPrefix(key, true)
				if err != nil {
					return err
				}
			}
		}
		return nil
	}

	for idx := len(staged) - 1; idx >= 0; idx-- {
		cr := staged[idx]
		td := c.tableByID[cr.tableID]
		if td == nil {
			continue
		}

		if cr.new != nil {
			c.storeMutex.Lock()
			err := c.store.DropColumn(cr.tableID, cr.new.ColumnID)
			c.storeMutex.Unlock()
			if err != nil {
				return err
			}
			delete(c.columnsByID[cr.tableID], cr.new.ColumnID)
			delete(c.columnNames[cr.tableID], cr.new.Name)
			td.NColumns--

			if cr.new.Type.Encoding == schema.EncodingDict && cr.new.Type.CompParam > 0 {
				err = c.releaseDictionaryLocked(cr.new.Type.CompParam, false)
				if err != nil {
					return err
				}
			}
			if c.dataMgr != nil {
				key := chunk.MakeKey(c.db.ID, cr.tableID, cr.new.ColumnID)
				err = c.dataMgr.DeleteBuffersWithPrefix(key, true)
				if err != nil {
					return err
				}
			}
		}
		if cr.old != nil {
			c.storeMutex.Lock()
			err := c.store.AddColumn(cr.old)
			c.storeMutex.Unlock()
			if err != nil {
				return err
			}
			c.columnsByID[cr.tableID][cr.old.ColumnID] = cr.old
			c.columnNames[cr.tableID][cr.old.Name] = cr.old
			td.NColumns++
		}

		c.storeMutex.Lock()
		err := c.store.UpdateTable(td)
		c.storeMutex.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

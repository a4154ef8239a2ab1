package catalog

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/gzwplato/omniscidb/schema"
)

const dictNBits = 32

// resolveDictionaries assigns a dictionary to every dictionary encoded
// string column: a shared reference to a sibling or existing column where
// declared, a freshly allocated dictionary otherwise. New descriptors are
// returned for the caller to persist with the table; reference count
// increments on existing dictionaries are persisted here.
func (c *Catalog) resolveDictionaries(td *schema.TableDescriptor,
	cols []schema.ColumnDescriptor,
	shared []schema.SharedDictionaryDef) ([]schema.DictDescriptor, error) {

	var newDicts []schema.DictDescriptor
	newByID := map[int]int{}

	for idx := range cols {
		cd := &cols[idx]
		if !cd.Type.IsString() || cd.Type.Encoding != schema.EncodingDict ||
			cd.Type.CompParam > 0 {

			continue
		}

		def := findSharedDef(shared, cd.Name)
		if def == nil {
			ref := schema.DictRef{DBID: c.db.ID, DictID: c.nextDictID}
			newDicts = append(newDicts, schema.DictDescriptor{
				Ref:      ref,
				Name:     fmt.Sprintf("%s_%s", td.Name, cd.Name),
				NBits:    dictNBits,
				RefCount: 1,
				Folder:   dictFolder(c.dataDir, ref),
			})
			newByID[ref.DictID] = len(newDicts) - 1
			c.nextDictID++
			cd.Type.CompParam = ref.DictID
			continue
		}

		dictID, err := c.sharedDictID(td, cols[:idx], def)
		if err != nil {
			return nil, err
		}

		if nidx, ok := newByID[dictID]; ok {
			newDicts[nidx].RefCount++
			newDicts[nidx].IsShared = true
			cd.Type.CompParam = dictID
			continue
		}
		dd, ok := c.dicts[dictID]
		if !ok {
			return nil, fmt.Errorf("catalog: column %s references unknown dictionary %d",
				cd.Name, dictID)
		}
		ndd := dd.Copy()
		ndd.RefCount++
		ndd.IsShared = true
		c.storeMutex.Lock()
		err = c.store.UpdateDictionary(ndd)
		c.storeMutex.Unlock()
		if err != nil {
			return nil, err
		}
		dd.RefCount++
		dd.IsShared = true
		cd.Type.CompParam = dictID
	}

	return newDicts, nil
}

// sharedDictID resolves a shared dictionary declaration to a dictionary
// id: a sibling column earlier in the same declaration, or a column of an
// existing table.
func (c *Catalog) sharedDictID(td *schema.TableDescriptor,
	siblings []schema.ColumnDescriptor, def *schema.SharedDictionaryDef) (int, error) {

	if def.ForeignTable == "" || def.ForeignTable == td.Name {
		for idx := range siblings {
			cd := &siblings[idx]
			if cd.Name != def.ForeignColumn {
				continue
			}
			if cd.Type.Encoding != schema.EncodingDict || cd.Type.CompParam <= 0 {
				return 0, fmt.Errorf("catalog: column %s.%s has no dictionary to share",
					td.Name, def.ForeignColumn)
			}
			return cd.Type.CompParam, nil
		}
		return 0, fmt.Errorf("catalog: shared dictionary column %s.%s not found",
			td.Name, def.ForeignColumn)
	}

	otd, ok := c.tableByName[def.ForeignTable]
	if !ok {
		return 0, fmt.Errorf("catalog: shared dictionary table %s does not exist",
			def.ForeignTable)
	}
	ocd, ok := c.columnNames[otd.TableID][def.ForeignColumn]
	if !ok || ocd.Type.Encoding != schema.EncodingDict || ocd.Type.CompParam <= 0 {
		return 0, fmt.Errorf("catalog: column %s.%s has no dictionary to share",
			def.ForeignTable, def.ForeignColumn)
	}
	return ocd.Type.CompParam, nil
}

// rollbackDictionaries undoes the dictionary work of a create that failed
// to persist: reference counts taken on existing dictionaries are
// released, and the id allocator rewinds past the new dictionaries, which
// were never persisted.
func (c *Catalog) rollbackDictionaries(cols []schema.ColumnDescriptor,
	firstNewDictID int) {

	for idx := range cols {
		cd := &cols[idx]
		if cd.Type.Encoding != schema.EncodingDict || cd.Type.CompParam <= 0 ||
			cd.Type.CompParam >= firstNewDictID {

			continue
		}
		c.releaseDictionaryLocked(cd.Type.CompParam, true)
	}
	c.nextDictID = firstNewDictID
}

// releaseDictionaryLocked decrements a dictionary's reference count,
// deleting it and its folder when the count reaches zero.
func (c *Catalog) releaseDictionaryLocked(dictID int, isOnError bool) error {
	dd, ok := c.dicts[dictID]
	if !ok {
		if isOnError {
			return nil
		}
		return fmt.Errorf("catalog: dictionary %d does not exist", dictID)
	}
	if dd.RefCount <= 0 {
		panic(fmt.Sprintf("catalog: dictionary %d reference count %d", dictID,
			dd.RefCount))
	}

	dd.RefCount--
	if dd.RefCount > 0 {
		c.storeMutex.Lock()
		err := c.store.UpdateDictionary(dd)
		c.storeMutex.Unlock()
		return err
	}

	c.storeMutex.Lock()
	err := c.store.DeleteDictionary(dictID)
	c.storeMutex.Unlock()
	if err != nil && !isOnError {
		dd.RefCount++
		return err
	}

	if dd.Client != nil {
		dd.Client.Close()
	}
	if dd.Folder != "" {
		err = os.RemoveAll(dd.Folder)
		if err != nil {
			log.WithField("folder", dd.Folder).Warnf("remove dictionary folder: %s", err)
		}
	}
	delete(c.dicts, dictID)
	return nil
}

// SetDictionaryClient attaches a loaded dictionary instance; the
// dictionary service is an external collaborator.
func (c *Catalog) SetDictionaryClient(dictID int, client schema.DictClient) error {
	c.mutex.lock()
	defer c.mutex.unlock()

	dd, ok := c.dicts[dictID]
	if !ok {
		return fmt.Errorf("catalog: dictionary %d does not exist", dictID)
	}
	dd.Client = client
	return nil
}

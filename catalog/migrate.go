package catalog

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gzwplato/omniscidb/flags"
	"github.com/gzwplato/omniscidb/schema"
)

// Default foreign servers created for every database once foreign
// storage support is on.
const (
	DefaultCSVServer     = "omnisci_local_csv"
	DefaultParquetServer = "omnisci_local_parquet"
)

const currentSchemaVersion = 5

// Each migration step is gated by its target version and must be safe to
// run zero or one time; steps see the store directly because they run
// before the descriptor cache is loaded.
type migrationStep struct {
	version int
	name    string
	apply   func(c *Catalog) error
}

var migrations = []migrationStep{
	{2, "add deleted row indicator columns", migrateDeletedColumns},
	{3, "rebuild logical to physical table map", migrateLogicalToPhysical},
	{4, "backfill dashboard metadata", migrateDashboards},
	{5, "create default foreign servers", migrateDefaultServers},
}

func (c *Catalog) migrate() error {
	ver, err := c.store.Version()
	if err != nil {
		return err
	}
	if ver > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", ver,
			currentSchemaVersion)
	}

	for _, step := range migrations {
		if ver >= step.version {
			continue
		}
		log.WithFields(log.Fields{
			"db":      c.db.Name,
			"version": step.version,
		}).Infof("migrating: %s", step.name)

		err = step.apply(c)
		if err != nil {
			return err
		}
		err = c.store.SetVersion(step.version)
		if err != nil {
			return err
		}
		ver = step.version
	}

	if ver < currentSchemaVersion {
		return c.store.SetVersion(currentSchemaVersion)
	}
	return nil
}

// migrateDeletedColumns adds the deleted row indicator to local tables
// created before it existed.
func migrateDeletedColumns(c *Catalog) error {
	tbls, err := c.store.Tables()
	if err != nil {
		return err
	}
	cols, err := c.store.Columns()
	if err != nil {
		return err
	}

	hasDeleted := map[int]bool{}
	maxColID := map[int]int{}
	for idx := range cols {
		cd := &cols[idx]
		if cd.Name == DeletedColumn {
			hasDeleted[cd.TableID] = true
		}
		if cd.ColumnID > maxColID[cd.TableID] {
			maxColID[cd.TableID] = cd.ColumnID
		}
	}

	for idx := range tbls {
		td := &tbls[idx]
		if td.IsView || td.IsForeign() || hasDeleted[td.TableID] {
			continue
		}

		err = c.store.AddColumn(&schema.ColumnDescriptor{
			TableID:  td.TableID,
			ColumnID: maxColID[td.TableID] + 1,
			Name:     DeletedColumn,
			Type:     schema.SQLType{Type: schema.Boolean},
			IsSystem: true,
		})
		if err != nil {
			return err
		}
		td.NColumns++
		err = c.store.UpdateTable(td)
		if err != nil {
			return err
		}
	}
	return nil
}

// migrateLogicalToPhysical reconstructs the sharded table linkage from
// the shard tag in physical table names.
func migrateLogicalToPhysical(c *Catalog) error {
	tbls, err := c.store.Tables()
	if err != nil {
		return err
	}
	existing, err := c.store.LogicalToPhysical()
	if err != nil {
		return err
	}

	byName := map[string]int{}
	for idx := range tbls {
		byName[tbls[idx].Name] = tbls[idx].TableID
	}

	physByLogical := map[int][]int{}
	for idx := range tbls {
		td := &tbls[idx]
		pos := strings.LastIndex(td.Name, shardTag)
		if pos < 0 {
			continue
		}
		if _, err := strconv.Atoi(td.Name[pos+len(shardTag):]); err != nil {
			continue
		}
		logicalID, ok := byName[td.Name[:pos]]
		if !ok {
			continue
		}
		physByLogical[logicalID] = append(physByLogical[logicalID], td.TableID)
	}

	for logicalID, physIDs := range physByLogical {
		if _, ok := existing[logicalID]; ok {
			continue
		}
		sort.Ints(physIDs)
		err = c.store.SetLogicalToPhysical(logicalID, physIDs)
		if err != nil {
			return err
		}
	}
	return nil
}

// migrateDashboards fills in metadata and image hashes missing from
// dashboards written by older versions.
func migrateDashboards(c *Catalog) error {
	dashes, err := c.store.Dashboards()
	if err != nil {
		return err
	}

	for idx := range dashes {
		dd := &dashes[idx]
		if dd.Metadata != "" && dd.ImageHash != "" {
			continue
		}
		if dd.Metadata == "" {
			dd.Metadata = "{}"
		}
		if dd.ImageHash == "" {
			dd.ImageHash = linkHash(dd.State)
		}
		err = c.store.UpdateDashboard(dd)
		if err != nil {
			return err
		}
	}
	return nil
}

func migrateDefaultServers(c *Catalog) error {
	if !c.flgs.GetFlag(flags.EnableFSI) {
		return nil
	}

	svrs, err := c.store.ForeignServers()
	if err != nil {
		return err
	}
	nextID := 1
	for idx := range svrs {
		if svrs[idx].ID >= nextID {
			nextID = svrs[idx].ID + 1
		}
	}

	defaults := []schema.ForeignServer{
		{
			Name:        DefaultCSVServer,
			DataWrapper: schema.DataWrapperCSV,
			Options: map[string]string{
				schema.StorageTypeKey: schema.LocalStorageType,
				schema.BasePathKey:    "/",
			},
		},
		{
			Name:        DefaultParquetServer,
			DataWrapper: schema.DataWrapperParquet,
			Options: map[string]string{
				schema.StorageTypeKey: schema.LocalStorageType,
				schema.BasePathKey:    "/",
			},
		},
	}
	for idx := range defaults {
		fs := &defaults[idx]
		_, err = c.store.ForeignServerByName(fs.Name)
		if err == nil {
			continue
		} else if err != io.EOF {
			return err
		}

		fs.ID = nextID
		fs.CreationTime = time.Now().UTC().Truncate(time.Second)
		err = c.store.InsertForeignServer(fs)
		if err != nil {
			return err
		}
		nextID++
	}
	return nil
}

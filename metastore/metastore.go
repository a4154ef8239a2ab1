package metastore

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/gzwplato/omniscidb/schema"
)

// Store is the durable record of one database's schema objects. The
// catalog's in-memory maps are a cache over it: every structural mutation
// is recorded here before it is considered complete, and the maps are
// rebuilt from it at startup.
//
// Mutations that a single DDL statement performs together are committed
// atomically by the store.
type Store interface {
	Version() (int, error)
	SetVersion(ver int) error

	Tables() ([]schema.TableDescriptor, error)
	Columns() ([]schema.ColumnDescriptor, error)
	Dictionaries() ([]schema.DictDescriptor, error)
	Dashboards() ([]schema.DashboardDescriptor, error)
	Links() ([]schema.LinkDescriptor, error)
	ForeignServers() ([]schema.ForeignServer, error)
	LogicalToPhysical() (map[int][]int, error)

	CreateTable(td *schema.TableDescriptor, cols []schema.ColumnDescriptor,
		dicts []schema.DictDescriptor) error
	DropTable(tableID int) error
	UpdateTable(td *schema.TableDescriptor) error
	SetLogicalToPhysical(logicalID int, physicalIDs []int) error
	DeleteLogicalToPhysical(logicalID int) error

	AddColumn(cd *schema.ColumnDescriptor) error
	UpdateColumn(cd *schema.ColumnDescriptor) error
	DropColumn(tableID, columnID int) error

	InsertDictionary(dd *schema.DictDescriptor) error
	UpdateDictionary(dd *schema.DictDescriptor) error
	DeleteDictionary(dictID int) error

	InsertDashboard(dd *schema.DashboardDescriptor) error
	UpdateDashboard(dd *schema.DashboardDescriptor) error
	DeleteDashboard(id int) error

	InsertLink(ld *schema.LinkDescriptor) error

	InsertForeignServer(fs *schema.ForeignServer) error
	UpdateForeignServer(fs *schema.ForeignServer) error
	DeleteForeignServer(id int) error
	ForeignServerByName(name string) (*schema.ForeignServer, error)

	Close() error
}

// Record kind prefixes; each record kind is one key range of the embedded
// store, ordered so prefix iteration enumerates one kind.
const (
	versionKind   = 'V'
	tableKind     = 'T'
	columnKind    = 'C'
	dictKind      = 'D'
	dashboardKind = 'B'
	linkKind      = 'L'
	serverKind    = 'S'
	physKind      = 'P'
)

var (
	versionKey = []byte{versionKind, 'e', 'r', 's', 'i', 'o', 'n'}
)

type store struct {
	kv KV
}

func NewBBoltStore(dataDir, dbName string) (Store, error) {
	kv, err := MakeBBoltKV(dataDir, dbName)
	if err != nil {
		return nil, err
	}
	return &store{kv: kv}, nil
}

func NewBadgerStore(dataDir string, logger *log.Logger) (Store, error) {
	kv, err := MakeBadgerKV(dataDir, logger)
	if err != nil {
		return nil, err
	}
	return &store{kv: kv}, nil
}

func NewPebbleStore(dataDir string, logger *log.Logger) (Store, error) {
	kv, err := MakePebbleKV(dataDir, logger)
	if err != nil {
		return nil, err
	}
	return &store{kv: kv}, nil
}

// NewMemoryStore is an in-memory store for tests and temporary catalogs.
func NewMemoryStore() (Store, error) {
	kv, err := MakeBTreeKV()
	if err != nil {
		return nil, err
	}
	return &store{kv: kv}, nil
}

func makeKey(kind byte, ids ...int) []byte {
	key := make([]byte, 1+4*len(ids))
	key[0] = kind
	for idx, id := range ids {
		binary.BigEndian.PutUint32(key[1+4*idx:], uint32(id))
	}
	return key
}

func (st *store) scan(kind byte, fn func(key, val []byte) error) error {
	prefix := []byte{kind}
	it, err := st.kv.Iterate(prefix)
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		err = it.Item(
			func(key, val []byte) error {
				if len(key) == 0 || key[0] != kind {
					return io.EOF
				}
				return fn(key, val)
			})
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
}

func (st *store) update(fn func(upd Updater) error) error {
	upd, err := st.kv.Updater()
	if err != nil {
		return err
	}

	err = fn(upd)
	if err != nil {
		upd.Rollback()
		return err
	}
	return upd.Commit()
}

func setRecord(upd Updater, key []byte, rec interface{}) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "metastore: encode record")
	}
	return upd.Set(key, val)
}

func (st *store) setOne(key []byte, rec interface{}) error {
	return st.update(
		func(upd Updater) error {
			return setRecord(upd, key, rec)
		})
}

func (st *store) deleteOne(key []byte) error {
	return st.update(
		func(upd Updater) error {
			return upd.Delete(key)
		})
}

func (st *store) Version() (int, error) {
	var ver int
	err := st.kv.Get(versionKey,
		func(val []byte) error {
			return json.Unmarshal(val, &ver)
		})
	if err == io.EOF {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return ver, nil
}

func (st *store) SetVersion(ver int) error {
	return st.setOne(versionKey, ver)
}

func (st *store) Tables() ([]schema.TableDescriptor, error) {
	var tds []schema.TableDescriptor
	err := st.scan(tableKind,
		func(key, val []byte) error {
			var td schema.TableDescriptor
			err := json.Unmarshal(val, &td)
			if err != nil {
				return errors.Wrap(err, "metastore: decode table record")
			}
			tds = append(tds, td)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return tds, nil
}

func (st *store) Columns() ([]schema.ColumnDescriptor, error) {
	var cds []schema.ColumnDescriptor
	err := st.scan(columnKind,
		func(key, val []byte) error {
			var cd schema.ColumnDescriptor
			err := json.Unmarshal(val, &cd)
			if err != nil {
				return errors.Wrap(err, "metastore: decode column record")
			}
			cds = append(cds, cd)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return cds, nil
}

func (st *store) Dictionaries() ([]schema.DictDescriptor, error) {
	var dds []schema.DictDescriptor
	err := st.scan(dictKind,
		func(key, val []byte) error {
			var dd schema.DictDescriptor
			err := json.Unmarshal(val, &dd)
			if err != nil {
				return errors.Wrap(err, "metastore: decode dictionary record")
			}
			dds = append(dds, dd)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return dds, nil
}

func (st *store) Dashboards() ([]schema.DashboardDescriptor, error) {
	var dds []schema.DashboardDescriptor
	err := st.scan(dashboardKind,
		func(key, val []byte) error {
			var dd schema.DashboardDescriptor
			err := json.Unmarshal(val, &dd)
			if err != nil {
				return errors.Wrap(err, "metastore: decode dashboard record")
			}
			dds = append(dds, dd)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return dds, nil
}

func (st *store) Links() ([]schema.LinkDescriptor, error) {
	var lds []schema.LinkDescriptor
	err := st.scan(linkKind,
		func(key, val []byte) error {
			var ld schema.LinkDescriptor
			err := json.Unmarshal(val, &ld)
			if err != nil {
				return errors.Wrap(err, "metastore: decode link record")
			}
			lds = append(lds, ld)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return lds, nil
}

func (st *store) ForeignServers() ([]schema.ForeignServer, error) {
	var fss []schema.ForeignServer
	err := st.scan(serverKind,
		func(key, val []byte) error {
			var fs schema.ForeignServer
			err := json.Unmarshal(val, &fs)
			if err != nil {
				return errors.Wrap(err, "metastore: decode server record")
			}
			fss = append(fss, fs)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return fss, nil
}

func (st *store) LogicalToPhysical() (map[int][]int, error) {
	m := map[int][]int{}
	err := st.scan(physKind,
		func(key, val []byte) error {
			if len(key) != 5 {
				return errors.Errorf("metastore: bad logical to physical key of %d bytes",
					len(key))
			}
			var ids []int
			err := json.Unmarshal(val, &ids)
			if err != nil {
				return errors.Wrap(err, "metastore: decode logical to physical record")
			}
			m[int(binary.BigEndian.Uint32(key[1:]))] = ids
			return nil
		})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (st *store) CreateTable(td *schema.TableDescriptor, cols []schema.ColumnDescriptor,
	dicts []schema.DictDescriptor) error {

	return st.update(
		func(upd Updater) error {
			err := setRecord(upd, makeKey(tableKind, td.TableID), td)
			if err != nil {
				return err
			}
			for idx := range cols {
				err = setRecord(upd, makeKey(columnKind, cols[idx].TableID, cols[idx].ColumnID),
					&cols[idx])
				if err != nil {
					return err
				}
			}
			for idx := range dicts {
				err = setRecord(upd, makeKey(dictKind, dicts[idx].Ref.DictID), &dicts[idx])
				if err != nil {
					return err
				}
			}
			return nil
		})
}

func (st *store) DropTable(tableID int) error {
	// Collect the column keys outside of the updater; the catalog
	// serializes access to the store.
	var colKeys [][]byte
	err := st.scan(columnKind,
		func(key, val []byte) error {
			if len(key) == 9 && int(binary.BigEndian.Uint32(key[1:])) == tableID {
				colKeys = append(colKeys, append(make([]byte, 0, len(key)), key...))
			}
			return nil
		})
	if err != nil {
		return err
	}

	return st.update(
		func(upd Updater) error {
			err := upd.Delete(makeKey(tableKind, tableID))
			if err != nil {
				return err
			}
			for _, key := range colKeys {
				err = upd.Delete(key)
				if err != nil {
					return err
				}
			}
			return nil
		})
}

func (st *store) UpdateTable(td *schema.TableDescriptor) error {
	return st.setOne(makeKey(tableKind, td.TableID), td)
}

func (st *store) SetLogicalToPhysical(logicalID int, physicalIDs []int) error {
	return st.setOne(makeKey(physKind, logicalID), physicalIDs)
}

func (st *store) DeleteLogicalToPhysical(logicalID int) error {
	return st.deleteOne(makeKey(physKind, logicalID))
}

func (st *store) AddColumn(cd *schema.ColumnDescriptor) error {
	return st.setOne(makeKey(columnKind, cd.TableID, cd.ColumnID), cd)
}

func (st *store) UpdateColumn(cd *schema.ColumnDescriptor) error {
	return st.setOne(makeKey(columnKind, cd.TableID, cd.ColumnID), cd)
}

func (st *store) DropColumn(tableID, columnID int) error {
	return st.deleteOne(makeKey(columnKind, tableID, columnID))
}

func (st *store) InsertDictionary(dd *schema.DictDescriptor) error {
	return st.setOne(makeKey(dictKind, dd.Ref.DictID), dd)
}

func (st *store) UpdateDictionary(dd *schema.DictDescriptor) error {
	return st.setOne(makeKey(dictKind, dd.Ref.DictID), dd)
}

func (st *store) DeleteDictionary(dictID int) error {
	return st.deleteOne(makeKey(dictKind, dictID))
}

func (st *store) InsertDashboard(dd *schema.DashboardDescriptor) error {
	return st.setOne(makeKey(dashboardKind, dd.ID), dd)
}

func (st *store) UpdateDashboard(dd *schema.DashboardDescriptor) error {
	return st.setOne(makeKey(dashboardKind, dd.ID), dd)
}

func (st *store) DeleteDashboard(id int) error {
	return st.deleteOne(makeKey(dashboardKind, id))
}

func (st *store) InsertLink(ld *schema.LinkDescriptor) error {
	return st.setOne(makeKey(linkKind, ld.LinkID), ld)
}

func (st *store) InsertForeignServer(fs *schema.ForeignServer) error {
	return st.setOne(makeKey(serverKind, fs.ID), fs)
}

func (st *store) UpdateForeignServer(fs *schema.ForeignServer) error {
	return st.setOne(makeKey(serverKind, fs.ID), fs)
}

func (st *store) DeleteForeignServer(id int) error {
	return st.deleteOne(makeKey(serverKind, id))
}

func (st *store) ForeignServerByName(name string) (*schema.ForeignServer, error) {
	var found *schema.ForeignServer
	err := st.scan(serverKind,
		func(key, val []byte) error {
			var fs schema.ForeignServer
			err := json.Unmarshal(val, &fs)
			if err != nil {
				return errors.Wrap(err, "metastore: decode server record")
			}
			if fs.Name == name {
				found = &fs
				return io.EOF
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, io.EOF
	}
	return found, nil
}

func (st *store) Close() error {
	return st.kv.Close()
}

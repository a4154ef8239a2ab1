package foreign

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/gzwplato/omniscidb/chunk"
	"github.com/gzwplato/omniscidb/schema"
)

const defaultFragmentSize = 32000000

// csvWrapper materializes a delimited file into fixed width chunks. Text
// columns are dictionary encoded as 4 byte ids in order of appearance,
// through the column's dictionary client when one is attached.
type csvWrapper struct {
	dbID int
	info *TableInfo
	path string
	sep  rune
	hdr  bool

	mutex    sync.Mutex
	loaded   bool
	entries  []chunk.MetadataEntry
	chunks   map[string]*chunk.Buffer
	textIDs  map[int]map[string]int64
	restored bool
}

// NewCSVWrapper creates the data wrapper for one CSV backed foreign
// table. The server's BASE_PATH and the table's FILE_PATH option locate
// the file.
func NewCSVWrapper(dbID int, info *TableInfo) (DataWrapper, error) {
	base := info.Server.Options[schema.BasePathKey]
	fn := info.Table.Options[schema.FilePathKey]
	if fn == "" {
		return nil, errors.Errorf("foreign: table %s has no %s option",
			info.Table.Name, schema.FilePathKey)
	}

	sep := ','
	if d := info.Table.Options[schema.DelimiterKey]; d != "" {
		sep = []rune(d)[0]
	}
	hdr := true
	if h := info.Table.Options[schema.HeaderKey]; h != "" {
		v, err := strconv.ParseBool(h)
		if err != nil {
			return nil, errors.Errorf("foreign: table %s: bad %s option: %s",
				info.Table.Name, schema.HeaderKey, h)
		}
		hdr = v
	}

	return &csvWrapper{
		dbID:    dbID,
		info:    info,
		path:    filepath.Join(base, fn),
		sep:     sep,
		hdr:     hdr,
		chunks:  map[string]*chunk.Buffer{},
		textIDs: map[int]map[string]int64{},
	}, nil
}

// MakeDataWrapper dispatches on the foreign server's data wrapper type;
// it is the default MakeWrapper for the storage manager.
func MakeDataWrapper(dbID int, info *TableInfo) (DataWrapper, error) {
	switch info.Server.DataWrapper {
	case schema.DataWrapperCSV:
		return NewCSVWrapper(dbID, info)
	}
	return nil, errors.Errorf("foreign: no data wrapper for %s", info.Server.DataWrapper)
}

func columnWidth(cd *schema.ColumnDescriptor) int {
	if cd.Type.Encoding == schema.EncodingFixed && cd.Type.CompParam > 0 {
		return cd.Type.CompParam
	}
	switch cd.Type.Type {
	case schema.Boolean:
		return 1
	case schema.SmallInt:
		return 2
	case schema.Integer:
		return 4
	}
	return 8
}

func parseCSVValue(cd *schema.ColumnDescriptor, s string, width int) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if cd.Type.NotNull {
			return 0, errors.Errorf("foreign: null in NOT NULL column %s", cd.Name)
		}
		return chunk.NullValue(width), nil
	}

	switch cd.Type.Type {
	case schema.Boolean:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return 0, errors.Errorf("foreign: column %s: bad boolean: %s", cd.Name, s)
		}
		if v {
			return 1, nil
		}
		return 0, nil
	case schema.SmallInt, schema.Integer, schema.BigInt:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, errors.Errorf("foreign: column %s: bad integer: %s", cd.Name, s)
		}
		return v, nil
	case schema.Timestamp:
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v, nil
		}
		t, err := time.Parse("2006-01-02 15:04:05", s)
		if err != nil {
			return 0, errors.Errorf("foreign: column %s: bad timestamp: %s", cd.Name, s)
		}
		return t.Unix(), nil
	case schema.Date:
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return 0, errors.Errorf("foreign: column %s: bad date: %s", cd.Name, s)
		}
		return t.Unix(), nil
	}
	return 0, errors.Errorf("foreign: column %s: type %s not supported by the CSV wrapper",
		cd.Name, cd.Type)
}

func (cw *csvWrapper) dataColumns() []schema.ColumnDescriptor {
	var cols []schema.ColumnDescriptor
	for _, cd := range cw.info.Columns {
		if cd.IsSystem || cd.IsVirtual {
			continue
		}
		cols = append(cols, cd)
	}
	return cols
}

func (cw *csvWrapper) encodeColumn(cd *schema.ColumnDescriptor, rows [][]string,
	fld int, key chunk.Key) error {

	width := columnWidth(cd)
	vals := make([]int64, 0, len(rows))
	if cd.Type.IsString() {
		width = 4
		ids := cw.textIDs[cd.ColumnID]
		if ids == nil {
			ids = map[string]int64{}
			cw.textIDs[cd.ColumnID] = ids
		}
		for _, row := range rows {
			s := row[fld]
			if s == "" && !cd.Type.NotNull {
				vals = append(vals, chunk.NullValue(4))
				continue
			}
			if dc, ok := cw.info.Dicts[cd.ColumnID]; ok {
				vals = append(vals, int64(dc.GetOrAdd(s)))
				continue
			}
			id, ok := ids[s]
			if !ok {
				id = int64(len(ids))
				ids[s] = id
			}
			vals = append(vals, id)
		}
	} else {
		for _, row := range rows {
			v, err := parseCSVValue(cd, row[fld], width)
			if err != nil {
				return err
			}
			vals = append(vals, v)
		}
	}

	enc, err := chunk.NewFixedLengthEncoder(width)
	if err != nil {
		return err
	}
	buf := chunk.NewBuffer(len(vals) * width)
	md, err := enc.Append(vals, buf)
	if err != nil {
		return err
	}

	cw.chunks[key.String()] = buf
	cw.entries = append(cw.entries, chunk.MetadataEntry{Key: key, Metadata: md})
	return nil
}

func (cw *csvWrapper) load() error {
	if cw.loaded {
		return nil
	}

	f, err := os.Open(cw.path)
	if err != nil {
		return errors.Wrapf(err, "foreign: table %s", cw.info.Table.Name)
	}
	defer f.Close()

	cols := cw.dataColumns()
	r := csv.NewReader(f)
	r.Comma = cw.sep
	r.FieldsPerRecord = len(cols)
	rows, err := r.ReadAll()
	if err != nil {
		return errors.Wrapf(err, "foreign: table %s: parse %s", cw.info.Table.Name,
			cw.path)
	}
	if cw.hdr && len(rows) > 0 {
		rows = rows[1:]
	}

	fragSize := cw.info.Table.FragmentSize
	if fragSize <= 0 {
		fragSize = defaultFragmentSize
	}

	for fragIdx := 0; len(rows) > 0; fragIdx++ {
		cnt := fragSize
		if cnt > len(rows) {
			cnt = len(rows)
		}
		frag := rows[:cnt]
		rows = rows[cnt:]

		for fld := range cols {
			cd := cols[fld]
			key := chunk.MakeKey(cw.dbID, cw.info.Table.TableID, cd.ColumnID, fragIdx)
			err = cw.encodeColumn(&cd, frag, fld, key)
			if err != nil {
				return err
			}
		}
	}

	cw.loaded = true
	return nil
}

func (cw *csvWrapper) ChunkMetadata() ([]chunk.MetadataEntry, error) {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	err := cw.load()
	if err != nil {
		return nil, err
	}
	entries := make([]chunk.MetadataEntry, len(cw.entries))
	copy(entries, cw.entries)
	return entries, nil
}

func (cw *csvWrapper) PopulateChunkBuffers(buffers []ChunkBuffer) error {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	err := cw.load()
	if err != nil {
		return err
	}
	for _, cb := range buffers {
		buf, ok := cw.chunks[cb.Key.String()]
		if !ok {
			return errors.Errorf("foreign: table %s has no chunk %s",
				cw.info.Table.Name, cb.Key)
		}
		cb.Buffer.SetData(buf.Data())
	}
	cw.restored = true
	return nil
}

func (cw *csvWrapper) IsRestored() bool {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()
	return cw.restored
}

package chunk

import (
	"fmt"
	"strings"
)

// Key addresses one chunk of one column of one fragment:
// (database id, table id, column id, fragment id[, varlen part]).
// Shorter keys are prefixes used for bulk operations.
type Key []int

const (
	DatabaseIdx = 0
	TableIdx    = 1
	ColumnIdx   = 2
	FragmentIdx = 3
	VarlenIdx   = 4

	// Varlen columns store a data chunk and an index chunk per fragment.
	VarlenData  = 1
	VarlenIndex = 2
)

func MakeKey(ids ...int) Key {
	return Key(ids)
}

// TableKey is the two element prefix addressing every chunk of one table.
func TableKey(dbID, tableID int) Key {
	return Key{dbID, tableID}
}

func (k Key) Database() int {
	return k[DatabaseIdx]
}

func (k Key) Table() int {
	return k[TableIdx]
}

func (k Key) Column() int {
	return k[ColumnIdx]
}

func (k Key) Fragment() int {
	return k[FragmentIdx]
}

func (k Key) HasTablePrefix() bool {
	return len(k) >= 2
}

// TablePrefix returns the (db, table) prefix of the key.
func (k Key) TablePrefix() Key {
	if !k.HasTablePrefix() {
		panic(fmt.Sprintf("chunk: key %s: missing table prefix", k))
	}
	return k[:2:2]
}

// Compare orders keys lexicographically; a strict prefix sorts before any
// key it prefixes.
func (k Key) Compare(k2 Key) int {
	for idx := 0; idx < len(k) && idx < len(k2); idx++ {
		if k[idx] < k2[idx] {
			return -1
		} else if k[idx] > k2[idx] {
			return 1
		}
	}

	if len(k) < len(k2) {
		return -1
	} else if len(k) > len(k2) {
		return 1
	}
	return 0
}

// HasPrefix returns whether prefix is a (not necessarily strict) prefix of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for idx := range prefix {
		if k[idx] != prefix[idx] {
			return false
		}
	}
	return true
}

func (k Key) Equal(k2 Key) bool {
	return k.Compare(k2) == 0
}

func (k Key) Copy() Key {
	return append(make(Key, 0, len(k)), k...)
}

func (k Key) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for idx, id := range k {
		if idx > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", id)
	}
	sb.WriteByte(')')
	return sb.String()
}

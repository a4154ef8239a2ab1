package foreign

import (
	"github.com/gzwplato/omniscidb/chunk"
	"github.com/gzwplato/omniscidb/schema"
)

// TableInfo is everything the foreign storage manager needs to know about
// one foreign table; the catalog supplies it through a TableProvider.
type TableInfo struct {
	Table   *schema.TableDescriptor
	Columns []schema.ColumnDescriptor
	Server  *schema.ForeignServer

	// Dicts maps dictionary encoded column ids to their dictionary
	// clients; missing entries fall back to wrapper local encoding.
	Dicts map[int]schema.DictClient
}

// TableProvider resolves a (db, table) pair to its foreign table details.
// It must return nil, not an error, for unknown tables.
type TableProvider func(dbID, tableID int) (*TableInfo, error)

// ChunkBuffer pairs a chunk key with the buffer it should be materialized
// into.
type ChunkBuffer struct {
	Key    chunk.Key
	Buffer *chunk.Buffer
}

// DataWrapper materializes chunks of one foreign table from its external
// source. Wrappers own their retry policy; the manager does not retry.
type DataWrapper interface {
	// ChunkMetadata enumerates all chunks the source can serve.
	ChunkMetadata() ([]chunk.MetadataEntry, error)

	// PopulateChunkBuffers fully materializes every requested chunk into
	// its paired buffer.
	PopulateChunkBuffers(buffers []ChunkBuffer) error

	IsRestored() bool
}

// MakeWrapper constructs the data wrapper for a table based on its
// server's data wrapper type.
type MakeWrapper func(dbID int, info *TableInfo) (DataWrapper, error)

package chunk

// Stats are per-chunk column statistics used to prune fragments during
// query execution.
type Stats struct {
	Min      int64
	Max      int64
	HasNulls bool
}

type Metadata struct {
	NumBytes    int
	NumElements int
	Stats       Stats
}

// MetadataEntry pairs a chunk key with its metadata for bulk enumeration.
type MetadataEntry struct {
	Key      Key
	Metadata Metadata
}

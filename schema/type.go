package schema

import (
	"fmt"
)

type DataType int

const (
	Boolean DataType = iota + 1
	SmallInt
	Integer
	BigInt
	Float
	Double
	Text
	Timestamp
	Date
	Point
	LineString
	Polygon
	MultiPolygon
)

type Encoding int

const (
	EncodingNone Encoding = iota
	EncodingFixed
	EncodingDict
)

// SQLType describes the declared type of a column. CompParam carries the
// encoding parameter: the byte width for fixed encodings and the dictionary
// id for dictionary encodings.
type SQLType struct {
	Type      DataType
	Encoding  Encoding
	CompParam int
	NotNull   bool
}

func (t SQLType) IsString() bool {
	return t.Type == Text
}

func (t SQLType) IsGeo() bool {
	switch t.Type {
	case Point, LineString, Polygon, MultiPolygon:
		return true
	}
	return false
}

// PhysicalCols is the number of physical sub-columns backing a geo column.
func (t SQLType) PhysicalCols() int {
	switch t.Type {
	case Point:
		return 1 // coords
	case LineString:
		return 2 // coords, bounds
	case Polygon:
		return 3 // coords, ring_sizes, bounds
	case MultiPolygon:
		return 4 // coords, ring_sizes, poly_rings, bounds
	}
	return 0
}

func (t SQLType) String() string {
	var s string
	switch t.Type {
	case Boolean:
		s = "BOOLEAN"
	case SmallInt:
		s = "SMALLINT"
	case Integer:
		s = "INTEGER"
	case BigInt:
		s = "BIGINT"
	case Float:
		s = "FLOAT"
	case Double:
		s = "DOUBLE"
	case Text:
		s = "TEXT"
	case Timestamp:
		s = "TIMESTAMP"
	case Date:
		s = "DATE"
	case Point:
		s = "POINT"
	case LineString:
		s = "LINESTRING"
	case Polygon:
		s = "POLYGON"
	case MultiPolygon:
		s = "MULTIPOLYGON"
	default:
		s = fmt.Sprintf("<type %d>", t.Type)
	}

	switch t.Encoding {
	case EncodingFixed:
		s += fmt.Sprintf(" ENCODING FIXED(%d)", t.CompParam*8)
	case EncodingDict:
		s += " ENCODING DICT"
	}
	return s
}

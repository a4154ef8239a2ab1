package chunk

import (
	"fmt"
	"math"
)

// FixedLengthEncoder packs int64 column values into narrower fixed width
// integers, accumulating min/max/null statistics as it goes. The minimum
// value of the encoded width is reserved as the null sentinel.
type FixedLengthEncoder struct {
	byteWidth   int
	dataMin     int64
	dataMax     int64
	hasNulls    bool
	numElements int
}

func NewFixedLengthEncoder(byteWidth int) (*FixedLengthEncoder, error) {
	switch byteWidth {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("chunk: fixed length encoder: got byte width %d; want 1, 2, 4, or 8",
			byteWidth)
	}

	return &FixedLengthEncoder{
		byteWidth: byteWidth,
		dataMin:   math.MaxInt64,
		dataMax:   math.MinInt64,
	}, nil
}

// NullValue is the sentinel encoding a NULL at the given byte width.
func NullValue(byteWidth int) int64 {
	switch byteWidth {
	case 1:
		return math.MinInt8
	case 2:
		return math.MinInt16
	case 4:
		return math.MinInt32
	default:
		return math.MinInt64
	}
}

func maxValue(byteWidth int) int64 {
	switch byteWidth {
	case 1:
		return math.MaxInt8
	case 2:
		return math.MaxInt16
	case 4:
		return math.MaxInt32
	default:
		return math.MaxInt64
	}
}

// Append encodes vals onto buf and returns the metadata for everything
// appended so far. Values outside the encoded width are an error.
func (enc *FixedLengthEncoder) Append(vals []int64, buf *Buffer) (Metadata, error) {
	null := NullValue(enc.byteWidth)
	max := maxValue(enc.byteWidth)

	p := make([]byte, 0, len(vals)*enc.byteWidth)
	for _, val := range vals {
		if val != null && (val < null || val > max) {
			return Metadata{}, fmt.Errorf("chunk: fixed encoding failed for %d at width %d",
				val, enc.byteWidth)
		}

		if val == null {
			enc.hasNulls = true
		} else {
			if val < enc.dataMin {
				enc.dataMin = val
			}
			if val > enc.dataMax {
				enc.dataMax = val
			}
		}

		uval := uint64(val)
		for idx := 0; idx < enc.byteWidth; idx++ {
			p = append(p, byte(uval>>(8*idx)))
		}
	}

	buf.Append(p)
	enc.numElements += len(vals)
	return enc.Metadata(buf), nil
}

func (enc *FixedLengthEncoder) Metadata(buf *Buffer) Metadata {
	return Metadata{
		NumBytes:    buf.Size(),
		NumElements: enc.numElements,
		Stats: Stats{
			Min:      enc.dataMin,
			Max:      enc.dataMax,
			HasNulls: enc.hasNulls,
		},
	}
}

// DecodeFixedLength unpacks values encoded at byteWidth back into int64s.
func DecodeFixedLength(data []byte, byteWidth int) ([]int64, error) {
	switch byteWidth {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("chunk: decode: got byte width %d; want 1, 2, 4, or 8", byteWidth)
	}
	if len(data)%byteWidth != 0 {
		return nil, fmt.Errorf("chunk: decode: %d bytes is not a multiple of width %d",
			len(data), byteWidth)
	}

	vals := make([]int64, 0, len(data)/byteWidth)
	for off := 0; off < len(data); off += byteWidth {
		var uval uint64
		for idx := 0; idx < byteWidth; idx++ {
			uval |= uint64(data[off+idx]) << (8 * idx)
		}

		// Sign extend.
		shift := 64 - 8*byteWidth
		vals = append(vals, int64(uval<<shift)>>shift)
	}
	return vals, nil
}

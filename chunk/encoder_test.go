package chunk_test

import (
	"math"
	"reflect"
	"testing"

	"github.com/gzwplato/omniscidb/chunk"
)

func TestFixedLengthEncoder(t *testing.T) {
	cases := []struct {
		byteWidth int
		vals      []int64
		min, max  int64
		hasNulls  bool
	}{
		{1, []int64{0, 1, 1, 0}, 0, 1, false},
		{2, []int64{-300, 500, 0}, -300, 500, false},
		{4, []int64{7, chunk.NullValue(4), -7}, -7, 7, true},
		{8, []int64{math.MaxInt64, math.MinInt64 + 1}, math.MinInt64 + 1,
			math.MaxInt64, false},
	}

	for _, c := range cases {
		enc, err := chunk.NewFixedLengthEncoder(c.byteWidth)
		if err != nil {
			t.Fatalf("NewFixedLengthEncoder(%d) failed with %s", c.byteWidth, err)
		}
		buf := chunk.NewBuffer(0)
		md, err := enc.Append(c.vals, buf)
		if err != nil {
			t.Errorf("Append(%v) failed with %s", c.vals, err)
			continue
		}
		if md.NumBytes != len(c.vals)*c.byteWidth {
			t.Errorf("Append(%v) got %d bytes want %d", c.vals, md.NumBytes,
				len(c.vals)*c.byteWidth)
		}
		if md.NumElements != len(c.vals) {
			t.Errorf("Append(%v) got %d elements want %d", c.vals, md.NumElements,
				len(c.vals))
		}
		if md.Stats.Min != c.min || md.Stats.Max != c.max {
			t.Errorf("Append(%v) got stats [%d, %d] want [%d, %d]", c.vals,
				md.Stats.Min, md.Stats.Max, c.min, c.max)
		}
		if md.Stats.HasNulls != c.hasNulls {
			t.Errorf("Append(%v) got hasNulls %v want %v", c.vals, md.Stats.HasNulls,
				c.hasNulls)
		}

		vals, err := chunk.DecodeFixedLength(buf.Data(), c.byteWidth)
		if err != nil {
			t.Errorf("DecodeFixedLength failed with %s", err)
		} else if !reflect.DeepEqual(vals, c.vals) {
			t.Errorf("DecodeFixedLength got %v want %v", vals, c.vals)
		}
	}
}

func TestFixedLengthEncoderAccumulates(t *testing.T) {
	enc, err := chunk.NewFixedLengthEncoder(4)
	if err != nil {
		t.Fatal(err)
	}
	buf := chunk.NewBuffer(0)
	_, err = enc.Append([]int64{10, 20}, buf)
	if err != nil {
		t.Fatal(err)
	}
	md, err := enc.Append([]int64{-10, chunk.NullValue(4)}, buf)
	if err != nil {
		t.Fatal(err)
	}

	// Statistics cover everything appended so far.
	if md.NumElements != 4 || md.NumBytes != 16 {
		t.Errorf("got %d elements of %d bytes want 4 of 16", md.NumElements, md.NumBytes)
	}
	if md.Stats.Min != -10 || md.Stats.Max != 20 || !md.Stats.HasNulls {
		t.Errorf("got stats [%d, %d] hasNulls %v want [-10, 20] true", md.Stats.Min,
			md.Stats.Max, md.Stats.HasNulls)
	}
}

func TestFixedLengthEncoderRange(t *testing.T) {
	enc, err := chunk.NewFixedLengthEncoder(2)
	if err != nil {
		t.Fatal(err)
	}
	_, err = enc.Append([]int64{math.MaxInt16 + 1}, chunk.NewBuffer(0))
	if err == nil {
		t.Error("Append of an out of range value did not fail")
	}

	_, err = chunk.NewFixedLengthEncoder(3)
	if err == nil {
		t.Error("NewFixedLengthEncoder(3) did not fail")
	}
}

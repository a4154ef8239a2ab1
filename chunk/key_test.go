package chunk_test

import (
	"testing"

	"github.com/gzwplato/omniscidb/chunk"
)

func TestKeyCompare(t *testing.T) {
	cases := []struct {
		k1, k2 chunk.Key
		cmp    int
	}{
		{chunk.MakeKey(1, 2, 3, 4), chunk.MakeKey(1, 2, 3, 4), 0},
		{chunk.MakeKey(1, 2, 3, 4), chunk.MakeKey(1, 2, 3, 5), -1},
		{chunk.MakeKey(1, 2, 4, 0), chunk.MakeKey(1, 2, 3, 9), 1},
		{chunk.MakeKey(1, 2), chunk.MakeKey(1, 2, 0, 0), -1},
		{chunk.MakeKey(2), chunk.MakeKey(1, 9, 9, 9), 1},
		{chunk.MakeKey(1, 2, 3, 4), chunk.MakeKey(1, 2, 3, 4, 1), -1},
	}

	for _, c := range cases {
		if cmp := c.k1.Compare(c.k2); cmp != c.cmp {
			t.Errorf("Compare(%s, %s) got %d want %d", c.k1, c.k2, cmp, c.cmp)
		}
		if cmp := c.k2.Compare(c.k1); cmp != -c.cmp {
			t.Errorf("Compare(%s, %s) got %d want %d", c.k2, c.k1, cmp, -c.cmp)
		}
	}
}

func TestKeyPrefix(t *testing.T) {
	cases := []struct {
		k, prefix chunk.Key
		has       bool
	}{
		{chunk.MakeKey(1, 2, 3, 4), chunk.TableKey(1, 2), true},
		{chunk.MakeKey(1, 2, 3, 4), chunk.MakeKey(1, 2, 3, 4), true},
		{chunk.MakeKey(1, 2, 3, 4), chunk.TableKey(1, 3), false},
		{chunk.MakeKey(1, 2), chunk.MakeKey(1, 2, 3), false},
		{chunk.MakeKey(1, 2, 3, 4, 1), chunk.MakeKey(1, 2, 3, 4), true},
	}

	for _, c := range cases {
		if has := c.k.HasPrefix(c.prefix); has != c.has {
			t.Errorf("%s.HasPrefix(%s) got %v want %v", c.k, c.prefix, has, c.has)
		}
	}

	k := chunk.MakeKey(7, 8, 9, 10)
	if !k.TablePrefix().Equal(chunk.TableKey(7, 8)) {
		t.Errorf("TablePrefix(%s) got %s", k, k.TablePrefix())
	}
}

package testutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

// CleanDir empties a testdata directory before a test runs, keeping the
// named entries. A missing directory is fine; badger and pebble create
// their own.
func CleanDir(tb testing.TB, dirname string, keeps ...string) {
	tb.Helper()

	fis, err := ioutil.ReadDir(dirname)
	if os.IsNotExist(err) {
		return
	} else if err != nil {
		tb.Fatal(err)
	}

	m := map[string]struct{}{}
	for _, k := range keeps {
		m[k] = struct{}{}
	}

	for _, fi := range fis {
		n := fi.Name()
		if _, found := m[n]; found {
			continue
		}
		err = os.RemoveAll(filepath.Join(dirname, n))
		if err != nil {
			tb.Fatal(err)
		}
	}
}

package config_test

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/gzwplato/omniscidb/config"
)

func TestVarDefaults(t *testing.T) {
	cfg := config.NewConfig()
	b := true
	i := 32000000
	s := "data"
	cfg.Var(&b, "enable_fsi")
	cfg.Var(&i, "max_rows")
	cfg.Var(&s, "data_dir")

	if !b {
		t.Errorf("b != true")
	}
	if i != 32000000 {
		t.Errorf("i != 32000000")
	}
	if s != "data" {
		t.Errorf("s != \"data\"")
	}
}

func TestSet(t *testing.T) {
	cfg := config.NewConfig()
	b := false
	i := 123
	cfg.Var(&b, "enable_fsi")
	cfg.Var(&i, "fragment_size")

	err := cfg.Set("enable_fsi", "true")
	if err != nil {
		t.Fatalf("Set(enable_fsi) failed with %s", err)
	}
	err = cfg.Set("fragment_size", "456")
	if err != nil {
		t.Fatalf("Set(fragment_size) failed with %s", err)
	}
	if !b {
		t.Errorf("b != true")
	}
	if i != 456 {
		t.Errorf("i != 456")
	}

	err = cfg.Set("no_such_variable", "true")
	if err == nil {
		t.Errorf("Set(no_such_variable) did not fail")
	}
	err = cfg.Set("fragment_size", "abc")
	if err == nil {
		t.Errorf("Set(fragment_size, abc) did not fail")
	}
}

func TestLoadFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "config_test")
	if err != nil {
		t.Fatal(err)
	}
	fn := filepath.Join(dir, "omnisci.conf")
	err = ioutil.WriteFile(fn,
		[]byte(`
data_dir = "/var/lib/omnisci"
fragment_size = 1000000
enable_fsi = true
`),
		0644)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.NewConfig()
	b := false
	i := 32000000
	s := "data"
	cfg.Var(&b, "enable_fsi")
	cfg.Var(&i, "fragment_size")
	cfg.Var(&s, "data_dir")

	// Flags win over the config file.
	err = cfg.Set("fragment_size", "500")
	if err != nil {
		t.Fatalf("Set(fragment_size) failed with %s", err)
	}

	err = cfg.LoadFile(fn)
	if err != nil {
		t.Fatalf("LoadFile(%s) failed with %s", fn, err)
	}
	if !b {
		t.Errorf("b != true")
	}
	if i != 500 {
		t.Errorf("i != 500")
	}
	if s != "/var/lib/omnisci" {
		t.Errorf("s != \"/var/lib/omnisci\": %s", s)
	}
}

func TestNoConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "config_test")
	if err != nil {
		t.Fatal(err)
	}
	fn := filepath.Join(dir, "omnisci.conf")
	err = ioutil.WriteFile(fn, []byte(`data_dir = "/no"`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.NewConfig()
	s := "data"
	cfg.Var(&s, "data_dir").NoConfig()
	err = cfg.LoadFile(fn)
	if err == nil {
		t.Errorf("LoadFile(%s) did not fail", fn)
	}
}

func TestList(t *testing.T) {
	cfg := config.NewConfig()
	b := true
	s := "data"
	cfg.Var(&b, "enable_fsi").Hide()
	cfg.Var(&s, "data_dir")

	var names []string
	cfg.List(func(name, val, by string) {
		names = append(names, name)
		if name == "data_dir" && by != "default" {
			t.Errorf("data_dir set by %s; expected default", by)
		}
	})
	if len(names) != 1 || names[0] != "data_dir" {
		t.Errorf("List() visited %v; expected [data_dir]", names)
	}
}

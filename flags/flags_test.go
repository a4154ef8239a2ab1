package flags_test

import (
	"testing"

	"github.com/gzwplato/omniscidb/config"
	"github.com/gzwplato/omniscidb/flags"
)

func TestDefault(t *testing.T) {
	flgs := flags.Default()
	if !flgs.GetFlag(flags.EnableFSI) {
		t.Error("GetFlag(EnableFSI) got false want true")
	}
	if flgs.GetFlag(flags.EnableS3FSI) {
		t.Error("GetFlag(EnableS3FSI) got true want false")
	}
}

func TestLookupFlag(t *testing.T) {
	f, ok := flags.LookupFlag("enable_fsi")
	if !ok {
		t.Fatal("LookupFlag(enable_fsi) got !ok")
	}
	if f != flags.EnableFSI {
		t.Errorf("LookupFlag(enable_fsi) got %d want %d", f, flags.EnableFSI)
	}
	f, ok = flags.LookupFlag("Enable_S3_FSI")
	if !ok || f != flags.EnableS3FSI {
		t.Errorf("LookupFlag(Enable_S3_FSI) got %d, %v", f, ok)
	}
	_, ok = flags.LookupFlag("no_such_flag")
	if ok {
		t.Error("LookupFlag(no_such_flag) got ok")
	}
}

func TestConfig(t *testing.T) {
	cfg := config.NewConfig()
	flgs := flags.Config(cfg)
	if !flgs.GetFlag(flags.EnableFSI) {
		t.Error("GetFlag(EnableFSI) got false want true")
	}

	err := cfg.Set("enable_fsi", "false")
	if err != nil {
		t.Fatalf("Set(enable_fsi) failed with %s", err)
	}
	if flgs.GetFlag(flags.EnableFSI) {
		t.Error("GetFlag(EnableFSI) got true want false after Set")
	}

	cnt := 0
	flags.ListFlags(func(nam string, f flags.Flag) {
		cnt += 1
	})
	if cnt != 2 {
		t.Errorf("ListFlags got %d flags want 2", cnt)
	}
}

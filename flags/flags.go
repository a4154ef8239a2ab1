package flags

import (
	"strings"

	"github.com/gzwplato/omniscidb/config"
)

type Flag int

const (
	// EnableFSI turns on foreign storage support: foreign tables are
	// served by data wrappers instead of local chunk files.
	EnableFSI Flag = iota

	// EnableS3FSI allows foreign servers backed by S3 storage.
	EnableS3FSI
)

type flagDefault struct {
	flag Flag
	def  bool
}

var (
	defaultFlags = map[string]flagDefault{
		"enable_fsi":    {EnableFSI, true},
		"enable_s3_fsi": {EnableS3FSI, false},
	}
)

func LookupFlag(nam string) (Flag, bool) {
	fd, ok := defaultFlags[strings.ToLower(nam)]
	return fd.flag, ok
}

func ListFlags(fn func(nam string, f Flag)) {
	for nam, fd := range defaultFlags {
		fn(nam, fd.flag)
	}
}

type Flags []bool

func (flgs Flags) GetFlag(f Flag) bool {
	return flgs[f]
}

func Config(cfg *config.Config) Flags {
	flgs := make([]bool, len(defaultFlags))
	for nam, fd := range defaultFlags {
		flgs[fd.flag] = fd.def
		cfg.Var(&flgs[fd.flag], nam).Hide()
	}
	return flgs
}

func Default() Flags {
	flgs := make([]bool, len(defaultFlags))
	for _, fd := range defaultFlags {
		flgs[fd.flag] = fd.def
	}
	return flgs
}

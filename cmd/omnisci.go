package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gzwplato/omniscidb/catalog"
	"github.com/gzwplato/omniscidb/chunk"
	"github.com/gzwplato/omniscidb/config"
	"github.com/gzwplato/omniscidb/datamgr"
	"github.com/gzwplato/omniscidb/datamgr/filemgr"
	"github.com/gzwplato/omniscidb/datamgr/foreign"
	"github.com/gzwplato/omniscidb/flags"
	"github.com/gzwplato/omniscidb/metastore"
	"github.com/gzwplato/omniscidb/schema"
)

var (
	omnisciCmd = &cobra.Command{
		Use:               "omniscidb",
		Short:             "A columnar analytical database catalog server",
		PersistentPreRunE: omnisciPreRun,
		PersistentPostRun: omnisciPostRun,
	}

	logFile   = "omniscidb.log"
	logLevel  = "info"
	logStderr = false
	logWriter io.WriteCloser

	configFile = "omniscidb.hcl"
	noConfig   = false

	database = "omnisci"
	store    = "bbolt"
	dataDir  = "data"
	maxSize  = int64(0)

	cfg  = config.NewConfig()
	flgs flags.Flags
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableLevelTruncation: true,
	})

	fs := omnisciCmd.PersistentFlags()

	fs.StringVar(&logFile, "log-file", logFile, "`file` to use for logging")
	fs.StringVar(&logLevel, "log-level", logLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
	fs.BoolVarP(&logStderr, "log-stderr", "s", logStderr, "log to standard error")
	fs.StringVar(&configFile, "config-file", configFile, "`file` to load config from")
	fs.BoolVar(&noConfig, "no-config", noConfig, "don't load config file")

	fs.StringVar(&database, "database", database, "`database` to serve")
	fs.StringVar(&store, "store", store, "metadata store to use")
	fs.StringVar(&dataDir, "data", dataDir, "`directory` containing databases")
	fs.Int64Var(&maxSize, "max-size", maxSize, "persistent storage size limit in bytes")

	cfg.Var(&logFile, "log-file")
	cfg.Var(&logLevel, "log-level")
	cfg.Var(&database, "database")
	cfg.Var(&store, "store")
	cfg.Var(&dataDir, "data")
	cfg.Var(&maxSize, "max-size")
	flgs = flags.Config(cfg)
}

func Execute() error {
	return omnisciCmd.Execute()
}

func omnisciPreRun(cmd *cobra.Command, args []string) error {
	// Flags override the config file. Flags that are not config
	// variables, like log-stderr, are cobra's to handle.
	cmd.Flags().Visit(
		func(flg *pflag.Flag) {
			cfg.Set(flg.Name, flg.Value.String())
		})

	if configFile != "" && !noConfig {
		err := cfg.LoadFile(configFile)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("omniscidb: %s", err)
		}
	}

	if !logStderr && logFile != "" {
		var err error
		logWriter, err = os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logWriter = nil
			return fmt.Errorf("omniscidb: %s", err)
		}
		log.SetOutput(logWriter)
	}

	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("omniscidb: %s", err)
	}
	log.SetLevel(ll)

	log.WithField("pid", os.Getpid()).Info("omniscidb starting")
	return nil
}

func omnisciPostRun(cmd *cobra.Command, args []string) {
	log.WithField("pid", os.Getpid()).Info("omniscidb done")

	if logWriter != nil {
		logWriter.Close()
	}
}

func openStore() (metastore.Store, error) {
	switch store {
	case "bbolt":
		return metastore.NewBBoltStore(dataDir, database)
	case "badger":
		return metastore.NewBadgerStore(dataDir, log.StandardLogger())
	case "pebble":
		return metastore.NewPebbleStore(dataDir, log.StandardLogger())
	case "memory":
		return metastore.NewMemoryStore()
	}
	return nil, fmt.Errorf("omniscidb: got %s for store; want bbolt, badger, pebble, or memory",
		store)
}

// openCatalog wires the metadata store, the persistent file manager, and
// the foreign storage manager into a registered catalog.
func openCatalog() (*catalog.Catalog, error) {
	err := os.MkdirAll(dataDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("omniscidb: %s", err)
	}

	st, err := openStore()
	if err != nil {
		return nil, err
	}

	fm, err := filemgr.NewFileMgr(dataDir, maxSize)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("omniscidb: %s", err)
	}

	var cat *catalog.Catalog
	var fsm *foreign.StorageMgr
	if flgs.GetFlag(flags.EnableFSI) {
		fsm, err = foreign.NewStorageMgr(filepath.Join(dataDir, "foreign_cache"), flgs,
			func(dbID, tableID int) (*foreign.TableInfo, error) {
				return cat.ForeignTableInfo(dbID, tableID)
			},
			foreign.MakeDataWrapper)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	var foreignMgr datamgr.BufferMgr
	if fsm != nil {
		foreignMgr = fsm
	}
	dm := datamgr.NewPersistentStorage(fm, foreignMgr,
		func(key chunk.Key) bool {
			return cat.IsForeignStorage(key)
		})

	cat, err = catalog.New(schema.DBMetadata{ID: 1, Name: database}, dataDir, st, dm,
		fm, flgs)
	if err != nil {
		st.Close()
		return nil, err
	}
	catalog.Register(cat)
	return cat, nil
}

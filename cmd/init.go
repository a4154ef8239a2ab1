package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gzwplato/omniscidb/catalog"
)

var (
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize a database: data directory, metadata store, and catalog",
		RunE:  initRun,
	}
)

func init() {
	omnisciCmd.AddCommand(initCmd)
}

func initRun(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer func() {
		catalog.Remove(cat.DBMetadata().Name)
		cat.Close()
	}()

	fmt.Printf("omniscidb: initialized database %s in %s\n", cat.DBMetadata().Name,
		cat.DataDir())
	return nil
}
